package processors

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// jsonValue is a JSON document decoded with member order preserved, unlike
// map[string]any. The first-match contract of the recursive key search
// makes document order observable, so objects keep their members as a
// slice.
type jsonValue struct {
	members  []jsonMember // object form
	elems    []jsonValue  // array form
	scalar   any          // string, json.Number, bool or nil otherwise
	isObject bool
	isArray  bool
}

type jsonMember struct {
	key   string
	value jsonValue
}

func (v jsonValue) isNull() bool {
	return !v.isObject && !v.isArray && v.scalar == nil
}

func (v jsonValue) asString() string {
	if s, ok := v.scalar.(string); ok {
		return s
	}
	return fmt.Sprint(v.scalar)
}

// member returns the named direct member of an object.
func (v jsonValue) member(key string) (jsonValue, bool) {
	for _, m := range v.members {
		if m.key == key {
			return m.value, true
		}
	}
	return jsonValue{}, false
}

func parseJSON(raw []byte) (jsonValue, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return decodeValue(dec)
}

func decodeValue(dec *json.Decoder) (jsonValue, error) {
	tok, err := dec.Token()
	if err != nil {
		return jsonValue{}, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return jsonValue{scalar: tok}, nil
	}

	switch delim {
	case '{':
		obj := jsonValue{isObject: true}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return jsonValue{}, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return jsonValue{}, fmt.Errorf("unexpected object key token %v", keyTok)
			}
			val, err := decodeValue(dec)
			if err != nil {
				return jsonValue{}, err
			}
			obj.members = append(obj.members, jsonMember{key: key, value: val})
		}
		if _, err := dec.Token(); err != nil { // closing brace
			return jsonValue{}, err
		}
		return obj, nil
	case '[':
		arr := jsonValue{isArray: true}
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return jsonValue{}, err
			}
			arr.elems = append(arr.elems, val)
		}
		if _, err := dec.Token(); err != nil { // closing bracket
			return jsonValue{}, err
		}
		return arr, nil
	}
	return jsonValue{}, fmt.Errorf("unexpected delimiter %v", delim)
}

// searchKey looks for the first member named key, depth first. All members
// of the current object are checked before any value is descended into;
// values are then recursed in document order. A direct hit at the current
// level is returned even when null, while null results from recursion are
// skipped and the search continues.
func searchKey(v jsonValue, key string) (jsonValue, bool) {
	if !v.isObject {
		return jsonValue{}, false
	}
	for _, m := range v.members {
		if m.key == key {
			return m.value, true
		}
	}
	for _, m := range v.members {
		if found, ok := searchInValue(m.value, key); ok {
			return found, true
		}
	}
	return jsonValue{}, false
}

// searchInValue recurses into objects and, for arrays, into object elements
// only. Nested arrays are not descended into.
func searchInValue(v jsonValue, key string) (jsonValue, bool) {
	switch {
	case v.isObject:
		if found, ok := searchKey(v, key); ok && !found.isNull() {
			return found, true
		}
	case v.isArray:
		for _, elem := range v.elems {
			if !elem.isObject {
				continue
			}
			if found, ok := searchKey(elem, key); ok && !found.isNull() {
				return found, true
			}
		}
	}
	return jsonValue{}, false
}
