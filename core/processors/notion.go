package processors

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"integrationd/core"
	"integrationd/store"
)

const (
	NotionAPIBaseURL = "https://api.notion.com"

	notionVersion = "2022-06-28"
)

type NotionConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	APIBaseURL   string `yaml:"api_base_url"`
}

// NotionProcessor pulls workspace objects via the search endpoint. Notion's
// token endpoint wants a JSON body and HTTP Basic client authentication
// rather than form credentials.
type NotionProcessor struct {
	config     *NotionConfig
	flow       *core.Flow
	basicAuth  string
	httpClient *http.Client
}

func NewNotionProcessor(config *NotionConfig, st store.Store) *NotionProcessor {
	if config.APIBaseURL == "" {
		config.APIBaseURL = NotionAPIBaseURL
	}
	return &NotionProcessor{
		config:     config,
		flow:       core.NewFlow(core.ProviderNotion, st),
		basicAuth:  base64.StdEncoding.EncodeToString([]byte(config.ClientID + ":" + config.ClientSecret)),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *NotionProcessor) Provider() core.Provider {
	return core.ProviderNotion
}

func (p *NotionProcessor) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		RedirectURL:  p.config.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.config.APIBaseURL + "/v1/oauth/authorize",
			TokenURL: p.config.APIBaseURL + "/v1/oauth/token",
		},
	}
}

func (p *NotionProcessor) Authorize(ctx context.Context, userID, orgID string) (string, error) {
	encoded, err := p.flow.IssueState(ctx, &core.AuthState{UserID: userID, OrgID: orgID})
	if err != nil {
		return "", err
	}
	return p.oauthConfig().AuthCodeURL(encoded, oauth2.SetAuthURLParam("owner", "user")), nil
}

func (p *NotionProcessor) OAuth2Callback(ctx context.Context, cb core.CallbackRequest) (string, error) {
	st, err := p.flow.BeginCallback(ctx, cb)
	if err != nil {
		return "", err
	}

	err = p.flow.FinishCallback(ctx, st, func(ctx context.Context) ([]byte, error) {
		return p.exchangeCode(ctx, cb.Code)
	})
	if err != nil {
		return "", err
	}
	return core.ClosingHTML, nil
}

func (p *NotionProcessor) exchangeCode(ctx context.Context, code string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": p.config.RedirectURI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRequest, err)
	}

	tokenURL := p.config.APIBaseURL + "/v1/oauth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRequest, err)
	}
	req.Header.Set("Authorization", "Basic "+p.basicAuth)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRequest, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &core.ProviderRequestError{StatusCode: resp.StatusCode}
	}
	return body, nil
}

func (p *NotionProcessor) GetCredentials(ctx context.Context, userID, orgID string) (json.RawMessage, error) {
	return p.flow.TakeCredentials(ctx, userID, orgID)
}

func (p *NotionProcessor) GetItems(ctx context.Context, credentials string) ([]core.Item, error) {
	accessToken, err := core.AccessTokenFromCredentials(credentials)
	if err != nil {
		return nil, err
	}

	searchURL := p.config.APIBaseURL + "/v1/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRequest, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Notion-Version", notionVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &core.ProviderRequestError{StatusCode: resp.StatusCode}
	}

	var listing struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRequest, err)
	}

	items := make([]core.Item, 0, len(listing.Results))
	for _, result := range listing.Results {
		item, err := newNotionItem(result)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrProviderRequest, err)
		}
		items = append(items, item)
	}
	return items, nil
}

type notionObject struct {
	ID             string                     `json:"id"`
	Object         string                     `json:"object"`
	CreatedTime    string                     `json:"created_time"`
	LastEditedTime string                     `json:"last_edited_time"`
	Parent         map[string]json.RawMessage `json:"parent"`
}

// newNotionItem maps one search result onto the canonical item shape. The
// display name comes from a recursive search for the first key named
// "content" in the properties map, then the whole object, falling back to
// the literal "multi_select"; the object kind is prefixed to whatever was
// resolved.
func newNotionItem(raw json.RawMessage) (core.Item, error) {
	var obj notionObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return core.Item{}, err
	}

	doc, err := parseJSON(raw)
	if err != nil {
		return core.Item{}, err
	}

	name := "multi_select"
	resolved, found := jsonValue{}, false
	if properties, ok := doc.member("properties"); ok {
		resolved, found = searchKey(properties, "content")
	}
	if !found || resolved.isNull() {
		resolved, found = searchKey(doc, "content")
	}
	if found && !resolved.isNull() {
		name = resolved.asString()
	}

	var parentID string
	if typeRaw, ok := obj.Parent["type"]; ok {
		var parentType string
		_ = json.Unmarshal(typeRaw, &parentType)
		if parentType != "" && parentType != "workspace" {
			if idRaw, ok := obj.Parent[parentType]; ok {
				_ = json.Unmarshal(idRaw, &parentID)
			}
		}
	}

	return core.Item{
		ID:               obj.ID,
		Type:             obj.Object,
		Name:             obj.Object + " " + name,
		CreationTime:     obj.CreatedTime,
		LastModifiedTime: obj.LastEditedTime,
		ParentID:         parentID,
	}, nil
}
