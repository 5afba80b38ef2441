package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"integrationd/store"
)

// StateTTL bounds both an in-flight state record and parked credentials.
const StateTTL = 600 * time.Second

const stateTokenBytes = 32

// Flow implements the provider-agnostic half of the OAuth state machine:
// state issuance, CSRF validation and one-time credential custody. Key
// formats are a wire contract with any co-deployed service sharing the
// store and must not change.
type Flow struct {
	provider Provider
	store    store.Store
}

func NewFlow(provider Provider, st store.Store) *Flow {
	return &Flow{provider: provider, store: st}
}

func (f *Flow) stateKey(orgID, userID string) string {
	return fmt.Sprintf("%s_state:%s:%s", f.provider, orgID, userID)
}

func (f *Flow) credentialsKey(orgID, userID string) string {
	return fmt.Sprintf("%s_credentials:%s:%s", f.provider, orgID, userID)
}

// NewStateToken returns a URL-safe token carrying 32 bytes of entropy.
func NewStateToken() (string, error) {
	buf := make([]byte, stateTokenBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// IssueState fills st.State with a fresh token, stores the full record and
// returns the serialized blob that travels as the `state` query parameter.
// The outbound blob never carries the code verifier. A store failure aborts
// the authorization; no URL may be handed out without a stored state.
func (f *Flow) IssueState(ctx context.Context, st *AuthState) (string, error) {
	token, err := NewStateToken()
	if err != nil {
		return "", fmt.Errorf("generate state token: %w", err)
	}
	st.State = token

	stored, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	if err := f.store.Set(ctx, f.stateKey(st.OrgID, st.UserID), string(stored), StateTTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	outbound, err := json.Marshal(AuthState{State: st.State, UserID: st.UserID, OrgID: st.OrgID})
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	return string(outbound), nil
}

// BeginCallback runs the CSRF checks in their required order and returns
// the stored state record. The token exchange must not be attempted unless
// this succeeds.
func (f *Flow) BeginCallback(ctx context.Context, cb CallbackRequest) (*AuthState, error) {
	if cb.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrAuthorizationDenied, cb.Error)
	}
	if cb.State == "" {
		return nil, ErrMissingState
	}

	var inbound AuthState
	if err := json.Unmarshal([]byte(cb.State), &inbound); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}

	saved, err := f.store.Get(ctx, f.stateKey(inbound.OrgID, inbound.UserID))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, ErrStateMismatch
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}

	var stored AuthState
	if err := json.Unmarshal([]byte(saved), &stored); err != nil {
		// An undecodable stored record can never vouch for the inbound one.
		return nil, ErrStateMismatch
	}
	if inbound.State == "" || stored.State != inbound.State {
		return nil, ErrStateMismatch
	}
	return &stored, nil
}

// FinishCallback runs the token exchange and the state-key delete
// concurrently, joins both, then parks the raw exchange response for
// pickup. The delete completes even when the exchange fails, so a failed
// callback leaves no stale state behind.
func (f *Flow) FinishCallback(ctx context.Context, st *AuthState, exchange func(context.Context) ([]byte, error)) error {
	var raw []byte
	var g errgroup.Group
	g.Go(func() error {
		body, err := exchange(ctx)
		if err != nil {
			return err
		}
		raw = body
		return nil
	})
	g.Go(func() error {
		if err := f.store.Delete(ctx, f.stateKey(st.OrgID, st.UserID)); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreWrite, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := f.store.Set(ctx, f.credentialsKey(st.OrgID, st.UserID), string(raw), StateTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	return nil
}

// TakeCredentials returns the parked credentials and removes them in one
// atomic step; a concurrent second caller loses the race and gets
// ErrNoCredentials.
func (f *Flow) TakeCredentials(ctx context.Context, userID, orgID string) (json.RawMessage, error) {
	raw, err := f.store.GetDel(ctx, f.credentialsKey(orgID, userID))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	if !json.Valid([]byte(raw)) {
		return nil, ErrCredentialsCorrupt
	}
	return json.RawMessage(raw), nil
}

// AccessTokenFromCredentials extracts the bearer token from a raw
// credentials blob handed back by the caller.
func AccessTokenFromCredentials(credentials string) (string, error) {
	var blob struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal([]byte(credentials), &blob); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredentialsCorrupt, err)
	}
	if blob.AccessToken == "" {
		return "", ErrMissingAccessToken
	}
	return blob.AccessToken, nil
}
