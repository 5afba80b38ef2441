package processors

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"integrationd/core"
	"integrationd/store"
)

const (
	AirtableAuthBaseURL = "https://airtable.com"
	AirtableAPIBaseURL  = "https://api.airtable.com"
)

type AirtableConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	AuthBaseURL  string `yaml:"auth_base_url"`
	APIBaseURL   string `yaml:"api_base_url"`
}

// AirtableProcessor lists the bases reachable with the granted token.
// Airtable mandates PKCE; the verifier rides in the stored state record and
// never appears in the outbound state parameter.
type AirtableProcessor struct {
	config     *AirtableConfig
	flow       *core.Flow
	basicAuth  string
	httpClient *http.Client
}

func NewAirtableProcessor(config *AirtableConfig, st store.Store) *AirtableProcessor {
	if config.AuthBaseURL == "" {
		config.AuthBaseURL = AirtableAuthBaseURL
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = AirtableAPIBaseURL
	}
	return &AirtableProcessor{
		config:     config,
		flow:       core.NewFlow(core.ProviderAirtable, st),
		basicAuth:  base64.StdEncoding.EncodeToString([]byte(config.ClientID + ":" + config.ClientSecret)),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *AirtableProcessor) Provider() core.Provider {
	return core.ProviderAirtable
}

func (p *AirtableProcessor) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		RedirectURL:  p.config.RedirectURI,
		Scopes:       []string{"data.records:read", "schema.bases:read"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.config.AuthBaseURL + "/oauth2/v1/authorize",
			TokenURL: p.config.AuthBaseURL + "/oauth2/v1/token",
		},
	}
}

func (p *AirtableProcessor) Authorize(ctx context.Context, userID, orgID string) (string, error) {
	verifier := oauth2.GenerateVerifier()
	encoded, err := p.flow.IssueState(ctx, &core.AuthState{
		UserID:       userID,
		OrgID:        orgID,
		CodeVerifier: verifier,
	})
	if err != nil {
		return "", err
	}
	return p.oauthConfig().AuthCodeURL(encoded, oauth2.S256ChallengeOption(verifier)), nil
}

func (p *AirtableProcessor) OAuth2Callback(ctx context.Context, cb core.CallbackRequest) (string, error) {
	st, err := p.flow.BeginCallback(ctx, cb)
	if err != nil {
		return "", err
	}

	err = p.flow.FinishCallback(ctx, st, func(ctx context.Context) ([]byte, error) {
		return p.exchangeCode(ctx, cb.Code, st.CodeVerifier)
	})
	if err != nil {
		return "", err
	}
	return core.ClosingHTML, nil
}

func (p *AirtableProcessor) exchangeCode(ctx context.Context, code, verifier string) ([]byte, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", p.config.RedirectURI)
	data.Set("code_verifier", verifier)

	tokenURL := p.config.AuthBaseURL + "/oauth2/v1/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRequest, err)
	}
	req.Header.Set("Authorization", "Basic "+p.basicAuth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

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

func (p *AirtableProcessor) GetCredentials(ctx context.Context, userID, orgID string) (json.RawMessage, error) {
	return p.flow.TakeCredentials(ctx, userID, orgID)
}

type airtableBase struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *AirtableProcessor) GetItems(ctx context.Context, credentials string) ([]core.Item, error) {
	accessToken, err := core.AccessTokenFromCredentials(credentials)
	if err != nil {
		return nil, err
	}

	listURL := p.config.APIBaseURL + "/v0/meta/bases"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRequest, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &core.ProviderRequestError{StatusCode: resp.StatusCode}
	}

	var listing struct {
		Bases []airtableBase `json:"bases"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRequest, err)
	}

	items := make([]core.Item, 0, len(listing.Bases))
	for _, base := range listing.Bases {
		items = append(items, newAirtableItem(base))
	}
	return items, nil
}

// newAirtableItem maps one base onto the canonical item shape. The bases
// listing carries no timestamps, so those stay empty.
func newAirtableItem(base airtableBase) core.Item {
	return core.Item{
		ID:   base.ID,
		Type: "base",
		Name: base.Name,
	}
}
