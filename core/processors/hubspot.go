package processors

import (
	"context"
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
	HubSpotAuthBaseURL = "https://app.hubspot.com"
	HubSpotAPIBaseURL  = "https://api.hubapi.com"
)

type HubSpotConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	AuthBaseURL  string `yaml:"auth_base_url"`
	APIBaseURL   string `yaml:"api_base_url"`
}

// HubSpotProcessor pulls CRM contacts. Token exchange is a plain
// form-encoded POST; the raw response body is parked verbatim.
type HubSpotProcessor struct {
	config     *HubSpotConfig
	flow       *core.Flow
	httpClient *http.Client
}

func NewHubSpotProcessor(config *HubSpotConfig, st store.Store) *HubSpotProcessor {
	if config.AuthBaseURL == "" {
		config.AuthBaseURL = HubSpotAuthBaseURL
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = HubSpotAPIBaseURL
	}
	return &HubSpotProcessor{
		config:     config,
		flow:       core.NewFlow(core.ProviderHubSpot, st),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *HubSpotProcessor) Provider() core.Provider {
	return core.ProviderHubSpot
}

func (p *HubSpotProcessor) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		RedirectURL:  p.config.RedirectURI,
		Scopes:       []string{"oauth", "crm.objects.contacts.read"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.config.AuthBaseURL + "/oauth/authorize",
			TokenURL: p.config.APIBaseURL + "/oauth/v1/token",
		},
	}
}

func (p *HubSpotProcessor) Authorize(ctx context.Context, userID, orgID string) (string, error) {
	encoded, err := p.flow.IssueState(ctx, &core.AuthState{UserID: userID, OrgID: orgID})
	if err != nil {
		return "", err
	}
	return p.oauthConfig().AuthCodeURL(encoded), nil
}

func (p *HubSpotProcessor) OAuth2Callback(ctx context.Context, cb core.CallbackRequest) (string, error) {
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

func (p *HubSpotProcessor) exchangeCode(ctx context.Context, code string) ([]byte, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("client_id", p.config.ClientID)
	data.Set("client_secret", p.config.ClientSecret)
	data.Set("redirect_uri", p.config.RedirectURI)

	tokenURL := p.config.APIBaseURL + "/oauth/v1/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRequest, err)
	}
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

func (p *HubSpotProcessor) GetCredentials(ctx context.Context, userID, orgID string) (json.RawMessage, error) {
	return p.flow.TakeCredentials(ctx, userID, orgID)
}

type hubspotContact struct {
	ID         string `json:"id"`
	Properties struct {
		FirstName        string `json:"firstname"`
		LastName         string `json:"lastname"`
		CreateDate       string `json:"createdate"`
		LastModifiedDate string `json:"lastmodifieddate"`
	} `json:"properties"`
}

func (p *HubSpotProcessor) GetItems(ctx context.Context, credentials string) ([]core.Item, error) {
	accessToken, err := core.AccessTokenFromCredentials(credentials)
	if err != nil {
		return nil, err
	}

	listURL := p.config.APIBaseURL + "/crm/v3/objects/contacts"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRequest, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &core.ProviderRequestError{StatusCode: resp.StatusCode}
	}

	var listing struct {
		Results []hubspotContact `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderRequest, err)
	}

	items := make([]core.Item, 0, len(listing.Results))
	for _, contact := range listing.Results {
		items = append(items, newHubSpotItem(contact))
	}
	return items, nil
}

// newHubSpotItem maps one CRM contact onto the canonical item shape. The
// name joins first and last name with no separator.
func newHubSpotItem(contact hubspotContact) core.Item {
	return core.Item{
		ID:               contact.ID,
		Name:             contact.Properties.FirstName + contact.Properties.LastName,
		CreationTime:     contact.Properties.CreateDate,
		LastModifiedTime: contact.Properties.LastModifiedDate,
	}
}
