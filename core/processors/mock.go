package processors

import (
	"context"
	"encoding/json"
	"net/url"
	"sync/atomic"

	"integrationd/core"
	"integrationd/store"
)

const (
	ProviderMock core.Provider = "mock"
)

// Predefined test authorization codes and tokens
const (
	ValidCode       = "mock_auth_code_1"
	MockAccessToken = "mock_access_token_1"
)

var MockCredentials = `{"access_token":"` + MockAccessToken + `","token_type":"bearer","expires_in":3600}`

// Predefined canned items
var MockItems = []core.Item{
	{ID: "1", Name: "Mock Item One", CreationTime: "2024-01-01T00:00:00Z", LastModifiedTime: "2024-01-02T00:00:00Z"},
	{ID: "2", Name: "Mock Item Two", CreationTime: "2024-02-01T00:00:00Z", LastModifiedTime: "2024-02-02T00:00:00Z"},
}

// MockProcessor drives the real state machine against canned provider
// behavior, with no network. ExchangeCalls counts attempted token
// exchanges so tests can assert a rejected callback never reaches the
// exchange step.
type MockProcessor struct {
	flow          *core.Flow
	ExchangeCalls atomic.Int64
}

func NewMockProcessor(st store.Store) *MockProcessor {
	return &MockProcessor{flow: core.NewFlow(ProviderMock, st)}
}

func (p *MockProcessor) Provider() core.Provider {
	return ProviderMock
}

func (p *MockProcessor) Authorize(ctx context.Context, userID, orgID string) (string, error) {
	encoded, err := p.flow.IssueState(ctx, &core.AuthState{UserID: userID, OrgID: orgID})
	if err != nil {
		return "", err
	}
	return "https://mock.test/oauth/authorize?state=" + url.QueryEscape(encoded), nil
}

func (p *MockProcessor) OAuth2Callback(ctx context.Context, cb core.CallbackRequest) (string, error) {
	st, err := p.flow.BeginCallback(ctx, cb)
	if err != nil {
		return "", err
	}

	err = p.flow.FinishCallback(ctx, st, func(ctx context.Context) ([]byte, error) {
		p.ExchangeCalls.Add(1)
		if cb.Code != ValidCode {
			return nil, &core.ProviderRequestError{StatusCode: 400}
		}
		return []byte(MockCredentials), nil
	})
	if err != nil {
		return "", err
	}
	return core.ClosingHTML, nil
}

func (p *MockProcessor) GetCredentials(ctx context.Context, userID, orgID string) (json.RawMessage, error) {
	return p.flow.TakeCredentials(ctx, userID, orgID)
}

func (p *MockProcessor) GetItems(ctx context.Context, credentials string) ([]core.Item, error) {
	accessToken, err := core.AccessTokenFromCredentials(credentials)
	if err != nil {
		return nil, err
	}
	if accessToken != MockAccessToken {
		return nil, &core.ProviderRequestError{StatusCode: 401}
	}
	items := make([]core.Item, len(MockItems))
	copy(items, MockItems)
	return items, nil
}
