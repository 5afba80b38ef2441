package integration_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Valid authorization codes the mock provider accepts, one per provider.
const (
	HubSpotValidCode  = "hubspot_valid_code_1"
	NotionValidCode   = "notion_valid_code_1"
	AirtableValidCode = "airtable_valid_code_1"
)

// MockProviderServer stands in for HubSpot, Notion and Airtable at once.
// The token endpoints differ by path, so a single mux serves all three.
// Issued access tokens are remembered so the data endpoints can reject
// anything the token endpoints never handed out.
type MockProviderServer struct {
	server *httptest.Server

	mu            sync.Mutex
	issuedTokens  map[string]bool
	tokenRequests int
	lastVerifier  string
}

func NewMockProviderServer() *MockProviderServer {
	m := &MockProviderServer{
		issuedTokens: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/v1/token", m.handleHubSpotToken)
	mux.HandleFunc("GET /crm/v3/objects/contacts", m.handleHubSpotContacts)
	mux.HandleFunc("POST /v1/oauth/token", m.handleNotionToken)
	mux.HandleFunc("POST /v1/search", m.handleNotionSearch)
	mux.HandleFunc("POST /oauth2/v1/token", m.handleAirtableToken)
	mux.HandleFunc("GET /v0/meta/bases", m.handleAirtableBases)

	m.server = httptest.NewServer(mux)
	return m
}

func (m *MockProviderServer) URL() string {
	return m.server.URL
}

func (m *MockProviderServer) Close() {
	m.server.Close()
}

func (m *MockProviderServer) TokenRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenRequests
}

// LastVerifier returns the code_verifier sent with the most recent
// Airtable token exchange.
func (m *MockProviderServer) LastVerifier() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastVerifier
}

func (m *MockProviderServer) tokenIssued(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.issuedTokens[token]
}

func (m *MockProviderServer) bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := auth[len("Bearer "):]
	return token, m.tokenIssued(token)
}

func (m *MockProviderServer) handleHubSpotToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	m.mu.Lock()
	m.tokenRequests++
	m.mu.Unlock()

	if r.PostFormValue("grant_type") != "authorization_code" ||
		r.PostFormValue("code") != HubSpotValidCode ||
		r.PostFormValue("client_secret") == "" {
		writeError(w, http.StatusBadRequest, "invalid_grant")
		return
	}

	token := "hs_access_" + r.PostFormValue("code")
	m.mu.Lock()
	m.issuedTokens[token] = true
	m.mu.Unlock()

	writeJSON(w, map[string]any{
		"access_token":  token,
		"refresh_token": "hs_refresh_1",
		"token_type":    "bearer",
		"expires_in":    1800,
	})
}

func (m *MockProviderServer) handleHubSpotContacts(w http.ResponseWriter, r *http.Request) {
	if _, ok := m.bearerToken(r); !ok {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	writeJSON(w, map[string]any{
		"results": []map[string]any{
			{
				"id": "101",
				"properties": map[string]string{
					"firstname":        "Ada",
					"lastname":         "Lovelace",
					"createdate":       "2024-03-01T10:00:00Z",
					"lastmodifieddate": "2024-03-05T10:00:00Z",
				},
			},
			{
				"id": "102",
				"properties": map[string]string{
					"firstname":        "Alan",
					"lastname":         "Turing",
					"createdate":       "2024-03-02T10:00:00Z",
					"lastmodifieddate": "2024-03-06T10:00:00Z",
				},
			},
		},
	})
}

func (m *MockProviderServer) handleNotionToken(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.tokenRequests++
	m.mu.Unlock()

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Basic ") {
		writeError(w, http.StatusUnauthorized, "unauthorized_client")
		return
	}

	var payload map[string]string
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if payload["grant_type"] != "authorization_code" || payload["code"] != NotionValidCode {
		writeError(w, http.StatusBadRequest, "invalid_grant")
		return
	}

	token := "notion_access_" + payload["code"]
	m.mu.Lock()
	m.issuedTokens[token] = true
	m.mu.Unlock()

	writeJSON(w, map[string]any{
		"access_token":   token,
		"workspace_id":   "workspace_1",
		"workspace_name": "Test Workspace",
		"bot_id":         "bot_1",
	})
}

func (m *MockProviderServer) handleNotionSearch(w http.ResponseWriter, r *http.Request) {
	if _, ok := m.bearerToken(r); !ok {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	if r.Header.Get("Notion-Version") == "" {
		writeError(w, http.StatusBadRequest, "missing_version")
		return
	}

	writeJSON(w, map[string]any{
		"results": []map[string]any{
			{
				"object":           "page",
				"id":               "page_1",
				"created_time":     "2024-04-01T00:00:00Z",
				"last_edited_time": "2024-04-02T00:00:00Z",
				"parent":           map[string]any{"type": "workspace", "workspace": true},
				"properties": map[string]any{
					"Name": map[string]any{
						"title": []map[string]any{
							{"text": map[string]any{"content": "Roadmap"}},
						},
					},
				},
			},
			{
				"object":           "database",
				"id":               "db_1",
				"created_time":     "2024-04-03T00:00:00Z",
				"last_edited_time": "2024-04-04T00:00:00Z",
				"parent":           map[string]any{"type": "page_id", "page_id": "page_1"},
				"properties": map[string]any{
					"Tags": map[string]any{
						"multi_select": map[string]any{"options": []any{}},
					},
				},
			},
		},
	})
}

func (m *MockProviderServer) handleAirtableToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	m.mu.Lock()
	m.tokenRequests++
	m.lastVerifier = r.PostFormValue("code_verifier")
	m.mu.Unlock()

	if r.PostFormValue("grant_type") != "authorization_code" ||
		r.PostFormValue("code") != AirtableValidCode ||
		r.PostFormValue("code_verifier") == "" {
		writeError(w, http.StatusBadRequest, "invalid_grant")
		return
	}

	token := "at_access_" + r.PostFormValue("code")
	m.mu.Lock()
	m.issuedTokens[token] = true
	m.mu.Unlock()

	writeJSON(w, map[string]any{
		"access_token":  token,
		"refresh_token": "at_refresh_1",
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func (m *MockProviderServer) handleAirtableBases(w http.ResponseWriter, r *http.Request) {
	if _, ok := m.bearerToken(r); !ok {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	writeJSON(w, map[string]any{
		"bases": []map[string]any{
			{"id": "appAAA", "name": "Product Catalog", "permissionLevel": "create"},
			{"id": "appBBB", "name": "Orders", "permissionLevel": "read"},
		},
	})
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code})
}
