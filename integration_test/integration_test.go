package integration_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type IntegrationTestSuite struct {
	suite.Suite
	mockProvider *MockProviderServer
	serverProc   *exec.Cmd
	baseURL      string
	binaryPath   string
	configPath   string
}

func (s *IntegrationTestSuite) SetupSuite() {
	projectRoot, _ := filepath.Abs("..")
	s.binaryPath = filepath.Join(projectRoot, "integrationd-integration-test")
	s.configPath = filepath.Join(projectRoot, "integration_test", "config.test.yaml")
	s.baseURL = "http://localhost:8083"

	s.mockProvider = NewMockProviderServer()

	if err := s.createTestConfig(); err != nil {
		s.T().Fatalf("Failed to create test config: %v", err)
	}

	if err := s.buildServer(); err != nil {
		s.T().Fatalf("Failed to build server: %v", err)
	}

	if err := s.startServer(); err != nil {
		s.T().Fatalf("Failed to start server: %v", err)
	}

	if err := waitForServer(s.baseURL, 10); err != nil {
		s.T().Fatalf("Server failed to start: %v", err)
	}
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.serverProc != nil {
		s.serverProc.Process.Kill()
		s.serverProc.Wait()
	}

	if s.mockProvider != nil {
		s.mockProvider.Close()
	}

	os.Remove(s.binaryPath)
	os.Remove(s.configPath)
}

func (s *IntegrationTestSuite) createTestConfig() error {
	mockURL := s.mockProvider.URL()
	config := fmt.Sprintf(`port: "8083"
flavour: "dev"

store:
  type: "memory"

hubspot:
  client_id: "hs_client_id"
  client_secret: "hs_client_secret"
  redirect_uri: "http://localhost:8083/integrations/hubspot/oauth2callback"
  auth_base_url: "%s"
  api_base_url: "%s"

notion:
  client_id: "notion_client_id"
  client_secret: "notion_client_secret"
  redirect_uri: "http://localhost:8083/integrations/notion/oauth2callback"
  api_base_url: "%s"

airtable:
  client_id: "at_client_id"
  client_secret: "at_client_secret"
  redirect_uri: "http://localhost:8083/integrations/airtable/oauth2callback"
  auth_base_url: "%s"
  api_base_url: "%s"
`, mockURL, mockURL, mockURL, mockURL, mockURL)

	return os.WriteFile(s.configPath, []byte(config), 0644)
}

func (s *IntegrationTestSuite) buildServer() error {
	projectRoot, _ := filepath.Abs("..")
	cmd := exec.Command("go", "build", "-o", s.binaryPath, "./cmd/standalone")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("build failed: %v\n%s", err, output)
	}
	return nil
}

func (s *IntegrationTestSuite) startServer() error {
	s.serverProc = exec.Command(s.binaryPath)
	s.serverProc.Env = append(os.Environ(), "CONFIG_PATH="+s.configPath)
	s.serverProc.Stdout = io.Discard
	s.serverProc.Stderr = io.Discard

	if err := s.serverProc.Start(); err != nil {
		return err
	}

	time.Sleep(2 * time.Second)
	return nil
}

// runFlow drives authorize, callback and the one-shot credentials pickup
// for a provider and returns the raw credentials blob.
func (s *IntegrationTestSuite) runFlow(provider, code, userID, orgID string) string {
	authResp, err := authorize(s.baseURL, provider, userID, orgID)
	s.Require().NoError(err)
	s.Require().Equal(200, authResp.StatusCode)

	authURL, state, err := parseAuthURL(authResp)
	s.Require().NoError(err)
	s.NotEmpty(authURL)
	s.Require().NotEmpty(state)

	cbResp, err := oauth2Callback(s.baseURL, provider, url.Values{
		"code":  {code},
		"state": {state},
	})
	s.Require().NoError(err)
	s.Require().Equal(200, cbResp.StatusCode)
	s.Contains(cbResp.Header.Get("Content-Type"), "text/html")

	html, err := readBody(cbResp)
	s.Require().NoError(err)
	s.Contains(html, "window.close()")

	credResp, err := getCredentials(s.baseURL, provider, userID, orgID)
	s.Require().NoError(err)
	s.Require().Equal(200, credResp.StatusCode)

	credentials, err := readBody(credResp)
	s.Require().NoError(err)
	return credentials
}

func (s *IntegrationTestSuite) TestHealthCheck() {
	resp, err := httpClient.Get(s.baseURL + "/health")
	s.Require().NoError(err)

	body, err := readBody(resp)
	s.Require().NoError(err)
	s.Equal(200, resp.StatusCode)
	s.Contains(body, "ok")
}

func (s *IntegrationTestSuite) TestHubSpotFullFlow() {
	credentials := s.runFlow("hubspot", HubSpotValidCode, "hs_user", "hs_org")

	var parsed map[string]any
	s.Require().NoError(json.Unmarshal([]byte(credentials), &parsed))
	s.Equal("hs_access_"+HubSpotValidCode, parsed["access_token"])
	s.Equal("hs_refresh_1", parsed["refresh_token"])

	// Credentials are single-use.
	secondResp, err := getCredentials(s.baseURL, "hubspot", "hs_user", "hs_org")
	s.Require().NoError(err)
	s.Equal(400, secondResp.StatusCode)
	errBody, err := parseErrorResponse(secondResp)
	s.Require().NoError(err)
	s.Equal("no_credentials", errBody["error"])

	loadResp, err := loadItems(s.baseURL, "hubspot", credentials)
	s.Require().NoError(err)
	s.Require().Equal(200, loadResp.StatusCode)

	var items []map[string]string
	s.Require().NoError(json.NewDecoder(loadResp.Body).Decode(&items))
	loadResp.Body.Close()
	s.Require().Len(items, 2)
	s.Equal("101", items[0]["id"])
	s.Equal("AdaLovelace", items[0]["name"])
	s.Equal("102", items[1]["id"])
	s.Equal("AlanTuring", items[1]["name"])
}

func (s *IntegrationTestSuite) TestNotionFullFlow() {
	credentials := s.runFlow("notion", NotionValidCode, "notion_user", "notion_org")

	var parsed map[string]any
	s.Require().NoError(json.Unmarshal([]byte(credentials), &parsed))
	s.Equal("notion_access_"+NotionValidCode, parsed["access_token"])
	s.Equal("workspace_1", parsed["workspace_id"])

	loadResp, err := loadItems(s.baseURL, "notion", credentials)
	s.Require().NoError(err)
	s.Require().Equal(200, loadResp.StatusCode)

	var items []map[string]string
	s.Require().NoError(json.NewDecoder(loadResp.Body).Decode(&items))
	loadResp.Body.Close()
	s.Require().Len(items, 2)
	s.Equal("page Roadmap", items[0]["name"])
	s.Empty(items[0]["parent_id"])
	s.Equal("database multi_select", items[1]["name"])
	s.Equal("page_1", items[1]["parent_id"])
}

func (s *IntegrationTestSuite) TestAirtableFullFlowWithPKCE() {
	authResp, err := authorize(s.baseURL, "airtable", "at_user", "at_org")
	s.Require().NoError(err)
	s.Require().Equal(200, authResp.StatusCode)

	authURL, state, err := parseAuthURL(authResp)
	s.Require().NoError(err)
	s.Contains(authURL, "code_challenge=")
	s.Contains(authURL, "code_challenge_method=S256")
	s.NotContains(state, "code_verifier")

	cbResp, err := oauth2Callback(s.baseURL, "airtable", url.Values{
		"code":  {AirtableValidCode},
		"state": {state},
	})
	s.Require().NoError(err)
	s.Require().Equal(200, cbResp.StatusCode)
	cbResp.Body.Close()
	s.NotEmpty(s.mockProvider.LastVerifier())

	credResp, err := getCredentials(s.baseURL, "airtable", "at_user", "at_org")
	s.Require().NoError(err)
	s.Require().Equal(200, credResp.StatusCode)
	credentials, err := readBody(credResp)
	s.Require().NoError(err)

	loadResp, err := loadItems(s.baseURL, "airtable", credentials)
	s.Require().NoError(err)
	s.Require().Equal(200, loadResp.StatusCode)

	var items []map[string]string
	s.Require().NoError(json.NewDecoder(loadResp.Body).Decode(&items))
	loadResp.Body.Close()
	s.Require().Len(items, 2)
	s.Equal("appAAA", items[0]["id"])
	s.Equal("base", items[0]["type"])
	s.Equal("Product Catalog", items[0]["name"])
}

func (s *IntegrationTestSuite) TestCallbackStateMismatchNeverExchanges() {
	authResp, err := authorize(s.baseURL, "hubspot", "forge_user", "forge_org")
	s.Require().NoError(err)
	_, _, err = parseAuthURL(authResp)
	s.Require().NoError(err)

	exchangesBefore := s.mockProvider.TokenRequests()

	forged := `{"state":"forged-token","user_id":"forge_user","org_id":"forge_org"}`
	cbResp, err := oauth2Callback(s.baseURL, "hubspot", url.Values{
		"code":  {HubSpotValidCode},
		"state": {forged},
	})
	s.Require().NoError(err)
	s.Equal(400, cbResp.StatusCode)

	errBody, err := parseErrorResponse(cbResp)
	s.Require().NoError(err)
	s.Equal("state_mismatch", errBody["error"])
	s.Equal(exchangesBefore, s.mockProvider.TokenRequests())
}

func (s *IntegrationTestSuite) TestCallbackDeniedNeverExchanges() {
	authResp, err := authorize(s.baseURL, "notion", "deny_user", "deny_org")
	s.Require().NoError(err)
	_, state, err := parseAuthURL(authResp)
	s.Require().NoError(err)

	exchangesBefore := s.mockProvider.TokenRequests()

	cbResp, err := oauth2Callback(s.baseURL, "notion", url.Values{
		"error": {"access_denied"},
		"state": {state},
	})
	s.Require().NoError(err)
	s.Equal(400, cbResp.StatusCode)

	errBody, err := parseErrorResponse(cbResp)
	s.Require().NoError(err)
	s.Equal("authorization_denied", errBody["error"])
	s.Equal(exchangesBefore, s.mockProvider.TokenRequests())
}

func (s *IntegrationTestSuite) TestFailedExchangeConsumesState() {
	authResp, err := authorize(s.baseURL, "hubspot", "retry_user", "retry_org")
	s.Require().NoError(err)
	_, state, err := parseAuthURL(authResp)
	s.Require().NoError(err)

	cbResp, err := oauth2Callback(s.baseURL, "hubspot", url.Values{
		"code":  {"wrong_code"},
		"state": {state},
	})
	s.Require().NoError(err)
	s.Equal(400, cbResp.StatusCode)
	cbResp.Body.Close()

	// The state was consumed by the failed attempt, so a replay with the
	// valid code is rejected too.
	replayResp, err := oauth2Callback(s.baseURL, "hubspot", url.Values{
		"code":  {HubSpotValidCode},
		"state": {state},
	})
	s.Require().NoError(err)
	s.Equal(400, replayResp.StatusCode)

	errBody, err := parseErrorResponse(replayResp)
	s.Require().NoError(err)
	s.Equal("state_mismatch", errBody["error"])
}

func (s *IntegrationTestSuite) TestUnknownProvider() {
	resp, err := authorize(s.baseURL, "slack", "user1", "org1")
	s.Require().NoError(err)
	s.Equal(404, resp.StatusCode)

	errBody, err := parseErrorResponse(resp)
	s.Require().NoError(err)
	s.Equal("unknown_provider", errBody["error"])
}

func (s *IntegrationTestSuite) TestAuthorizeMissingFields() {
	resp, err := postForm(s.baseURL, "/integrations/hubspot/authorize", url.Values{
		"user_id": {"user1"},
	})
	s.Require().NoError(err)
	s.Equal(400, resp.StatusCode)

	errBody, err := parseErrorResponse(resp)
	s.Require().NoError(err)
	s.Equal("invalid_request", errBody["error"])
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}
