package integration_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var httpClient = &http.Client{Timeout: 5 * time.Second}

func postForm(baseURL, path string, form url.Values) (*http.Response, error) {
	return httpClient.Post(baseURL+path, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
}

func authorize(baseURL, provider, userID, orgID string) (*http.Response, error) {
	return postForm(baseURL, "/integrations/"+provider+"/authorize", url.Values{
		"user_id": {userID},
		"org_id":  {orgID},
	})
}

func oauth2Callback(baseURL, provider string, query url.Values) (*http.Response, error) {
	return httpClient.Get(baseURL + "/integrations/" + provider + "/oauth2callback?" + query.Encode())
}

func getCredentials(baseURL, provider, userID, orgID string) (*http.Response, error) {
	return postForm(baseURL, "/integrations/"+provider+"/credentials", url.Values{
		"user_id": {userID},
		"org_id":  {orgID},
	})
}

func loadItems(baseURL, provider, credentials string) (*http.Response, error) {
	return postForm(baseURL, "/integrations/"+provider+"/load", url.Values{
		"credentials": {credentials},
	})
}

// parseAuthURL decodes the JSON string body of an authorize response and
// returns the provider URL plus its state query parameter.
func parseAuthURL(resp *http.Response) (string, string, error) {
	defer resp.Body.Close()

	var authURL string
	if err := json.NewDecoder(resp.Body).Decode(&authURL); err != nil {
		return "", "", err
	}

	parsed, err := url.Parse(authURL)
	if err != nil {
		return "", "", err
	}
	return authURL, parsed.Query().Get("state"), nil
}

func parseErrorResponse(resp *http.Response) (map[string]string, error) {
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}

func readBody(resp *http.Response) (string, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func waitForServer(baseURL string, maxAttempts int) error {
	client := &http.Client{Timeout: 1 * time.Second}
	for i := 0; i < maxAttempts; i++ {
		resp, err := client.Get(baseURL + "/health")
		if err == nil && resp.StatusCode == 200 {
			resp.Body.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("server failed to start after %d attempts", maxAttempts)
}
