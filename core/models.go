package core

// Provider identifies a third-party integration platform.
type Provider string

const (
	ProviderHubSpot  Provider = "hubspot"
	ProviderNotion   Provider = "notion"
	ProviderAirtable Provider = "airtable"
	// Future providers can be added here
)

// AuthState is the record issued by Authorize and consumed by the OAuth
// callback. The first three fields round-trip through the provider as the
// `state` query parameter; CodeVerifier never leaves the server.
type AuthState struct {
	State        string `json:"state"`
	UserID       string `json:"user_id"`
	OrgID        string `json:"org_id"`
	CodeVerifier string `json:"code_verifier,omitempty"`
}

// Item is the canonical cross-provider representation of a remote object
// (contact, page, base) returned to API consumers. All fields are strings;
// timestamps are passed through in whatever format the provider uses.
type Item struct {
	ID               string `json:"id"`
	Type             string `json:"type,omitempty"`
	Name             string `json:"name"`
	CreationTime     string `json:"creation_time"`
	LastModifiedTime string `json:"last_modified_time"`
	ParentID         string `json:"parent_id,omitempty"`
}

// CallbackRequest carries the query parameters of the provider redirect.
type CallbackRequest struct {
	Code  string
	State string
	Error string
}

// ClosingHTML is the body returned by a successful OAuth callback. Its only
// behavior is to close the popup that started the flow.
const ClosingHTML = `<html>
    <script>
        window.close();
    </script>
</html>`
