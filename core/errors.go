package core

import (
	"errors"
	"fmt"
)

var (
	ErrStoreWrite          = errors.New("state store write failed")
	ErrStoreRead           = errors.New("state store read failed")
	ErrMissingState        = errors.New("state parameter missing")
	ErrMalformedState      = errors.New("state parameter malformed")
	ErrStateMismatch       = errors.New("state does not match")
	ErrAuthorizationDenied = errors.New("provider authorization denied")
	ErrNoCredentials       = errors.New("no credentials found")
	ErrCredentialsCorrupt  = errors.New("stored credentials corrupt")
	ErrMissingAccessToken  = errors.New("missing access token in credentials")
	ErrProviderRequest     = errors.New("provider request failed")
	ErrUnknownProvider     = errors.New("unknown provider")
)

// ProviderRequestError reports a non-success status from a provider API so
// the HTTP layer can mirror it to the caller.
type ProviderRequestError struct {
	StatusCode int
}

func (e *ProviderRequestError) Error() string {
	return fmt.Sprintf("provider request failed: status %d", e.StatusCode)
}

func (e *ProviderRequestError) Unwrap() error {
	return ErrProviderRequest
}
