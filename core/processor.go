package core

import (
	"context"
	"encoding/json"
)

// Processor is the per-provider implementation of the OAuth/fetch contract.
// All four operations may block on store or network I/O and honor the
// passed context.
type Processor interface {
	// Authorize issues a fresh CSRF state for (userID, orgID) and returns
	// the provider authorization URL the client should open.
	Authorize(ctx context.Context, userID, orgID string) (string, error)

	// OAuth2Callback validates the provider redirect, exchanges the code
	// and parks the raw credentials for pickup. Returns a page that closes
	// the popup.
	OAuth2Callback(ctx context.Context, cb CallbackRequest) (string, error)

	// GetCredentials hands out the parked credentials exactly once.
	GetCredentials(ctx context.Context, userID, orgID string) (json.RawMessage, error)

	// GetItems lists the remote objects reachable with the given
	// credentials, in provider response order.
	GetItems(ctx context.Context, credentials string) ([]Item, error)

	Provider() Provider
}

// Registry resolves provider identifiers to their processors. It is built
// once at startup and read-only afterwards.
type Registry struct {
	processors map[Provider]Processor
}

func NewRegistry(processors map[Provider]Processor) *Registry {
	return &Registry{processors: processors}
}

// Get returns ErrUnknownProvider for unregistered identifiers; no processor
// operation is ever invoked for those.
func (r *Registry) Get(provider Provider) (Processor, error) {
	p, ok := r.processors[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Providers lists the registered provider identifiers.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.processors))
	for provider := range r.processors {
		names = append(names, string(provider))
	}
	return names
}
