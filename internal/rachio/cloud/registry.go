package cloud

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps opaque client ids to resilient clients. Each id owns its
// own transport, rate limiter and circuit breaker, so one failing account
// never throttles or trips another.
//
// Thread Safety: safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Register creates a client for clientID. Registering an id again
// replaces the previous client together with its policy state.
//
// Parameters:
//   - clientID: Caller-chosen identifier (one per connection)
//   - apiKey: Bearer token for the provider
//   - opts: Policy options
//
// Returns:
//   - *Client: The new client
//   - error: If clientID or apiKey is empty
func (r *Registry) Register(clientID, apiKey string, opts Options) (*Client, error) {
	if clientID == "" {
		return nil, fmt.Errorf("cloud: client id is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("cloud: api key for %s is required", clientID)
	}

	c := NewClient(clientID, apiKey, opts)

	r.mu.Lock()
	r.clients[clientID] = c
	r.mu.Unlock()
	return c, nil
}

// Unregister forgets clientID. Unknown ids are ignored.
func (r *Registry) Unregister(clientID string) {
	r.mu.Lock()
	delete(r.clients, clientID)
	r.mu.Unlock()
}

// Client returns the client registered under clientID.
func (r *Registry) Client(clientID string) (*Client, error) {
	r.mu.RLock()
	c, ok := r.clients[clientID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, clientID)
	}
	return c, nil
}

// IDs returns the registered client ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
