package llm

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/c360studio/taskhub/model"
)

// Backend is anything the client can dispatch an endpoint to.
type Backend interface {
	// Name returns the provider identifier used in endpoint configs.
	Name() string

	// APIKeyEnv names the environment variable holding the default API key.
	// An empty name means the provider needs no key.
	APIKeyEnv() string
}

// Provider is a backend reached over plain HTTP with a JSON chat API.
type Provider interface {
	Backend

	// BuildURL constructs the full API endpoint URL.
	BuildURL(baseURL string) string

	// SetHeaders adds provider-specific headers, including auth.
	SetHeaders(req *http.Request, apiKey string)

	// BuildRequestBody creates the JSON request body.
	// temperature is nil to use the provider default.
	BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error)

	// ParseResponse extracts the response from provider-specific JSON.
	ParseResponse(body []byte, model string) (*Response, error)
}

// SDKProvider is a backend driven through a vendor SDK rather than raw HTTP.
// Implementations classify their own errors as transient or fatal.
type SDKProvider interface {
	Backend

	Complete(ctx context.Context, ep *model.EndpointConfig, apiKey string, req Request) (*Response, error)
}

var (
	providerRegistry = make(map[string]Backend)
	providerMu       sync.RWMutex
)

// RegisterProvider adds a backend to the registry. p must implement
// Provider or SDKProvider.
func RegisterProvider(p Backend) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[p.Name()] = p
}

// GetProvider retrieves a backend by name.
func GetProvider(name string) Backend {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[name]
}

// ListProviders returns all registered provider names, sorted.
func ListProviders() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()

	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
