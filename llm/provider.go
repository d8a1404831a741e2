package llm

import (
	"net/http"
	"sync"
)

// Provider abstracts LLM provider-specific request/response handling.
type Provider interface {
	// Name returns the provider identifier (e.g. "anthropic", "ollama").
	Name() string

	// BuildURL constructs the full API URL from the endpoint base URL.
	BuildURL(baseURL string) string

	// SetHeaders sets provider-specific headers on the HTTP request,
	// including any authentication read from the environment.
	SetHeaders(req *http.Request)

	// BuildRequestBody constructs the provider-specific JSON request body.
	BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error)

	// ParseResponse parses the provider-specific response into a Response.
	ParseResponse(body []byte, model string) (*Response, error)
}

var (
	providersMu sync.RWMutex
	providers   = make(map[string]Provider)
)

// RegisterProvider registers a provider implementation by name.
// Providers register themselves in init(), so importing a provider
// package is enough to activate it.
func RegisterProvider(p Provider) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[p.Name()] = p
}

// GetProvider returns the registered provider by name, or nil.
func GetProvider(name string) Provider {
	providersMu.RLock()
	defer providersMu.RUnlock()
	return providers[name]
}

// ListProviders returns the names of all registered providers.
func ListProviders() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}
