package providers

import (
	"net/http"
	"os"
	"strings"

	"github.com/c360studio/scout/llm"
)

func init() {
	llm.RegisterProvider(&OpenAIProvider{})
}

// OpenAIProvider implements the OpenAI chat completions API. The wire
// format is shared with Ollama, so only naming and authentication differ.
// Setting OPENAI_BASE_URL in an endpoint also covers OpenRouter and other
// OpenAI-compatible hosts.
type OpenAIProvider struct {
	OllamaProvider
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// BuildURL constructs the chat completions URL, defaulting to the
// hosted OpenAI API.
func (p *OpenAIProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return p.OllamaProvider.BuildURL(baseURL)
}

// SetHeaders sets the bearer token from OPENAI_API_KEY. When the request
// targets OpenRouter, its attribution headers are added as well.
func (p *OpenAIProvider) SetHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+os.Getenv("OPENAI_API_KEY"))

	if strings.Contains(req.URL.Host, "openrouter.ai") {
		req.Header.Set("HTTP-Referer", "https://github.com/c360studio/scout")
		req.Header.Set("X-Title", "scout")
	}
}
