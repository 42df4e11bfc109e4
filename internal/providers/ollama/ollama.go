// Package ollama provides a provider for a local or remote Ollama server
// through its OpenAI-compatible /v1 API. No API key is required.
package ollama

import (
	"strings"

	"github.com/nulpointcorp/model-resolver/internal/providers"
	"github.com/nulpointcorp/model-resolver/internal/providers/openaicompat"
)

const (
	// Name is the provider identifier for Ollama.
	Name = "ollama"
	// BaseURL is the default Ollama endpoint.
	BaseURL = "http://127.0.0.1:11434/v1"
)

type Option = openaicompat.Option

var (
	WithTimeout = openaicompat.WithTimeout
	WithHeaders = openaicompat.WithHeaders
)

// WithBaseURL sets the server URL after normalizing it with NormalizeBaseURL.
// Empty values are ignored.
func WithBaseURL(u string) Option {
	return openaicompat.WithBaseURL(NormalizeBaseURL(u))
}

// NormalizeBaseURL maps the URL forms Ollama is commonly configured with onto
// the OpenAI-compatible endpoint:
//
//	http://host:11434       -> http://host:11434/v1
//	http://host:11434/api   -> http://host:11434/v1
//	http://host:11434/v1/   -> http://host:11434/v1
func NormalizeBaseURL(u string) string {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	if u == "" {
		return ""
	}
	switch {
	case strings.HasSuffix(u, "/v1"):
		return u
	case strings.HasSuffix(u, "/api"):
		return strings.TrimSuffix(u, "/api") + "/v1"
	default:
		return u + "/v1"
	}
}

func New(opts ...Option) providers.Provider {
	options := []Option{
		openaicompat.WithName(Name),
		openaicompat.WithBaseURL(BaseURL),
		openaicompat.WithoutAPIKey(),
		openaicompat.WithEmbeddings(),
	}
	options = append(options, opts...)
	return openaicompat.New(options...)
}
