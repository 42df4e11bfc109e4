// Package groq provides a provider for the Groq API.
package groq

import (
	"github.com/nulpointcorp/model-resolver/internal/providers"
	"github.com/nulpointcorp/model-resolver/internal/providers/openaicompat"
)

const (
	// Name is the provider identifier for Groq.
	Name = "groq"
	// BaseURL is the default Groq API base URL.
	BaseURL = "https://api.groq.com/openai/v1"
)

// Option configures the Groq provider via OpenAI-compatible options.
type Option = openaicompat.Option

var (
	WithAPIKey  = openaicompat.WithAPIKey
	WithBaseURL = openaicompat.WithBaseURL
	WithTimeout = openaicompat.WithTimeout
	WithHeaders = openaicompat.WithHeaders
)

// New creates a chat-only Groq provider.
func New(opts ...Option) providers.Provider {
	options := []Option{
		openaicompat.WithName(Name),
		WithBaseURL(BaseURL),
	}
	options = append(options, opts...)
	return openaicompat.New(options...)
}
