// Package openrouter provides a provider for the OpenRouter API.
package openrouter

import (
	"github.com/nulpointcorp/model-resolver/internal/providers"
	"github.com/nulpointcorp/model-resolver/internal/providers/openaicompat"
)

const (
	Name    = "openrouter"
	BaseURL = "https://openrouter.ai/api/v1"
)

type Option = openaicompat.Option

var (
	WithAPIKey  = openaicompat.WithAPIKey
	WithBaseURL = openaicompat.WithBaseURL
	WithTimeout = openaicompat.WithTimeout
	WithHeaders = openaicompat.WithHeaders
)

// New creates a chat-only OpenRouter provider. Model names are
// OpenRouter slugs such as "anthropic/claude-sonnet-4".
func New(opts ...Option) providers.Provider {
	options := []Option{
		openaicompat.WithName(Name),
		WithBaseURL(BaseURL),
	}
	options = append(options, opts...)
	return openaicompat.New(options...)
}
