// Package deepinfra provides a provider for DeepInfra's OpenAI-compatible
// endpoint, including embeddings.
package deepinfra

import (
	"github.com/nulpointcorp/model-resolver/internal/providers"
	"github.com/nulpointcorp/model-resolver/internal/providers/openaicompat"
)

const (
	Name    = "deepinfra"
	BaseURL = "https://api.deepinfra.com/v1/openai"
)

type Option = openaicompat.Option

var (
	WithAPIKey  = openaicompat.WithAPIKey
	WithBaseURL = openaicompat.WithBaseURL
	WithTimeout = openaicompat.WithTimeout
	WithHeaders = openaicompat.WithHeaders
)

func New(opts ...Option) providers.Provider {
	options := []Option{
		openaicompat.WithName(Name),
		WithBaseURL(BaseURL),
		openaicompat.WithEmbeddings(),
	}
	options = append(options, opts...)
	return openaicompat.New(options...)
}
