// Package fireworks provides a provider for Fireworks AI. Chat completions
// and embeddings are both served over the OpenAI-compatible API.
package fireworks

import (
	"github.com/nulpointcorp/model-resolver/internal/providers"
	"github.com/nulpointcorp/model-resolver/internal/providers/openaicompat"
)

const (
	// Name is the provider identifier for Fireworks.
	Name = "fireworks"
	// BaseURL is the default Fireworks inference base URL.
	BaseURL = "https://api.fireworks.ai/inference/v1"
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
