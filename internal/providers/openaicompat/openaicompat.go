// Package openaicompat provides a generic OpenAI-compatible provider.
// Use it for any service that implements the OpenAI chat completions API
// (Ollama, Groq, OpenRouter, Fireworks, DeepInfra, etc.).
//
// Providers are chat-only unless WithEmbeddings is given, in which case the
// returned value also implements providers.EmbeddingProvider.
package openaicompat

import (
	"context"
	"time"

	"github.com/nulpointcorp/model-resolver/internal/providers"
	"github.com/nulpointcorp/model-resolver/internal/providers/openai"
)

type options struct {
	name        string
	apiKey      string
	baseURL     string
	timeout     time.Duration
	headers     map[string]string
	keyOptional bool
	embeddings  bool
}

// Option configures an OpenAI-compatible provider.
type Option func(*options)

// WithName sets the provider identifier used in handles, logs and errors.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithAPIKey sets the bearer token. An empty key leaves the provider
// unconfigured unless WithoutAPIKey is also given.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL overrides the API base URL. Empty values are ignored so callers
// can pass optional environment values straight through.
func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.baseURL = u
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithHeaders(h map[string]string) Option {
	return func(o *options) {
		if o.headers == nil {
			o.headers = make(map[string]string, len(h))
		}
		for k, v := range h {
			o.headers[k] = v
		}
	}
}

// WithoutAPIKey marks the key as optional (self-hosted servers).
func WithoutAPIKey() Option {
	return func(o *options) { o.keyOptional = true }
}

// WithEmbeddings exposes the /embeddings endpoint through EmbeddingModel.
func WithEmbeddings() Option {
	return func(o *options) { o.embeddings = true }
}

// Provider is a chat-only OpenAI-compatible provider.
type Provider struct {
	client *openai.Provider
}

// EmbeddingProvider is an OpenAI-compatible provider that also serves
// embeddings.
type EmbeddingProvider struct {
	Provider
}

// New creates an OpenAI-compatible provider. The concrete type is
// *EmbeddingProvider when WithEmbeddings is set and *Provider otherwise.
func New(opts ...Option) providers.Provider {
	o := options{name: "openai-compat"}
	for _, opt := range opts {
		opt(&o)
	}

	inner := []openai.Option{
		openai.WithName(o.name),
		openai.WithBaseURL(o.baseURL),
		openai.WithTimeout(o.timeout),
		openai.WithHeaders(o.headers),
	}
	if o.keyOptional {
		inner = append(inner, openai.WithoutAPIKey())
	}

	p := Provider{client: openai.New(o.apiKey, inner...)}
	if o.embeddings {
		return &EmbeddingProvider{Provider: p}
	}
	return &p
}

func (p *Provider) Name() string { return p.client.Name() }

// BaseURL returns the effective API base URL.
func (p *Provider) BaseURL() string { return p.client.BaseURL() }

func (p *Provider) LanguageModel(model string) (providers.LanguageModel, error) {
	return p.client.LanguageModel(model)
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	return p.client.HealthCheck(ctx)
}

func (p *EmbeddingProvider) EmbeddingModel(model string) (providers.EmbeddingModel, error) {
	return p.client.EmbeddingModel(model)
}
