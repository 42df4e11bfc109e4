package resolver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nulpointcorp/model-resolver/internal/config"
	"github.com/nulpointcorp/model-resolver/internal/providers"
	anthropicprov "github.com/nulpointcorp/model-resolver/internal/providers/anthropic"
	deepinfraprov "github.com/nulpointcorp/model-resolver/internal/providers/deepinfra"
	fireworksprov "github.com/nulpointcorp/model-resolver/internal/providers/fireworks"
	googleprov "github.com/nulpointcorp/model-resolver/internal/providers/google"
	groqprov "github.com/nulpointcorp/model-resolver/internal/providers/groq"
	ollamaprov "github.com/nulpointcorp/model-resolver/internal/providers/ollama"
	openaiprov "github.com/nulpointcorp/model-resolver/internal/providers/openai"
	openrouterprov "github.com/nulpointcorp/model-resolver/internal/providers/openrouter"
	vertexprov "github.com/nulpointcorp/model-resolver/internal/providers/vertex"
)

type constructor func(cfg *config.Config) (providers.Provider, error)

// constructors must have exactly one entry per providers.All() member.
var constructors = map[providers.ID]constructor{
	providers.OpenAI: func(cfg *config.Config) (providers.Provider, error) {
		return openaiprov.New(cfg.OpenAI.APIKey,
			openaiprov.WithBaseURL(cfg.OpenAI.BaseURL),
			openaiprov.WithTimeout(cfg.ProviderTimeout),
		), nil
	},
	providers.Ollama: func(cfg *config.Config) (providers.Provider, error) {
		return ollamaprov.New(
			ollamaprov.WithBaseURL(cfg.Ollama.BaseURL),
			ollamaprov.WithTimeout(cfg.ProviderTimeout),
		), nil
	},
	providers.Anthropic: func(cfg *config.Config) (providers.Provider, error) {
		return anthropicprov.New(cfg.Anthropic.APIKey,
			anthropicprov.WithBaseURL(cfg.Anthropic.BaseURL),
			anthropicprov.WithTimeout(cfg.ProviderTimeout),
		), nil
	},
	providers.Groq: func(cfg *config.Config) (providers.Provider, error) {
		return groqprov.New(
			groqprov.WithAPIKey(cfg.Groq.APIKey),
			groqprov.WithBaseURL(cfg.Groq.BaseURL),
			groqprov.WithTimeout(cfg.ProviderTimeout),
		), nil
	},
	providers.Google: func(cfg *config.Config) (providers.Provider, error) {
		return googleprov.New(cfg.Google.APIKey,
			googleprov.WithBaseURL(cfg.Google.BaseURL),
			googleprov.WithTimeout(cfg.ProviderTimeout),
		), nil
	},
	providers.OpenRouter: func(cfg *config.Config) (providers.Provider, error) {
		return openrouterprov.New(
			openrouterprov.WithAPIKey(cfg.OpenRouter.APIKey),
			openrouterprov.WithBaseURL(cfg.OpenRouter.BaseURL),
			openrouterprov.WithTimeout(cfg.ProviderTimeout),
		), nil
	},
	providers.Fireworks: func(cfg *config.Config) (providers.Provider, error) {
		return fireworksprov.New(
			fireworksprov.WithAPIKey(cfg.Fireworks.APIKey),
			fireworksprov.WithBaseURL(cfg.Fireworks.BaseURL),
			fireworksprov.WithTimeout(cfg.ProviderTimeout),
		), nil
	},
	providers.DeepInfra: func(cfg *config.Config) (providers.Provider, error) {
		return deepinfraprov.New(
			deepinfraprov.WithAPIKey(cfg.DeepInfra.APIKey),
			deepinfraprov.WithBaseURL(cfg.DeepInfra.BaseURL),
			deepinfraprov.WithTimeout(cfg.ProviderTimeout),
		), nil
	},
	providers.Vertex: func(cfg *config.Config) (providers.Provider, error) {
		return vertexprov.New(
			vertexprov.WithProject(cfg.Vertex.Project),
			vertexprov.WithLocation(cfg.Vertex.Location),
			vertexprov.WithBaseURL(cfg.Vertex.BaseURL),
			vertexprov.WithCredentialsBase64(cfg.Vertex.Credentials),
			vertexprov.WithKeyFile(cfg.Vertex.KeyFile),
			vertexprov.WithTimeout(cfg.ProviderTimeout),
		)
	},
}

// embeddingCapable lists the providers whose clients implement
// providers.EmbeddingProvider. A placeholder for a failed provider keeps the
// same capability so resolution reports the same error kind either way.
var embeddingCapable = map[providers.ID]bool{
	providers.OpenAI:    true,
	providers.Ollama:    true,
	providers.Google:    true,
	providers.Fireworks: true,
	providers.DeepInfra: true,
	providers.Vertex:    true,
}

// Registry maps each provider identifier to its constructed client. It is
// immutable once built.
type Registry struct {
	clients map[providers.ID]providers.Provider
	errs    []*providers.ConstructionError
}

// BuildRegistry constructs one client per provider identifier. It never
// fails: a provider whose constructor errors is recorded in
// ConstructionErrors and bound to a client that returns that error on every
// call, so the remaining providers stay usable.
func BuildRegistry(cfg *config.Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{clients: make(map[providers.ID]providers.Provider, len(constructors))}

	for _, id := range providers.All() {
		build, ok := constructors[id]
		if !ok {
			// Unreachable while the table is complete.
			r.fail(id, errors.New("no constructor registered"), logger)
			continue
		}

		client, err := build(cfg)
		if err != nil {
			r.fail(id, err, logger)
			continue
		}
		r.clients[id] = client
	}

	logger.Debug("provider registry built",
		slog.Int("providers", len(r.clients)),
		slog.Int("construction_errors", len(r.errs)),
	)

	return r
}

// NewRegistry returns a registry over pre-built clients. Identifiers outside
// the enumeration are ignored.
func NewRegistry(clients map[providers.ID]providers.Provider) *Registry {
	r := &Registry{clients: make(map[providers.ID]providers.Provider, len(clients))}
	for id, c := range clients {
		if id.Valid() && c != nil {
			r.clients[id] = c
		}
	}
	return r
}

func (r *Registry) fail(id providers.ID, err error, logger *slog.Logger) {
	cerr := &providers.ConstructionError{Provider: id, Err: err}
	r.errs = append(r.errs, cerr)
	u := &unavailable{id: id, err: cerr}
	if embeddingCapable[id] {
		r.clients[id] = &unavailableEmbedder{u}
	} else {
		r.clients[id] = u
	}

	logger.Warn("provider construction failed",
		slog.String("provider", id.String()),
		slog.String("error", err.Error()),
	)
}

// Lookup returns the client registered for id.
func (r *Registry) Lookup(id providers.ID) (providers.Provider, bool) {
	c, ok := r.clients[id]
	return c, ok
}

// IDs returns the registered identifiers in enumeration order.
func (r *Registry) IDs() []providers.ID {
	out := make([]providers.ID, 0, len(r.clients))
	for _, id := range providers.All() {
		if _, ok := r.clients[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (r *Registry) Len() int { return len(r.clients) }

// ConstructionErrors lists the providers that failed to build, in enumeration
// order.
func (r *Registry) ConstructionErrors() []*providers.ConstructionError {
	out := make([]*providers.ConstructionError, len(r.errs))
	copy(out, r.errs)
	return out
}

// Err joins every construction error, or returns nil when all providers built.
func (r *Registry) Err() error {
	if len(r.errs) == 0 {
		return nil
	}
	errs := make([]error, len(r.errs))
	for i, e := range r.errs {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// unavailable stands in for a chat-only provider whose constructor failed.
type unavailable struct {
	id  providers.ID
	err *providers.ConstructionError
}

func (u *unavailable) Name() string { return u.id.String() }

func (u *unavailable) LanguageModel(string) (providers.LanguageModel, error) {
	return nil, u.err
}

func (u *unavailable) HealthCheck(context.Context) error { return u.err }

// unavailableEmbedder stands in for an embedding-capable provider whose
// constructor failed.
type unavailableEmbedder struct{ *unavailable }

func (u *unavailableEmbedder) EmbeddingModel(string) (providers.EmbeddingModel, error) {
	return nil, u.err
}
