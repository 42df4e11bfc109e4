// Package resolver turns a model name and provider identifier into a callable
// model handle.
//
// A Resolver is built from a Registry (one client per provider) and the task
// defaults loaded by the config package. Task accessors such as ExtractModel
// look up their (model, provider) pair and delegate to Resolve. The global
// overrides MODEL_NAME and MODEL_EMBEDDING_NAME replace the requested model
// name on every chat or embedding resolution respectively.
//
// Resolving is cheap and never cached: each call invokes the provider client
// again. The Resolver holds no mutable state and is safe for concurrent use.
package resolver

import (
	"errors"
	"log/slog"

	"github.com/nulpointcorp/model-resolver/internal/config"
	"github.com/nulpointcorp/model-resolver/internal/providers"
)

// Kinds of resolution reported to an Observer.
const (
	KindChat      = "chat"
	KindEmbedding = "embedding"
)

// Observer receives one call per resolution attempt.
type Observer interface {
	ObserveResolution(provider, kind, outcome string)
}

// Resolver resolves model handles against a Registry.
type Resolver struct {
	reg             *Registry
	tasks           config.TaskDefaults
	overrides       config.Overrides
	defaultProvider string

	log      *slog.Logger
	observer Observer
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(r *Resolver) { r.observer = o }
}

// New creates a Resolver over reg using the defaults and overrides in cfg.
func New(reg *Registry, cfg *config.Config, opts ...Option) *Resolver {
	r := &Resolver{
		reg:             reg,
		tasks:           cfg.Tasks,
		overrides:       cfg.Overrides,
		defaultProvider: cfg.DefaultProvider,
		log:             slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Registry returns the registry the resolver looks clients up in.
func (r *Resolver) Registry() *Registry { return r.reg }

// DefaultProvider returns the provider used when a caller names none.
func (r *Resolver) DefaultProvider() string { return r.defaultProvider }

// EffectiveModel returns the chat model name that Resolve would request for
// model after applying MODEL_NAME.
func (r *Resolver) EffectiveModel(model string) string {
	if r.overrides.ModelName != "" {
		return r.overrides.ModelName
	}
	return model
}

// EffectiveEmbeddingModel is EffectiveModel for MODEL_EMBEDDING_NAME.
func (r *Resolver) EffectiveEmbeddingModel(model string) string {
	if r.overrides.EmbeddingModelName != "" {
		return r.overrides.EmbeddingModelName
	}
	return model
}

// Resolve returns a handle for model on provider. An empty provider selects
// the default provider.
//
// Errors:
//   - *providers.UnknownProviderError when provider is not a registered identifier
//   - *providers.InvocationError wrapping whatever the client returned
func (r *Resolver) Resolve(model, provider string) (providers.LanguageModel, error) {
	if provider == "" {
		provider = r.defaultProvider
	}
	id, client, err := r.lookup(provider)
	if err != nil {
		r.observe(provider, KindChat, err)
		return nil, err
	}

	effective := r.EffectiveModel(model)
	m, err := client.LanguageModel(effective)
	if err != nil {
		err = &providers.InvocationError{Provider: id, Model: effective, Err: err}
		r.observe(provider, KindChat, err)
		return nil, err
	}

	r.observe(provider, KindChat, nil)
	r.log.Debug("model resolved",
		slog.String("provider", id.String()),
		slog.String("requested", model),
		slog.String("model", effective),
	)
	return m, nil
}

// Model resolves name on the default provider.
func (r *Resolver) Model(name string) (providers.LanguageModel, error) {
	return r.Resolve(name, r.defaultProvider)
}

// ResolveEmbedding returns an embedding handle for model on provider. An
// empty provider selects the default provider. Providers without an
// embeddings API fail with *providers.UnsupportedCapabilityError.
func (r *Resolver) ResolveEmbedding(model, provider string) (providers.EmbeddingModel, error) {
	if provider == "" {
		provider = r.defaultProvider
	}
	id, client, err := r.lookup(provider)
	if err != nil {
		r.observe(provider, KindEmbedding, err)
		return nil, err
	}

	ep, ok := client.(providers.EmbeddingProvider)
	if !ok {
		err := &providers.UnsupportedCapabilityError{Provider: id, Capability: "embedding"}
		r.observe(provider, KindEmbedding, err)
		return nil, err
	}

	effective := r.EffectiveEmbeddingModel(model)
	m, err := ep.EmbeddingModel(effective)
	if err != nil {
		err = &providers.InvocationError{Provider: id, Model: effective, Err: err}
		r.observe(provider, KindEmbedding, err)
		return nil, err
	}

	r.observe(provider, KindEmbedding, nil)
	r.log.Debug("embedding model resolved",
		slog.String("provider", id.String()),
		slog.String("requested", model),
		slog.String("model", effective),
	)
	return m, nil
}

// EmbeddingModel resolves name as an embedding model on the default provider.
func (r *Resolver) EmbeddingModel(name string) (providers.EmbeddingModel, error) {
	return r.ResolveEmbedding(name, r.defaultProvider)
}

func (r *Resolver) ExtractModel() (providers.LanguageModel, error) {
	return r.resolveRef(r.tasks.Extract)
}

func (r *Resolver) ExtractRetryModel() (providers.LanguageModel, error) {
	return r.resolveRef(r.tasks.ExtractRetry)
}

func (r *Resolver) RerankerModel() (providers.LanguageModel, error) {
	return r.resolveRef(r.tasks.Reranker)
}

func (r *Resolver) RerankerRetryModel() (providers.LanguageModel, error) {
	return r.resolveRef(r.tasks.RerankerRetry)
}

func (r *Resolver) SmartScrapeThinkingModel() (providers.LanguageModel, error) {
	return r.resolveRef(r.tasks.SmartScrapeThinking)
}

func (r *Resolver) SmartScrapeToolModel() (providers.LanguageModel, error) {
	return r.resolveRef(r.tasks.SmartScrapeTool)
}

// TaskModel resolves the default model of t.
func (r *Resolver) TaskModel(t Task) (providers.LanguageModel, error) {
	ref, ok := t.ref(r.tasks)
	if !ok {
		return nil, &UnknownTaskError{Task: string(t)}
	}
	return r.resolveRef(ref)
}

// TaskDefault is one row of the task table.
type TaskDefault struct {
	Task Task `json:"task"`
	config.ModelRef
	// EffectiveModel is Model after MODEL_NAME is applied.
	EffectiveModel string `json:"effective_model"`
}

// Defaults returns the task table in task order.
func (r *Resolver) Defaults() []TaskDefault {
	out := make([]TaskDefault, 0, len(allTasks))
	for _, t := range allTasks {
		ref, _ := t.ref(r.tasks)
		out = append(out, TaskDefault{
			Task:           t,
			ModelRef:       ref,
			EffectiveModel: r.EffectiveModel(ref.Model),
		})
	}
	return out
}

func (r *Resolver) resolveRef(ref config.ModelRef) (providers.LanguageModel, error) {
	return r.Resolve(ref.Model, ref.Provider)
}

func (r *Resolver) lookup(provider string) (providers.ID, providers.Provider, error) {
	id, err := providers.ParseID(provider)
	if err != nil {
		return "", nil, err
	}
	client, ok := r.reg.Lookup(id)
	if !ok {
		return "", nil, &providers.UnknownProviderError{Provider: provider}
	}
	return id, client, nil
}

func (r *Resolver) observe(provider, kind string, err error) {
	if r.observer == nil {
		return
	}
	r.observer.ObserveResolution(providerLabel(provider), kind, Outcome(err))
}

// Outcome classifies a resolution error into a short label: ok,
// unknown_provider, unsupported, not_configured, construction or error.
func Outcome(err error) string {
	var (
		unknown     *providers.UnknownProviderError
		unsupported *providers.UnsupportedCapabilityError
		construct   *providers.ConstructionError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &unknown):
		return "unknown_provider"
	case errors.As(err, &unsupported):
		return "unsupported"
	case errors.As(err, &construct):
		return "construction"
	case errors.Is(err, providers.ErrNotConfigured):
		return "not_configured"
	default:
		return "error"
	}
}

// providerLabel keeps metric label cardinality bounded to the enumeration.
func providerLabel(provider string) string {
	if providers.ID(provider).Valid() {
		return provider
	}
	return "unknown"
}
