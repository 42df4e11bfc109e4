package providers

import "context"

// GenerateFunc performs one generation call for model.
type GenerateFunc func(ctx context.Context, model string, req *Request) (*Response, error)

// EmbedFunc performs one embedding call for model.
type EmbedFunc func(ctx context.Context, model string, req *EmbeddingRequest) (*EmbeddingResponse, error)

type boundModel struct {
	provider string
	model    string
	generate GenerateFunc
}

// NewLanguageModel returns a LanguageModel that forwards every call to fn
// with model bound.
func NewLanguageModel(provider, model string, fn GenerateFunc) LanguageModel {
	return &boundModel{provider: provider, model: model, generate: fn}
}

func (m *boundModel) Provider() string { return m.provider }
func (m *boundModel) Model() string    { return m.model }

func (m *boundModel) Generate(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		req = &Request{}
	}
	return m.generate(ctx, m.model, req)
}

type boundEmbeddingModel struct {
	provider string
	model    string
	embed    EmbedFunc
}

// NewEmbeddingModel returns an EmbeddingModel that forwards every call to fn
// with model bound.
func NewEmbeddingModel(provider, model string, fn EmbedFunc) EmbeddingModel {
	return &boundEmbeddingModel{provider: provider, model: model, embed: fn}
}

func (m *boundEmbeddingModel) Provider() string { return m.provider }
func (m *boundEmbeddingModel) Model() string    { return m.model }

func (m *boundEmbeddingModel) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if req == nil {
		req = &EmbeddingRequest{}
	}
	return m.embed(ctx, m.model, req)
}
