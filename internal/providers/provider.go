// Package providers defines the provider identifiers, client interfaces and
// model handle types shared by every backend integration (OpenAI, Ollama,
// Anthropic, Groq, Google, OpenRouter, Fireworks, DeepInfra and Vertex AI).
//
// Each backend lives in its own sub-package and exposes a constructor that
// returns a Provider. Invoking Provider.LanguageModel with a model name yields
// a LanguageModel handle; providers that serve vector embeddings additionally
// implement EmbeddingProvider. Check for it with a type assertion.
package providers

import (
	"context"
	"time"
)

// ID identifies one of the supported backend providers. The set is closed:
// All lists every valid value and ParseID rejects anything else.
type ID string

const (
	OpenAI     ID = "openai"
	Ollama     ID = "ollama"
	Anthropic  ID = "anthropic"
	Groq       ID = "groq"
	Google     ID = "google"
	OpenRouter ID = "openrouter"
	Fireworks  ID = "fireworks"
	DeepInfra  ID = "deepinfra"
	Vertex     ID = "vertex"
)

var allIDs = []ID{
	OpenAI,
	Ollama,
	Anthropic,
	Groq,
	Google,
	OpenRouter,
	Fireworks,
	DeepInfra,
	Vertex,
}

// All returns every provider identifier in declaration order.
func All() []ID {
	out := make([]ID, len(allIDs))
	copy(out, allIDs)
	return out
}

// Valid reports whether id is a member of the enumeration.
func (id ID) Valid() bool {
	for _, known := range allIDs {
		if id == known {
			return true
		}
	}
	return false
}

func (id ID) String() string { return string(id) }

// ParseID converts s into an ID. Unknown names yield *UnknownProviderError.
func ParseID(s string) (ID, error) {
	id := ID(s)
	if !id.Valid() {
		return "", &UnknownProviderError{Provider: s}
	}
	return id, nil
}

type (
	// StreamChunk is a single token chunk delivered during a streaming response.
	StreamChunk struct {
		Content      string
		FinishReason string
	}

	// Message is a single turn in a conversation (role + text content).
	Message struct {
		Role    string
		Content string
	}

	// Usage holds token counts.
	Usage struct {
		InputTokens  int
		OutputTokens int
	}

	// Request is a generation call against a resolved model. The model name
	// is bound to the handle, not carried here.
	Request struct {
		Messages    []Message
		Stream      bool
		Temperature float64
		MaxTokens   int
		RequestID   string
	}

	// Response is a normalized provider response.
	Response struct {
		ID      string
		Model   string
		Content string
		Usage   Usage
		Stream  <-chan StreamChunk // nil if it's not a stream.
	}

	// EmbeddingRequest holds the texts to embed with a resolved embedding model.
	EmbeddingRequest struct {
		// Input is the list of texts to embed. Always at least one element.
		Input     []string
		RequestID string
	}

	// EmbeddingData is a single embedding vector.
	EmbeddingData struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}

	// EmbeddingResponse is a normalized embedding response.
	EmbeddingResponse struct {
		Model string
		Data  []EmbeddingData
		Usage Usage
	}
)

// Provider is a constructed backend client. LanguageModel binds a model name
// and returns a callable handle; it performs no network I/O. Configuration
// problems (a missing API key, an unreadable credential file) are reported
// here rather than at construction time.
type Provider interface {
	Name() string
	LanguageModel(model string) (LanguageModel, error)
	HealthCheck(ctx context.Context) error
}

// EmbeddingProvider is an optional interface implemented by providers that
// support the embeddings API.
type EmbeddingProvider interface {
	EmbeddingModel(model string) (EmbeddingModel, error)
}

// LanguageModel is a handle to one model on one provider.
type LanguageModel interface {
	Provider() string
	Model() string
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// EmbeddingModel is a handle to one embedding model on one provider.
type EmbeddingModel interface {
	Provider() string
	Model() string
	Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)
}

// ProviderTimeout is the default per-request HTTP timeout used by every client.
const ProviderTimeout = 30 * time.Second

// StatusCoder is implemented by upstream API errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}
