// Package openai implements providers.Provider for the OpenAI API using the
// official openai-go SDK. The openaicompat package builds on it for every
// OpenAI-compatible backend.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/nulpointcorp/model-resolver/internal/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	providerName   = "openai"
)

type Provider struct {
	name        string
	apiKey      string
	baseURL     string
	keyOptional bool
	timeout     time.Duration
	headers     map[string]string
	client      openaiSDK.Client
}

type Option func(*Provider)

// WithBaseURL overrides the API base URL. Empty values are ignored.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = u
		}
	}
}

// WithName overrides the provider name reported by handles and errors.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithHeaders adds static headers to every request.
func WithHeaders(h map[string]string) Option {
	return func(p *Provider) {
		for k, v := range h {
			p.headers[k] = v
		}
	}
}

// WithoutAPIKey allows the provider to be used without a key (local servers).
func WithoutAPIKey() Option {
	return func(p *Provider) { p.keyOptional = true }
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		name:    providerName,
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		timeout: providers.ProviderTimeout,
		headers: make(map[string]string),
	}

	for _, o := range opts {
		o(p)
	}

	key := p.apiKey
	if key == "" && p.keyOptional {
		// The SDK always sends a bearer token; local servers ignore it.
		key = p.name
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithBaseURL(p.baseURL),
		option.WithHTTPClient(&http.Client{Timeout: p.timeout}),
		option.WithMaxRetries(0),
	}
	for k, v := range p.headers {
		reqOpts = append(reqOpts, option.WithHeader(k, v))
	}

	p.client = openaiSDK.NewClient(reqOpts...)

	return p
}

func (p *Provider) Name() string { return p.name }

// BaseURL returns the effective API base URL.
func (p *Provider) BaseURL() string { return p.baseURL }

func (p *Provider) LanguageModel(model string) (providers.LanguageModel, error) {
	if err := p.check(model); err != nil {
		return nil, err
	}
	return providers.NewLanguageModel(p.name, model, p.generate), nil
}

// EmbeddingModel implements providers.EmbeddingProvider.
func (p *Provider) EmbeddingModel(model string) (providers.EmbeddingModel, error) {
	if err := p.check(model); err != nil {
		return nil, err
	}
	return providers.NewEmbeddingModel(p.name, model, p.embed), nil
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	if err := p.configured(); err != nil {
		return err
	}
	_, err := p.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("%s: health check: %w", p.name, p.toProviderError(err))
	}
	return nil
}

func (p *Provider) check(model string) error {
	if err := providers.CheckModel(model); err != nil {
		return fmt.Errorf("%s: %w", p.name, err)
	}
	return p.configured()
}

func (p *Provider) configured() error {
	if p.apiKey == "" && !p.keyOptional {
		return fmt.Errorf("%s: %w: no API key configured", p.name, providers.ErrNotConfigured)
	}
	return nil
}

func (p *Provider) generate(ctx context.Context, model string, req *providers.Request) (*providers.Response, error) {
	params := buildChatCompletionParams(model, req)
	if req.Stream {
		return p.handleStreaming(ctx, params)
	}
	return p.handleResponse(ctx, params)
}

func buildChatCompletionParams(model string, req *providers.Request) openaiSDK.ChatCompletionNewParams {
	msgs := make([]openaiSDK.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, toSDKMessage(m.Role, m.Content))
	}

	params := openaiSDK.ChatCompletionNewParams{
		Messages: msgs,
		Model:    model,
	}

	if req.Temperature != 0 {
		params.Temperature = openaiSDK.Float(req.Temperature)
	}

	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openaiSDK.Int(int64(req.MaxTokens))
	}

	return params
}

func (p *Provider) handleResponse(ctx context.Context, params openaiSDK.ChatCompletionNewParams) (*providers.Response, error) {
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, p.toProviderError(err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return &providers.Response{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: content,
		Usage: providers.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

func (p *Provider) handleStreaming(ctx context.Context, params openaiSDK.ChatCompletionNewParams) (*providers.Response, error) {
	ch := make(chan providers.StreamChunk, 64)

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	go func() {
		defer close(ch)

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}

			c := chunk.Choices[0]
			if c.Delta.Content != "" || c.FinishReason != "" {
				ch <- providers.StreamChunk{
					Content:      c.Delta.Content,
					FinishReason: c.FinishReason,
				}
			}
		}

		if err := stream.Err(); err != nil {
			ch <- providers.StreamChunk{
				Content:      fmt.Sprintf("[stream error] %v", err),
				FinishReason: "error",
			}
		}
	}()

	return &providers.Response{Model: params.Model, Stream: ch}, nil
}

func (p *Provider) embed(ctx context.Context, model string, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	params := openaiSDK.EmbeddingNewParams{
		Model: openaiSDK.EmbeddingModel(model),
		Input: openaiSDK.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: req.Input,
		},
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, p.toProviderError(err)
	}

	data := make([]providers.EmbeddingData, len(resp.Data))
	for i, d := range resp.Data {
		f32 := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			f32[j] = float32(v)
		}
		data[i] = providers.EmbeddingData{
			Index:     int(d.Index),
			Embedding: f32,
		}
	}

	return &providers.EmbeddingResponse{
		Model: resp.Model,
		Data:  data,
		Usage: providers.Usage{
			InputTokens: int(resp.Usage.PromptTokens),
		},
	}, nil
}

// ProviderError is a structured error returned by an OpenAI-compatible API.
type ProviderError struct {
	Name       string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (status=%d)", e.Name, e.Message, e.StatusCode)
}

func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

func (p *Provider) toProviderError(err error) error {
	var apierr *openaiSDK.Error
	if errors.As(err, &apierr) {
		return &ProviderError{
			Name:       p.name,
			StatusCode: apierr.StatusCode,
			Message:    apierr.Error(),
		}
	}
	return err
}

func toSDKMessage(role, content string) openaiSDK.ChatCompletionMessageParamUnion {
	switch strings.ToLower(role) {
	case "developer":
		return openaiSDK.DeveloperMessage(content)
	case "system":
		return openaiSDK.SystemMessage(content)
	case "assistant":
		return openaiSDK.AssistantMessage(content)
	default:
		return openaiSDK.UserMessage(content)
	}
}
