// Package google implements providers.Provider for the Gemini API using the
// official GenAI SDK. The same request/response handling backs the vertex
// package, which supplies a different client through NewWithConnector.
package google

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/nulpointcorp/model-resolver/internal/providers"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	providerName   = "google"
)

// Connector creates the genai client on first use. A failed attempt is not
// remembered; the next call tries again.
type Connector func() (*genai.Client, error)

// Provider implements providers.Provider and providers.EmbeddingProvider on
// top of a genai client.
type Provider struct {
	name    string
	apiKey  string
	baseURL string
	timeout time.Duration
	connect Connector

	mu     sync.Mutex
	client *genai.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL. The trailing path segment is used as
// the API version when it looks like one ("v1beta"). Empty values are ignored.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = u
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// New creates a Gemini API provider. A missing key is reported when a model
// is resolved, not here.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		name:    providerName,
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		timeout: providers.ProviderTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	p.connect = p.connectGeminiAPI
	return p
}

// NewWithConnector creates a provider named name whose genai client comes
// from connect.
func NewWithConnector(name string, connect Connector) *Provider {
	return &Provider{name: name, connect: connect}
}

func (p *Provider) connectGeminiAPI() (*genai.Client, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%s: %w: no API key configured", p.name, providers.ErrNotConfigured)
	}

	base, ver := SplitBaseURLAndVersion(p.baseURL)
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      p.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: p.timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: base, APIVersion: ver},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: create client: %w", p.name, err)
	}
	return client, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) genaiClient() (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	client, err := p.connect()
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

func (p *Provider) LanguageModel(model string) (providers.LanguageModel, error) {
	if err := providers.CheckModel(model); err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	client, err := p.genaiClient()
	if err != nil {
		return nil, err
	}
	return providers.NewLanguageModel(p.name, model, func(ctx context.Context, model string, req *providers.Request) (*providers.Response, error) {
		return p.generate(ctx, client, model, req)
	}), nil
}

// EmbeddingModel implements providers.EmbeddingProvider.
func (p *Provider) EmbeddingModel(model string) (providers.EmbeddingModel, error) {
	if err := providers.CheckModel(model); err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	client, err := p.genaiClient()
	if err != nil {
		return nil, err
	}
	return providers.NewEmbeddingModel(p.name, model, func(ctx context.Context, model string, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
		return p.embed(ctx, client, model, req)
	}), nil
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	client, err := p.genaiClient()
	if err != nil {
		return err
	}
	_, err = client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 1})
	if err != nil {
		return fmt.Errorf("%s: health check: %w", p.name, p.toProviderError(err))
	}
	return nil
}

func (p *Provider) generate(ctx context.Context, client *genai.Client, model string, req *providers.Request) (*providers.Response, error) {
	contents, cfg := buildContentsAndConfig(req)
	if req.Stream {
		return p.handleStreaming(ctx, client, model, contents, cfg)
	}
	return p.handleResponse(ctx, client, model, req.RequestID, contents, cfg)
}

func buildContentsAndConfig(req *providers.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	var systemPrompt string
	contents := make([]*genai.Content, 0, len(req.Messages))

	for _, m := range req.Messages {
		switch strings.ToLower(m.Role) {
		case "system", "developer":
			if systemPrompt != "" {
				systemPrompt += "\n"
			}
			systemPrompt += m.Content
		case "assistant", "model":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	if systemPrompt == "" && req.Temperature <= 0 && req.MaxTokens <= 0 {
		return contents, nil
	}

	cfg := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr[float32](float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	return contents, cfg
}

func (p *Provider) handleResponse(
	ctx context.Context,
	client *genai.Client,
	model string,
	requestID string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (*providers.Response, error) {
	resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, p.toProviderError(err)
	}

	id := requestID
	if id == "" {
		if resp != nil && resp.ResponseID != "" {
			id = resp.ResponseID
		} else {
			id = p.generateID()
		}
	}

	out := ""
	if resp != nil {
		out = resp.Text()
	}

	var inTok, outTok int
	if resp != nil && resp.UsageMetadata != nil {
		inTok = int(resp.UsageMetadata.PromptTokenCount)
		outTok = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return &providers.Response{
		ID:      id,
		Model:   model,
		Content: out,
		Usage: providers.Usage{
			InputTokens:  inTok,
			OutputTokens: outTok,
		},
	}, nil
}

func (p *Provider) handleStreaming(
	ctx context.Context,
	client *genai.Client,
	model string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (*providers.Response, error) {
	ch := make(chan providers.StreamChunk, 64)

	go func() {
		defer close(ch)

		for resp, err := range client.Models.GenerateContentStream(ctx, model, contents, cfg) {
			if err != nil {
				ch <- providers.StreamChunk{
					Content:      fmt.Sprintf("[stream error] %v", err),
					FinishReason: "error",
				}
				return
			}
			if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
				continue
			}

			c := resp.Candidates[0]
			text := candidateText(c)
			finish := string(c.FinishReason)

			if text != "" || finish != "" {
				ch <- providers.StreamChunk{
					Content:      text,
					FinishReason: finish,
				}
			}
		}
	}()

	return &providers.Response{Model: model, Stream: ch}, nil
}

// embed sends all inputs in a single EmbedContent call.
func (p *Provider) embed(ctx context.Context, client *genai.Client, model string, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	contents := make([]*genai.Content, len(req.Input))
	for i, text := range req.Input {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	resp, err := client.Models.EmbedContent(ctx, model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: embed: %w", p.name, p.toProviderError(err))
	}
	if resp == nil || len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%s: embed: empty response", p.name)
	}

	data := make([]providers.EmbeddingData, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		data[i].Index = i
		if emb != nil {
			data[i].Embedding = emb.Values
		}
	}

	return &providers.EmbeddingResponse{
		Model: model,
		Data:  data,
	}, nil
}

func candidateText(c *genai.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range c.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// SplitBaseURLAndVersion splits "https://host/v1beta" into the genai
// HTTPOptions pair ("https://host/", "v1beta"). A URL whose last path segment
// is not a version is returned with an empty version.
func SplitBaseURLAndVersion(raw string) (baseURL string, apiVersion string) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, ""
	}

	path := strings.Trim(u.Path, "/")
	if path == "" {
		base := u.String()
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		return base, ""
	}

	parts := strings.Split(path, "/")
	last := parts[len(parts)-1]

	if looksLikeAPIVersion(last) {
		apiVersion = last
		parts = parts[:len(parts)-1]
	}

	u.Path = "/" + strings.Join(parts, "/")
	if u.Path == "/" {
		u.Path = ""
	}

	baseURL = u.String()
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL, apiVersion
}

func looksLikeAPIVersion(s string) bool {
	if !strings.HasPrefix(s, "v") || len(s) < 2 {
		return false
	}
	return s[1] >= '0' && s[1] <= '9'
}

// generateID produces a random hex ID for responses that don't include one.
func (p *Provider) generateID() string {
	return fmt.Sprintf("%s-%x", p.name, rand.Int63())
}

// ProviderError is a structured error returned by a genai backend.
type ProviderError struct {
	Name       string
	StatusCode int
	Message    string
	Status     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (status=%d, type=%s)", e.Name, e.Message, e.StatusCode, e.Status)
}

// HTTPStatus implements providers.StatusCoder.
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

func (p *Provider) toProviderError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Name:       p.name,
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Status:     apiErr.Status,
		}
	}
	return err
}
