package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/nulpointcorp/model-resolver/internal/config"
	"github.com/nulpointcorp/model-resolver/internal/metrics"
	"github.com/nulpointcorp/model-resolver/internal/providers"
	"github.com/nulpointcorp/model-resolver/internal/resolver"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type stubProvider struct {
	id        providers.ID
	healthErr error
	genErr    error
	chunks    []string
}

func (p *stubProvider) Name() string                        { return p.id.String() }
func (p *stubProvider) HealthCheck(_ context.Context) error { return p.healthErr }

func (p *stubProvider) LanguageModel(model string) (providers.LanguageModel, error) {
	if err := providers.CheckModel(model); err != nil {
		return nil, err
	}
	return providers.NewLanguageModel(p.id.String(), model, p.generate), nil
}

func (p *stubProvider) generate(_ context.Context, model string, req *providers.Request) (*providers.Response, error) {
	if p.genErr != nil {
		return nil, p.genErr
	}
	if req.Stream {
		ch := make(chan providers.StreamChunk, len(p.chunks))
		for i, c := range p.chunks {
			chunk := providers.StreamChunk{Content: c}
			if i == len(p.chunks)-1 {
				chunk.FinishReason = "stop"
			}
			ch <- chunk
		}
		close(ch)
		return &providers.Response{Model: model, Stream: ch}, nil
	}
	return &providers.Response{
		ID:      "resp-1",
		Model:   model,
		Content: "echo: " + req.Messages[len(req.Messages)-1].Content,
		Usage:   providers.Usage{InputTokens: 3, OutputTokens: 2},
	}, nil
}

type stubEmbeddingProvider struct{ stubProvider }

func (p *stubEmbeddingProvider) EmbeddingModel(model string) (providers.EmbeddingModel, error) {
	return providers.NewEmbeddingModel(p.id.String(), model, func(_ context.Context, model string, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
		out := &providers.EmbeddingResponse{Model: model, Usage: providers.Usage{InputTokens: len(req.Input)}}
		for i := range req.Input {
			out.Data = append(out.Data, providers.EmbeddingData{Index: i, Embedding: []float32{float32(i), 0.5}})
		}
		return out, nil
	}), nil
}

type upstreamErr struct{ status int }

func (e *upstreamErr) Error() string   { return "upstream failed" }
func (e *upstreamErr) HTTPStatus() int { return e.status }

func testConfig() *config.Config {
	return &config.Config{
		DefaultProvider: "openai",
		Tasks: config.TaskDefaults{
			Extract:             config.ModelRef{Model: "gemini-2.5-pro", Provider: "vertex"},
			ExtractRetry:        config.ModelRef{Model: "gemini-2.5-pro", Provider: "google"},
			Reranker:            config.ModelRef{Model: "gemini-2.5-pro", Provider: "vertex"},
			RerankerRetry:       config.ModelRef{Model: "gemini-2.5-pro", Provider: "google"},
			SmartScrapeThinking: config.ModelRef{Model: "gemini-2.5-pro", Provider: "vertex"},
			SmartScrapeTool:     config.ModelRef{Model: "gemini-2.0-flash", Provider: "google"},
		},
	}
}

func testRegistry() *resolver.Registry {
	return resolver.NewRegistry(map[providers.ID]providers.Provider{
		providers.OpenAI:    &stubEmbeddingProvider{stubProvider{id: providers.OpenAI, chunks: []string{"Hel", "lo"}}},
		providers.Vertex:    &stubEmbeddingProvider{stubProvider{id: providers.Vertex}},
		providers.Google:    &stubEmbeddingProvider{stubProvider{id: providers.Google}},
		providers.Groq:      &stubProvider{id: providers.Groq, genErr: &upstreamErr{status: 429}},
		providers.Anthropic: &stubProvider{id: providers.Anthropic, healthErr: providers.ErrNotConfigured},
		providers.Fireworks: &stubProvider{id: providers.Fireworks, healthErr: errors.New("connection refused")},
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// serve starts the full handler on an in-memory listener.
func serve(t *testing.T, cfg *config.Config, opts Options) (*http.Client, *Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	res := resolver.New(testRegistry(), cfg, resolver.WithLogger(opts.Logger))
	s := New(ctx, res, opts)

	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = s.Serve(ln) }()

	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
		_ = ln.Close()
		cancel()
	})

	return &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			DialContext: func(context.Context, string, string) (net.Conn, error) {
				return ln.Dial()
			},
		},
	}, s
}

func do(t *testing.T, c *http.Client, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, "http://resolver"+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("invalid error body %q: %v", body, err)
	}
	return env.Error.Code
}

// ── read-only endpoints ──────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	c, _ := serve(t, testConfig(), Options{HealthCheckInterval: time.Hour})

	resp, body := do(t, c, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var snap HealthSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Status != statusDegraded {
		t.Errorf("expected degraded overall, got %q", snap.Status)
	}
	if snap.DefaultProvider != "openai" {
		t.Errorf("expected default provider openai, got %q", snap.DefaultProvider)
	}
	want := map[string]string{
		"openai":    statusOK,
		"anthropic": statusUnconfigured,
		"fireworks": statusDegraded,
	}
	for p, st := range want {
		if snap.Providers[p] != st {
			t.Errorf("provider %s: expected %q, got %q", p, st, snap.Providers[p])
		}
	}
}

func TestHealth_ProbingDisabled(t *testing.T) {
	c, _ := serve(t, testConfig(), Options{})

	_, body := do(t, c, http.MethodGet, "/health", "")
	var snap HealthSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Status != statusOK || snap.Providers["openai"] != statusUnknown {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.Overrides.ModelName = "custom-model"
	c, _ := serve(t, cfg, Options{})

	resp, body := do(t, c, http.MethodGet, "/v1/defaults", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out struct {
		DefaultProvider string `json:"default_provider"`
		Tasks           []struct {
			Task           string `json:"task"`
			Model          string `json:"model"`
			Provider       string `json:"provider"`
			EffectiveModel string `json:"effective_model"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Tasks) != len(resolver.Tasks()) {
		t.Fatalf("expected %d tasks, got %d", len(resolver.Tasks()), len(out.Tasks))
	}
	first := out.Tasks[0]
	if first.Task != "extract" || first.Model != "gemini-2.5-pro" || first.Provider != "vertex" || first.EffectiveModel != "custom-model" {
		t.Errorf("unexpected first row %+v", first)
	}
}

func TestResolve(t *testing.T) {
	c, _ := serve(t, testConfig(), Options{})

	tests := []struct {
		name     string
		query    string
		status   int
		code     string
		provider string
	}{
		{"chat default provider", "?model=gpt-4o", 200, "", "openai"},
		{"chat explicit", "?model=llama3&provider=groq", 200, "", "groq"},
		{"embedding", "?model=text-embedding-004&provider=google&kind=embedding", 200, "", "google"},
		{"unknown provider", "?model=x&provider=azure", 400, "unknown_provider", ""},
		{"unsupported embedding", "?model=x&provider=groq&kind=embedding", 400, "unsupported_capability", ""},
		{"empty model", "?provider=openai", 400, "empty_model", ""},
		{"bad kind", "?model=x&kind=image", 400, "invalid_request", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, c, http.MethodGet, "/v1/resolve"+tt.query, "")
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, resp.StatusCode, body)
			}
			if tt.code != "" {
				if got := errorCode(t, body); got != tt.code {
					t.Errorf("expected code %q, got %q", tt.code, got)
				}
				return
			}
			var out resolveResponse
			if err := json.Unmarshal(body, &out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out.Provider != tt.provider {
				t.Errorf("expected provider %q, got %q", tt.provider, out.Provider)
			}
		})
	}
}

// ── completions ──────────────────────────────────────────────────────────────

func TestTaskCompletions(t *testing.T) {
	c, _ := serve(t, testConfig(), Options{})

	resp, body := do(t, c, http.MethodPost, "/v1/tasks/extract/completions",
		`{"messages":[{"role":"user","content":"hi"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var out outboundResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Provider != "vertex" || out.Model != "gemini-2.5-pro" {
		t.Errorf("expected vertex/gemini-2.5-pro, got %s/%s", out.Provider, out.Model)
	}
	if out.Choices[0].Message.Content != "echo: hi" {
		t.Errorf("unexpected content %q", out.Choices[0].Message.Content)
	}
	if out.Usage.TotalTokens != 5 {
		t.Errorf("expected 5 total tokens, got %d", out.Usage.TotalTokens)
	}
}

func TestTaskCompletions_SDKPath(t *testing.T) {
	c, _ := serve(t, testConfig(), Options{})

	resp, body := do(t, c, http.MethodPost, "/v1/tasks/smart-scrape-tool/chat/completions",
		`{"model":"ignored","messages":[{"role":"user","content":"hi"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out outboundResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Provider != "google" || out.Model != "gemini-2.0-flash" {
		t.Errorf("expected google/gemini-2.0-flash, got %s/%s", out.Provider, out.Model)
	}
}

func TestTaskCompletions_Errors(t *testing.T) {
	c, _ := serve(t, testConfig(), Options{})

	resp, body := do(t, c, http.MethodPost, "/v1/tasks/summarize/completions",
		`{"messages":[{"role":"user","content":"hi"}]}`)
	if resp.StatusCode != http.StatusNotFound || errorCode(t, body) != "unknown_task" {
		t.Errorf("expected 404 unknown_task, got %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, c, http.MethodPost, "/v1/tasks/extract/completions", `{"messages":[]}`)
	if resp.StatusCode != http.StatusBadRequest || errorCode(t, body) != "invalid_request" {
		t.Errorf("expected 400 invalid_request, got %d %s", resp.StatusCode, body)
	}
}

func TestChatCompletions_OverrideAndUpstreamError(t *testing.T) {
	cfg := testConfig()
	cfg.Overrides.ModelName = "custom-model"
	c, _ := serve(t, cfg, Options{})

	_, body := do(t, c, http.MethodPost, "/v1/chat/completions",
		`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	var out outboundResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Model != "custom-model" || out.Provider != "openai" {
		t.Errorf("expected openai/custom-model, got %s/%s", out.Provider, out.Model)
	}

	resp, body := do(t, c, http.MethodPost, "/v1/chat/completions",
		`{"model":"llama3","provider":"groq","messages":[{"role":"user","content":"hi"}]}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", resp.StatusCode, body)
	}
	if resp.Header.Get("Retry-After") != "60" {
		t.Errorf("expected Retry-After 60, got %q", resp.Header.Get("Retry-After"))
	}

	resp, _ = do(t, c, http.MethodPost, "/v1/chat/completions", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad JSON, got %d", resp.StatusCode)
	}
}

func TestChatCompletions_Stream(t *testing.T) {
	c, _ := serve(t, testConfig(), Options{Metrics: metrics.New()})

	resp, body := do(t, c, http.MethodPost, "/v1/chat/completions",
		`{"model":"gpt-4o","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("expected SSE content type, got %q", ct)
	}

	var (
		content strings.Builder
		done    bool
	)
	sc := bufio.NewScanner(strings.NewReader(string(body)))
	for sc.Scan() {
		line := strings.TrimPrefix(sc.Text(), "data: ")
		if line == "" || line == sc.Text() {
			continue
		}
		if line == "[DONE]" {
			done = true
			continue
		}
		var chunk struct {
			Provider string `json:"provider"`
			Choices  []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			t.Fatalf("bad chunk %q: %v", line, err)
		}
		content.WriteString(chunk.Choices[0].Delta.Content)
	}

	if content.String() != "Hello" {
		t.Errorf("expected streamed content 'Hello', got %q", content.String())
	}
	if !done {
		t.Error("expected [DONE] terminator")
	}
}

// ── embeddings ───────────────────────────────────────────────────────────────

func TestEmbeddings(t *testing.T) {
	c, _ := serve(t, testConfig(), Options{})

	resp, body := do(t, c, http.MethodPost, "/v1/embeddings",
		`{"model":"text-embedding-3-small","input":["a","b"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out outboundEmbeddingResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Provider != "openai" || len(out.Data) != 2 || out.Usage.PromptTokens != 2 {
		t.Errorf("unexpected response %+v", out)
	}

	resp, body = do(t, c, http.MethodPost, "/v1/embeddings",
		`{"model":"e","provider":"anthropic","input":"x"}`)
	if resp.StatusCode != http.StatusBadRequest || errorCode(t, body) != "unsupported_capability" {
		t.Errorf("expected 400 unsupported_capability, got %d %s", resp.StatusCode, body)
	}
}

func TestParseEmbeddingInput(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{`"hello"`, 1, false},
		{`["a","b","c"]`, 3, false},
		{`""`, 0, true},
		{`[]`, 0, true},
		{`42`, 0, true},
		{``, 0, true},
	}
	for _, tt := range tests {
		got, err := parseEmbeddingInput(json.RawMessage(tt.raw))
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: unexpected error state %v", tt.raw, err)
			continue
		}
		if len(got) != tt.want {
			t.Errorf("%q: expected %d inputs, got %d", tt.raw, tt.want, len(got))
		}
	}
}

// ── middleware & metrics ─────────────────────────────────────────────────────

func TestMiddleware_Headers(t *testing.T) {
	c, _ := serve(t, testConfig(), Options{CORSOrigins: []string{"https://a.example", "https://b.example"}})

	resp, _ := do(t, c, http.MethodGet, "/v1/defaults", "")
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID")
	}
	if resp.Header.Get("X-Response-Time") == "" {
		t.Error("expected X-Response-Time")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}

	resp, _ = do(t, c, http.MethodOptions, "/v1/chat/completions", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204 preflight, got %d", resp.StatusCode)
	}
}

func TestCORS_Origins(t *testing.T) {
	tests := []struct {
		name   string
		allow  []string
		origin string
		want   string
		varyOn bool
	}{
		{name: "wildcard by default", allow: nil, origin: "https://x.example", want: "*"},
		{name: "explicit wildcard", allow: []string{"https://a.example", "*"}, origin: "https://x.example", want: "*"},
		{name: "listed origin echoed", allow: []string{"https://a.example", "https://b.example"}, origin: "https://b.example", want: "https://b.example", varyOn: true},
		{name: "unlisted origin", allow: []string{"https://a.example", "https://b.example"}, origin: "https://evil.example", want: "", varyOn: true},
		{name: "no origin header", allow: []string{"https://a.example"}, origin: "", want: "", varyOn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := applyMiddleware(func(ctx *fasthttp.RequestCtx) {
				ctx.SetStatusCode(fasthttp.StatusOK)
			}, corsHandler(tt.allow))

			for _, method := range []string{fasthttp.MethodGet, fasthttp.MethodOptions} {
				var ctx fasthttp.RequestCtx
				ctx.Request.Header.SetMethod(method)
				ctx.Request.SetRequestURI("/v1/defaults")
				if tt.origin != "" {
					ctx.Request.Header.Set("Origin", tt.origin)
				}
				h(&ctx)

				got := string(ctx.Response.Header.Peek("Access-Control-Allow-Origin"))
				if got != tt.want {
					t.Errorf("%s: expected Allow-Origin %q, got %q", method, tt.want, got)
				}
				if strings.Contains(got, ",") {
					t.Errorf("%s: Allow-Origin must hold a single origin, got %q", method, got)
				}
				vary := string(ctx.Response.Header.Peek("Vary"))
				if tt.varyOn != (vary == "Origin") {
					t.Errorf("%s: unexpected Vary %q", method, vary)
				}
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	h := applyMiddleware(func(*fasthttp.RequestCtx) { panic("boom") }, recovery(testLogger()))

	var ctx fasthttp.RequestCtx
	h(&ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", ctx.Response.StatusCode())
	}
	if errorCode(t, ctx.Response.Body()) != "internal_error" {
		t.Errorf("unexpected body %s", ctx.Response.Body())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	c, _ := serve(t, testConfig(), Options{Metrics: metrics.New()})

	do(t, c, http.MethodGet, "/v1/resolve?model=x&provider=azure", "")

	resp, body := do(t, c, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `resolver_http_requests_total{route="resolve",status="400"} 1`) {
		t.Errorf("expected resolve request to be counted:\n%s", body)
	}
}
