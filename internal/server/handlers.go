package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/model-resolver/internal/logger"
	"github.com/nulpointcorp/model-resolver/internal/providers"
	"github.com/nulpointcorp/model-resolver/internal/resolver"
	"github.com/nulpointcorp/model-resolver/pkg/apierr"
)

// ── Wire types ───────────────────────────────────────────────────────────────

type (
	inboundMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	// inboundRequest mirrors the OpenAI chat completion body plus an optional
	// provider identifier. Task completions ignore Model and Provider.
	inboundRequest struct {
		Model       string           `json:"model"`
		Provider    string           `json:"provider"`
		Messages    []inboundMessage `json:"messages"`
		Stream      bool             `json:"stream"`
		Temperature float64          `json:"temperature"`
		MaxTokens   int              `json:"max_tokens"`
	}

	outboundUsage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	}

	outboundMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	outboundChoice struct {
		Index        int             `json:"index"`
		Message      outboundMessage `json:"message"`
		FinishReason string          `json:"finish_reason"`
	}

	outboundResponse struct {
		ID       string           `json:"id"`
		Object   string           `json:"object"`
		Created  int64            `json:"created"`
		Model    string           `json:"model"`
		Provider string           `json:"provider"`
		Choices  []outboundChoice `json:"choices"`
		Usage    outboundUsage    `json:"usage"`
	}

	// inboundEmbeddingRequest mirrors POST /v1/embeddings. Input is a string
	// or an array of strings.
	inboundEmbeddingRequest struct {
		Model    string          `json:"model"`
		Provider string          `json:"provider"`
		Input    json.RawMessage `json:"input"`
	}

	outboundEmbeddingData struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}

	outboundEmbeddingUsage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	}

	outboundEmbeddingResponse struct {
		Object   string                  `json:"object"`
		Data     []outboundEmbeddingData `json:"data"`
		Model    string                  `json:"model"`
		Provider string                  `json:"provider"`
		Usage    outboundEmbeddingUsage  `json:"usage"`
	}

	resolveResponse struct {
		Kind              string `json:"kind"`
		Provider          string `json:"provider"`
		Model             string `json:"model"`
		RequestedModel    string `json:"requested_model"`
		RequestedProvider string `json:"requested_provider,omitempty"`
	}

	defaultsResponse struct {
		DefaultProvider string                 `json:"default_provider"`
		Tasks           []resolver.TaskDefault `json:"tasks"`
	}
)

// ── Read-only endpoints ──────────────────────────────────────────────────────

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	snap := s.health.Snapshot()
	snap.DefaultProvider = s.res.DefaultProvider()
	writeJSON(ctx, snap)
}

func (s *Server) handleDefaults(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, defaultsResponse{
		DefaultProvider: s.res.DefaultProvider(),
		Tasks:           s.res.Defaults(),
	})
}

// handleResolve resolves ?model=&provider=&kind= without invoking the model.
func (s *Server) handleResolve(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()
	model := string(args.Peek("model"))
	provider := string(args.Peek("provider"))
	kind := string(args.Peek("kind"))
	if kind == "" {
		kind = resolver.KindChat
	}

	var (
		gotProvider, gotModel string
		err                   error
	)
	switch kind {
	case resolver.KindChat:
		var m providers.LanguageModel
		if m, err = s.res.Resolve(model, provider); err == nil {
			gotProvider, gotModel = m.Provider(), m.Model()
		}
	case resolver.KindEmbedding:
		var m providers.EmbeddingModel
		if m, err = s.res.ResolveEmbedding(model, provider); err == nil {
			gotProvider, gotModel = m.Provider(), m.Model()
		}
	default:
		apierr.WriteBadRequest(ctx, fmt.Sprintf("'kind' must be %q or %q", resolver.KindChat, resolver.KindEmbedding))
		return
	}
	if err != nil {
		apierr.WriteError(ctx, err)
		return
	}

	writeJSON(ctx, resolveResponse{
		Kind:              kind,
		Provider:          gotProvider,
		Model:             gotModel,
		RequestedModel:    model,
		RequestedProvider: provider,
	})
}

// ── Completions ──────────────────────────────────────────────────────────────

func (s *Server) handleTaskCompletions(ctx *fasthttp.RequestCtx) {
	name, _ := ctx.UserValue("task").(string)
	task, err := resolver.ParseTask(name)
	if err != nil {
		apierr.WriteError(ctx, err)
		return
	}

	req, ok := parseChatRequest(ctx)
	if !ok {
		return
	}

	m, err := s.res.TaskModel(task)
	if err != nil {
		s.log.WarnContext(ctx, "task resolution failed",
			slog.String("request_id", requestIDOf(ctx)),
			slog.String("task", string(task)),
			slog.String("error", err.Error()),
		)
		apierr.WriteError(ctx, err)
		return
	}
	s.complete(ctx, string(task), m, req)
}

func (s *Server) handleChatCompletions(ctx *fasthttp.RequestCtx) {
	req, ok := parseChatRequest(ctx)
	if !ok {
		return
	}

	m, err := s.res.Resolve(req.Model, req.Provider)
	if err != nil {
		s.log.WarnContext(ctx, "resolution failed",
			slog.String("request_id", requestIDOf(ctx)),
			slog.String("model", req.Model),
			slog.String("provider", req.Provider),
			slog.String("error", err.Error()),
		)
		apierr.WriteError(ctx, err)
		return
	}
	s.complete(ctx, "", m, req)
}

func parseChatRequest(ctx *fasthttp.RequestCtx) (*inboundRequest, bool) {
	var req inboundRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteBadRequest(ctx, fmt.Sprintf("invalid JSON: %s", err.Error()))
		return nil, false
	}
	if len(req.Messages) == 0 {
		apierr.WriteBadRequest(ctx, "field 'messages' must not be empty")
		return nil, false
	}
	return &req, true
}

// complete calls m and writes either a chat.completion body or an SSE stream.
func (s *Server) complete(ctx *fasthttp.RequestCtx, task string, m providers.LanguageModel, in *inboundRequest) {
	start := time.Now()
	reqID := requestIDOf(ctx)

	msgs := make([]providers.Message, len(in.Messages))
	for i, msg := range in.Messages {
		msgs[i] = providers.Message{Role: msg.Role, Content: msg.Content}
	}

	s.log.InfoContext(ctx, "completion",
		slog.String("request_id", reqID),
		slog.String("task", task),
		slog.String("provider", m.Provider()),
		slog.String("model", m.Model()),
		slog.Bool("stream", in.Stream),
	)

	// The stream writer outlives this handler, so the call context is bound to
	// the server lifetime instead of the request.
	callCtx, cancel := context.WithTimeout(s.baseCtx, s.providerTimeout)

	resp, err := m.Generate(callCtx, &providers.Request{
		Messages:    msgs,
		Stream:      in.Stream,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
		RequestID:   reqID,
	})
	if err != nil {
		cancel()
		s.observeCall(m.Provider(), resolver.KindChat, err, time.Since(start))
		s.logCall(logger.CallLog{
			RequestID: reqID, Task: task, Kind: resolver.KindChat,
			Provider: m.Provider(), Model: m.Model(),
			LatencyMs: clampMs(time.Since(start)), Status: uint16(statusFor(err)),
			Stream: in.Stream,
		})
		s.log.ErrorContext(ctx, "provider_error",
			slog.String("request_id", reqID),
			slog.String("provider", m.Provider()),
			slog.String("model", m.Model()),
			slog.String("error", err.Error()),
		)
		apierr.WriteError(ctx, err)
		return
	}

	if in.Stream && resp.Stream != nil {
		route, _ := ctx.UserValue(routeKey).(string)
		reqBytes := len(ctx.PostBody())
		s.writeSSE(ctx, resp, m, func(outputTokens int) {
			cancel()
			dur := time.Since(start)
			s.observeCall(m.Provider(), resolver.KindChat, nil, dur)
			s.logCall(logger.CallLog{
				RequestID: reqID, Task: task, Kind: resolver.KindChat,
				Provider: m.Provider(), Model: m.Model(),
				OutputTokens: uint32(outputTokens),
				LatencyMs:    clampMs(dur), Status: fasthttp.StatusOK, Stream: true,
			})
			if s.metrics != nil {
				s.metrics.AddTokens(m.Provider(), 0, outputTokens)
				if route != "" {
					s.metrics.ObserveHTTP(route, fasthttp.StatusOK, dur, reqBytes, -1)
					s.metrics.DecInFlight()
				}
			}
		})
		return
	}
	defer cancel()

	dur := time.Since(start)
	s.observeCall(m.Provider(), resolver.KindChat, nil, dur)
	if s.metrics != nil {
		s.metrics.AddTokens(m.Provider(), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	s.logCall(logger.CallLog{
		RequestID: reqID, Task: task, Kind: resolver.KindChat,
		Provider: m.Provider(), Model: m.Model(),
		InputTokens:  uint32(resp.Usage.InputTokens),
		OutputTokens: uint32(resp.Usage.OutputTokens),
		LatencyMs:    clampMs(dur), Status: fasthttp.StatusOK,
	})

	model := resp.Model
	if model == "" {
		model = m.Model()
	}
	id := resp.ID
	if id == "" {
		id = "chatcmpl-" + uuid.NewString()
	}

	writeJSON(ctx, outboundResponse{
		ID:       id,
		Object:   "chat.completion",
		Created:  time.Now().Unix(),
		Model:    model,
		Provider: m.Provider(),
		Choices: []outboundChoice{{
			Index:        0,
			Message:      outboundMessage{Role: "assistant", Content: resp.Content},
			FinishReason: "stop",
		}},
		Usage: outboundUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	})
}

// writeSSE streams chunks as chat.completion.chunk events followed by
// "data: [DONE]". onComplete receives an output token estimate of chars/4.
func (s *Server) writeSSE(ctx *fasthttp.RequestCtx, resp *providers.Response, m providers.LanguageModel, onComplete func(outputTokens int)) {
	ctx.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")
	ctx.SetStatusCode(fasthttp.StatusOK)

	id := "chatcmpl-" + uuid.NewString()

	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		var sb strings.Builder
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("stream_panic", slog.Any("panic", r))
			}
			estimated := sb.Len() / 4
			if estimated == 0 {
				estimated = 1
			}
			onComplete(estimated)
		}()

		for chunk := range resp.Stream {
			sb.WriteString(chunk.Content)

			var finish any
			if chunk.FinishReason != "" {
				finish = chunk.FinishReason
			}
			data, _ := json.Marshal(map[string]any{
				"id":       id,
				"object":   "chat.completion.chunk",
				"created":  time.Now().Unix(),
				"model":    m.Model(),
				"provider": m.Provider(),
				"choices": []map[string]any{{
					"index":         0,
					"delta":         map[string]string{"content": chunk.Content},
					"finish_reason": finish,
				}},
			})
			fmt.Fprintf(w, "data: %s\n\n", data)
			if err := w.Flush(); err != nil {
				// Client went away; drain so the provider goroutine can exit.
				for range resp.Stream {
				}
				return
			}
		}

		fmt.Fprint(w, "data: [DONE]\n\n")
		_ = w.Flush()
	})
}

// ── Embeddings ───────────────────────────────────────────────────────────────

func (s *Server) handleEmbeddings(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	reqID := requestIDOf(ctx)

	var req inboundEmbeddingRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteBadRequest(ctx, fmt.Sprintf("invalid JSON: %s", err.Error()))
		return
	}
	inputs, err := parseEmbeddingInput(req.Input)
	if err != nil {
		apierr.WriteBadRequest(ctx, err.Error())
		return
	}

	m, err := s.res.ResolveEmbedding(req.Model, req.Provider)
	if err != nil {
		apierr.WriteError(ctx, err)
		return
	}

	callCtx, cancel := context.WithTimeout(s.baseCtx, s.providerTimeout)
	defer cancel()

	resp, err := m.Embed(callCtx, &providers.EmbeddingRequest{Input: inputs, RequestID: reqID})
	dur := time.Since(start)
	s.observeCall(m.Provider(), resolver.KindEmbedding, err, dur)
	if err != nil {
		s.logCall(logger.CallLog{
			RequestID: reqID, Kind: resolver.KindEmbedding,
			Provider: m.Provider(), Model: m.Model(),
			LatencyMs: clampMs(dur), Status: uint16(statusFor(err)),
		})
		s.log.ErrorContext(ctx, "embedding_error",
			slog.String("request_id", reqID),
			slog.String("provider", m.Provider()),
			slog.String("error", err.Error()),
		)
		apierr.WriteError(ctx, err)
		return
	}

	if s.metrics != nil {
		s.metrics.AddTokens(m.Provider(), resp.Usage.InputTokens, 0)
	}
	s.logCall(logger.CallLog{
		RequestID: reqID, Kind: resolver.KindEmbedding,
		Provider: m.Provider(), Model: m.Model(),
		InputTokens: uint32(resp.Usage.InputTokens),
		LatencyMs:   clampMs(dur), Status: fasthttp.StatusOK,
	})

	data := make([]outboundEmbeddingData, len(resp.Data))
	for i, d := range resp.Data {
		data[i] = outboundEmbeddingData{Object: "embedding", Index: d.Index, Embedding: d.Embedding}
	}
	model := resp.Model
	if model == "" {
		model = m.Model()
	}

	writeJSON(ctx, outboundEmbeddingResponse{
		Object:   "list",
		Data:     data,
		Model:    model,
		Provider: m.Provider(),
		Usage: outboundEmbeddingUsage{
			PromptTokens: resp.Usage.InputTokens,
			TotalTokens:  resp.Usage.InputTokens,
		},
	})
}

// parseEmbeddingInput accepts a bare string or a non-empty array of strings.
func parseEmbeddingInput(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, errors.New("'input' is required")
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) == 0 {
			return nil, errors.New("'input' must not be empty")
		}
		return arr, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if str == "" {
			return nil, errors.New("'input' must not be empty")
		}
		return []string{str}, nil
	}
	return nil, errors.New("'input' must be a string or array of strings")
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func (s *Server) observeCall(provider, kind string, err error, dur time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveProviderCall(provider, kind, callOutcome(err), dur)
}

func (s *Server) logCall(entry logger.CallLog) {
	if s.calls == nil {
		return
	}
	entry.CreatedAt = time.Now()
	s.calls.Log(entry)
}

func callOutcome(err error) string {
	var sc providers.StatusCoder
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &sc) && sc.HTTPStatus() == fasthttp.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "error"
	}
}

// statusFor mirrors the status apierr.WriteError would send for err.
func statusFor(err error) int {
	var ctx fasthttp.RequestCtx
	apierr.WriteError(&ctx, err)
	return ctx.Response.StatusCode()
}

func clampMs(d time.Duration) uint32 {
	ms := d.Milliseconds()
	if ms < 0 {
		return 0
	}
	if ms > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(ms)
}

func requestIDOf(ctx *fasthttp.RequestCtx) string {
	id, _ := ctx.UserValue(requestIDKey).(string)
	return id
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}
