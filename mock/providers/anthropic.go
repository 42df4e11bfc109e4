package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

// newAnthropicHandler simulates the Anthropic Messages API.
func newAnthropicHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/messages", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model     string          `json:"model"`
			MaxTokens int             `json:"max_tokens"`
			Stream    bool            `json:"stream"`
			System    json.RawMessage `json:"system"`
			Messages  []struct {
				Role    string          `json:"role"`
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAnthropicError(w, http.StatusBadRequest, "invalid request body", "invalid_request_error")
			return
		}
		if req.MaxTokens <= 0 {
			writeAnthropicError(w, http.StatusBadRequest, "max_tokens: field required", "invalid_request_error")
			return
		}
		if code := fault(cfg, req.Model); code != 0 {
			writeAnthropicError(w, code, fmt.Sprintf("fake upstream returned %d", code), anthropicErrorType(code))
			return
		}

		prompt := []string{string(req.System)}
		for _, m := range req.Messages {
			prompt = append(prompt, string(m.Content))
		}

		id := fmt.Sprintf("msg_mock%x", rand.Int64())
		content := reply(req.Model, cfg.StreamWords)
		inTokens := countWords(prompt...)
		outTokens := countWords(content)

		if req.Stream {
			serveAnthropicStream(w, id, req.Model, content, inTokens, outTokens)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"id":            id,
			"type":          "message",
			"role":          "assistant",
			"model":         req.Model,
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []map[string]string{{"type": "text", "text": content}},
			"usage":         map[string]int{"input_tokens": inTokens, "output_tokens": outTokens},
		})
	})

	// Health probes list models.
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		created := time.Now().UTC().Format(time.RFC3339)
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"id": "claude-3-5-sonnet-latest", "type": "model", "display_name": "Claude 3.5 Sonnet", "created_at": created},
			},
			"has_more": false,
			"first_id": "claude-3-5-sonnet-latest",
			"last_id":  "claude-3-5-sonnet-latest",
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeAnthropicError(w, http.StatusNotFound, fmt.Sprintf("unknown path %s %s", r.Method, r.URL.Path), "not_found_error")
	})

	return mux
}

func anthropicErrorType(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusNotFound:
		return "not_found_error"
	case 529:
		return "overloaded_error"
	default:
		if status < 500 {
			return "invalid_request_error"
		}
		return "api_error"
	}
}

func writeAnthropicError(w http.ResponseWriter, status int, msg, typ string) {
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, map[string]any{
		"type":  "error",
		"error": map[string]string{"type": typ, "message": msg},
	})
}

// serveAnthropicStream writes the Messages streaming event sequence.
func serveAnthropicStream(w http.ResponseWriter, id, model, content string, inTokens, outTokens int) {
	flusher := startSSE(w)

	send := func(event string, data any) {
		b, _ := json.Marshal(data)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
		if flusher != nil {
			flusher.Flush()
		}
	}

	send("message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":            id,
			"type":          "message",
			"role":          "assistant",
			"model":         model,
			"content":       []any{},
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage":         map[string]int{"input_tokens": inTokens, "output_tokens": 0},
		},
	})
	send("content_block_start", map[string]any{
		"type":          "content_block_start",
		"index":         0,
		"content_block": map[string]string{"type": "text", "text": ""},
	})
	send("ping", map[string]string{"type": "ping"})

	for _, word := range strings.Fields(content) {
		send("content_block_delta", map[string]any{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]string{"type": "text_delta", "text": word + " "},
		})
	}

	send("content_block_stop", map[string]any{"type": "content_block_stop", "index": 0})
	send("message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": "end_turn", "stop_sequence": nil},
		"usage": map[string]int{"output_tokens": outTokens},
	})
	send("message_stop", map[string]string{"type": "message_stop"})
}
