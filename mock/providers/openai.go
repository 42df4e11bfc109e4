package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

// newOpenAIHandler simulates the OpenAI API. Groq, OpenRouter, Fireworks,
// DeepInfra and Ollama's /v1 endpoint share this wire format.
func newOpenAIHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request_error")
			return
		}
		if req.Model == "" {
			writeError(w, http.StatusBadRequest, "model is required", "invalid_request_error")
			return
		}
		if code := fault(cfg, req.Model); code != 0 {
			writeError(w, code, fmt.Sprintf("fake upstream returned %d", code), "server_error")
			return
		}

		prompt := make([]string, len(req.Messages))
		for i, m := range req.Messages {
			prompt[i] = m.Content
		}

		id := fmt.Sprintf("chatcmpl-mock%x", rand.Int64())
		content := reply(req.Model, cfg.StreamWords)
		inTokens := countWords(prompt...)
		outTokens := countWords(content)

		if req.Stream {
			serveOpenAIStream(w, id, req.Model, content)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"id":      id,
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{
				"prompt_tokens":     inTokens,
				"completion_tokens": outTokens,
				"total_tokens":      inTokens + outTokens,
			},
		})
	})

	mux.HandleFunc("POST /v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string          `json:"model"`
			Input json.RawMessage `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request_error")
			return
		}
		if code := fault(cfg, req.Model); code != 0 {
			writeError(w, code, fmt.Sprintf("fake upstream returned %d", code), "server_error")
			return
		}

		var inputs []string
		if err := json.Unmarshal(req.Input, &inputs); err != nil {
			var single string
			if err := json.Unmarshal(req.Input, &single); err != nil {
				writeError(w, http.StatusBadRequest, "input must be a string or an array of strings", "invalid_request_error")
				return
			}
			inputs = []string{single}
		}

		data := make([]map[string]any, len(inputs))
		for i := range inputs {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": fakeEmbedding(8),
			}
		}
		tokens := countWords(inputs...)
		writeJSON(w, http.StatusOK, map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": tokens, "total_tokens": tokens},
		})
	})

	// Health probes list models.
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "gpt-4o", "object": "model", "created": 1710000000, "owned_by": "mock"},
				{"id": "text-embedding-3-small", "object": "model", "created": 1710000000, "owned_by": "mock"},
			},
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown path %s %s", r.Method, r.URL.Path), "not_found")
	})

	return mux
}

func serveOpenAIStream(w http.ResponseWriter, id, model, content string) {
	flusher := startSSE(w)

	send := func(delta map[string]string, finish any) {
		data, _ := json.Marshal(map[string]any{
			"id":      id,
			"object":  "chat.completion.chunk",
			"created": time.Now().Unix(),
			"model":   model,
			"choices": []map[string]any{{
				"index":         0,
				"delta":         delta,
				"finish_reason": finish,
			}},
		})
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}

	for _, word := range strings.Fields(content) {
		send(map[string]string{"content": word + " "}, nil)
	}
	send(map[string]string{}, "stop")

	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}
