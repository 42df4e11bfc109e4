package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
)

// newGoogleHandler simulates the Gemini API as called by google.golang.org/genai:
//
//	POST /v1beta/models/{model}:generateContent
//	POST /v1beta/models/{model}:streamGenerateContent?alt=sse
//	POST /v1beta/models/{model}:batchEmbedContents
//	GET  /v1beta/models
func newGoogleHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		model, method, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, "/v1beta/models/"), ":")
		if !ok || model == "" {
			writeGoogleError(w, http.StatusNotFound, fmt.Sprintf("unknown path %s", r.URL.Path))
			return
		}
		if code := fault(cfg, model); code != 0 {
			writeGoogleError(w, code, fmt.Sprintf("fake upstream returned %d", code))
			return
		}

		switch method {
		case "generateContent":
			handleGoogleGenerate(w, r, cfg, model, false)
		case "streamGenerateContent":
			handleGoogleGenerate(w, r, cfg, model, true)
		case "batchEmbedContents":
			handleGoogleBatchEmbed(w, r)
		default:
			writeGoogleError(w, http.StatusNotFound, fmt.Sprintf("unknown method %q", method))
		}
	})

	// Health probes list models.
	mux.HandleFunc("GET /v1beta/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"models": []map[string]any{
				{"name": "models/gemini-2.0-flash", "displayName": "Gemini 2.0 Flash"},
				{"name": "models/gemini-2.5-pro", "displayName": "Gemini 2.5 Pro"},
			},
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeGoogleError(w, http.StatusNotFound, fmt.Sprintf("unknown path %s %s", r.Method, r.URL.Path))
	})

	return mux
}

type googleContent struct {
	Role  string `json:"role,omitempty"`
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

func (c googleContent) text() []string {
	out := make([]string, len(c.Parts))
	for i, p := range c.Parts {
		out[i] = p.Text
	}
	return out
}

func handleGoogleGenerate(w http.ResponseWriter, r *http.Request, cfg Config, model string, stream bool) {
	var req struct {
		Contents          []googleContent `json:"contents"`
		SystemInstruction *googleContent  `json:"systemInstruction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGoogleError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var prompt []string
	if req.SystemInstruction != nil {
		prompt = append(prompt, req.SystemInstruction.text()...)
	}
	for _, c := range req.Contents {
		prompt = append(prompt, c.text()...)
	}

	id := fmt.Sprintf("mock%x", rand.Int64())
	content := reply(model, cfg.StreamWords)
	inTokens := countWords(prompt...)
	outTokens := countWords(content)

	chunk := func(text, finish string) map[string]any {
		cand := map[string]any{
			"content": map[string]any{"role": "model", "parts": []map[string]string{{"text": text}}},
			"index":   0,
		}
		if finish != "" {
			cand["finishReason"] = finish
		}
		return map[string]any{
			"candidates": []any{cand},
			"usageMetadata": map[string]int{
				"promptTokenCount":     inTokens,
				"candidatesTokenCount": outTokens,
				"totalTokenCount":      inTokens + outTokens,
			},
			"responseId":   id,
			"modelVersion": model,
		}
	}

	if !stream {
		writeJSON(w, http.StatusOK, chunk(content, "STOP"))
		return
	}

	flusher := startSSE(w)
	words := strings.Fields(content)
	for i, word := range words {
		finish := ""
		if i == len(words)-1 {
			finish = "STOP"
		}
		b, _ := json.Marshal(chunk(word+" ", finish))
		fmt.Fprintf(w, "data: %s\r\n\r\n", b)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func handleGoogleBatchEmbed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Requests []struct {
			Content googleContent `json:"content"`
		} `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGoogleError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Requests) == 0 {
		writeGoogleError(w, http.StatusBadRequest, "requests must not be empty")
		return
	}

	embeddings := make([]map[string]any, len(req.Requests))
	for i := range embeddings {
		embeddings[i] = map[string]any{"values": fakeEmbedding(8)}
	}
	writeJSON(w, http.StatusOK, map[string]any{"embeddings": embeddings})
}

func googleStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "INVALID_ARGUMENT"
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusForbidden:
		return "PERMISSION_DENIED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusTooManyRequests:
		return "RESOURCE_EXHAUSTED"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

func writeGoogleError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": msg,
			"status":  googleStatus(status),
		},
	})
}
