package main

import (
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var fakeWords = []string{
	"The", "quick", "brown", "fox", "jumps", "over", "the", "lazy", "dog",
	"this", "reply", "comes", "from", "a", "fake", "upstream", "standing",
	"in", "for", "a", "real", "model",
}

// reply builds a deterministic reply of n words that names the model, so
// callers can tell which model a request was routed to.
func reply(model string, n int) string {
	words := make([]string, 0, n+1)
	words = append(words, "["+model+"]")
	for i := range n {
		words = append(words, fakeWords[i%len(fakeWords)])
	}
	return strings.Join(words, " ") + "."
}

// countWords approximates a token count.
func countWords(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += len(strings.Fields(t))
	}
	return max(n, 1)
}

// fakeEmbedding returns a pseudo-random unit-range vector.
func fakeEmbedding(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rand.Float32()*2 - 1
	}
	return v
}

// forcedStatus reports the status requested by a model named status-<code>.
func forcedStatus(model string) (int, bool) {
	code, ok := strings.CutPrefix(model, "status-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(code)
	if err != nil || n < 400 || n > 599 {
		return 0, false
	}
	return n, true
}

// fault applies latency and decides whether the request fails. It returns
// the status to fail with, or 0.
func fault(cfg Config, model string) int {
	if cfg.Latency > 0 {
		time.Sleep(cfg.Latency)
	}
	if code, ok := forcedStatus(model); ok {
		return code
	}
	if cfg.ErrorRate > 0 && rand.Float64() < cfg.ErrorRate {
		return http.StatusInternalServerError
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func startSSE(w http.ResponseWriter) http.Flusher {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	return flusher
}

// OpenAI-style error envelope, also used by the catch-all routes.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, msg, typ string) {
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorResponse{Error: errorDetail{
		Message: msg,
		Type:    typ,
		Code:    strings.ToLower(strings.ReplaceAll(typ, " ", "_")),
	}})
}
