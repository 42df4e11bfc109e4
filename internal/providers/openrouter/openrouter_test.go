package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nulpointcorp/model-resolver/internal/providers"
	"github.com/nulpointcorp/model-resolver/internal/providers/openaicompat"
)

func TestNew(t *testing.T) {
	p := New(WithAPIKey("or"))
	if p.Name() != Name {
		t.Fatalf("expected %q, got %q", Name, p.Name())
	}
	if got := p.(*openaicompat.Provider).BaseURL(); got != BaseURL {
		t.Errorf("expected %q, got %q", BaseURL, got)
	}
	if _, ok := p.(providers.EmbeddingProvider); ok {
		t.Error("openrouter is chat-only")
	}
}

func TestLanguageModel_MissingKey(t *testing.T) {
	_, err := New().LanguageModel("anthropic/claude-sonnet-4")
	if !errors.Is(err, providers.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestGenerate_SlugModelName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Model != "anthropic/claude-sonnet-4" {
			t.Errorf("expected slug model name, got %q", body.Model)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "gen-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   body.Model,
			"choices": []any{map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "routed"},
				"finish_reason": "stop",
			}},
		})
	}))
	defer srv.Close()

	p := New(WithAPIKey("or"), WithBaseURL(srv.URL+"/api/v1"))
	m, err := p.LanguageModel("anthropic/claude-sonnet-4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := m.Generate(context.Background(), &providers.Request{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "routed" {
		t.Errorf("expected 'routed', got %q", resp.Content)
	}
}
