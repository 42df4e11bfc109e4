package vertex

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"cloud.google.com/go/auth"

	"github.com/nulpointcorp/model-resolver/internal/providers"
)

type staticToken struct{}

func (staticToken) Token(context.Context) (*auth.Token, error) {
	return &auth.Token{Value: "test-token", Type: "Bearer"}, nil
}

func testCredentials() *auth.Credentials {
	return auth.NewCredentials(&auth.CredentialsOptions{TokenProvider: staticToken{}})
}

func TestNew_Defaults(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "vertex" {
		t.Errorf("expected name 'vertex', got %q", p.Name())
	}
	if p.Project() != DefaultProject || p.Location() != DefaultLocation {
		t.Errorf("unexpected scope %s/%s", p.Project(), p.Location())
	}
	want := "https://aiplatform.googleapis.com/v1/projects/firecrawl/locations/global/publishers/google"
	if p.BaseURL() != want {
		t.Errorf("expected %q, got %q", want, p.BaseURL())
	}

	var prov providers.Provider = p
	if _, ok := prov.(providers.EmbeddingProvider); !ok {
		t.Error("vertex must implement EmbeddingProvider")
	}
}

func TestNew_TemplateUsesProjectAndLocation(t *testing.T) {
	p, err := New(WithProject("acme"), WithLocation("us-central1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(p.BaseURL(), "/projects/acme/locations/us-central1/") {
		t.Errorf("unexpected base URL %q", p.BaseURL())
	}
}

func TestNew_InvalidBase64(t *testing.T) {
	_, err := New(WithCredentialsBase64("not base64!!"))
	if err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestNew_CredentialsPadding(t *testing.T) {
	blob := `{"type":"service_account"}`
	padded := base64.StdEncoding.EncodeToString([]byte(blob))
	if !strings.HasSuffix(padded, "=") {
		t.Fatalf("fixture must need padding, got %q", padded)
	}

	tests := []struct {
		name    string
		encoded string
		want    string
	}{
		{"padded", padded, blob},
		{"unpadded", strings.TrimRight(padded, "="), blob},
		{"wrapped lines", padded[:8] + "\n" + padded[8:], blob},
		{"empty object without padding", "e30", "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(WithCredentialsBase64(tt.encoded))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if string(p.credsJSON) != tt.want {
				t.Errorf("decoded %q, want %q", p.credsJSON, tt.want)
			}
		})
	}
}

func TestNew_Base64NotJSON(t *testing.T) {
	_, err := New(WithCredentialsBase64(base64.StdEncoding.EncodeToString([]byte("plain text"))))
	if err == nil {
		t.Fatal("expected error for non-JSON payload")
	}
}

func TestLanguageModel_MissingKeyFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.json")
	p, err := New(WithKeyFile(missing))
	if err != nil {
		t.Fatalf("construction must not fail on a missing key file: %v", err)
	}

	_, err = p.LanguageModel("gemini-2.5-pro")
	if !errors.Is(err, providers.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if !strings.Contains(err.Error(), "absent.json") {
		t.Errorf("error should name the key file, got %v", err)
	}
}

func TestSplitEndpoint(t *testing.T) {
	base, ver := splitEndpoint("https://aiplatform.googleapis.com/v1/projects/p/locations/global/publishers/google")
	if base != "https://aiplatform.googleapis.com/" || ver != "v1" {
		t.Errorf("got (%q, %q)", base, ver)
	}

	base, ver = splitEndpoint("https://us-central1-aiplatform.googleapis.com/v1beta1")
	if base != "https://us-central1-aiplatform.googleapis.com/" || ver != "v1beta1" {
		t.Errorf("got (%q, %q)", base, ver)
	}
}

func TestGenerate_AgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/projects/acme/locations/global/") {
			t.Errorf("unexpected path prefix %q", r.URL.Path)
		}
		if !strings.Contains(r.URL.Path, "models/gemini-2.5-pro:generateContent") {
			t.Errorf("expected generateContent for model, got %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected Authorization %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content":      map[string]any{"role": "model", "parts": []any{map[string]any{"text": "extracted"}}},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]any{"promptTokenCount": 3, "candidatesTokenCount": 1},
		})
	}))
	defer srv.Close()

	p, err := New(
		WithProject("acme"),
		WithBaseURL(srv.URL+"/v1/projects/acme/locations/global/publishers/google"),
		WithAuthCredentials(testCredentials()),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m, err := p.LanguageModel("gemini-2.5-pro")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Provider() != "vertex" {
		t.Errorf("expected provider 'vertex', got %q", m.Provider())
	}

	resp, err := m.Generate(context.Background(), &providers.Request{
		Messages:  []providers.Message{{Role: "user", Content: "extract"}},
		RequestID: "req-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "extracted" {
		t.Errorf("expected 'extracted', got %q", resp.Content)
	}
	if resp.Usage.InputTokens != 3 {
		t.Errorf("expected 3 input tokens, got %d", resp.Usage.InputTokens)
	}
}
