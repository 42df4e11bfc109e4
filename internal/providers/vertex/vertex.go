// Package vertex implements providers.Provider for Google Vertex AI. It
// shares request handling with the google package and differs only in how
// the genai client is built: Vertex backend, project/location scoping and
// service-account credentials instead of an API key.
//
// Credentials come from, in order:
//   - WithAuthCredentials (already-built credentials)
//   - WithCredentialsBase64 (base64-encoded service-account JSON)
//   - the key file set by WithKeyFile (default ./gke-key.json)
package vertex

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
	"google.golang.org/genai"

	"github.com/nulpointcorp/model-resolver/internal/providers"
	"github.com/nulpointcorp/model-resolver/internal/providers/google"
)

const (
	providerName = "vertex"

	DefaultProject  = "firecrawl"
	DefaultLocation = "global"
	DefaultKeyFile  = "./gke-key.json"

	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
)

// Provider implements providers.Provider and providers.EmbeddingProvider for
// Vertex AI.
type Provider struct {
	*google.Provider

	project   string
	location  string
	baseURL   string
	keyFile   string
	timeout   time.Duration
	credsJSON []byte
	creds     *auth.Credentials
	encoded   string
}

// Option configures a Provider.
type Option func(*Provider)

func WithProject(project string) Option {
	return func(p *Provider) {
		if project != "" {
			p.project = project
		}
	}
}

func WithLocation(loc string) Option {
	return func(p *Provider) {
		if loc != "" {
			p.location = loc
		}
	}
}

// WithBaseURL overrides the publisher endpoint. Empty values keep the
// project/location template.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = u
		}
	}
}

// WithCredentialsBase64 sets the service-account JSON, base64-encoded. It is
// decoded by New.
func WithCredentialsBase64(encoded string) Option {
	return func(p *Provider) { p.encoded = encoded }
}

func WithKeyFile(path string) Option {
	return func(p *Provider) {
		if path != "" {
			p.keyFile = path
		}
	}
}

// WithAuthCredentials uses creds as-is and skips blob and key-file lookup.
func WithAuthCredentials(creds *auth.Credentials) Option {
	return func(p *Provider) { p.creds = creds }
}

func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// New creates a Vertex AI provider. Only a malformed credential blob fails
// here; a missing key file is reported when a model is resolved.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		project:  DefaultProject,
		location: DefaultLocation,
		keyFile:  DefaultKeyFile,
		timeout:  providers.ProviderTimeout,
	}
	for _, o := range opts {
		o(p)
	}

	if p.encoded != "" {
		raw, err := decodeCredentials(p.encoded)
		if err != nil {
			return nil, fmt.Errorf("vertex: decode credentials: %w", err)
		}
		if !json.Valid(raw) {
			return nil, errors.New("vertex: decode credentials: payload is not JSON")
		}
		p.credsJSON = raw
	}

	if p.baseURL == "" {
		p.baseURL = TemplateBaseURL(p.project, p.location)
	}

	p.Provider = google.NewWithConnector(providerName, p.connect)
	return p, nil
}

// decodeCredentials accepts standard base64 with or without "=" padding and
// ignores embedded whitespace, matching what browsers' atob accepts.
func decodeCredentials(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// TemplateBaseURL returns the publisher endpoint for project and location.
func TemplateBaseURL(project, location string) string {
	return fmt.Sprintf("https://aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google", project, location)
}

func (p *Provider) Project() string  { return p.project }
func (p *Provider) Location() string { return p.location }
func (p *Provider) BaseURL() string  { return p.baseURL }

func (p *Provider) connect() (*genai.Client, error) {
	creds, err := p.credentials()
	if err != nil {
		return nil, err
	}

	base, ver := splitEndpoint(p.baseURL)
	timeout := p.timeout
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		Backend:     genai.BackendVertexAI,
		Project:     p.project,
		Location:    p.location,
		Credentials: creds,
		HTTPOptions: genai.HTTPOptions{BaseURL: base, APIVersion: ver, Timeout: &timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("vertex: create client: %w", err)
	}
	return client, nil
}

func (p *Provider) credentials() (*auth.Credentials, error) {
	if p.creds != nil {
		return p.creds, nil
	}

	opts := &credentials.DetectOptions{Scopes: []string{cloudPlatformScope}}
	if p.credsJSON != nil {
		opts.CredentialsJSON = p.credsJSON
	} else {
		if _, err := os.Stat(p.keyFile); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("vertex: %w: key file %s not found", providers.ErrNotConfigured, p.keyFile)
			}
			return nil, fmt.Errorf("vertex: key file: %w", err)
		}
		opts.CredentialsFile = p.keyFile
	}

	creds, err := credentials.DetectDefault(opts)
	if err != nil {
		return nil, fmt.Errorf("vertex: load credentials: %w", err)
	}
	return creds, nil
}

// splitEndpoint turns the publisher endpoint into the genai host and API
// version. genai adds the projects/.../locations/... prefix itself.
func splitEndpoint(raw string) (string, string) {
	if i := strings.Index(raw, "/projects/"); i >= 0 {
		raw = raw[:i]
	}
	return google.SplitBaseURLAndVersion(raw)
}
