// Command providers runs fake upstream APIs for every wire format the
// resolver speaks, so the server can be exercised end to end without
// credentials.
//
// Each wire format listens on its own port:
//
//	OpenAI-compatible (openai, groq, openrouter, fireworks, deepinfra, ollama)  :19001
//	Anthropic Messages                                                          :19002
//	Gemini API (google)                                                         :19003
//
// Vertex AI is not simulated; it needs real service-account credentials.
//
// Environment:
//
//	PORT_OPENAI, PORT_ANTHROPIC, PORT_GOOGLE  listen ports
//	MOCK_LATENCY        delay added to every response, e.g. 150ms (default 0)
//	MOCK_ERROR_RATE     fraction [0,1] of requests answered with HTTP 500
//	MOCK_STREAM_WORDS   words per generated reply (default 10)
//
// A model named status-<code>, e.g. status-429, is always answered with that
// HTTP status.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// Config holds runtime configuration shared across all fake upstreams.
type Config struct {
	Latency     time.Duration
	ErrorRate   float64
	StreamWords int
}

type ports struct {
	OpenAI    int
	Anthropic int
	Google    int
}

func loadConfig() (Config, ports) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("MOCK_STREAM_WORDS", 10)
	v.SetDefault("PORT_OPENAI", 19001)
	v.SetDefault("PORT_ANTHROPIC", 19002)
	v.SetDefault("PORT_GOOGLE", 19003)

	c := Config{
		Latency:     v.GetDuration("MOCK_LATENCY"),
		ErrorRate:   v.GetFloat64("MOCK_ERROR_RATE"),
		StreamWords: v.GetInt("MOCK_STREAM_WORDS"),
	}
	if c.ErrorRate < 0 || c.ErrorRate > 1 {
		c.ErrorRate = 0
	}
	if c.StreamWords <= 0 {
		c.StreamWords = 10
	}

	return c, ports{
		OpenAI:    v.GetInt("PORT_OPENAI"),
		Anthropic: v.GetInt("PORT_ANTHROPIC"),
		Google:    v.GetInt("PORT_GOOGLE"),
	}
}

// resolverEnv is the environment that points the resolver at these upstreams.
func resolverEnv(p ports) []string {
	compat := fmt.Sprintf("http://localhost:%d/v1", p.OpenAI)
	return []string{
		"OPENAI_API_KEY=mock",
		"OPENAI_BASE_URL=" + compat,
		"GROQ_API_KEY=mock",
		"GROQ_BASE_URL=" + compat,
		"OPENROUTER_API_KEY=mock",
		"OPENROUTER_BASE_URL=" + compat,
		"FIREWORKS_API_KEY=mock",
		"FIREWORKS_BASE_URL=" + compat,
		"DEEPINFRA_API_KEY=mock",
		"DEEPINFRA_BASE_URL=" + compat,
		fmt.Sprintf("OLLAMA_BASE_URL=http://localhost:%d", p.OpenAI),
		"ANTHROPIC_API_KEY=mock",
		fmt.Sprintf("ANTHROPIC_BASE_URL=http://localhost:%d/", p.Anthropic),
		"GOOGLE_GENERATIVE_AI_API_KEY=mock",
		fmt.Sprintf("GOOGLE_BASE_URL=http://localhost:%d/v1beta", p.Google),
	}
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg, p := loadConfig()

	log.Info("starting fake upstreams",
		slog.Duration("latency", cfg.Latency),
		slog.Float64("error_rate", cfg.ErrorRate),
		slog.Int("stream_words", cfg.StreamWords),
	)

	servers := map[string]*http.Server{
		"openai":    newServer(p.OpenAI, newOpenAIHandler(cfg)),
		"anthropic": newServer(p.Anthropic, newAnthropicHandler(cfg)),
		"google":    newServer(p.Google, newGoogleHandler(cfg)),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for name, srv := range servers {
		g.Go(func() error {
			log.Info("fake upstream listening", slog.String("wire", name), slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down fake upstreams")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, srv := range servers {
			_ = srv.Shutdown(shutdownCtx)
		}
		return nil
	})

	fmt.Println("# export these before starting the resolver:")
	fmt.Println(strings.Join(resolverEnv(p), "\n"))
	fmt.Println("READY")

	if err := g.Wait(); err != nil {
		log.Error("fake upstream failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newServer(port int, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
