// Package server exposes the resolver over HTTP.
//
// Routes:
//
//	GET  /health                       provider health snapshot
//	GET  /v1/defaults                  task table with overrides applied
//	GET  /v1/resolve                   resolve without calling the model
//	POST /v1/tasks/{task}/completions  call the task's default model
//	     (also /v1/tasks/{task}/chat/completions)
//	POST /v1/chat/completions          call model on provider (or the default)
//	POST /v1/embeddings                embed input with model on provider
//	GET  /metrics                      Prometheus exposition
//
// Every request goes through recovery, request ID, timing, CORS and security
// header middleware. Bodies follow the OpenAI wire format.
package server

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/model-resolver/internal/logger"
	"github.com/nulpointcorp/model-resolver/internal/metrics"
	"github.com/nulpointcorp/model-resolver/internal/providers"
	"github.com/nulpointcorp/model-resolver/internal/resolver"
)

const (
	requestIDKey = "request_id"
	routeKey     = "route"
)

// Options holds optional dependencies. Nil fields disable the feature.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics enables Prometheus instrumentation and GET /metrics.
	Metrics *metrics.Registry

	// CallLog receives one entry per upstream call.
	CallLog *logger.Logger

	// CORSOrigins is the allowlist; nil or ["*"] allows all.
	CORSOrigins []string

	// ProviderTimeout bounds each Generate or Embed call.
	// Default: providers.ProviderTimeout.
	ProviderTimeout time.Duration

	// HealthCheckInterval is the provider probe period. 0 disables probing.
	HealthCheckInterval time.Duration
}

// Server serves the HTTP API over a Resolver.
type Server struct {
	res     *resolver.Resolver
	baseCtx context.Context
	log     *slog.Logger
	metrics *metrics.Registry
	calls   *logger.Logger
	health  *HealthChecker

	corsOrigins     []string
	providerTimeout time.Duration

	srv *fasthttp.Server
}

// New creates a Server and starts its health checker.
func New(ctx context.Context, res *resolver.Resolver, opts Options) *Server {
	if ctx == nil {
		panic("server: context must not be nil")
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := opts.ProviderTimeout
	if timeout <= 0 {
		timeout = providers.ProviderTimeout
	}

	s := &Server{
		res:             res,
		baseCtx:         ctx,
		log:             log,
		metrics:         opts.Metrics,
		calls:           opts.CallLog,
		corsOrigins:     opts.CORSOrigins,
		providerTimeout: timeout,
	}
	s.health = NewHealthChecker(ctx, res.Registry(), opts.HealthCheckInterval, opts.Metrics)

	s.srv = &fasthttp.Server{
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: timeout + 30*time.Second,
	}

	return s
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() fasthttp.RequestHandler {
	r := router.New()

	r.GET("/health", s.instrument("health", s.handleHealth))
	r.GET("/v1/defaults", s.instrument("defaults", s.handleDefaults))
	r.GET("/v1/resolve", s.instrument("resolve", s.handleResolve))
	r.POST("/v1/tasks/{task}/completions", s.instrument("task_completions", s.handleTaskCompletions))
	// OpenAI SDKs append /chat/completions to their base URL.
	r.POST("/v1/tasks/{task}/chat/completions", s.instrument("task_completions", s.handleTaskCompletions))
	r.POST("/v1/chat/completions", s.instrument("chat_completions", s.handleChatCompletions))
	r.POST("/v1/embeddings", s.instrument("embeddings", s.handleEmbeddings))

	if s.metrics != nil {
		r.GET("/metrics", s.metrics.Handler())
	}

	return applyMiddleware(r.Handler,
		recovery(s.log),
		requestID,
		timing,
		corsHandler(s.corsOrigins),
		securityHeaders,
	)
}

// ListenAndServe serves on addr (e.g. ":8080") until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	return s.srv.ListenAndServe(addr)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

// Shutdown stops accepting connections, waits for in-flight requests and
// stops the health checker.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.health.Close()
	return s.srv.ShutdownWithContext(ctx)
}

// instrument records in-flight and end-to-end HTTP metrics under a fixed
// route label. Streaming handlers finish their own accounting.
func (s *Server) instrument(route string, h fasthttp.RequestHandler) fasthttp.RequestHandler {
	if s.metrics == nil {
		return h
	}
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		reqBytes := len(ctx.PostBody())
		ctx.SetUserValue(routeKey, route)
		s.metrics.IncInFlight()

		h(ctx)

		if ctx.Response.IsBodyStream() {
			return
		}
		s.metrics.DecInFlight()
		s.metrics.ObserveHTTP(route, ctx.Response.StatusCode(), time.Since(start), reqBytes, len(ctx.Response.Body()))
	}
}
