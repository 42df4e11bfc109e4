// Package metrics provides a Prometheus metrics registry for the resolver.
//
// All metrics are scoped to a private registry (not the global default) so
// they don't interfere with host-level metrics when embedded in other
// applications. The /metrics HTTP handler is exposed via Handler().
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var durationBuckets = []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60}

// Registry holds all exported metrics.
type Registry struct {
	reg *prometheus.Registry

	// resolver_inflight_requests
	inFlight prometheus.Gauge

	// resolver_http_requests_total{route,status}
	httpRequestsTotal *prometheus.CounterVec

	// resolver_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// resolver_http_request_size_bytes{route}
	httpReqSize *prometheus.HistogramVec

	// resolver_http_response_size_bytes{route,status}
	httpRespSize *prometheus.HistogramVec

	// resolver_resolutions_total{provider,kind,outcome}
	resolutions *prometheus.CounterVec

	// resolver_provider_calls_total{provider,kind,outcome}
	providerCalls *prometheus.CounterVec

	// resolver_provider_call_duration_seconds{provider,kind,outcome}
	providerDuration *prometheus.HistogramVec

	// resolver_tokens_total{provider,direction}
	tokensTotal *prometheus.CounterVec

	// resolver_provider_health{provider}
	providerHealth *prometheus.GaugeVec

	// resolver_provider_construction_failures{provider}
	constructionFailures *prometheus.GaugeVec

	// resolver_build_info{version}
	buildInfo *prometheus.GaugeVec

	metricsHandler fasthttp.RequestHandler
}

func New() *Registry {
	reg := prometheus.NewRegistry()

	// Baseline runtime metrics even with a private registry.
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		reg: reg,

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "resolver_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_http_requests_total",
				Help: "Total number of HTTP requests handled",
			},
			[]string{"route", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resolver_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds (end-to-end, includes upstream)",
				Buckets: durationBuckets,
			},
			[]string{"route"},
		),

		httpReqSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resolver_http_request_size_bytes",
				Help:    "HTTP request body size in bytes",
				Buckets: prometheus.ExponentialBuckets(256, 2, 12), // 256B .. ~512KB
			},
			[]string{"route"},
		),

		httpRespSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resolver_http_response_size_bytes",
				Help:    "HTTP response body size in bytes",
				Buckets: prometheus.ExponentialBuckets(256, 2, 14), // 256B .. ~2MB
			},
			[]string{"route", "status"},
		),

		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_resolutions_total",
				Help: "Model resolutions by provider, kind (chat|embedding) and outcome",
			},
			[]string{"provider", "kind", "outcome"},
		),

		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_provider_calls_total",
				Help: "Upstream calls made through resolved model handles",
			},
			[]string{"provider", "kind", "outcome"},
		),

		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resolver_provider_call_duration_seconds",
				Help:    "Upstream call duration in seconds",
				Buckets: durationBuckets,
			},
			[]string{"provider", "kind", "outcome"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_tokens_total",
				Help: "Token usage totals derived from upstream usage fields",
			},
			[]string{"provider", "direction"},
		),

		providerHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "resolver_provider_health",
				Help: "Provider health status (1=ok, 0=degraded)",
			},
			[]string{"provider"},
		),

		constructionFailures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "resolver_provider_construction_failed",
				Help: "1 when the provider client failed to build at startup",
			},
			[]string{"provider"},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "resolver_build_info",
				Help: "Build information",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.httpReqSize,
		r.httpRespSize,
		r.resolutions,
		r.providerCalls,
		r.providerDuration,
		r.tokensTotal,
		r.providerHealth,
		r.constructionFailures,
		r.buildInfo,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

func (r *Registry) IncInFlight() { r.inFlight.Inc() }
func (r *Registry) DecInFlight() { r.inFlight.Dec() }

// ObserveHTTP records end-to-end HTTP metrics. Negative sizes are skipped.
func (r *Registry) ObserveHTTP(route string, statusCode int, dur time.Duration, reqBytes, respBytes int) {
	status := strconv.Itoa(statusCode)
	r.httpRequestsTotal.WithLabelValues(route, status).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
	if reqBytes >= 0 {
		r.httpReqSize.WithLabelValues(route).Observe(float64(reqBytes))
	}
	if respBytes >= 0 {
		r.httpRespSize.WithLabelValues(route, status).Observe(float64(respBytes))
	}
}

// ObserveResolution counts one resolution attempt. It satisfies
// resolver.Observer.
func (r *Registry) ObserveResolution(provider, kind, outcome string) {
	r.resolutions.WithLabelValues(provider, kind, outcome).Inc()
}

// ObserveProviderCall records one upstream call made through a model handle.
func (r *Registry) ObserveProviderCall(provider, kind, outcome string, dur time.Duration) {
	r.providerCalls.WithLabelValues(provider, kind, outcome).Inc()
	r.providerDuration.WithLabelValues(provider, kind, outcome).Observe(dur.Seconds())
}

func (r *Registry) AddTokens(provider string, inputTokens, outputTokens int) {
	if inputTokens > 0 {
		r.tokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		r.tokensTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
	if inputTokens+outputTokens > 0 {
		r.tokensTotal.WithLabelValues(provider, "total").Add(float64(inputTokens + outputTokens))
	}
}

func (r *Registry) SetProviderHealth(provider string, ok bool) {
	if ok {
		r.providerHealth.WithLabelValues(provider).Set(1)
		return
	}
	r.providerHealth.WithLabelValues(provider).Set(0)
}

func (r *Registry) SetConstructionFailed(provider string) {
	r.constructionFailures.WithLabelValues(provider).Set(1)
}

func (r *Registry) SetBuildInfo(version string) {
	// Gauge is used so the time series always exists.
	r.buildInfo.WithLabelValues(version).Set(1)
}

func (r *Registry) Handler() fasthttp.RequestHandler {
	return r.metricsHandler
}

func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }
