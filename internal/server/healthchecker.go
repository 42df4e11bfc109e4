package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nulpointcorp/model-resolver/internal/metrics"
	"github.com/nulpointcorp/model-resolver/internal/providers"
	"github.com/nulpointcorp/model-resolver/internal/resolver"
)

const healthProbeTimeout = 5 * time.Second

// Provider health states.
const (
	statusOK           = "ok"
	statusDegraded     = "degraded"
	statusUnconfigured = "unconfigured"
	statusUnknown      = "unknown"
)

type componentStatus struct {
	mu     sync.RWMutex
	status string
}

func (s *componentStatus) set(v string) {
	s.mu.Lock()
	s.status = v
	s.mu.Unlock()
}

func (s *componentStatus) get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status == "" {
		return statusUnknown
	}
	return s.status
}

// HealthChecker probes every registered provider on an interval and keeps the
// latest result per provider.
type HealthChecker struct {
	reg      *resolver.Registry
	interval time.Duration
	baseCtx  context.Context
	metrics  *metrics.Registry

	statuses map[providers.ID]*componentStatus

	startTime time.Time
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewHealthChecker starts probing reg. An interval of 0 disables probing and
// every provider stays "unknown".
func NewHealthChecker(ctx context.Context, reg *resolver.Registry, interval time.Duration, met *metrics.Registry) *HealthChecker {
	if ctx == nil {
		panic("healthchecker: context must not be nil")
	}
	hc := &HealthChecker{
		reg:       reg,
		interval:  interval,
		baseCtx:   ctx,
		metrics:   met,
		statuses:  make(map[providers.ID]*componentStatus),
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
	for _, id := range reg.IDs() {
		hc.statuses[id] = &componentStatus{}
	}

	if interval <= 0 {
		return hc
	}

	// First probe runs synchronously so /health is populated at startup.
	hc.probe()

	hc.wg.Add(1)
	go hc.run()

	return hc
}

// HealthSnapshot is the body of GET /health.
type HealthSnapshot struct {
	Status          string            `json:"status"`
	UptimeSeconds   int64             `json:"uptime_seconds"`
	DefaultProvider string            `json:"default_provider,omitempty"`
	Providers       map[string]string `json:"providers"`
}

// Snapshot reports "degraded" overall when any provider is degraded.
// Unconfigured providers do not affect the overall status.
func (hc *HealthChecker) Snapshot() HealthSnapshot {
	overall := statusOK

	out := make(map[string]string, len(hc.statuses))
	for id, s := range hc.statuses {
		st := s.get()
		out[id.String()] = st
		if st == statusDegraded {
			overall = statusDegraded
		}
	}

	return HealthSnapshot{
		Status:        overall,
		UptimeSeconds: int64(time.Since(hc.startTime).Seconds()),
		Providers:     out,
	}
}

// Close stops the background probe goroutine. Safe to call more than once.
func (hc *HealthChecker) Close() {
	hc.closeOnce.Do(func() { close(hc.done) })
	hc.wg.Wait()
}

func (hc *HealthChecker) run() {
	defer hc.wg.Done()
	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			hc.probe()
		case <-hc.done:
			return
		case <-hc.baseCtx.Done():
			return
		}
	}
}

func (hc *HealthChecker) probe() {
	ctx, cancel := context.WithTimeout(hc.baseCtx, healthProbeTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for id, s := range hc.statuses {
		client, ok := hc.reg.Lookup(id)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(id providers.ID, client providers.Provider, s *componentStatus) {
			defer wg.Done()
			st := classifyHealth(client.HealthCheck(ctx))
			s.set(st)
			if hc.metrics != nil {
				hc.metrics.SetProviderHealth(id.String(), st == statusOK)
			}
		}(id, client, s)
	}
	wg.Wait()
}

func classifyHealth(err error) string {
	switch {
	case err == nil:
		return statusOK
	case errors.Is(err, providers.ErrNotConfigured):
		return statusUnconfigured
	default:
		return statusDegraded
	}
}
