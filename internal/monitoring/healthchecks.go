package monitoring

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

const HEALTHCHECK_INTERVAL = 30 * time.Second

// Pinger is anything that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health tracks the last known state of an upstream dependency.
type Health struct {
	name      string
	healthy   atomic.Bool
	lastCheck atomic.Int64
}

func NewHealth(name string) *Health {
	h := &Health{name: name}
	h.healthy.Store(true)
	return h
}

func (h *Health) Name() string { return h.name }

func (h *Health) Healthy() bool { return h.healthy.Load() }

// LastCheck is zero until the first probe completes.
func (h *Health) LastCheck() time.Time {
	ms := h.lastCheck.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Check probes p once and records the result.
func (h *Health) Check(ctx context.Context, p Pinger) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := p.Ping(ctx)
	isHealthy := err == nil
	wasHealthy := h.healthy.Swap(isHealthy)
	h.lastCheck.Store(time.Now().UnixMilli())

	switch {
	case !isHealthy && wasHealthy:
		slog.Warn("[HealthCheck] Dependency is unhealthy",
			slog.String("dependency", h.name),
			slog.String("error", err.Error()))
	case isHealthy && !wasHealthy:
		slog.Info("[HealthCheck] Dependency recovered",
			slog.String("dependency", h.name))
	}
	return isHealthy
}

// Monitor probes p every interval until ctx is done.
func (h *Health) Monitor(ctx context.Context, p Pinger, interval time.Duration) {
	if interval <= 0 {
		interval = HEALTHCHECK_INTERVAL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.Check(ctx, p)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Check(ctx, p)
		}
	}
}
