package monitoring

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type flakyPinger struct {
	fail atomic.Bool
}

func (p *flakyPinger) Ping(context.Context) error {
	if p.fail.Load() {
		return errors.New("unreachable")
	}
	return nil
}

func TestHealthCheckTransitions(t *testing.T) {
	t.Parallel()
	h := NewHealth("classifier")
	p := &flakyPinger{}

	if !h.Healthy() || !h.LastCheck().IsZero() {
		t.Fatalf("new health should be optimistic and unchecked")
	}

	p.fail.Store(true)
	if h.Check(context.Background(), p) || h.Healthy() {
		t.Fatalf("expected unhealthy after a failed probe")
	}
	if h.LastCheck().IsZero() {
		t.Fatalf("last check not recorded")
	}

	p.fail.Store(false)
	if !h.Check(context.Background(), p) || !h.Healthy() {
		t.Fatalf("expected recovery after a successful probe")
	}
}

func TestMonitorStopsWithContext(t *testing.T) {
	t.Parallel()
	h := NewHealth("classifier")
	p := &flakyPinger{}
	p.fail.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Monitor(ctx, p, time.Millisecond)
		close(done)
	}()

	deadline := time.After(time.Second)
	for h.Healthy() {
		select {
		case <-deadline:
			t.Fatalf("monitor never probed")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("monitor did not stop")
	}
}
