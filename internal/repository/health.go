package repository

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/launchlog/launchlog-go/internal/metrics"
)

const pingTimeout = 3 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health tracks whether the durable store is reachable. It is shared by
// every request; Check and the Run loop are the only writers.
type Health struct {
	pinger    Pinger
	connected atomic.Bool
	recheck   chan struct{}
	onConnect func(context.Context) error
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewHealth creates a Health for p. A nil p means no durable store is
// configured and Connected always reports false.
func NewHealth(p Pinger, logger *slog.Logger, m *metrics.Metrics) *Health {
	if logger == nil {
		logger = slog.Default()
	}
	return &Health{
		pinger:  p,
		recheck: make(chan struct{}, 1),
		logger:  logger,
		metrics: m,
	}
}

// OnConnect registers fn to run each time the store becomes reachable,
// before it is reported connected. If fn fails the store stays disconnected.
func (h *Health) OnConnect(fn func(context.Context) error) {
	h.onConnect = fn
}

// Configured reports whether a durable store exists at all.
func (h *Health) Configured() bool {
	return h.pinger != nil
}

// Connected reports the result of the last check.
func (h *Health) Connected() bool {
	return h.connected.Load()
}

// Check pings the durable store and records the result.
func (h *Health) Check(ctx context.Context) bool {
	if h.pinger == nil {
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err := h.pinger.PingContext(pingCtx)
	if err == nil && !h.connected.Load() && h.onConnect != nil {
		err = h.onConnect(ctx)
	}
	up := err == nil
	if was := h.connected.Swap(up); was != up {
		if up {
			h.logger.Info("durable store connected")
		} else {
			h.logger.Warn("durable store unreachable, serving from memory", "error", err)
		}
	}
	h.metrics.SetDurableUp(up)
	return up
}

// RequestCheck asks the Run loop to re-check as soon as possible. It never blocks.
func (h *Health) RequestCheck() {
	select {
	case h.recheck <- struct{}{}:
	default:
	}
}

// Run re-checks every interval and on RequestCheck until ctx is done.
func (h *Health) Run(ctx context.Context, interval time.Duration) {
	if h.pinger == nil {
		return
	}

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-h.recheck:
		}
		h.Check(ctx)
	}
}

// Status is the human readable storage state shown to admins.
func (h *Health) Status() string {
	switch {
	case h.Connected():
		return "Connected"
	case h.Configured():
		return "Fallback mode (durable store unreachable)"
	default:
		return "Fallback mode (no durable store configured)"
	}
}
