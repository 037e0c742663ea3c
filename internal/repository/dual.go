package repository

import (
	"context"
	"log/slog"

	"github.com/launchlog/launchlog-go/internal/metrics"
)

// Dual pairs a durable store with its in-memory mirror. Every call goes to
// the durable store while Health reports it connected; a backend failure is
// logged, triggers a health re-check, and the call is replayed on the
// memory store. Domain errors pass through untouched.
//
// The fallback result tells the caller whether the memory store served the
// call.
type Dual[S any] struct {
	durable    S
	hasDurable bool
	memory     S
	health     *Health
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewDual creates a Dual. durable may be a nil interface for memory-only mode.
func NewDual[S any](durable, memory S, health *Health, logger *slog.Logger, m *metrics.Metrics) *Dual[S] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dual[S]{
		durable:    durable,
		hasDurable: any(durable) != nil,
		memory:     memory,
		health:     health,
		logger:     logger,
		metrics:    m,
	}
}

// Health returns the shared backend health.
func (d *Dual[S]) Health() *Health {
	return d.health
}

func (d *Dual[S]) useDurable() bool {
	return d.hasDurable && d.health != nil && d.health.Connected()
}

// Write runs fn against the active backend.
func (d *Dual[S]) Write(ctx context.Context, op string, fn func(S) error) (fallback bool, err error) {
	if d.useDurable() {
		err := fn(d.durable)
		if err == nil || IsDomainError(err) {
			d.metrics.ObserveStoreOp(op, metrics.BackendDurable, metrics.OutcomeOK)
			return false, err
		}
		d.degrade(ctx, op, err)
	}

	err = fn(d.memory)
	d.observeMemory(op, err)
	return true, err
}

// Read runs fn against the active backend and returns its value.
func Read[S, T any](ctx context.Context, d *Dual[S], op string, fn func(S) (T, error)) (T, bool, error) {
	if d.useDurable() {
		v, err := fn(d.durable)
		if err == nil || IsDomainError(err) {
			d.metrics.ObserveStoreOp(op, metrics.BackendDurable, metrics.OutcomeOK)
			return v, false, err
		}
		d.degrade(ctx, op, err)
	}

	v, err := fn(d.memory)
	d.observeMemory(op, err)
	return v, true, err
}

// Purge runs fn on the memory store unconditionally and on the durable store
// when it is connected, so that a removal leaves no copy behind in either.
// A domain error from one backend is ignored when the other succeeded.
func (d *Dual[S]) Purge(ctx context.Context, op string, fn func(S) error) (fallback bool, err error) {
	memErr := fn(d.memory)
	d.observeMemory(op, memErr)

	if !d.useDurable() {
		return true, memErr
	}

	err = fn(d.durable)
	switch {
	case err == nil:
		d.metrics.ObserveStoreOp(op, metrics.BackendDurable, metrics.OutcomeOK)
		return false, nil
	case IsDomainError(err):
		d.metrics.ObserveStoreOp(op, metrics.BackendDurable, metrics.OutcomeOK)
		if memErr == nil {
			return false, nil
		}
		return false, err
	default:
		d.degrade(ctx, op, err)
		return true, memErr
	}
}

func (d *Dual[S]) degrade(ctx context.Context, op string, err error) {
	d.metrics.ObserveStoreOp(op, metrics.BackendDurable, metrics.OutcomeError)
	d.logger.WarnContext(ctx, "durable store call failed, using memory fallback", "op", op, "error", err)
	if d.health != nil {
		d.health.RequestCheck()
	}
}

func (d *Dual[S]) observeMemory(op string, err error) {
	outcome := metrics.OutcomeOK
	if err != nil && !IsDomainError(err) {
		outcome = metrics.OutcomeError
	}
	d.metrics.ObserveStoreOp(op, metrics.BackendMemory, outcome)
}
