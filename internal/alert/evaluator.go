// Package alert decides whether a stored reception report crosses the
// alert thresholds and delivers at most one successful notification per
// report.
package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/user/pskwatch/internal/model"
	"github.com/user/pskwatch/internal/notify"
	"github.com/user/pskwatch/internal/observability"
	"github.com/user/pskwatch/internal/util"
)

// ErrPersistence marks failures to read or update the notified flag.
var ErrPersistence = errors.New("alert persistence failed")

// Store is the part of the report store the evaluator needs.
type Store interface {
	MarkNotified(ctx context.Context, id int64) error
	IsNotified(ctx context.Context, id int64) (bool, error)
}

// Config holds the global alert settings.
type Config struct {
	Enabled    bool
	Thresholds model.Thresholds
	Recipients []string
}

// ConfigFrom converts the application alert configuration.
func ConfigFrom(c util.AlertConfig) Config {
	return Config{
		Enabled:    c.Enabled,
		Thresholds: model.Thresholds{SNR: c.SNRThreshold, Distance: c.DistanceThreshold},
		Recipients: c.Recipients,
	}
}

// Result is the outcome of one evaluation.
type Result struct {
	Notified bool
	Reason   string
}

// Option customises an Evaluator.
type Option func(*Evaluator)

// WithMetrics records alert counters and latency in c.
func WithMetrics(c *observability.Collector) Option {
	return func(e *Evaluator) { e.metrics = c }
}

// Evaluator checks reports against thresholds and notifies.
type Evaluator struct {
	cfg      Config
	store    Store
	notifier notify.Notifier
	metrics  *observability.Collector
	locks    keyedMutex
}

// NewEvaluator creates an evaluator.
func NewEvaluator(cfg Config, store Store, notifier notify.Notifier, opts ...Option) *Evaluator {
	e := &Evaluator{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		locks:    keyedMutex{locks: make(map[int64]*refMutex)},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enabled reports whether alerting is on.
func (e *Evaluator) Enabled() bool {
	return e.cfg.Enabled
}

// Thresholds returns the effective thresholds for entry: its overrides
// where set, the global values otherwise.
func (e *Evaluator) Thresholds(entry *model.WatchEntry) model.Thresholds {
	th := e.cfg.Thresholds
	if entry == nil {
		return th
	}
	if entry.SNRThreshold != nil {
		th.SNR = *entry.SNRThreshold
	}
	if entry.DistanceThreshold != nil {
		th.Distance = *entry.DistanceThreshold
	}
	return th
}

// Evaluate notifies about report when it crosses the thresholds and has
// not been notified yet. A notifier failure is logged and leaves the flag
// unset; only persistence failures are returned.
func (e *Evaluator) Evaluate(ctx context.Context, report *model.Report, entry *model.WatchEntry) (Result, error) {
	if report == nil || report.AlertSent || !e.cfg.Enabled {
		return Result{}, nil
	}

	reason, ok := Check(report, e.Thresholds(entry))
	if !ok {
		return Result{}, nil
	}

	ctx, span := observability.Tracer().Start(ctx, "alert.Evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("report.id", report.ID),
		attribute.String("report.tx_callsign", report.TxCallsign),
	)
	start := time.Now()
	defer func() { e.metrics.ObserveEvaluate(time.Since(start)) }()

	unlock := e.locks.Lock(report.ID)
	defer unlock()

	sent, err := e.store.IsNotified(ctx, report.ID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{Reason: reason}, fmt.Errorf("%w: read report %d: %w", ErrPersistence, report.ID, err)
	}
	if sent {
		report.AlertSent = true
		return Result{Reason: reason}, nil
	}

	msg := Compose(report, reason)
	if err := e.notifier.Send(ctx, e.cfg.Recipients, msg.Subject, msg.Body); err != nil {
		e.metrics.IncAlert(false)
		span.RecordError(err)
		util.Error("failed to send alert", "report_id", report.ID, "callsign", report.TxCallsign, "error", err)
		return Result{Reason: reason}, nil
	}
	e.metrics.IncAlert(true)

	if err := e.store.MarkNotified(ctx, report.ID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{Reason: reason}, fmt.Errorf("%w: mark report %d notified: %w", ErrPersistence, report.ID, err)
	}
	report.AlertSent = true

	util.Info("alert sent", "report_id", report.ID, "callsign", report.TxCallsign, "reason", reason)
	return Result{Notified: true, Reason: reason}, nil
}

// keyedMutex serializes work per report id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock acquires the lock for id and returns its release function.
func (k *keyedMutex) Lock(id int64) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
