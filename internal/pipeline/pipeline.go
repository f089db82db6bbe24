// Package pipeline connects decoded receptions to the watch-list filter,
// the report store and the alert evaluator.
package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/user/pskwatch/internal/alert"
	"github.com/user/pskwatch/internal/geo"
	"github.com/user/pskwatch/internal/model"
	"github.com/user/pskwatch/internal/observability"
	"github.com/user/pskwatch/internal/util"
	"github.com/user/pskwatch/internal/watchlist"
)

// Saver persists reports.
type Saver interface {
	Save(ctx context.Context, r *model.Report) (int64, error)
}

// Evaluator decides on alerts for saved reports.
type Evaluator interface {
	Evaluate(ctx context.Context, report *model.Report, entry *model.WatchEntry) (alert.Result, error)
}

// Snapshotter provides the current watch-list.
type Snapshotter interface {
	Snapshot() *watchlist.Snapshot
}

// Process filters rec against snap and enriches it with the great-circle
// distance. It returns false when the transmitter is not monitored.
func Process(rec model.Reception, snap *watchlist.Snapshot) (model.Report, bool) {
	if !snap.Contains(rec.TxCallsign) {
		return model.Report{}, false
	}
	rec.TxCallsign = model.NormalizeCallsign(rec.TxCallsign)
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	return model.Report{
		Reception: rec,
		Distance:  geo.DistanceKm(rec.TxPosition, rec.RxPosition),
		AlertSent: false,
	}, true
}

// Pipeline handles receptions on the listener's worker goroutines.
type Pipeline struct {
	watch     Snapshotter
	store     Saver
	evaluator Evaluator
	metrics   *observability.Collector
}

// New creates a pipeline. evaluator and metrics may be nil.
func New(watch Snapshotter, store Saver, evaluator Evaluator, metrics *observability.Collector) *Pipeline {
	return &Pipeline{watch: watch, store: store, evaluator: evaluator, metrics: metrics}
}

// Handle filters, saves and evaluates one reception. Errors are logged and
// counted; they never propagate to the listener.
func (p *Pipeline) Handle(ctx context.Context, rec model.Reception) {
	snap := p.watch.Snapshot()
	report, ok := Process(rec, snap)
	if !ok {
		p.metrics.IncDropped(observability.DropNotWatched)
		return
	}
	entry, _ := snap.Lookup(report.TxCallsign)

	ctx, span := observability.Tracer().Start(ctx, "pipeline.Handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("reception.tx_callsign", report.TxCallsign),
		attribute.String("reception.rx_callsign", report.RxCallsign),
	)

	if _, err := p.store.Save(ctx, &report); err != nil {
		p.metrics.IncPersistenceErrors()
		span.SetStatus(codes.Error, err.Error())
		util.Error("failed to save report", "callsign", report.TxCallsign, "error", err)
		return
	}
	p.metrics.IncReportsSaved()
	util.Debug("report saved",
		"id", report.ID,
		"tx", report.TxCallsign,
		"rx", report.RxCallsign,
		"frequency", report.Frequency,
	)

	if p.evaluator == nil {
		return
	}
	if _, err := p.evaluator.Evaluate(ctx, &report, &entry); err != nil {
		p.metrics.IncPersistenceErrors()
		span.SetStatus(codes.Error, err.Error())
		util.Error("alert evaluation failed", "report_id", report.ID, "error", err)
	}
}
