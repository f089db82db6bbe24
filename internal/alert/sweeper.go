package alert

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/user/pskwatch/internal/model"
	"github.com/user/pskwatch/internal/util"
	"github.com/user/pskwatch/internal/watchlist"
)

// PendingFinder queries un-notified reports crossing thresholds.
type PendingFinder interface {
	FindPendingAlerts(ctx context.Context, callsigns []string, snrThreshold, distanceThreshold int) ([]model.Report, error)
}

// Snapshotter provides the current watch-list.
type Snapshotter interface {
	Snapshot() *watchlist.Snapshot
}

// Sweeper re-evaluates stored reports that crossed thresholds but were
// never notified, for example because delivery failed.
type Sweeper struct {
	evaluator *Evaluator
	finder    PendingFinder
	watch     Snapshotter
}

// NewSweeper creates a sweeper.
func NewSweeper(e *Evaluator, finder PendingFinder, watch Snapshotter) *Sweeper {
	return &Sweeper{evaluator: e, finder: finder, watch: watch}
}

// Run performs one sweep and returns the number of alerts delivered.
// Active entries are grouped by effective thresholds so each group needs
// one query.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	if !s.evaluator.Enabled() {
		return 0, nil
	}

	snap := s.watch.Snapshot()
	groups := make(map[model.Thresholds][]string)
	for _, e := range snap.Entries() {
		th := s.evaluator.Thresholds(&e)
		groups[th] = append(groups[th], e.Callsign)
	}

	keys := make([]model.Thresholds, 0, len(groups))
	for th := range groups {
		keys = append(keys, th)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].SNR != keys[j].SNR {
			return keys[i].SNR < keys[j].SNR
		}
		return keys[i].Distance < keys[j].Distance
	})

	notified := 0
	var errs []error
	for _, th := range keys {
		reports, err := s.finder.FindPendingAlerts(ctx, groups[th], th.SNR, th.Distance)
		if err != nil {
			errs = append(errs, fmt.Errorf("find pending alerts: %w", err))
			continue
		}
		for i := range reports {
			if err := ctx.Err(); err != nil {
				return notified, err
			}
			r := &reports[i]
			entry, ok := snap.Lookup(r.TxCallsign)
			if !ok {
				continue
			}
			res, err := s.evaluator.Evaluate(ctx, r, &entry)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if res.Notified {
				notified++
			}
		}
	}

	if notified > 0 {
		util.Info("alert sweep delivered pending alerts", "count", notified)
	}
	return notified, errors.Join(errs...)
}
