package daemon

import (
	"context"
	"time"

	"github.com/user/pskwatch/internal/util"
)

// Job names.
const (
	JobAlertSweep       = "alert_sweep"
	JobWatchlistRefresh = "watchlist_refresh"
	JobStatusFile       = "status_file"
	JobReportCleanup    = "report_cleanup"
)

// registerJobs registers the periodic jobs with the scheduler.
func (d *Daemon) registerJobs() {
	d.scheduler.AddJob(&Job{
		Name:     JobAlertSweep,
		Interval: d.config.Alert.SweepInterval,
		Run:      d.runAlertSweep,
	})

	d.scheduler.AddJob(&Job{
		Name:     JobWatchlistRefresh,
		Interval: d.config.WatchlistRefreshInterval,
		Run:      d.runWatchlistRefresh,
	})

	d.scheduler.AddJob(&Job{
		Name:     JobStatusFile,
		Interval: d.config.StatusInterval,
		Run:      d.runStatusFile,
	})

	if d.config.ReportRetention > 0 {
		d.scheduler.AddJob(&Job{
			Name:     JobReportCleanup,
			Interval: time.Hour,
			Run:      d.runReportCleanup,
		})
	}
}

func (d *Daemon) runAlertSweep(ctx context.Context) error {
	_, err := d.sweeper.Run(ctx)
	return err
}

func (d *Daemon) runWatchlistRefresh(ctx context.Context) error {
	before := d.watch.Snapshot().Len()
	if err := d.watch.Refresh(ctx); err != nil {
		return err
	}
	if after := d.watch.Snapshot().Len(); after != before {
		util.Info("watch-list changed", "before", before, "after", after)
	}
	return nil
}

func (d *Daemon) runStatusFile(ctx context.Context) error {
	return WriteStatusFile(d.config.DataDir, d.GetStatus())
}

func (d *Daemon) runReportCleanup(ctx context.Context) error {
	cutoff := time.Now().Add(-d.config.ReportRetention)
	n, err := d.reports.Cleanup(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		util.Info("old reports deleted", "count", n, "before", cutoff.Format(time.RFC3339))
	}
	return nil
}
