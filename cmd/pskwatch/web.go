package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/user/pskwatch/internal/daemon"
	"github.com/user/pskwatch/internal/observability"
	"github.com/user/pskwatch/internal/storage"
	"github.com/user/pskwatch/internal/util"
	"github.com/user/pskwatch/internal/watchlist"
	"github.com/user/pskwatch/internal/web"
)

var webPort int

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Start the web dashboard",
	Long: `Start a lightweight web dashboard against the pskwatch database.

The web server provides:
- The watch-list and its REST API
- Recent receptions and per-callsign statistics
- A Mermaid diagram of propagation paths
- Downloadable reports

Examples:
  pskwatch web
  pskwatch web --port 8080`,
	RunE: runWeb,
}

func init() {
	webCmd.Flags().IntVarP(&webPort, "port", "p", 0, "Web server port (default from config)")
}

func runWeb(cmd *cobra.Command, args []string) error {
	if webPort == 0 {
		webPort = cfg.WebPort
	}

	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watch := watchlist.New(storage.NewWatchStorage(db))
	watch.OnChange(metrics.SetWatchedCallsigns)
	if err := watch.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load watch-list: %w", err)
	}
	go refreshWatchlist(ctx, watch, cfg.WatchlistRefreshInterval)

	h := web.NewHandlers(storage.NewReportStorage(db), watch, daemonStatus, metrics.Handler())
	srv := web.NewServer(h, webPort)

	go func() {
		<-ctx.Done()
		if err := srv.Stop(); err != nil {
			util.Warn("web server shutdown failed", "error", err)
		}
	}()

	fmt.Printf("Starting web server on http://localhost:%d\n", webPort)
	fmt.Println("Press Ctrl+C to stop")

	return srv.Start()
}

// refreshWatchlist keeps the snapshot in step with changes made by the
// daemon or the callsigns command.
func refreshWatchlist(ctx context.Context, watch *watchlist.List, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := watch.Refresh(ctx); err != nil {
				util.Warn("watch-list refresh failed", "error", err)
			}
		}
	}
}

// daemonStatus reports the last status the daemon wrote.
func daemonStatus(context.Context) (any, error) {
	sf, err := daemon.ReadStatusFile(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("daemon status unavailable: %w", err)
	}
	if running, _ := daemon.CheckRunning(cfg.DataDir); !running {
		sf.Running = false
	}
	return sf, nil
}
