package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/pskwatch/internal/storage"
	"github.com/user/pskwatch/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the terminal dashboard",
	Long: `Launch an interactive terminal dashboard showing live reception status.

The dashboard shows:
- Daemon and listener status
- Receptions per watched callsign
- The most recent receptions

Press 'r' to refresh, 'q' to quit.`,
	RunE: runUI,
}

func runUI(cmd *cobra.Command, args []string) error {
	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	app := tui.NewApp(storage.NewReportStorage(db), storage.NewWatchStorage(db), cfg.DataDir)
	return app.Run()
}
