package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/user/pskwatch/internal/daemon"
	"github.com/user/pskwatch/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  "Show the current status of the pskwatch daemon, its listener and the watch-list.",
	RunE:  runStatus,
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	stoppedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

func printField(label string, value any) {
	fmt.Printf("  %s %s\n", labelStyle.Render(label), valueStyle.Render(fmt.Sprint(value)))
}

func runStatus(cmd *cobra.Command, args []string) error {
	running, pid := daemon.CheckRunning(cfg.DataDir)

	fmt.Println(titleStyle.Render("pskwatch Status"))

	fmt.Print(labelStyle.Render("Daemon: "))
	if running {
		fmt.Println(runningStyle.Render(fmt.Sprintf("Running (PID %d)", pid)))
	} else {
		fmt.Println(stoppedStyle.Render("Stopped"))
	}

	if sf, err := daemon.ReadStatusFile(cfg.DataDir); err == nil {
		printField("Started:", sf.StartTime.Format("2006-01-02 15:04:05"))
		printField("Uptime:", sf.Uptime)
		printField("Listening:", sf.ListenAddr)
		printField("Updated:", sf.UpdatedAt.Format("15:04:05"))

		fmt.Println()
		fmt.Println(titleStyle.Render("Listener"))
		printField("State:", sf.Listener.State)
		printField("Datagrams:", sf.Listener.Datagrams)
		printField("Receptions:", sf.Listener.Receptions)
		printField("Decode errors:", sf.Listener.DecodeErrors)
		printField("Dropped:", sf.Listener.QueueDropped)
		printField("Templates:", sf.Listener.TemplateCount)

		if len(sf.Jobs) > 0 {
			fmt.Println()
			fmt.Println(titleStyle.Render("Jobs"))

			for _, job := range sf.Jobs {
				statusStr := "idle"
				if job.Running {
					statusStr = "running"
				}
				fmt.Printf("  %s: %s (last: %s, errors: %d)\n",
					labelStyle.Render(job.Name),
					valueStyle.Render(statusStr),
					job.LastRun.Format("15:04:05"),
					job.ErrorCount)
			}
		}
	}

	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return nil
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fmt.Println()
	fmt.Println(titleStyle.Render("Database Stats"))

	reports := storage.NewReportStorage(db)
	if count, err := reports.Count(ctx); err == nil {
		printField("Reports:", count)
	}
	if count, err := reports.CountAlerts(ctx); err == nil {
		printField("Alerts sent:", count)
	}

	if entries, err := storage.NewWatchStorage(db).ActiveEntries(ctx); err == nil {
		callsigns := make([]string, len(entries))
		for i, e := range entries {
			callsigns[i] = e.Callsign
		}
		if len(callsigns) == 0 {
			printField("Watching:", "(none)")
		} else {
			printField("Watching:", strings.Join(callsigns, ", "))
		}
	}

	return nil
}
