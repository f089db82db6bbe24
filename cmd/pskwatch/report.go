package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/pskwatch/internal/model"
	"github.com/user/pskwatch/internal/report"
	"github.com/user/pskwatch/internal/storage"
)

var (
	reportLast     string
	reportFormat   string
	reportOutput   string
	reportCallsign string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a reception report",
	Long: `Generate a report of stored receptions.

Examples:
  pskwatch report --last 24h
  pskwatch report --last 7d --callsign N4QRS
  pskwatch report --last 1w --format json --output ./report.json`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportLast, "last", "24h",
		"Time range (e.g., 1h, 24h, 7d, 2w)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "markdown",
		"Output format (markdown, json)")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "",
		"Output file path (default: stdout)")
	reportCmd.Flags().StringVar(&reportCallsign, "callsign", "",
		"Only include receptions of this transmitter")
}

func runReport(cmd *cobra.Command, args []string) error {
	duration, err := parseDuration(reportLast)
	if err != nil {
		return fmt.Errorf("invalid time range: %w", err)
	}

	until := time.Now()
	since := until.Add(-duration)

	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	gen := report.NewGenerator(storage.NewReportStorage(db))
	data, err := gen.Generate(context.Background(), model.ReportOptions{
		Since:    since,
		Until:    until,
		Format:   reportFormat,
		Callsign: reportCallsign,
	})
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	content, err := report.Render(data, reportFormat)
	if err != nil {
		return err
	}

	if reportOutput == "" || reportOutput == "-" {
		fmt.Println(content)
		return nil
	}

	if err := os.WriteFile(reportOutput, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	fmt.Printf("Report saved to: %s\n", reportOutput)
	fmt.Println()
	fmt.Println("Report Summary:")
	fmt.Printf("  Period: %s to %s\n", since.Format("2006-01-02 15:04"), until.Format("2006-01-02 15:04"))
	fmt.Printf("  Reports: %d\n", data.TotalReports)
	fmt.Printf("  Alerts sent: %d\n", data.TotalAlerts)
	fmt.Printf("  Transmitters heard: %d\n", len(data.Stats))
	fmt.Printf("  Paths: %d\n", len(data.Paths))

	return nil
}

// parseDuration accepts time.ParseDuration syntax plus whole days (7d)
// and weeks (2w).
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 1 {
		var n int
		switch s[len(s)-1] {
		case 'd':
			if _, err := fmt.Sscanf(s, "%dd", &n); err == nil && n > 0 {
				return time.Duration(n) * 24 * time.Hour, nil
			}
		case 'w':
			if _, err := fmt.Sscanf(s, "%dw", &n); err == nil && n > 0 {
				return time.Duration(n) * 7 * 24 * time.Hour, nil
			}
		}
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %s", s)
	}
	return d, nil
}
