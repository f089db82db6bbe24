// Package report generates reception activity reports.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/user/pskwatch/internal/model"
	"github.com/user/pskwatch/internal/util"
)

// Source provides the reports inside a time window.
type Source interface {
	Since(ctx context.Context, since, until time.Time) ([]model.Report, error)
}

// Generator creates reception reports.
type Generator struct {
	source Source
}

// NewGenerator creates a new report generator.
func NewGenerator(source Source) *Generator {
	return &Generator{source: source}
}

// ReportData holds all data for a report.
type ReportData struct {
	GeneratedAt time.Time `json:"generated_at"`
	Since       time.Time `json:"since"`
	Until       time.Time `json:"until"`
	Callsign    string    `json:"callsign,omitempty"`

	Reports      []model.Report        `json:"reports"`
	TotalReports int                   `json:"total_reports"`
	TotalAlerts  int                   `json:"total_alerts"`
	Stats        []model.CallsignStats `json:"stats"`
	Paths        []Path                `json:"paths"`
}

// Generate creates a report for the specified time range.
func (g *Generator) Generate(ctx context.Context, opts model.ReportOptions) (*ReportData, error) {
	until := opts.Until
	if until.IsZero() {
		until = time.Now()
	}

	reports, err := g.source.Since(ctx, opts.Since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to load reports: %w", err)
	}

	callsign := model.NormalizeCallsign(opts.Callsign)
	if callsign != "" {
		filtered := reports[:0]
		for _, r := range reports {
			if r.TxCallsign == callsign {
				filtered = append(filtered, r)
			}
		}
		reports = filtered
	}

	data := &ReportData{
		GeneratedAt:  time.Now(),
		Since:        opts.Since,
		Until:        until,
		Callsign:     callsign,
		Reports:      reports,
		TotalReports: len(reports),
		Stats:        Summarize(reports),
		Paths:        Paths(reports),
	}
	for _, r := range reports {
		if r.AlertSent {
			data.TotalAlerts++
		}
	}

	util.Debug("report generated", "reports", data.TotalReports, "callsigns", len(data.Stats))
	return data, nil
}

// Summarize aggregates reports per transmitter, ordered by callsign.
func Summarize(reports []model.Report) []model.CallsignStats {
	byCall := make(map[string]*model.CallsignStats)
	receivers := make(map[string]map[string]struct{})

	for i := range reports {
		r := &reports[i]
		st, ok := byCall[r.TxCallsign]
		if !ok {
			st = &model.CallsignStats{Callsign: r.TxCallsign}
			byCall[r.TxCallsign] = st
			receivers[r.TxCallsign] = make(map[string]struct{})
		}

		st.Reports++
		receivers[r.TxCallsign][r.RxCallsign] = struct{}{}
		if r.AlertSent {
			st.Alerts++
		}
		if r.SNR != nil && (st.BestSNR == nil || *r.SNR > *st.BestSNR) {
			v := *r.SNR
			st.BestSNR = &v
		}
		if r.Distance != nil && (st.MaxDistance == nil || *r.Distance > *st.MaxDistance) {
			v := *r.Distance
			st.MaxDistance = &v
		}
		if r.Timestamp.After(st.LastHeard) {
			st.LastHeard = r.Timestamp
		}
	}

	stats := make([]model.CallsignStats, 0, len(byCall))
	for call, st := range byCall {
		st.Receivers = len(receivers[call])
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Callsign < stats[j].Callsign })
	return stats
}

// Render formats data as "markdown" (the default) or "json".
func Render(data *ReportData, format string) (string, error) {
	switch strings.ToLower(format) {
	case "", "markdown", "md":
		return FormatMarkdown(data), nil
	case "json":
		b, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b) + "\n", nil
	default:
		return "", fmt.Errorf("unknown report format %q", format)
	}
}

// FormatMarkdown renders the report as Markdown.
func FormatMarkdown(data *ReportData) string {
	var sb strings.Builder

	sb.WriteString("# pskwatch Reception Report\n\n")
	fmt.Fprintf(&sb, "Generated: %s\n\n", data.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Period: %s to %s\n\n",
		data.Since.Format("2006-01-02 15:04"), data.Until.Format("2006-01-02 15:04"))
	if data.Callsign != "" {
		fmt.Fprintf(&sb, "Callsign: %s\n\n", data.Callsign)
	}

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- Reports: %d\n", data.TotalReports)
	fmt.Fprintf(&sb, "- Alerts sent: %d\n", data.TotalAlerts)
	fmt.Fprintf(&sb, "- Transmitters heard: %d\n\n", len(data.Stats))

	if len(data.Stats) == 0 {
		sb.WriteString("No receptions in this period.\n")
		return sb.String()
	}

	sb.WriteString("## Callsigns\n\n")
	sb.WriteString("| Callsign | Reports | Receivers | Best SNR | Max Distance | Alerts | Last Heard |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	for _, st := range data.Stats {
		fmt.Fprintf(&sb, "| %s | %d | %d | %s | %s | %d | %s |\n",
			st.Callsign, st.Reports, st.Receivers,
			formatOptional(st.BestSNR, " dB"), formatOptional(st.MaxDistance, " km"),
			st.Alerts, st.LastHeard.UTC().Format("2006-01-02 15:04:05"))
	}
	sb.WriteString("\n")

	sb.WriteString("## Propagation Paths\n\n")
	sb.WriteString(GeneratePathDiagram(data.Paths))

	return sb.String()
}

func formatOptional(v *int, unit string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d%s", *v, unit)
}
