package tui

import (
	"fmt"
	"strings"

	"github.com/user/pskwatch/internal/daemon"
	"github.com/user/pskwatch/internal/model"
)

const maxRows = 10

// DashboardData holds data for the dashboard view.
type DashboardData struct {
	Running      bool
	PID          int
	Status       *daemon.StatusFile
	Watched      []model.WatchEntry
	TotalReports int
	TotalAlerts  int
	Stats        []model.CallsignStats
	Recent       []model.Report
}

// Dashboard is the main dashboard view.
type Dashboard struct {
	data   *DashboardData
	width  int
	height int
}

// NewDashboard creates a new dashboard.
func NewDashboard(msg dataMsg, width, height int) *Dashboard {
	return &Dashboard{
		data:   msg.Data,
		width:  width,
		height: height,
	}
}

// SetSize updates the dashboard size.
func (d *Dashboard) SetSize(width, height int) {
	d.width = width
	d.height = height
}

// View renders the dashboard.
func (d *Dashboard) View() string {
	var sb strings.Builder

	sb.WriteString(HeaderStyle.Width(d.width).Render("pskwatch"))
	sb.WriteString("\n\n")

	sb.WriteString(d.renderDaemonSection())
	sb.WriteString("\n")
	sb.WriteString(d.renderCallsignSection())
	sb.WriteString("\n")
	sb.WriteString(d.renderRecentSection())
	sb.WriteString("\n")

	sb.WriteString(HelpStyle.Render("Press 'r' to refresh • 'q' to quit"))

	return sb.String()
}

func (d *Dashboard) sectionWidth() int {
	return max(d.width-4, 40)
}

func (d *Dashboard) renderDaemonSection() string {
	lines := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Daemon:"),
			RenderStatus(d.data.Running, fmt.Sprintf("running (PID %d)", d.data.PID), "stopped")),
		fmt.Sprintf("%s %s", LabelStyle.Render("Watched:"),
			ValueStyle.Render(fmt.Sprintf("%d", len(d.data.Watched)))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Reports:"),
			ValueStyle.Render(fmt.Sprintf("%d", d.data.TotalReports))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Alerts:"),
			ValueStyle.Render(fmt.Sprintf("%d", d.data.TotalAlerts))),
	}

	if sf := d.data.Status; sf != nil && d.data.Running {
		l := sf.Listener
		lines = append(lines,
			fmt.Sprintf("%s %s", LabelStyle.Render("Listening:"), ValueStyle.Render(sf.ListenAddr)),
			fmt.Sprintf("%s %s", LabelStyle.Render("Uptime:"), ValueStyle.Render(sf.Uptime)),
			fmt.Sprintf("%s %s", LabelStyle.Render("Datagrams:"),
				ValueStyle.Render(fmt.Sprintf("%d (%d receptions)", l.Datagrams, l.Receptions))),
		)
		if l.DecodeErrors > 0 || l.QueueDropped > 0 {
			lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render("Problems:"),
				WarningStyle.Render(fmt.Sprintf("%d decode errors, %d dropped", l.DecodeErrors, l.QueueDropped))))
		}
	}

	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("Daemon") + "\n" + strings.Join(lines, "\n"))
}

func (d *Dashboard) renderCallsignSection() string {
	title := SectionTitleStyle.Render("Last 24h")
	if len(d.data.Stats) == 0 {
		return SectionStyle.Width(d.sectionWidth()).Render(
			title + "\n" + DimStyle.Render("No receptions in the last 24 hours"))
	}

	busiest := 0
	for _, st := range d.data.Stats {
		busiest = max(busiest, st.Reports)
	}

	rows := []string{
		fmt.Sprintf("%-12s %-7s %-9s %-8s %-9s %s", "Callsign", "Reports", "Receivers", "Best SNR", "Max km", "Activity"),
		strings.Repeat("─", 64),
	}
	for i, st := range d.data.Stats {
		if i == maxRows {
			rows = append(rows, DimStyle.Render(fmt.Sprintf("... and %d more", len(d.data.Stats)-maxRows)))
			break
		}
		rows = append(rows, fmt.Sprintf("%-12s %-7d %-9d %-8s %-9s %s",
			st.Callsign, st.Reports, st.Receivers,
			optional(st.BestSNR), optional(st.MaxDistance),
			RenderBar(st.Reports, busiest, 12)))
	}

	return SectionStyle.Width(d.sectionWidth()).Render(title + "\n" + strings.Join(rows, "\n"))
}

func (d *Dashboard) renderRecentSection() string {
	title := SectionTitleStyle.Render("Recent Reports")
	if len(d.data.Recent) == 0 {
		return SectionStyle.Width(d.sectionWidth()).Render(title + "\n" + DimStyle.Render("No reports yet"))
	}

	rows := []string{
		fmt.Sprintf("%-9s %-10s %-10s %-11s %-5s %-4s %s", "Time", "TX", "RX", "Freq", "Mode", "SNR", "km"),
		strings.Repeat("─", 64),
	}
	for _, r := range d.data.Recent {
		line := fmt.Sprintf("%-9s %-10s %-10s %-11d %-5s %-4s %s",
			r.Timestamp.Local().Format("15:04:05"), r.TxCallsign, r.RxCallsign,
			r.Frequency, r.Mode, optional(r.SNR), optional(r.Distance))
		if r.AlertSent {
			line = WarningStyle.Render(line)
		}
		rows = append(rows, line)
	}

	return SectionStyle.Width(d.sectionWidth()).Render(title + "\n" + strings.Join(rows, "\n"))
}

func optional(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}
