package web

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/user/pskwatch/internal/model"
	"github.com/user/pskwatch/internal/report"
	"github.com/user/pskwatch/internal/util"
)

var dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta http-equiv="refresh" content="60">
    <title>pskwatch</title>
    <script src="https://cdn.jsdelivr.net/npm/mermaid/dist/mermaid.min.js"></script>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }

        :root {
            --bg-primary: #0a0f0a;
            --bg-card: rgba(0, 40, 0, 0.4);
            --border-color: #1a4a1a;
            --text-primary: #00ff41;
            --text-secondary: #00cc33;
            --text-dim: #336633;
            --accent: #00ff41;
            --accent-glow: rgba(0, 255, 65, 0.3);
            --danger: #ff3333;
            --gradient-top: rgba(0, 50, 0, 0.3);
        }

        body {
            font-family: 'Courier New', monospace;
            background: var(--bg-primary);
            background-image: radial-gradient(ellipse at top, var(--gradient-top) 0%, transparent 50%);
            color: var(--text-primary);
            min-height: 100vh;
            padding: 1.5rem;
        }

        .container { max-width: 1400px; margin: 0 auto; }

        header {
            display: flex;
            justify-content: space-between;
            align-items: center;
            margin-bottom: 1.5rem;
            padding-bottom: 1rem;
            border-bottom: 1px solid var(--border-color);
        }

        h1 {
            font-size: 1.6rem;
            color: var(--accent);
            text-shadow: 0 0 10px var(--accent-glow);
            letter-spacing: 3px;
        }

        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(320px, 1fr)); gap: 1rem; margin-bottom: 1rem; }

        .card {
            background: var(--bg-card);
            border: 1px solid var(--border-color);
            padding: 1rem;
        }
        .card-title {
            font-size: 0.85rem;
            color: var(--text-secondary);
            margin-bottom: 0.75rem;
            text-transform: uppercase;
            letter-spacing: 1px;
        }
        .card-title::before { content: '> '; color: var(--accent); }

        .stat-row { display: flex; justify-content: space-between; padding: 0.4rem 0; border-bottom: 1px dashed var(--border-color); }
        .stat-label { color: var(--text-dim); font-size: 0.85rem; }
        .stat-value { color: var(--accent); font-weight: bold; font-size: 0.85rem; }

        table { width: 100%; border-collapse: collapse; font-size: 0.8rem; }
        th, td { text-align: left; padding: 0.5rem; }
        th { color: var(--text-secondary); font-weight: normal; text-transform: uppercase; font-size: 0.7rem; border-bottom: 1px solid var(--border-color); }
        td { border-bottom: 1px dashed var(--border-color); }
        .alert { color: var(--danger); }
        .empty-state { color: var(--text-dim); }
        a { color: var(--text-secondary); }
    </style>
</head>
<body>
<div class="container">
    <header>
        <h1>PSKWATCH</h1>
        <a href="/report">download report</a>
    </header>

    <div class="grid">
        <div class="card">
            <div class="card-title">Summary</div>
            <div class="stat-row"><span class="stat-label">Watched callsigns</span><span class="stat-value">{{len .Watched}}</span></div>
            <div class="stat-row"><span class="stat-label">Reports stored</span><span class="stat-value">{{.TotalReports}}</span></div>
            <div class="stat-row"><span class="stat-label">Alerts sent</span><span class="stat-value">{{.TotalAlerts}}</span></div>
            <div class="stat-row"><span class="stat-label">Generated</span><span class="stat-value">{{.GeneratedAt.Format "2006-01-02 15:04:05"}}</span></div>
        </div>

        <div class="card">
            <div class="card-title">Watch-list</div>
            {{if .Watched}}
            <table>
                <tr><th>Callsign</th><th>SNR</th><th>Distance</th></tr>
                {{range .Watched}}
                <tr>
                    <td>{{.Callsign}}</td>
                    <td>{{if .SNRThreshold}}{{deref .SNRThreshold}} dB{{else}}default{{end}}</td>
                    <td>{{if .DistanceThreshold}}{{deref .DistanceThreshold}} km{{else}}default{{end}}</td>
                </tr>
                {{end}}
            </table>
            {{else}}
            <p class="empty-state">> No callsigns monitored</p>
            {{end}}
        </div>
    </div>

    <div class="card">
        <div class="card-title">Last 24h by callsign</div>
        {{if .Stats}}
        <table>
            <tr><th>Callsign</th><th>Reports</th><th>Receivers</th><th>Best SNR</th><th>Max distance</th><th>Alerts</th><th>Last heard</th></tr>
            {{range .Stats}}
            <tr>
                <td>{{.Callsign}}</td>
                <td>{{.Reports}}</td>
                <td>{{.Receivers}}</td>
                <td>{{if .BestSNR}}{{deref .BestSNR}} dB{{else}}-{{end}}</td>
                <td>{{if .MaxDistance}}{{deref .MaxDistance}} km{{else}}-{{end}}</td>
                <td>{{.Alerts}}</td>
                <td>{{.LastHeard.Format "15:04:05"}}</td>
            </tr>
            {{end}}
        </table>
        {{else}}
        <p class="empty-state">> No receptions in the last 24h</p>
        {{end}}
    </div>

    {{if .Graph}}
    <div class="card">
        <div class="card-title">Propagation paths</div>
        <pre class="mermaid">{{.Graph}}</pre>
    </div>
    {{end}}

    <div class="card">
        <div class="card-title">Recent reports</div>
        {{if .Recent}}
        <table>
            <tr><th>Time</th><th>TX</th><th>RX</th><th>Freq</th><th>Mode</th><th>SNR</th><th>Distance</th></tr>
            {{range .Recent}}
            <tr{{if .AlertSent}} class="alert"{{end}}>
                <td>{{.Timestamp.Format "2006-01-02 15:04:05"}}</td>
                <td>{{.TxCallsign}}</td>
                <td>{{.RxCallsign}}</td>
                <td>{{.Frequency}}</td>
                <td>{{.Mode}}</td>
                <td>{{if .SNR}}{{deref .SNR}}{{else}}-{{end}}</td>
                <td>{{if .Distance}}{{deref .Distance}} km{{else}}-{{end}}</td>
            </tr>
            {{end}}
        </table>
        {{else}}
        <p class="empty-state">> No reports yet</p>
        {{end}}
    </div>
</div>
<script>mermaid.initialize({ startOnLoad: true, theme: 'dark' });</script>
</body>
</html>`

var dashboardTemplate = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"deref": func(v *int) int { return *v },
}).Parse(dashboardHTML))

type dashboardData struct {
	GeneratedAt  time.Time
	Watched      []model.WatchEntry
	TotalReports int
	TotalAlerts  int
	Stats        []model.CallsignStats
	Graph        string
	Recent       []model.Report
}

// Dashboard serves the main dashboard page.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	data := h.getDashboardData(r.Context())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, data); err != nil {
		util.Warn("dashboard render failed", "error", err)
	}
}

// getDashboardData collects what it can. Store errors leave sections empty.
func (h *Handlers) getDashboardData(ctx context.Context) dashboardData {
	now := h.now()
	data := dashboardData{
		GeneratedAt: now,
		Watched:     h.watch.Snapshot().Entries(),
	}

	if n, err := h.reports.Count(ctx); err == nil {
		data.TotalReports = n
	}
	if n, err := h.reports.CountAlerts(ctx); err == nil {
		data.TotalAlerts = n
	}
	if reports, err := h.reports.Since(ctx, now.Add(-reportWindow), now); err == nil {
		data.Stats = report.Summarize(reports)
		if paths := report.Paths(reports); len(paths) > 0 {
			data.Graph = report.PathGraph(paths)
		}
	}
	if recent, err := h.reports.Recent(ctx, 25); err == nil {
		data.Recent = recent
	}

	return data
}
