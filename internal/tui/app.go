// Package tui provides a terminal user interface.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/pskwatch/internal/daemon"
	"github.com/user/pskwatch/internal/model"
	"github.com/user/pskwatch/internal/report"
)

const refreshInterval = 5 * time.Second

// ReportSource is the read side of the report store.
type ReportSource interface {
	Recent(ctx context.Context, limit int) ([]model.Report, error)
	Since(ctx context.Context, since, until time.Time) ([]model.Report, error)
	Count(ctx context.Context) (int, error)
	CountAlerts(ctx context.Context) (int, error)
}

// WatchSource lists monitored callsigns.
type WatchSource interface {
	ActiveEntries(ctx context.Context) ([]model.WatchEntry, error)
}

// App is the main TUI application.
type App struct {
	reports ReportSource
	watch   WatchSource
	dataDir string
}

// NewApp creates a new TUI application. Daemon status is read from the
// status file in dataDir.
func NewApp(reports ReportSource, watch WatchSource, dataDir string) *App {
	return &App{
		reports: reports,
		watch:   watch,
		dataDir: dataDir,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(newModel(a), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// model is the main bubbletea model.
type model struct {
	app       *App
	dashboard *Dashboard
	spinner   spinner.Model
	ready     bool
	width     int
	height    int
	err       error
}

func newModel(a *App) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		app:     a,
		spinner: s,
	}
}

// Init initializes the model.
func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		loadData(m.app),
	)
}

// Update handles messages.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, loadData(m.app)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.dashboard != nil {
			m.dashboard.SetSize(msg.Width, msg.Height)
		}

	case dataMsg:
		m.ready = true
		m.err = nil
		m.dashboard = NewDashboard(msg, m.width, m.height)
		return m, scheduleRefresh()

	case refreshMsg:
		return m, loadData(m.app)

	case errMsg:
		m.err = msg.err
		return m, scheduleRefresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the UI.
func (m model) View() string {
	if m.err != nil {
		return ErrorStyle.Render("Error: " + m.err.Error())
	}

	if !m.ready {
		return LoadingStyle.Render(m.spinner.View() + " Loading...")
	}

	return m.dashboard.View()
}

type dataMsg struct {
	Data *DashboardData
}

type errMsg struct {
	err error
}

type refreshMsg struct{}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshMsg{} })
}

func loadData(a *App) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		data, err := fetchDashboardData(ctx, a, time.Now())
		if err != nil {
			return errMsg{err}
		}
		return dataMsg{Data: data}
	}
}

func fetchDashboardData(ctx context.Context, a *App, now time.Time) (*DashboardData, error) {
	data := &DashboardData{}

	entries, err := a.watch.ActiveEntries(ctx)
	if err != nil {
		return nil, err
	}
	data.Watched = entries

	if data.TotalReports, err = a.reports.Count(ctx); err != nil {
		return nil, err
	}
	if data.TotalAlerts, err = a.reports.CountAlerts(ctx); err != nil {
		return nil, err
	}

	window, err := a.reports.Since(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		return nil, err
	}
	data.Stats = report.Summarize(window)

	if data.Recent, err = a.reports.Recent(ctx, 10); err != nil {
		return nil, err
	}

	data.Running, data.PID = daemon.CheckRunning(a.dataDir)
	if sf, err := daemon.ReadStatusFile(a.dataDir); err == nil {
		data.Status = sf
	}

	return data, nil
}
