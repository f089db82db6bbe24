package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/user/pskwatch/internal/model"
)

type fakeReports struct {
	reports []model.Report
	err     error
}

func (f fakeReports) Recent(context.Context, int) ([]model.Report, error) { return f.reports, f.err }
func (f fakeReports) Since(context.Context, time.Time, time.Time) ([]model.Report, error) {
	return f.reports, f.err
}
func (f fakeReports) Count(context.Context) (int, error) { return len(f.reports), f.err }
func (f fakeReports) CountAlerts(context.Context) (int, error) {
	n := 0
	for _, r := range f.reports {
		if r.AlertSent {
			n++
		}
	}
	return n, f.err
}

type fakeWatch []model.WatchEntry

func (f fakeWatch) ActiveEntries(context.Context) ([]model.WatchEntry, error) { return f, nil }

func intp(v int) *int { return &v }

func testApp(t *testing.T, reports fakeReports) *App {
	return NewApp(reports, fakeWatch{{Callsign: "N4QRS", Active: true}}, t.TempDir())
}

func sampleReports() []model.Report {
	now := time.Now()
	return []model.Report{
		{
			Reception: model.Reception{TxCallsign: "N4QRS", RxCallsign: "K2ABC", Frequency: 14074000, SNR: intp(12), Mode: "FT8", Timestamp: now},
			Distance:  intp(1500),
			AlertSent: true,
		},
		{
			Reception: model.Reception{TxCallsign: "N4QRS", RxCallsign: "VE6WXY", Frequency: 7074000, Mode: "FT8", Timestamp: now},
		},
	}
}

func TestFetchDashboardData(t *testing.T) {
	app := testApp(t, fakeReports{reports: sampleReports()})
	data, err := fetchDashboardData(context.Background(), app, time.Now())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if data.Running || data.Status != nil {
		t.Error("no daemon should be detected in an empty data dir")
	}
	if len(data.Watched) != 1 || data.TotalReports != 2 || data.TotalAlerts != 1 {
		t.Errorf("data = %+v", data)
	}
	if len(data.Stats) != 1 || data.Stats[0].Receivers != 2 {
		t.Errorf("stats = %+v", data.Stats)
	}
}

func TestFetchDashboardDataError(t *testing.T) {
	app := testApp(t, fakeReports{err: errors.New("db locked")})
	if _, err := fetchDashboardData(context.Background(), app, time.Now()); err == nil {
		t.Fatal("expected error")
	}
}

func TestDashboardView(t *testing.T) {
	data := &DashboardData{
		Watched:      []model.WatchEntry{{Callsign: "N4QRS"}},
		TotalReports: 2,
		TotalAlerts:  1,
		Recent:       sampleReports(),
	}
	data.Stats = []model.CallsignStats{{Callsign: "N4QRS", Reports: 2, Receivers: 2, BestSNR: intp(12), MaxDistance: intp(1500)}}

	view := NewDashboard(dataMsg{Data: data}, 100, 40).View()
	for _, want := range []string{"pskwatch", "stopped", "N4QRS", "K2ABC", "VE6WXY", "1500", "'q' to quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	empty := NewDashboard(dataMsg{Data: &DashboardData{}}, 80, 24).View()
	if !strings.Contains(empty, "No reports yet") {
		t.Error("empty view should say no reports")
	}
}

func TestModelUpdate(t *testing.T) {
	m := newModel(testApp(t, fakeReports{}))

	next, _ := m.Update(tea.WindowSizeMsg{Width: 90, Height: 30})
	m = next.(model)
	if m.width != 90 {
		t.Fatalf("width = %d", m.width)
	}

	next, cmd := m.Update(dataMsg{Data: &DashboardData{}})
	m = next.(model)
	if !m.ready || m.dashboard == nil || cmd == nil {
		t.Fatal("data should make the model ready and schedule a refresh")
	}

	next, _ = m.Update(errMsg{err: errors.New("boom")})
	if !strings.Contains(next.(model).View(), "boom") {
		t.Error("error should be shown")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestRenderBar(t *testing.T) {
	bar := RenderBar(5, 10, 10)
	if strings.Count(bar, "█") != 5 || strings.Count(bar, "░") != 5 {
		t.Errorf("bar = %q", bar)
	}
	if strings.Count(RenderBar(20, 10, 4), "█") != 4 {
		t.Error("bar should clamp to width")
	}
}
