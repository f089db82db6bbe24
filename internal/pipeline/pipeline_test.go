package pipeline

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/user/pskwatch/internal/alert"
	"github.com/user/pskwatch/internal/geo"
	"github.com/user/pskwatch/internal/ipfix"
	"github.com/user/pskwatch/internal/listener"
	"github.com/user/pskwatch/internal/model"
	"github.com/user/pskwatch/internal/observability"
	"github.com/user/pskwatch/internal/storage"
	"github.com/user/pskwatch/internal/util"
	"github.com/user/pskwatch/internal/watchlist"
)

func snapshotOf(calls ...string) *watchlist.Snapshot {
	entries := make([]model.WatchEntry, len(calls))
	for i, c := range calls {
		entries[i] = model.WatchEntry{Callsign: c, Active: true}
	}
	return watchlist.NewSnapshot(entries)
}

func TestProcessFiltersByWatchList(t *testing.T) {
	snap := snapshotOf("K2ABC")

	report, ok := Process(model.Reception{TxCallsign: "k2abc", RxCallsign: "W3XYZ"}, snap)
	if !ok {
		t.Fatal("k2abc should pass the K2ABC watch-list")
	}
	if report.TxCallsign != "K2ABC" || report.AlertSent {
		t.Errorf("report = %+v", report)
	}

	if _, ok := Process(model.Reception{TxCallsign: "W3XYZ"}, snap); ok {
		t.Fatal("W3XYZ is not monitored")
	}
}

func TestProcessComputesDistance(t *testing.T) {
	snap := snapshotOf("K2ABC")
	rec := model.Reception{
		TxCallsign: "K2ABC",
		TxPosition: &geo.Point{Lat: 40.7128, Lon: -74.0060},
		RxPosition: &geo.Point{Lat: 51.5074, Lon: -0.1278},
	}
	report, ok := Process(rec, snap)
	if !ok || report.Distance == nil {
		t.Fatalf("expected distance, got %+v", report)
	}
	if *report.Distance < 5550 || *report.Distance > 5590 {
		t.Errorf("distance = %d km, want about 5570", *report.Distance)
	}

	rec.RxPosition = nil
	report, _ = Process(rec, snap)
	if report.Distance != nil {
		t.Error("distance requires both positions")
	}
}

type staticWatch struct{ snap *watchlist.Snapshot }

func (s staticWatch) Snapshot() *watchlist.Snapshot { return s.snap }

type fakeSaver struct {
	mu     sync.Mutex
	saved  []model.Report
	err    error
	nextID int64
}

func (f *fakeSaver) Save(_ context.Context, r *model.Report) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.nextID++
	r.ID = f.nextID
	f.saved = append(f.saved, *r)
	return r.ID, nil
}

type fakeEvaluator struct {
	calls []int64
	err   error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, r *model.Report, _ *model.WatchEntry) (alert.Result, error) {
	f.calls = append(f.calls, r.ID)
	return alert.Result{}, f.err
}

func TestHandleSavesBeforeEvaluating(t *testing.T) {
	saver, eval := &fakeSaver{}, &fakeEvaluator{}
	p := New(staticWatch{snapshotOf("N4QRS")}, saver, eval, nil)

	p.Handle(context.Background(), model.Reception{TxCallsign: "N4QRS"})
	p.Handle(context.Background(), model.Reception{TxCallsign: "KD5TUV"})

	if len(saver.saved) != 1 {
		t.Fatalf("saved %d reports, want 1", len(saver.saved))
	}
	if len(eval.calls) != 1 || eval.calls[0] != saver.saved[0].ID {
		t.Fatalf("evaluator should see the persisted id, calls = %v", eval.calls)
	}
}

func TestHandleCountsFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	saver := &fakeSaver{err: errors.New("disk full")}
	eval := &fakeEvaluator{}
	p := New(staticWatch{snapshotOf("N4QRS")}, saver, eval, metrics)

	p.Handle(context.Background(), model.Reception{TxCallsign: "N4QRS"})
	p.Handle(context.Background(), model.Reception{TxCallsign: "W3XYZ"})

	if len(eval.calls) != 0 {
		t.Fatal("evaluation must not run when persistence fails")
	}
	if got := testutil.ToFloat64(metrics.PersistenceErrorsTotal); got != 1 {
		t.Errorf("persistence errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.DroppedTotal.WithLabelValues(observability.DropNotWatched)); got != 1 {
		t.Errorf("not-watched drops = %v, want 1", got)
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
}

func (n *recordingNotifier) Send(_ context.Context, _ []string, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subjects)
}

// A datagram for a monitored transmitter flows through the listener,
// decoder, filter, SQLite store and evaluator into one notification.
func TestEndToEndAlert(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "e2e.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	reports := storage.NewReportStorage(db)
	watch := watchlist.New(storage.NewWatchStorage(db))
	if err := watch.Seed(ctx, []string{"N4QRS"}); err != nil {
		t.Fatal(err)
	}

	notifier := &recordingNotifier{}
	evaluator := alert.NewEvaluator(alert.Config{
		Enabled:    true,
		Thresholds: model.Thresholds{SNR: 10, Distance: 1000},
		Recipients: []string{"op@example.org"},
	}, reports, notifier)
	p := New(watch, reports, evaluator, nil)

	l := listener.New(util.ListenConfig{
		Host:           "127.0.0.1",
		ReceiveTimeout: 200 * time.Millisecond,
		ReadBuffer:     65535,
		QueueSize:      16,
		Workers:        2,
	}, p.Handle)
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()

	// Atlanta to Boston, about 1,500 km.
	snr := 20
	now := time.Now().UTC().Truncate(time.Second)
	tmpl := ipfix.Template{
		ID: 310,
		Fields: []ipfix.FieldSpec{
			ipfix.SenderCallsign.Variable(),
			ipfix.ReceiverCallsign.Variable(),
			ipfix.Frequency.Fixed(4),
			ipfix.SNR.Fixed(1),
			ipfix.Mode.Variable(),
			ipfix.SenderLatitude.Fixed(8),
			ipfix.SenderLongitude.Fixed(8),
			ipfix.ReceiverLatitude.Fixed(8),
			ipfix.ReceiverLongitude.Fixed(8),
		},
	}
	data, err := ipfix.NewMessage(now, 1, 1).
		AddTemplates(tmpl).
		AddRecords(tmpl,
			ipfix.Record{
				ipfix.SenderCallsign:    "N4QRS",
				ipfix.ReceiverCallsign:  "K2ABC",
				ipfix.Frequency:         14074000,
				ipfix.SNR:               snr,
				ipfix.Mode:              "FT8",
				ipfix.SenderLatitude:    33.75,
				ipfix.SenderLongitude:   -84.39,
				ipfix.ReceiverLatitude:  42.36,
				ipfix.ReceiverLongitude: -71.06,
			},
			ipfix.Record{ipfix.SenderCallsign: "W3XYZ", ipfix.ReceiverCallsign: "K2ABC", ipfix.SNR: 30},
		).Bytes()
	if err != nil {
		t.Fatal(err)
	}

	conn, err := net.Dial("udp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write(data); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for notifier.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}

	if n, _ := reports.Count(ctx); n != 1 {
		t.Fatalf("saved %d reports, want 1", n)
	}
	if notifier.count() != 1 {
		t.Fatalf("notifier called %d times, want 1", notifier.count())
	}
	body := notifier.bodies[0]
	if !strings.Contains(body, "SNR 20 dB exceeds threshold of 10 dB.") || !strings.Contains(body, "km exceeds threshold of 1000 km.") {
		t.Fatalf("reason should mention SNR and distance:\n%s", body)
	}

	saved, err := reports.Recent(ctx, 1)
	if err != nil || len(saved) != 1 {
		t.Fatal(err)
	}
	if !saved[0].AlertSent {
		t.Error("report should be marked notified")
	}
	if d := saved[0].Distance; d == nil || *d < 1400 || *d > 1600 {
		t.Errorf("distance = %v, want about 1500 km", d)
	}
}
