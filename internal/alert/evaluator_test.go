package alert

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/pskwatch/internal/model"
)

type fakeStore struct {
	mu       sync.Mutex
	notified map[int64]bool
	markErr  error
	readErr  error
	marks    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{notified: make(map[int64]bool)}
}

func (s *fakeStore) MarkNotified(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	s.marks++
	s.notified[id] = true
	return nil
}

func (s *fakeStore) IsNotified(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return false, s.readErr
	}
	return s.notified[id], nil
}

type sentMessage struct {
	recipients    []string
	subject, body string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, recipients []string, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{recipients, subject, body})
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func intp(v int) *int { return &v }

var defaultConfig = Config{
	Enabled:    true,
	Thresholds: model.Thresholds{SNR: 10, Distance: 1000},
	Recipients: []string{"op@example.org"},
}

func testReport(id int64, snr, distance *int) *model.Report {
	return &model.Report{
		ID: id,
		Reception: model.Reception{
			TxCallsign: "K2ABC",
			RxCallsign: "W3XYZ",
			Frequency:  14074000,
			SNR:        snr,
			Mode:       "FT8",
			Timestamp:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		Distance: distance,
	}
}

func TestEvaluateNotifiesOnce(t *testing.T) {
	store, n := newFakeStore(), &fakeNotifier{}
	e := NewEvaluator(defaultConfig, store, n)
	r := testReport(1, intp(15), nil)

	res, err := e.Evaluate(context.Background(), r, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Notified || !r.AlertSent {
		t.Fatalf("expected notification, got %+v alertSent=%v", res, r.AlertSent)
	}
	if !strings.Contains(res.Reason, "SNR 15 dB exceeds threshold of 10 dB.") {
		t.Errorf("reason = %q", res.Reason)
	}

	res, err = e.Evaluate(context.Background(), r, nil)
	if err != nil || res.Notified {
		t.Fatalf("second evaluation should be a no-op: %+v, %v", res, err)
	}
	if n.count() != 1 {
		t.Fatalf("notifier called %d times, want 1", n.count())
	}
	if n.sent[0].subject != "PSKReporter Alert: K2ABC" || n.sent[0].recipients[0] != "op@example.org" {
		t.Errorf("message = %+v", n.sent[0])
	}
}

func TestEvaluateRechecksStore(t *testing.T) {
	store, n := newFakeStore(), &fakeNotifier{}
	e := NewEvaluator(defaultConfig, store, n)
	store.notified[5] = true

	r := testReport(5, intp(20), nil)
	res, err := e.Evaluate(context.Background(), r, nil)
	if err != nil || res.Notified {
		t.Fatalf("already notified report: %+v, %v", res, err)
	}
	if n.count() != 0 {
		t.Fatal("notifier must not be called for a notified report")
	}
	if !r.AlertSent {
		t.Error("flag should be synced from the store")
	}
}

func TestEvaluateBelowThresholds(t *testing.T) {
	n := &fakeNotifier{}
	e := NewEvaluator(defaultConfig, newFakeStore(), n)

	cases := map[string]*model.Report{
		"below":  testReport(1, intp(9), intp(999)),
		"absent": testReport(2, nil, nil),
	}
	for name, r := range cases {
		res, err := e.Evaluate(context.Background(), r, nil)
		if err != nil || res.Notified || r.AlertSent {
			t.Errorf("%s: %+v, %v", name, res, err)
		}
	}
	if n.count() != 0 {
		t.Fatalf("notifier called %d times", n.count())
	}
}

func TestEvaluateReasonListsAllConditions(t *testing.T) {
	e := NewEvaluator(defaultConfig, newFakeStore(), &fakeNotifier{})
	res, err := e.Evaluate(context.Background(), testReport(1, intp(10), intp(1000)), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := "SNR 10 dB exceeds threshold of 10 dB. Distance 1000 km exceeds threshold of 1000 km."
	if res.Reason != want {
		t.Fatalf("reason = %q, want %q", res.Reason, want)
	}
}

func TestEvaluateUsesEntryOverrides(t *testing.T) {
	n := &fakeNotifier{}
	e := NewEvaluator(defaultConfig, newFakeStore(), n)
	entry := &model.WatchEntry{Callsign: "K2ABC", Active: true, SNRThreshold: intp(20)}

	res, _ := e.Evaluate(context.Background(), testReport(1, intp(15), nil), entry)
	if res.Notified {
		t.Fatal("override threshold 20 should suppress SNR 15")
	}

	entry.DistanceThreshold = intp(500)
	res, _ = e.Evaluate(context.Background(), testReport(2, intp(15), intp(600)), entry)
	if !res.Notified || !strings.HasPrefix(res.Reason, "Distance 600 km") {
		t.Fatalf("distance override should fire: %+v", res)
	}

	th := e.Thresholds(&model.WatchEntry{SNRThreshold: intp(-3)})
	if th.SNR != -3 || th.Distance != 1000 {
		t.Errorf("effective thresholds = %+v", th)
	}
}

func TestEvaluateDisabled(t *testing.T) {
	cfg := defaultConfig
	cfg.Enabled = false
	n := &fakeNotifier{}
	e := NewEvaluator(cfg, newFakeStore(), n)

	res, err := e.Evaluate(context.Background(), testReport(1, intp(30), nil), nil)
	if err != nil || res.Notified || n.count() != 0 {
		t.Fatalf("disabled alerts: %+v, %v, calls=%d", res, err, n.count())
	}
}

func TestEvaluateNotifierFailureLeavesFlag(t *testing.T) {
	store := newFakeStore()
	n := &fakeNotifier{err: errors.New("smtp unreachable")}
	e := NewEvaluator(defaultConfig, store, n)
	r := testReport(1, intp(15), nil)

	res, err := e.Evaluate(context.Background(), r, nil)
	if err != nil {
		t.Fatalf("notifier failure must not surface as error: %v", err)
	}
	if res.Notified || r.AlertSent || store.marks != 0 {
		t.Fatalf("flag must stay false: %+v marks=%d", res, store.marks)
	}

	n.err = nil
	res, err = e.Evaluate(context.Background(), r, nil)
	if err != nil || !res.Notified {
		t.Fatalf("retry after recovery should notify: %+v, %v", res, err)
	}
}

func TestEvaluateMarkFailureIsPersistenceError(t *testing.T) {
	store := newFakeStore()
	store.markErr = errors.New("database is locked")
	e := NewEvaluator(defaultConfig, store, &fakeNotifier{})
	r := testReport(1, intp(15), nil)

	_, err := e.Evaluate(context.Background(), r, nil)
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if r.AlertSent {
		t.Error("flag must not be set when persistence fails")
	}

	store.markErr = nil
	store.readErr = errors.New("disk I/O error")
	if _, err := e.Evaluate(context.Background(), testReport(2, intp(15), nil), nil); !errors.Is(err, ErrPersistence) {
		t.Fatalf("read failure: expected ErrPersistence, got %v", err)
	}
}

func TestEvaluateConcurrentSameReport(t *testing.T) {
	store, n := newFakeStore(), &fakeNotifier{}
	e := NewEvaluator(defaultConfig, store, n)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each worker holds its own copy, as after a reload from storage.
			_, _ = e.Evaluate(context.Background(), testReport(42, intp(15), nil), nil)
		}()
	}
	wg.Wait()

	if n.count() != 1 {
		t.Fatalf("notifier called %d times, want 1", n.count())
	}
	if len(e.locks.locks) != 0 {
		t.Errorf("per-report locks leaked: %d", len(e.locks.locks))
	}
}
