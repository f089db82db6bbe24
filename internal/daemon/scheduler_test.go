package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/user/pskwatch/internal/observability"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSchedulerRunsJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	s := NewScheduler(ctx, 5*time.Millisecond, 0, metrics)

	var runs atomic.Int32
	s.AddJob(&Job{
		Name:     "tick",
		Interval: 20 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	waitFor(t, func() bool { return runs.Load() >= 2 })
	cancel()
	<-done

	statuses := s.GetJobStatuses()
	if len(statuses) != 1 || statuses[0].Name != "tick" || statuses[0].LastRun.IsZero() {
		t.Fatalf("statuses = %+v", statuses)
	}
	if got := testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("tick", "ok")); got < 2 {
		t.Errorf("job runs = %v, want >= 2", got)
	}
}

func TestSchedulerRecordsFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewScheduler(ctx, 5*time.Millisecond, 0, nil)

	s.AddJob(&Job{
		Name:     "broken",
		Interval: time.Hour,
		Run:      func(context.Context) error { return errors.New("boom") },
	})
	go s.Run()

	waitFor(t, func() bool {
		st := s.GetJobStatuses()[0]
		return st.ErrorCount == 1 && !st.Running
	})

	st := s.GetJobStatuses()[0]
	if st.LastError != "boom" {
		t.Errorf("last error = %q", st.LastError)
	}
	// Retried after half the interval.
	if until := time.Until(st.NextRun); until < 29*time.Minute || until > 31*time.Minute {
		t.Errorf("next run in %v, want about 30m", until)
	}
}

func TestSchedulerTriggerJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewScheduler(ctx, 5*time.Millisecond, time.Hour, nil)

	var runs atomic.Int32
	s.AddJob(&Job{
		Name:     "manual",
		Interval: time.Hour,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	go s.Run()

	time.Sleep(30 * time.Millisecond)
	if runs.Load() != 0 {
		t.Fatal("job should wait for its initial delay")
	}

	if !s.TriggerJob("manual") {
		t.Fatal("TriggerJob should find the job")
	}
	waitFor(t, func() bool { return runs.Load() == 1 })

	if s.TriggerJob("missing") {
		t.Error("TriggerJob should report unknown jobs")
	}
}
