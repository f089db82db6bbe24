package observability

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/user/pskwatch/internal/util"
)

func TestCollectorRecordsPipelineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.ObserveDatagram(120)
	c.ObserveDatagram(80)
	c.AddReceptions(3)
	c.IncDropped(DropNotWatched)
	c.IncDropped(DropNotWatched)
	c.IncAlert(true)
	c.IncAlert(false)
	c.IncJobRun("alert_sweep", nil)
	c.IncJobRun("alert_sweep", errors.New("boom"))
	c.SetTemplates(2)
	c.ObserveEvaluate(5 * time.Millisecond)

	if got := testutil.ToFloat64(c.DatagramsTotal); got != 2 {
		t.Errorf("datagrams = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.BytesTotal); got != 200 {
		t.Errorf("bytes = %v, want 200", got)
	}
	if got := testutil.ToFloat64(c.ReceptionsTotal); got != 3 {
		t.Errorf("receptions = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.DroppedTotal.WithLabelValues(DropNotWatched)); got != 2 {
		t.Errorf("dropped = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.AlertsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed alerts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.JobRunsTotal.WithLabelValues("alert_sweep", "error")); got != 1 {
		t.Errorf("job errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Templates); got != 2 {
		t.Errorf("templates = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(c.EvaluateDuration); n != 1 {
		t.Errorf("histogram series = %d, want 1", n)
	}
}

func TestCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	first.ObserveDatagram(1)
	if got := testutil.ToFloat64(second.DatagramsTotal); got != 1 {
		t.Fatalf("collectors should share counters, got %v", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveDatagram(10)
	c.IncDecodeErrors()
	c.IncAlert(true)
	c.SetQueueLength(3)
	c.ObserveEvaluate(time.Second)
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	c.IncReportsSaved()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "pskwatch_reports_saved_total 1") {
		t.Fatalf("metrics output missing counter:\n%s", body)
	}
}

func TestInitTracingStdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), util.TracingConfig{Enabled: true, Exporter: "stdout"}, &buf)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := Tracer().Start(context.Background(), "test.span")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "test.span") {
		t.Fatalf("exported spans missing test.span: %s", buf.String())
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), util.TracingConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestInitTracingUnknownExporter(t *testing.T) {
	if _, err := InitTracing(context.Background(), util.TracingConfig{Enabled: true, Exporter: "zipkin"}, nil); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}
