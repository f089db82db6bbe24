// Package observability exposes Prometheus metrics and OpenTelemetry
// tracing for the reception pipeline.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons for DroppedTotal.
const (
	DropQueueFull  = "queue_full"
	DropNotWatched = "not_watched"
)

// Collector bundles the pipeline metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	DatagramsTotal         prometheus.Counter
	BytesTotal             prometheus.Counter
	DecodeErrorsTotal      prometheus.Counter
	ReadErrorsTotal        prometheus.Counter
	ReceptionsTotal        prometheus.Counter
	DroppedTotal           *prometheus.CounterVec
	ReportsSavedTotal      prometheus.Counter
	PersistenceErrorsTotal prometheus.Counter
	AlertsTotal            *prometheus.CounterVec
	JobRunsTotal           *prometheus.CounterVec

	QueueLength      prometheus.Gauge
	Templates        prometheus.Gauge
	WatchedCallsigns prometheus.Gauge

	EvaluateDuration prometheus.Histogram
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	counters := []struct {
		dst  *prometheus.Counter
		name string
		help string
	}{
		{&c.DatagramsTotal, "pskwatch_datagrams_total", "UDP datagrams received."},
		{&c.BytesTotal, "pskwatch_datagram_bytes_total", "Bytes received in UDP datagrams."},
		{&c.DecodeErrorsTotal, "pskwatch_decode_errors_total", "Datagrams that produced a decode diagnostic."},
		{&c.ReadErrorsTotal, "pskwatch_read_errors_total", "Transient socket read errors."},
		{&c.ReceptionsTotal, "pskwatch_receptions_total", "Receptions decoded from datagrams."},
		{&c.ReportsSavedTotal, "pskwatch_reports_saved_total", "Reception reports persisted."},
		{&c.PersistenceErrorsTotal, "pskwatch_persistence_errors_total", "Failed report store operations."},
	}
	for _, def := range counters {
		*def.dst, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: def.name,
			Help: def.help,
		}), def.name)
		if err != nil {
			return nil, err
		}
	}

	c.DroppedTotal, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pskwatch_receptions_dropped_total",
		Help: "Receptions dropped before persistence, labeled by reason.",
	}, []string{"reason"}), "pskwatch_receptions_dropped_total")
	if err != nil {
		return nil, err
	}
	c.AlertsTotal, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pskwatch_alerts_total",
		Help: "Alert notifications attempted, labeled by result.",
	}, []string{"result"}), "pskwatch_alerts_total")
	if err != nil {
		return nil, err
	}
	c.JobRunsTotal, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pskwatch_job_runs_total",
		Help: "Scheduled job executions, labeled by job and result.",
	}, []string{"job", "result"}), "pskwatch_job_runs_total")
	if err != nil {
		return nil, err
	}

	c.QueueLength, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pskwatch_queue_length",
		Help: "Receptions waiting for a worker.",
	}), "pskwatch_queue_length")
	if err != nil {
		return nil, err
	}
	c.Templates, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pskwatch_templates",
		Help: "IPFIX templates currently cached.",
	}), "pskwatch_templates")
	if err != nil {
		return nil, err
	}
	c.WatchedCallsigns, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pskwatch_watched_callsigns",
		Help: "Active callsigns in the watch-list snapshot.",
	}), "pskwatch_watched_callsigns")
	if err != nil {
		return nil, err
	}

	c.EvaluateDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pskwatch_alert_evaluate_duration_seconds",
		Help:    "Alert evaluation latency including notification delivery.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}), "pskwatch_alert_evaluate_duration_seconds")
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a /metrics handler for the collector's registry.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the gatherer associated with the collector.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveDatagram counts one datagram of n bytes.
func (c *Collector) ObserveDatagram(n int) {
	if c == nil {
		return
	}
	c.DatagramsTotal.Inc()
	c.BytesTotal.Add(float64(n))
}

func (c *Collector) IncDecodeErrors() {
	if c == nil {
		return
	}
	c.DecodeErrorsTotal.Inc()
}

func (c *Collector) IncReadErrors() {
	if c == nil {
		return
	}
	c.ReadErrorsTotal.Inc()
}

func (c *Collector) AddReceptions(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.ReceptionsTotal.Add(float64(n))
}

func (c *Collector) IncDropped(reason string) {
	if c == nil {
		return
	}
	c.DroppedTotal.WithLabelValues(reason).Inc()
}

func (c *Collector) IncReportsSaved() {
	if c == nil {
		return
	}
	c.ReportsSavedTotal.Inc()
}

func (c *Collector) IncPersistenceErrors() {
	if c == nil {
		return
	}
	c.PersistenceErrorsTotal.Inc()
}

// IncAlert counts a notification attempt; sent reports whether delivery
// succeeded.
func (c *Collector) IncAlert(sent bool) {
	if c == nil {
		return
	}
	result := "sent"
	if !sent {
		result = "failed"
	}
	c.AlertsTotal.WithLabelValues(result).Inc()
}

// IncJobRun counts one scheduled job execution.
func (c *Collector) IncJobRun(job string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.JobRunsTotal.WithLabelValues(job, result).Inc()
}

func (c *Collector) SetQueueLength(n int) {
	if c == nil {
		return
	}
	c.QueueLength.Set(float64(n))
}

func (c *Collector) SetTemplates(n int) {
	if c == nil {
		return
	}
	c.Templates.Set(float64(n))
}

func (c *Collector) SetWatchedCallsigns(n int) {
	if c == nil {
		return
	}
	c.WatchedCallsigns.Set(float64(n))
}

func (c *Collector) ObserveEvaluate(d time.Duration) {
	if c == nil {
		return
	}
	c.EvaluateDuration.Observe(d.Seconds())
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
