// Package daemon runs the pskwatch background service: the IPFIX listener,
// the reception pipeline and the periodic jobs.
package daemon

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/user/pskwatch/internal/alert"
	"github.com/user/pskwatch/internal/listener"
	"github.com/user/pskwatch/internal/model"
	"github.com/user/pskwatch/internal/notify"
	"github.com/user/pskwatch/internal/observability"
	"github.com/user/pskwatch/internal/pipeline"
	"github.com/user/pskwatch/internal/storage"
	"github.com/user/pskwatch/internal/util"
	"github.com/user/pskwatch/internal/watchlist"
)

// Daemon manages the background service.
type Daemon struct {
	config    *util.Config
	scheduler *Scheduler
	db        *storage.DB
	reports   *storage.ReportStorage
	watch     *watchlist.List
	metrics   *observability.Collector
	sweeper   *alert.Sweeper
	listener  *listener.Listener

	notifier        notify.Notifier
	closeNotifier   func()
	traceWriter     io.Writer
	shutdownTracing func(context.Context) error
	tick            time.Duration
	jobDelay        time.Duration
	handleSignals   bool

	pidFile   string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	stopped   bool
	startTime time.Time
	mu        sync.RWMutex
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithNotifier replaces the notifiers built from configuration.
func WithNotifier(n notify.Notifier) Option {
	return func(d *Daemon) { d.notifier = n }
}

// WithSchedule overrides the scheduler tick and the initial job delay.
func WithSchedule(tick, delay time.Duration) Option {
	return func(d *Daemon) {
		d.tick = tick
		d.jobDelay = delay
	}
}

// WithTraceWriter sets where the stdout span exporter writes.
func WithTraceWriter(w io.Writer) Option {
	return func(d *Daemon) { d.traceWriter = w }
}

// WithoutSignals disables SIGINT/SIGTERM handling.
func WithoutSignals() Option {
	return func(d *Daemon) { d.handleSignals = false }
}

// New creates a new daemon instance and wires its components.
func New(cfg *util.Config, opts ...Option) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:        cfg,
		pidFile:       filepath.Join(cfg.DataDir, pidFileName),
		traceWriter:   os.Stdout,
		tick:          time.Second,
		jobDelay:      5 * time.Second,
		handleSignals: true,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(d)
	}

	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	d.db = db

	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		d.release()
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	d.metrics = metrics

	if d.notifier == nil {
		n, closeFn, err := notify.FromConfig(cfg)
		if err != nil {
			d.release()
			return nil, fmt.Errorf("failed to create notifiers: %w", err)
		}
		d.notifier = n
		d.closeNotifier = closeFn
	}

	d.reports = storage.NewReportStorage(db)
	d.watch = watchlist.New(storage.NewWatchStorage(db))
	d.watch.OnChange(metrics.SetWatchedCallsigns)

	evaluator := alert.NewEvaluator(alert.ConfigFrom(cfg.Alert), d.reports, d.notifier, alert.WithMetrics(metrics))
	d.sweeper = alert.NewSweeper(evaluator, d.reports, d.watch)

	p := pipeline.New(d.watch, d.reports, evaluator, metrics)
	d.listener = listener.New(cfg.Listen, p.Handle, listener.WithMetrics(metrics))

	d.scheduler = NewScheduler(ctx, d.tick, d.jobDelay, metrics)

	return d, nil
}

// Start seeds the watch-list, binds the listener and starts the jobs.
// A *listener.BindError is returned unchanged.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running || d.stopped {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	util.Info("daemon starting", "listen", d.config.Listen.Addr())

	shutdown, err := observability.InitTracing(d.ctx, d.config.Tracing, d.traceWriter)
	if err != nil {
		d.abortStart()
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	d.shutdownTracing = shutdown

	if err := d.watch.Seed(d.ctx, d.config.MonitoredCallsigns); err != nil {
		d.abortStart()
		return fmt.Errorf("failed to seed watch-list: %w", err)
	}

	if err := d.listener.Start(); err != nil {
		d.abortStart()
		return err
	}

	if err := d.writePIDFile(); err != nil {
		d.listener.Stop()
		d.abortStart()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	d.registerJobs()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.scheduler.Run()
	}()

	if d.handleSignals {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.waitForSignal()
		}()
	}

	util.Info("daemon started", "pid", os.Getpid(), "addr", d.listener.Addr(), "watched", d.watch.Snapshot().Len())

	return nil
}

func (d *Daemon) abortStart() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Wait blocks until the daemon is asked to stop, by signal or Stop.
func (d *Daemon) Wait() {
	<-d.ctx.Done()
	d.wg.Wait()
}

// Stop stops the daemon gracefully. It is safe to call more than once.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	wasRunning := d.running
	d.stopped = true
	d.mu.Unlock()

	util.Info("daemon stopping")

	if wasRunning {
		if err := d.listener.Stop(); err != nil {
			util.Warn("listener stop failed", "error", err)
		}
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		util.Warn("daemon stop timed out")
	}

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	if wasRunning {
		if err := WriteStatusFile(d.config.DataDir, d.GetStatus()); err != nil {
			util.Warn("failed to write final status", "error", err)
		}
		d.removePIDFile()
	}
	if d.shutdownTracing != nil {
		observability.ShutdownWithTimeout(context.Background(), d.shutdownTracing)
	}
	d.release()

	util.Info("daemon stopped")
	return nil
}

// release closes resources acquired by New.
func (d *Daemon) release() {
	d.cancel()
	if d.closeNotifier != nil {
		d.closeNotifier()
	}
	if d.db != nil {
		d.db.Close()
	}
}

func (d *Daemon) waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		util.Info("received signal", "signal", sig.String())
		d.cancel()
	case <-d.ctx.Done():
	}
}

func (d *Daemon) writePIDFile() error {
	return os.WriteFile(d.pidFile, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (d *Daemon) removePIDFile() {
	os.Remove(d.pidFile)
}

// IsRunning returns whether the daemon is running.
func (d *Daemon) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Addr returns the bound listener address, or nil when not running.
func (d *Daemon) Addr() net.Addr {
	return d.listener.Addr()
}

// DaemonStatus holds the current daemon status.
type DaemonStatus struct {
	Running    bool
	PID        int
	StartTime  time.Time
	Uptime     time.Duration
	ListenAddr string
	Listener   model.ListenerStats
	Watched    []string
	Reports    int
	Alerts     int
	Jobs       []JobStatus
}

// GetStatus returns the daemon status. Store counts that fail to load
// are reported as zero.
func (d *Daemon) GetStatus() *DaemonStatus {
	d.mu.RLock()
	running, startTime := d.running, d.startTime
	d.mu.RUnlock()

	status := &DaemonStatus{
		Running:    running,
		PID:        os.Getpid(),
		StartTime:  startTime,
		ListenAddr: d.config.Listen.Addr(),
		Listener:   d.listener.Stats(),
		Watched:    d.watch.Snapshot().Callsigns(),
		Jobs:       d.scheduler.GetJobStatuses(),
	}
	if running {
		status.Uptime = time.Since(startTime)
	}
	if addr := d.listener.Addr(); addr != nil {
		status.ListenAddr = addr.String()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if n, err := d.reports.Count(ctx); err == nil {
		status.Reports = n
	}
	if n, err := d.reports.CountAlerts(ctx); err == nil {
		status.Alerts = n
	}

	return status
}

// Reports returns the report store.
func (d *Daemon) Reports() *storage.ReportStorage {
	return d.reports
}

// Watchlist returns the live watch-list.
func (d *Daemon) Watchlist() *watchlist.List {
	return d.watch
}

// Metrics returns the metrics collector.
func (d *Daemon) Metrics() *observability.Collector {
	return d.metrics
}

// Scheduler returns the job scheduler.
func (d *Daemon) Scheduler() *Scheduler {
	return d.scheduler
}

// GetConfig returns the configuration.
func (d *Daemon) GetConfig() *util.Config {
	return d.config
}
