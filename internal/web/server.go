// Package web provides the HTTP API and a lightweight dashboard.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/user/pskwatch/internal/model"
	"github.com/user/pskwatch/internal/util"
	"github.com/user/pskwatch/internal/watchlist"
)

// ReportStore is the read side of the report store.
type ReportStore interface {
	Get(ctx context.Context, id int64) (*model.Report, error)
	Recent(ctx context.Context, limit int) ([]model.Report, error)
	ByTransmitterSince(ctx context.Context, callsign string, since time.Time, limit int) ([]model.Report, error)
	Since(ctx context.Context, since, until time.Time) ([]model.Report, error)
	Count(ctx context.Context) (int, error)
	CountAlerts(ctx context.Context) (int, error)
}

// WatchList is the live watch-list.
type WatchList interface {
	Snapshot() *watchlist.Snapshot
	Add(ctx context.Context, callsign string) (*model.WatchEntry, error)
	Remove(ctx context.Context, callsign string) error
	SetThresholds(ctx context.Context, callsign string, snr, distance *int) error
}

// StatusFunc reports the daemon status.
type StatusFunc func(ctx context.Context) (any, error)

// Server is the web server.
type Server struct {
	handlers *Handlers
	port     int
	srv      *http.Server
}

// NewServer creates a new web server.
func NewServer(h *Handlers, port int) *Server {
	s := &Server{
		handlers: h,
		port:     port,
	}
	s.srv = &http.Server{
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Routes returns the HTTP handler with every route registered.
func (s *Server) Routes() http.Handler {
	h := s.handlers
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Dashboard)
	mux.HandleFunc("GET /report", h.DownloadReport)

	mux.HandleFunc("GET /api/callsigns", h.APIListCallsigns)
	mux.HandleFunc("POST /api/callsigns", h.APIAddCallsign)
	mux.HandleFunc("DELETE /api/callsigns/{callsign}", h.APIRemoveCallsign)
	mux.HandleFunc("PUT /api/callsigns/{callsign}/thresholds", h.APISetThresholds)

	mux.HandleFunc("GET /api/reports", h.APIListReports)
	mux.HandleFunc("GET /api/reports/{id}", h.APIGetReport)

	mux.HandleFunc("GET /api/health", h.APIHealth)
	mux.HandleFunc("GET /api/status", h.APIGetStatus)

	mux.HandleFunc("GET /api/analytics/paths", h.APIPathDiagram)
	mux.HandleFunc("GET /api/locator/{grid}", h.APILocator)

	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	return logRequests(mux)
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	util.Info("web server starting", "addr", ln.Addr().String())

	if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop stops the web server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.srv.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		util.Debug("http request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}
