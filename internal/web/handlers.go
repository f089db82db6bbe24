package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/user/pskwatch/internal/model"
	"github.com/user/pskwatch/internal/report"
	"github.com/user/pskwatch/internal/storage"
	"github.com/user/pskwatch/internal/util"
)

const (
	defaultReportLimit = 100
	maxReportLimit     = 1000
	reportWindow       = 24 * time.Hour
)

// Handlers contains HTTP handlers.
type Handlers struct {
	reports ReportStore
	watch   WatchList
	status  StatusFunc
	metrics http.Handler
	now     func() time.Time
}

// NewHandlers creates new handlers. metrics may be nil.
func NewHandlers(reports ReportStore, watch WatchList, status StatusFunc, metrics http.Handler) *Handlers {
	return &Handlers{
		reports: reports,
		watch:   watch,
		status:  status,
		metrics: metrics,
		now:     time.Now,
	}
}

type callsignRequest struct {
	Callsign string `json:"callsign"`
}

type thresholdsRequest struct {
	SNRThreshold      *int `json:"snr_threshold"`
	DistanceThreshold *int `json:"distance_threshold"`
}

// APIListCallsigns returns the active watch-list.
func (h *Handlers) APIListCallsigns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.watch.Snapshot().Entries())
}

// APIAddCallsign adds a callsign to the watch-list. The callsign comes
// from the "callsign" query parameter or a JSON body.
func (h *Handlers) APIAddCallsign(w http.ResponseWriter, r *http.Request) {
	req := callsignRequest{Callsign: r.URL.Query().Get("callsign")}
	if req.Callsign == "" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
			return
		}
	}

	entry, err := h.watch.Add(r.Context(), req.Callsign)
	if err != nil {
		writeError(w, err, statusFor(err))
		return
	}

	util.Info("callsign added via api", "callsign", entry.Callsign)
	writeJSONStatus(w, http.StatusCreated, entry)
}

// APIRemoveCallsign stops monitoring a callsign.
func (h *Handlers) APIRemoveCallsign(w http.ResponseWriter, r *http.Request) {
	callsign := r.PathValue("callsign")
	if err := h.watch.Remove(r.Context(), callsign); err != nil {
		writeError(w, err, statusFor(err))
		return
	}

	util.Info("callsign removed via api", "callsign", model.NormalizeCallsign(callsign))
	w.WriteHeader(http.StatusNoContent)
}

// APISetThresholds sets or clears per-callsign thresholds. Omitted or
// null values fall back to the global thresholds.
func (h *Handlers) APISetThresholds(w http.ResponseWriter, r *http.Request) {
	callsign := r.PathValue("callsign")

	var req thresholdsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}

	if err := h.watch.SetThresholds(r.Context(), callsign, req.SNRThreshold, req.DistanceThreshold); err != nil {
		writeError(w, err, statusFor(err))
		return
	}

	if entry, ok := h.watch.Snapshot().Lookup(callsign); ok {
		writeJSON(w, entry)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// APIListReports returns reports, newest first. With a callsign it
// returns that transmitter's reports from the last 24 hours.
func (h *Handlers) APIListReports(w http.ResponseWriter, r *http.Request) {
	limit := defaultReportLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("invalid limit %q", l), http.StatusBadRequest)
			return
		}
		limit = min(n, maxReportLimit)
	}

	var (
		reports []model.Report
		err     error
	)
	if callsign := r.URL.Query().Get("callsign"); callsign != "" {
		reports, err = h.reports.ByTransmitterSince(r.Context(), callsign, h.now().Add(-reportWindow), limit)
	} else {
		reports, err = h.reports.Recent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	if reports == nil {
		reports = []model.Report{}
	}

	writeJSON(w, reports)
}

// APIGetReport returns one report by id.
func (h *Handlers) APIGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, fmt.Errorf("invalid report id %q", r.PathValue("id")), http.StatusBadRequest)
		return
	}

	rep, err := h.reports.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, statusFor(err))
		return
	}

	writeJSON(w, rep)
}

// APIHealth reports whether the store answers.
func (h *Handlers) APIHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := h.reports.Count(ctx); err != nil {
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, map[string]any{
		"status":  "ok",
		"watched": h.watch.Snapshot().Len(),
	})
}

// APIGetStatus returns daemon status.
func (h *Handlers) APIGetStatus(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		writeError(w, errors.New("status unavailable"), http.StatusServiceUnavailable)
		return
	}

	status, err := h.status(r.Context())
	if err != nil {
		writeError(w, err, http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, status)
}

// DownloadReport generates and downloads a Markdown report of the last
// 24 hours.
func (h *Handlers) DownloadReport(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	gen := report.NewGenerator(h.reports)
	data, err := gen.Generate(r.Context(), model.ReportOptions{
		Since:    now.Add(-reportWindow),
		Until:    now,
		Callsign: r.URL.Query().Get("callsign"),
	})
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=pskwatch_report.md")
	w.Write([]byte(report.FormatMarkdown(data)))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidCallsign):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error, status int) {
	writeJSONStatus(w, status, map[string]string{"error": err.Error()})
}
