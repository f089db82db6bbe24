package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/user/pskwatch/internal/geo"
	"github.com/user/pskwatch/internal/report"
)

const maxAnalyticsWindow = 7 * 24 * time.Hour

// APIPathDiagram returns a Mermaid graph of transmitter -> receiver paths.
// The window defaults to 24h and is capped at seven days.
func (h *Handlers) APIPathDiagram(w http.ResponseWriter, r *http.Request) {
	window := reportWindow
	if s := r.URL.Query().Get("since"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			writeError(w, fmt.Errorf("invalid since %q", s), http.StatusBadRequest)
			return
		}
		window = min(d, maxAnalyticsWindow)
	}

	now := h.now()
	reports, err := h.reports.Since(r.Context(), now.Add(-window), now)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(report.PathGraph(report.Paths(reports))))
}

type locatorResponse struct {
	Locator    string  `json:"locator"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	To         string  `json:"to,omitempty"`
	DistanceKm *int    `json:"distance_km,omitempty"`
}

// APILocator converts a Maidenhead grid to coordinates. With ?to= it also
// returns the great-circle distance between the two grids.
func (h *Handlers) APILocator(w http.ResponseWriter, r *http.Request) {
	grid := r.PathValue("grid")
	p, err := geo.FromLocator(grid)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	resp := locatorResponse{Locator: grid, Lat: p.Lat, Lon: p.Lon}
	if to := r.URL.Query().Get("to"); to != "" {
		q, err := geo.FromLocator(to)
		if err != nil {
			writeError(w, err, http.StatusBadRequest)
			return
		}
		resp.To = to
		resp.DistanceKm = geo.DistanceKm(&p, &q)
	}

	writeJSON(w, resp)
}
