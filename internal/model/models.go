// Package model defines core data structures for pskwatch.
package model

import (
	"strings"
	"time"

	"github.com/user/pskwatch/internal/geo"
)

// WatchEntry is a monitored transmitter callsign.
type WatchEntry struct {
	ID                int64     `json:"id"`
	Callsign          string    `json:"callsign"`
	Active            bool      `json:"active"`
	SNRThreshold      *int      `json:"snr_threshold,omitempty"`
	DistanceThreshold *int      `json:"distance_threshold,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Reception is a single decoded reception record from the wire.
type Reception struct {
	TxCallsign      string     `json:"tx_callsign"`
	RxCallsign      string     `json:"rx_callsign"`
	Frequency       int64      `json:"frequency"`
	SNR             *int       `json:"snr,omitempty"`
	Mode            string     `json:"mode,omitempty"`
	TxLocator       string     `json:"tx_locator,omitempty"`
	RxLocator       string     `json:"rx_locator,omitempty"`
	TxPosition      *geo.Point `json:"tx_position,omitempty"`
	RxPosition      *geo.Point `json:"rx_position,omitempty"`
	DecoderSoftware string     `json:"decoder_software,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// Report is a persisted reception enriched with distance and alert state.
type Report struct {
	ID int64 `json:"id"`
	Reception
	Distance   *int      `json:"distance,omitempty"`
	AlertSent  bool      `json:"alert_sent"`
	ReceivedAt time.Time `json:"received_at"`
}

// Thresholds holds the alert limits applied to a report.
type Thresholds struct {
	SNR      int `json:"snr"`
	Distance int `json:"distance"`
}

// CallsignStats summarises receptions of one transmitter.
type CallsignStats struct {
	Callsign    string    `json:"callsign"`
	Reports     int       `json:"reports"`
	Receivers   int       `json:"receivers"`
	BestSNR     *int      `json:"best_snr,omitempty"`
	MaxDistance *int      `json:"max_distance,omitempty"`
	Alerts      int       `json:"alerts"`
	LastHeard   time.Time `json:"last_heard"`
}

// ListenerStats is a point-in-time copy of listener counters.
type ListenerStats struct {
	State         string `json:"state"`
	Datagrams     uint64 `json:"datagrams"`
	Bytes         uint64 `json:"bytes"`
	DecodeErrors  uint64 `json:"decode_errors"`
	Receptions    uint64 `json:"receptions"`
	QueueDropped  uint64 `json:"queue_dropped"`
	ReadErrors    uint64 `json:"read_errors"`
	QueueLength   int    `json:"queue_length"`
	TemplateCount int    `json:"template_count"`
}

// ReportOptions defines options for report generation.
type ReportOptions struct {
	Since      time.Time `json:"since"`
	Until      time.Time `json:"until"`
	Format     string    `json:"format"`
	OutputPath string    `json:"output_path"`
	Callsign   string    `json:"callsign,omitempty"`
}

// NormalizeCallsign trims and upper-cases a callsign for watch-list lookups.
func NormalizeCallsign(callsign string) string {
	return strings.ToUpper(strings.TrimSpace(callsign))
}
