package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/user/pskwatch/internal/model"
)

const watchColumns = `id, callsign, active, snr_threshold, distance_threshold, created_at`

// WatchStorage persists monitored callsigns. Entries are deactivated,
// never deleted.
type WatchStorage struct {
	db *DB
}

// NewWatchStorage creates a new watch-list storage handler.
func NewWatchStorage(db *DB) *WatchStorage {
	return &WatchStorage{db: db}
}

// ActiveEntries returns active entries ordered by callsign.
func (s *WatchStorage) ActiveEntries(ctx context.Context) ([]model.WatchEntry, error) {
	return s.queryEntries(ctx, `SELECT `+watchColumns+` FROM monitored_callsigns WHERE active = 1 ORDER BY callsign`)
}

// All returns every entry including inactive ones.
func (s *WatchStorage) All(ctx context.Context) ([]model.WatchEntry, error) {
	return s.queryEntries(ctx, `SELECT `+watchColumns+` FROM monitored_callsigns ORDER BY callsign`)
}

// Add creates an active entry, or re-activates an existing one.
func (s *WatchStorage) Add(ctx context.Context, callsign string) (*model.WatchEntry, error) {
	cs := model.NormalizeCallsign(callsign)
	if cs == "" {
		return nil, ErrInvalidCallsign
	}

	query := `INSERT INTO monitored_callsigns (callsign, active, created_at)
			  VALUES (?, 1, ?)
			  ON CONFLICT(callsign) DO UPDATE SET active = 1`
	if _, err := s.db.ExecContext(ctx, query, cs, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to add callsign %s: %w", cs, err)
	}
	return s.Get(ctx, cs)
}

// Remove deactivates an entry.
func (s *WatchStorage) Remove(ctx context.Context, callsign string) error {
	cs := model.NormalizeCallsign(callsign)
	result, err := s.db.ExecContext(ctx, `UPDATE monitored_callsigns SET active = 0 WHERE callsign = ?`, cs)
	if err != nil {
		return fmt.Errorf("failed to remove callsign %s: %w", cs, err)
	}
	return expectRow(result, cs)
}

// SetThresholds sets or clears the per-callsign threshold overrides.
func (s *WatchStorage) SetThresholds(ctx context.Context, callsign string, snr, distance *int) error {
	cs := model.NormalizeCallsign(callsign)
	result, err := s.db.ExecContext(ctx,
		`UPDATE monitored_callsigns SET snr_threshold = ?, distance_threshold = ? WHERE callsign = ?`,
		nullInt(snr), nullInt(distance), cs)
	if err != nil {
		return fmt.Errorf("failed to set thresholds for %s: %w", cs, err)
	}
	return expectRow(result, cs)
}

// Get returns the entry for callsign, active or not.
func (s *WatchStorage) Get(ctx context.Context, callsign string) (*model.WatchEntry, error) {
	cs := model.NormalizeCallsign(callsign)
	row := s.db.QueryRowContext(ctx, `SELECT `+watchColumns+` FROM monitored_callsigns WHERE callsign = ?`, cs)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("callsign %s: %w", cs, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get callsign %s: %w", cs, err)
	}
	return &e, nil
}

func (s *WatchStorage) queryEntries(ctx context.Context, query string, args ...any) ([]model.WatchEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query callsigns: %w", err)
	}
	defer rows.Close()

	var entries []model.WatchEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan callsign: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(row rowScanner) (model.WatchEntry, error) {
	var e model.WatchEntry
	var snr, distance sql.NullInt64
	var created sql.NullTime
	if err := row.Scan(&e.ID, &e.Callsign, &e.Active, &snr, &distance, &created); err != nil {
		return e, err
	}
	e.SNRThreshold = intPtr(snr)
	e.DistanceThreshold = intPtr(distance)
	if created.Valid {
		e.CreatedAt = created.Time.UTC()
	}
	return e, nil
}

func expectRow(result sql.Result, callsign string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update callsign %s: %w", callsign, err)
	}
	if n == 0 {
		return fmt.Errorf("callsign %s: %w", callsign, ErrNotFound)
	}
	return nil
}
