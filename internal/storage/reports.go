package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/user/pskwatch/internal/geo"
	"github.com/user/pskwatch/internal/model"
)

const reportColumns = `id, tx_callsign, rx_callsign, frequency, snr, mode,
	tx_locator, rx_locator, tx_latitude, tx_longitude, rx_latitude, rx_longitude,
	distance, decoder_software, timestamp, alert_sent, received_at`

// ReportStorage persists reception reports.
type ReportStorage struct {
	db *DB
}

// NewReportStorage creates a new report storage handler.
func NewReportStorage(db *DB) *ReportStorage {
	return &ReportStorage{db: db}
}

// Save inserts r, sets r.ID and returns the new id.
func (s *ReportStorage) Save(ctx context.Context, r *model.Report) (int64, error) {
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = time.Now().UTC()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = r.ReceivedAt
	}

	query := `INSERT INTO reception_reports (tx_callsign, rx_callsign, frequency, snr, mode,
			  tx_locator, rx_locator, tx_latitude, tx_longitude, rx_latitude, rx_longitude,
			  distance, decoder_software, timestamp, alert_sent, received_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	txLat, txLon := coords(r.TxPosition)
	rxLat, rxLon := coords(r.RxPosition)
	result, err := s.db.ExecContext(ctx, query,
		r.TxCallsign, r.RxCallsign, r.Frequency, nullInt(r.SNR), nullString(r.Mode),
		nullString(r.TxLocator), nullString(r.RxLocator), txLat, txLon, rxLat, rxLon,
		nullInt(r.Distance), nullString(r.DecoderSoftware), r.Timestamp.UTC(), r.AlertSent, r.ReceivedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert report: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	r.ID = id
	return id, nil
}

// MarkNotified sets the alert flag of report id. The update only moves the
// flag from false to true; marking an already notified report is a no-op.
func (s *ReportStorage) MarkNotified(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE reception_reports SET alert_sent = 1 WHERE id = ? AND alert_sent = 0`, id)
	if err != nil {
		return fmt.Errorf("failed to mark report %d notified: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark report %d notified: %w", id, err)
	}
	if n == 0 {
		if _, err := s.IsNotified(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// IsNotified reports the alert flag of report id.
func (s *ReportStorage) IsNotified(ctx context.Context, id int64) (bool, error) {
	var sent bool
	err := s.db.QueryRowContext(ctx, `SELECT alert_sent FROM reception_reports WHERE id = ?`, id).Scan(&sent)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read report %d: %w", id, err)
	}
	return sent, nil
}

// FindPendingAlerts returns un-notified reports of the given transmitters
// whose SNR or distance reaches the thresholds. NULL values never match.
func (s *ReportStorage) FindPendingAlerts(ctx context.Context, callsigns []string, snrThreshold, distanceThreshold int) ([]model.Report, error) {
	if len(callsigns) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(callsigns)+2)
	for _, c := range callsigns {
		args = append(args, c)
	}
	args = append(args, snrThreshold, distanceThreshold)

	query := `SELECT ` + reportColumns + ` FROM reception_reports
			  WHERE tx_callsign IN (` + placeholders(len(callsigns)) + `)
			  AND alert_sent = 0
			  AND (snr >= ? OR distance >= ?)
			  ORDER BY timestamp, id`
	return s.queryReports(ctx, query, args...)
}

// Get returns one report.
func (s *ReportStorage) Get(ctx context.Context, id int64) (*model.Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reception_reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return &r, nil
}

// Recent returns the newest reports, newest first.
func (s *ReportStorage) Recent(ctx context.Context, limit int) ([]model.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reception_reports
			  ORDER BY timestamp DESC, id DESC LIMIT ?`
	return s.queryReports(ctx, query, limit)
}

// ByTransmitterSince returns reports of one transmitter observed at or
// after since, newest first. A non-positive limit returns all of them.
func (s *ReportStorage) ByTransmitterSince(ctx context.Context, callsign string, since time.Time, limit int) ([]model.Report, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + reportColumns + ` FROM reception_reports
			  WHERE tx_callsign = ? AND timestamp >= ?
			  ORDER BY timestamp DESC, id DESC LIMIT ?`
	return s.queryReports(ctx, query, model.NormalizeCallsign(callsign), since.UTC(), limit)
}

// Since returns every report observed in [since, until), oldest first. A
// zero until means no upper bound.
func (s *ReportStorage) Since(ctx context.Context, since, until time.Time) ([]model.Report, error) {
	if until.IsZero() {
		query := `SELECT ` + reportColumns + ` FROM reception_reports
				  WHERE timestamp >= ? ORDER BY timestamp, id`
		return s.queryReports(ctx, query, since.UTC())
	}
	query := `SELECT ` + reportColumns + ` FROM reception_reports
			  WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp, id`
	return s.queryReports(ctx, query, since.UTC(), until.UTC())
}

// Count returns the number of stored reports.
func (s *ReportStorage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reception_reports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return n, nil
}

// CountAlerts returns the number of notified reports.
func (s *ReportStorage) CountAlerts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reception_reports WHERE alert_sent = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}

// Cleanup deletes reports observed before the cutoff.
func (s *ReportStorage) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM reception_reports WHERE timestamp < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old reports: %w", err)
	}
	return result.RowsAffected()
}

func (s *ReportStorage) queryReports(ctx context.Context, query string, args ...any) ([]model.Report, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (model.Report, error) {
	var (
		r                            model.Report
		snr, distance                sql.NullInt64
		mode, txLoc, rxLoc, software sql.NullString
		txLat, txLon, rxLat, rxLon   sql.NullFloat64
	)
	err := row.Scan(&r.ID, &r.TxCallsign, &r.RxCallsign, &r.Frequency, &snr, &mode,
		&txLoc, &rxLoc, &txLat, &txLon, &rxLat, &rxLon,
		&distance, &software, &r.Timestamp, &r.AlertSent, &r.ReceivedAt)
	if err != nil {
		return r, err
	}

	r.SNR = intPtr(snr)
	r.Distance = intPtr(distance)
	r.Mode = mode.String
	r.TxLocator = txLoc.String
	r.RxLocator = rxLoc.String
	r.DecoderSoftware = software.String
	r.TxPosition = point(txLat, txLon)
	r.RxPosition = point(rxLat, rxLon)
	r.Timestamp = r.Timestamp.UTC()
	r.ReceivedAt = r.ReceivedAt.UTC()
	return r, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func coords(p *geo.Point) (sql.NullFloat64, sql.NullFloat64) {
	if p == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p.Lat, Valid: true}, sql.NullFloat64{Float64: p.Lon, Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func point(lat, lon sql.NullFloat64) *geo.Point {
	if !lat.Valid || !lon.Valid {
		return nil
	}
	return &geo.Point{Lat: lat.Float64, Lon: lon.Float64}
}
