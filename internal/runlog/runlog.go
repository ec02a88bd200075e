// Package runlog persists one record per handled sweep (processed, skipped or
// degraded) to SQLite, so a run can be audited after the fact.
package runlog

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/deskew/internal/deskew"
)

// Record is one persisted sweep report.
type Record struct {
	ID             int64
	SweepID        string
	Outcome        string
	PoseTimestamp  float64
	SweepStart     float64
	SweepEnd       float64
	PointCount     int
	InertialCount  int
	InertialStart  float64
	InertialEnd    float64
	DegradedPoints int64
	QueueDepth     int
	InertialDepth  int
	CreatedAt      time.Time
}

// Store provides persistence for sweep reports. It implements
// deskew.Reporter.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and applies
// pending schema migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening runlog %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReportSweep inserts one sweep report. Implements deskew.Reporter.
func (s *Store) ReportSweep(report deskew.SweepReport) error {
	query := `
		INSERT INTO sweep_log (
			sweep_id, outcome, pose_ts, sweep_start, sweep_end,
			point_count, inertial_count, inertial_start, inertial_end,
			degraded_points, queue_depth, inertial_depth, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(query,
			report.SweepID.String(),
			report.Outcome,
			report.PoseTimestamp,
			report.SweepStart,
			report.SweepEnd,
			report.PointCount,
			report.InertialCount,
			report.InertialStart,
			report.InertialEnd,
			report.DegradedPoints,
			report.QueueDepth,
			report.InertialDepth,
			time.Now().UTC().Format(time.RFC3339Nano),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting sweep report %s: %w", report.SweepID, err)
	}
	return nil
}

// ListRecent returns the newest n records, newest first.
func (s *Store) ListRecent(n int) ([]Record, error) {
	query := `
		SELECT id, sweep_id, outcome, pose_ts, sweep_start, sweep_end,
		       point_count, inertial_count, inertial_start, inertial_end,
		       degraded_points, queue_depth, inertial_depth, created_at
		FROM sweep_log
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, n)
	if err != nil {
		return nil, fmt.Errorf("querying sweep log: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var createdAt string
		if err := rows.Scan(
			&r.ID, &r.SweepID, &r.Outcome, &r.PoseTimestamp, &r.SweepStart, &r.SweepEnd,
			&r.PointCount, &r.InertialCount, &r.InertialStart, &r.InertialEnd,
			&r.DegradedPoints, &r.QueueDepth, &r.InertialDepth, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning sweep log row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountByOutcome returns how many records exist per outcome.
func (s *Store) CountByOutcome() (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT outcome, COUNT(*) FROM sweep_log GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("counting sweep log: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scanning outcome count: %w", err)
		}
		out[outcome] = count
	}
	return out, rows.Err()
}

// retryOnBusy retries fn a few times when SQLite reports a busy/locked
// database, which happens under concurrent writers.
func retryOnBusy(fn func() error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(i+1) * 10 * time.Millisecond)
	}
	return err
}

func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "busy") || strings.Contains(msg, "locked")
}
