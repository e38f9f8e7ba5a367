// Package runlog keeps the append-only run history and the per-report
// run locks in SQLite. Entries are never mutated after insertion; locks
// are rows so a restarted process sees them and staleness is decided by
// timestamp rather than process memory.
package runlog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/docuflow/therenotify/internal/domain"
	_ "modernc.org/sqlite"
)

// Entry is one completed (or failed) report run
type Entry struct {
	ID             string
	ReportID       int
	Trigger        domain.TriggerKind
	Status         domain.RunStatus
	Message        string
	InstancesFound int
	Recipients     int
	EmailsSent     int
	EmailsFailed   int
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Store provides SQLite-backed run logging and locking
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at the given path
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts a run log entry
func (s *Store) Append(e Entry) error {
	_, err := s.db.Exec(`
		INSERT INTO run_logs (id, report_id, trigger_kind, status, message, instances_found, recipients, emails_sent, emails_failed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.ReportID,
		string(e.Trigger),
		string(e.Status),
		e.Message,
		e.InstancesFound,
		e.Recipients,
		e.EmailsSent,
		e.EmailsFailed,
		e.StartedAt.UTC(),
		e.FinishedAt.UTC(),
	)
	return err
}

// ListByReport returns the most recent entries for a report, newest
// first. A reportID of zero lists across all reports.
func (s *Store) ListByReport(reportID, limit int) ([]Entry, error) {
	query := `SELECT id, report_id, trigger_kind, status, message, instances_found, recipients, emails_sent, emails_failed, started_at, finished_at FROM run_logs`
	var args []interface{}
	if reportID != 0 {
		query += ` WHERE report_id = ?`
		args = append(args, reportID)
	}
	query += ` ORDER BY finished_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var trigger, status string
		if err := rows.Scan(&e.ID, &e.ReportID, &trigger, &status, &e.Message, &e.InstancesFound, &e.Recipients, &e.EmailsSent, &e.EmailsFailed, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, err
		}
		e.Trigger = domain.TriggerKind(trigger)
		e.Status = domain.RunStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AcquireLock claims the run lock for a report. The upsert only succeeds
// when no lock row exists or the existing one is older than staleAfter,
// making acquire-then-check-then-set a single atomic statement. Returns
// false when another run holds a fresh lock.
func (s *Store) AcquireLock(reportID int, holder string, staleAfter time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO run_locks (report_id, holder, acquired_at) VALUES (?, ?, ?)
		ON CONFLICT(report_id) DO UPDATE SET holder = excluded.holder, acquired_at = excluded.acquired_at
		WHERE run_locks.acquired_at <= ?
	`, reportID, holder, now, now.Add(-staleAfter))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseLock frees a report's run lock. Only the holder that acquired
// it may release it; a stale-takeover winner keeps its claim.
func (s *Store) ReleaseLock(reportID int, holder string) error {
	_, err := s.db.Exec(`DELETE FROM run_locks WHERE report_id = ? AND holder = ?`, reportID, holder)
	return err
}
