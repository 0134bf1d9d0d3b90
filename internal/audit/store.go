// Package audit keeps a trail of the changes made through the development
// API server: sign-ins and every create, update and delete.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"grimm.is/rampart/internal/clock"
	"grimm.is/rampart/internal/logging"

	_ "modernc.org/sqlite"
)

// Event is one audit record.
type Event struct {
	ID        int64          `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	User      string         `json:"user"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Status    int            `json:"status"`
	IP        string         `json:"ip,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Query selects events. Zero fields do not filter.
type Query struct {
	Since  time.Time
	Until  time.Time
	Action string
	User   string
	Limit  int
}

// Options configures a Store.
type Options struct {
	Path      string        // database file, or ":memory:"
	Retention time.Duration // default 30 days
	Clock     clock.Clock
}

// Store persists events in SQLite.
type Store struct {
	mu        sync.RWMutex
	db        *sql.DB
	clock     clock.Clock
	retention time.Duration
}

// Open opens or creates the audit database.
func Open(opts Options) (*Store, error) {
	if opts.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			ts         INTEGER NOT NULL,
			user       TEXT NOT NULL,
			action     TEXT NOT NULL,
			resource   TEXT NOT NULL,
			status     INTEGER DEFAULT 0,
			ip         TEXT,
			request_id TEXT,
			details    TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_events(ts);
		CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_events(user);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	if opts.Retention <= 0 {
		opts.Retention = 30 * 24 * time.Hour
	}
	return &Store{db: db, clock: clock.OrReal(opts.Clock), retention: opts.Retention}, nil
}

// Write persists evt, stamping it with the current time when unset.
func (s *Store) Write(ctx context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.clock.Now()
	}
	var details []byte
	if evt.Details != nil {
		var err error
		if details, err = json.Marshal(evt.Details); err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (ts, user, action, resource, status, ip, request_id, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.Timestamp.UnixMilli(), evt.User, evt.Action, evt.Resource, evt.Status, evt.IP, evt.RequestID, string(details))
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Query returns matching events, newest first.
func (s *Store) Query(ctx context.Context, q Query) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, ts, user, action, resource, status, ip, request_id, details
		FROM audit_events WHERE 1=1`
	var args []any
	if !q.Since.IsZero() {
		query += " AND ts >= ?"
		args = append(args, q.Since.UnixMilli())
	}
	if !q.Until.IsZero() {
		query += " AND ts <= ?"
		args = append(args, q.Until.UnixMilli())
	}
	if q.Action != "" {
		query += " AND action = ?"
		args = append(args, q.Action)
	}
	if q.User != "" {
		query += " AND user = ?"
		args = append(args, q.User)
	}
	query += " ORDER BY id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			evt                 Event
			ts                  int64
			ip, rid, detailsRaw sql.NullString
		)
		if err := rows.Scan(&evt.ID, &ts, &evt.User, &evt.Action, &evt.Resource, &evt.Status, &ip, &rid, &detailsRaw); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		evt.Timestamp = time.UnixMilli(ts)
		evt.IP, evt.RequestID = ip.String, rid.String
		if detailsRaw.String != "" {
			if err := json.Unmarshal([]byte(detailsRaw.String), &evt.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Prune removes events older than the retention period.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-s.retention).UnixMilli()
	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE ts < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	return result.RowsAffected()
}

// RunPrune prunes every interval until ctx is done.
func (s *Store) RunPrune(ctx context.Context, interval time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Prune(ctx)
			if err != nil {
				logger.Warn("audit prune failed", "error", err)
			} else if n > 0 {
				logger.Debug("audit events pruned", "count", n)
			}
		}
	}
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&count)
	return count, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
