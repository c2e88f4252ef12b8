// Package journal stores composite send results and observed login
// statuses in SQLite.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cronos/internal/messaging"
	"cronos/internal/session"

	_ "github.com/mattn/go-sqlite3"
)

// Login is one observed login status.
type Login struct {
	Identity   string
	Status     session.LoginStatus
	ObservedAt time.Time
}

// Store is the SQLite journal.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Open creates or opens the journal at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sends (
		id TEXT PRIMARY KEY,
		identity TEXT NOT NULL,
		target TEXT NOT NULL,
		non_contact INTEGER NOT NULL DEFAULT 0,
		kinds_json TEXT,
		success INTEGER NOT NULL,
		step TEXT,
		error TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sends_identity ON sends(identity);
	CREATE INDEX IF NOT EXISTS idx_sends_started ON sends(started_at);

	CREATE TABLE IF NOT EXISTS logins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity TEXT NOT NULL,
		status TEXT NOT NULL,
		qr_code TEXT,
		error TEXT,
		observed_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_logins_identity ON logins(identity);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordSend stores a send result.
func (s *Store) RecordSend(ctx context.Context, r messaging.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kindsJSON, _ := json.Marshal(r.Kinds)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sends (id, identity, target, non_contact, kinds_json, success,
			step, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Session, r.To, r.NonContact, string(kindsJSON), r.Success,
		string(r.Step), r.Error, r.StartedAt.UTC(), r.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record send: %w", err)
	}
	return nil
}

// RecordLogin stores an observed login status.
func (s *Store) RecordLogin(ctx context.Context, identity string, status session.LoginStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO logins (identity, status, qr_code, error, observed_at)
		VALUES (?, ?, ?, ?, ?)
	`, identity, string(status.Status), status.QRCode, status.Error, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// RecentSends returns the latest sends, newest first. An empty identity
// matches every session.
func (s *Store) RecentSends(ctx context.Context, identity string, limit int) ([]messaging.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identity, target, non_contact, kinds_json, success, step, error,
			started_at, finished_at
		FROM sends
		WHERE ? = '' OR identity = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, identity, identity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sends []messaging.Result
	for rows.Next() {
		var r messaging.Result
		var kindsJSON, step, errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.Session, &r.To, &r.NonContact, &kindsJSON, &r.Success,
			&step, &errMsg, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan send: %w", err)
		}
		if kindsJSON.Valid {
			_ = json.Unmarshal([]byte(kindsJSON.String), &r.Kinds)
		}
		r.Step = messaging.Step(step.String)
		r.Error = errMsg.String
		sends = append(sends, r)
	}
	return sends, rows.Err()
}

// RecentLogins returns the latest login observations of identity, newest
// first.
func (s *Store) RecentLogins(ctx context.Context, identity string, limit int) ([]Login, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, status, qr_code, error, observed_at
		FROM logins
		WHERE identity = ?
		ORDER BY id DESC
		LIMIT ?
	`, identity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logins []Login
	for rows.Next() {
		var l Login
		var status string
		var qr, errMsg sql.NullString
		if err := rows.Scan(&l.Identity, &status, &qr, &errMsg, &l.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan login: %w", err)
		}
		l.Status = session.LoginStatus{Status: session.Status(status), QRCode: qr.String, Error: errMsg.String}
		logins = append(logins, l)
	}
	return logins, rows.Err()
}
