package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vincentbai/browsetrace-scribe/internal/models"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

type Database struct {
	db *sql.DB
}

func NewDatabase(databasePath string) (*Database, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", databasePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS sessions(
	  id          TEXT PRIMARY KEY,
	  started_utc INTEGER NOT NULL,
	  ended_utc   INTEGER
	);
	CREATE TABLE IF NOT EXISTS events(
	  id          INTEGER PRIMARY KEY,
	  session_id  TEXT    NOT NULL REFERENCES sessions(id),
	  seq         INTEGER NOT NULL,
	  t_ms        INTEGER NOT NULL,
	  kind        TEXT    NOT NULL CHECK (kind IN ('navigate','click','fill','select','submit','toggle','modal_open','modal_close')),
	  target_json TEXT             CHECK (target_json IS NULL OR json_valid(target_json)),
	  value       TEXT,
	  route       TEXT    NOT NULL DEFAULT '',
	  url         TEXT    NOT NULL DEFAULT '',
	  pathname    TEXT    NOT NULL DEFAULT '',
	  fragment    TEXT    NOT NULL DEFAULT '',
	  wait_ms     INTEGER NOT NULL DEFAULT 0,
	  raw_script  TEXT    NOT NULL DEFAULT '',
	  UNIQUE(session_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, seq);
	CREATE INDEX IF NOT EXISTS idx_events_kind    ON events(kind);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) ValidateEvent(event models.Event) error {
	if event.Kind == "" {
		return fmt.Errorf("kind cannot be empty")
	}
	if !models.ValidKinds[event.Kind] {
		return fmt.Errorf("invalid event kind: %s", event.Kind)
	}
	if event.TMs < 0 {
		return fmt.Errorf("timestamp cannot be negative")
	}
	if event.WaitMs < 0 {
		return fmt.Errorf("wait cannot be negative")
	}
	return nil
}

// CreateSession registers a new recording session.
func (d *Database) CreateSession(sessionID string, startedAt time.Time) error {
	if sessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if _, err := d.db.Exec(
		`INSERT INTO sessions(id, started_utc) VALUES(?, ?)`,
		sessionID, startedAt.UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// EndSession stamps the session's end time.
func (d *Database) EndSession(sessionID string, endedAt time.Time) error {
	result, err := d.db.Exec(
		`UPDATE sessions SET ended_utc = ? WHERE id = ?`,
		endedAt.UTC().UnixMilli(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("unknown session: %s", sessionID)
	}
	return nil
}

// AppendEvents appends a batch of events to a session in one transaction.
// Sequence numbers continue from the session's current tail.
func (d *Database) AppendEvents(sessionID string, events []models.Event) error {
	transaction, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	var next int
	if err := transaction.QueryRow(
		`SELECT COALESCE(MAX(seq)+1, 0) FROM events WHERE session_id = ?`, sessionID,
	).Scan(&next); err != nil {
		_ = transaction.Rollback()
		return fmt.Errorf("failed to read session tail: %w", err)
	}

	statement, err := transaction.Prepare(`INSERT INTO events(session_id, seq, t_ms, kind, target_json, value, route, url, pathname, fragment, wait_ms, raw_script)
	 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		_ = transaction.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer statement.Close()

	for _, event := range events {
		if err := d.ValidateEvent(event); err != nil {
			_ = transaction.Rollback()
			return fmt.Errorf("invalid event: %w", err)
		}

		var targetJSON *string
		if event.Target != nil {
			data, err := json.Marshal(event.Target)
			if err != nil {
				_ = transaction.Rollback()
				return fmt.Errorf("failed to marshal event target: %w", err)
			}
			s := string(data)
			targetJSON = &s
		}
		if _, err := statement.Exec(
			sessionID, next, event.TMs, string(event.Kind), targetJSON, event.Value,
			event.Route, event.URL, event.Pathname, event.Fragment, event.WaitMs, event.RawScript,
		); err != nil {
			_ = transaction.Rollback()
			return fmt.Errorf("failed to execute statement: %w", err)
		}
		next++
	}
	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadSession reads a complete session with its events in recording order.
func (d *Database) LoadSession(sessionID string) (*models.Session, error) {
	var startedMs int64
	var endedMs sql.NullInt64
	err := d.db.QueryRow(
		`SELECT started_utc, ended_utc FROM sessions WHERE id = ?`, sessionID,
	).Scan(&startedMs, &endedMs)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("unknown session: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	session := &models.Session{
		SessionID: sessionID,
		StartedAt: time.UnixMilli(startedMs).UTC(),
		Events:    []models.Event{},
	}
	if endedMs.Valid {
		session.EndedAt = time.UnixMilli(endedMs.Int64).UTC()
	}

	rows, err := d.db.Query(
		`SELECT t_ms, kind, target_json, value, route, url, pathname, fragment, wait_ms, raw_script
		 FROM events WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var event models.Event
		var kind string
		var targetJSON sql.NullString
		var value sql.NullString
		if err := rows.Scan(
			&event.TMs, &kind, &targetJSON, &value,
			&event.Route, &event.URL, &event.Pathname, &event.Fragment,
			&event.WaitMs, &event.RawScript,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Kind = models.EventKind(kind)
		if targetJSON.Valid {
			var target models.Target
			if err := json.Unmarshal([]byte(targetJSON.String), &target); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event target: %w", err)
			}
			event.Target = &target
		}
		if value.Valid {
			v := value.String
			event.Value = &v
		}
		session.Events = append(session.Events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return session, nil
}

// SessionInfo is a listing row for stored sessions.
type SessionInfo struct {
	SessionID   string
	StartedAt   time.Time
	EventsCount int
}

// ListSessions returns stored sessions, newest first.
func (d *Database) ListSessions() ([]SessionInfo, error) {
	rows, err := d.db.Query(`
	SELECT s.id, s.started_utc, COUNT(e.id)
	FROM sessions s LEFT JOIN events e ON e.session_id = s.id
	GROUP BY s.id ORDER BY s.started_utc DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var startedMs int64
		if err := rows.Scan(&info.SessionID, &startedMs, &info.EventsCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		info.StartedAt = time.UnixMilli(startedMs).UTC()
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return out, nil
}
