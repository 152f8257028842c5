package client

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Transcript writes a local log of each session to SQLite. It is never read
// back by the client. Write failures are logged and otherwise ignored.
type Transcript struct {
	db     *sql.DB
	logger *log.Logger

	mu        sync.Mutex
	sessionID int64 // 0 when no session is open
}

// OpenTranscript opens or creates the transcript database at path
func OpenTranscript(path string, logger *log.Logger) (*Transcript, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create transcript directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	t := &Transcript{db: db, logger: logger}
	if err := t.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return t, nil
}

func (t *Transcript) logf(format string, args ...interface{}) {
	if t.logger != nil {
		t.logger.Printf(format, args...)
	}
}

// Close ends any open session and closes the database
func (t *Transcript) Close() error {
	t.EndSession("closed")
	return t.db.Close()
}

// StartSession opens a new session row; later records attach to it
func (t *Transcript) StartSession(server string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	res, err := t.db.Exec(`INSERT INTO sessions (server, started_at) VALUES (?, ?)`, server, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to start transcript session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to start transcript session: %w", err)
	}
	t.sessionID = id
	return nil
}

// EndSession marks the open session as finished
func (t *Transcript) EndSession(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sessionID == 0 {
		return
	}
	if _, err := t.db.Exec(`UPDATE sessions SET ended_at = ?, end_reason = ? WHERE id = ?`, time.Now().Unix(), reason, t.sessionID); err != nil {
		t.logf("Transcript: failed to end session %d: %v", t.sessionID, err)
	}
	t.sessionID = 0
}

// RecordInbound implements Recorder
func (t *Transcript) RecordInbound(text, commands string) {
	t.insert("in", text, commands, nil)
}

// RecordCommand implements Recorder
func (t *Transcript) RecordCommand(line string, err error) {
	t.insert("command", line, "", err)
}

// RecordOutbound implements Recorder
func (t *Transcript) RecordOutbound(text, status string) {
	t.insert("out", text, status, nil)
}

func (t *Transcript) insert(direction, body, extra string, failure error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sessionID == 0 {
		return
	}

	var errText sql.NullString
	if failure != nil {
		errText = sql.NullString{String: failure.Error(), Valid: true}
	}
	if _, err := t.db.Exec(`
		INSERT INTO entries (session_id, at, direction, body, extra, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.sessionID, time.Now().Unix(), direction, body, extra, errText); err != nil {
		t.logf("Transcript: failed to record %s entry: %v", direction, err)
	}
}

// Entry is one recorded line of a session
type Entry struct {
	Direction string
	Body      string
	Extra     string
	Error     string
}

// Entries returns the entries of a session in recording order
func (t *Transcript) Entries(sessionID int64) ([]Entry, error) {
	rows, err := t.db.Query(`
		SELECT direction, body, extra, COALESCE(error, '')
		FROM entries WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Direction, &e.Body, &e.Extra, &e.Error); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LastSessionID returns the id of the most recently started session, or 0
func (t *Transcript) LastSessionID() (int64, error) {
	var id int64
	err := t.db.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM sessions`).Scan(&id)
	return id, err
}
