// Package journal keeps a SQLite record of session operations so a run can
// be inspected after the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/loqalabs/phonex/internal/config"
	"github.com/loqalabs/phonex/internal/session"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one recorded operation.
type Entry struct {
	ID        int64
	SessionID string
	Operation string
	From      string
	To        string
	Specs     int
	Samples   int
	Voice     string
	Error     string
	CreatedAt time.Time
}

// SessionInfo describes a journaled session.
type SessionInfo struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Journal wraps the SQLite database. In ephemeral mode it records nothing.
type Journal struct {
	db    *sql.DB
	cfg   config.JournalConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open prepares the journal according to cfg.
func Open(ctx context.Context, cfg config.JournalConfig, log *slog.Logger) (*Journal, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Journal{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	j := &Journal{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("journal vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := j.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", slog.String("error", err.Error()))
	}
	return j, nil
}

func (j *Journal) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    name TEXT,
    created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS transitions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    operation TEXT NOT NULL,
    from_phase TEXT,
    to_phase TEXT,
    specs INTEGER,
    samples INTEGER,
    voice TEXT,
    error TEXT,
    created_at TEXT NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_transitions_session ON transitions(session_id, id);
`
	_, err := j.db.ExecContext(ctx, ddl)
	return err
}

func (j *Journal) enabled() bool {
	return j.cfg.RetentionMode != "ephemeral" && j.db != nil
}

// Close releases the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// StartSession creates a session row and returns its id.
func (j *Journal) StartSession(ctx context.Context, name string) (string, error) {
	id := uuid.NewString()
	if !j.enabled() {
		return id, nil
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, name, created_at) VALUES(?, ?, ?)`,
		id, name, j.now())
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return id, nil
}

// Append stores one entry.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if !j.enabled() {
		return nil
	}
	created := j.now()
	if !e.CreatedAt.IsZero() {
		created = e.CreatedAt.UTC().Format(timeLayout)
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO transitions(session_id, operation, from_phase, to_phase, specs, samples, voice, error, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Operation, e.From, e.To, e.Specs, e.Samples, e.Voice, e.Error, created)
	return err
}

// List returns up to limit entries of a session in recording order.
func (j *Journal) List(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if !j.enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, session_id, operation, from_phase, to_phase, specs, samples, voice, error, created_at
		 FROM transitions WHERE session_id = ? ORDER BY id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Operation, &e.From, &e.To, &e.Specs, &e.Samples, &e.Voice, &e.Error, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(timeLayout, created); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Sessions lists the newest sessions first.
func (j *Journal) Sessions(ctx context.Context, limit int) ([]SessionInfo, error) {
	if !j.enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT session_id, name, created_at FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var s SessionInfo
		var created string
		if err := rows.Scan(&s.ID, &s.Name, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(timeLayout, created); err == nil {
			s.CreatedAt = ts
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune applies the configured retention.
func (j *Journal) Prune(ctx context.Context) (err error) {
	if !j.enabled() {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if j.cfg.RetentionDays > 0 {
		cutoff := j.clock().Add(-time.Duration(j.cfg.RetentionDays) * 24 * time.Hour).UTC().Format(timeLayout)
		if _, err = tx.ExecContext(ctx, `DELETE FROM transitions WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if j.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, j.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (j *Journal) now() string {
	return j.clock().UTC().Format(timeLayout)
}

// Recorder binds the journal to one session for an engine.
func (j *Journal) Recorder(sessionID string) session.Recorder {
	return &recorder{journal: j, sessionID: sessionID}
}

type recorder struct {
	journal   *Journal
	sessionID string
}

func (r *recorder) Record(ctx context.Context, t session.Transition) error {
	e := Entry{
		SessionID: r.sessionID,
		Operation: t.Operation,
		From:      t.From.String(),
		To:        t.To.String(),
		Specs:     t.Specs,
		Samples:   t.Samples,
		Voice:     t.Voice,
		CreatedAt: t.At,
	}
	if t.Err != nil {
		e.Error = t.Err.Error()
	}
	return r.journal.Append(ctx, e)
}
