// Package sessionstore persists onboarding sessions in SQLite. Sessions,
// their conversation turns, and the collected profile fields each get a
// table; the session row carries status and timestamps.
package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/nugget/onboard/internal/llm"
	"github.com/nugget/onboard/internal/onboarding"
)

// Store implements [onboarding.Store] on a SQLite database. All public
// methods are safe for concurrent use (SQLite serializes writes).
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ onboarding.Store = (*Store)(nil)

// Open opens the database at path with the named driver ("sqlite3" or
// "sqlite") and prepares the schema.
func Open(driver, path string) (*Store, error) {
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database, running migrations on first use.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate sessions: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		status       TEXT NOT NULL,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

	CREATE TABLE IF NOT EXISTS turns (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		speaker    TEXT NOT NULL,
		text       TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq);

	CREATE TABLE IF NOT EXISTS profile_fields (
		session_id TEXT NOT NULL REFERENCES sessions(id),
		field      TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (session_id, field)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// CreateSession inserts a new in-progress session for userID.
func (s *Store) CreateSession(ctx context.Context, userID string) (*onboarding.Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	now := s.now().UTC()
	ts := now.Format(time.RFC3339Nano)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id.String(), userID, string(onboarding.StatusInProgress), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return &onboarding.Session{
		ID:        id.String(),
		UserID:    userID,
		Status:    onboarding.StatusInProgress,
		Profile:   onboarding.Profile{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// LoadSession returns the session with its full history and profile.
func (s *Store) LoadSession(ctx context.Context, id string) (*onboarding.Session, error) {
	var (
		sess             onboarding.Session
		status           string
		created, updated string
		completed        sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, status, created_at, updated_at, completed_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.UserID, &status, &created, &updated, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, onboarding.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	sess.Status = onboarding.Status(status)
	sess.CreatedAt = parseTime(created)
	sess.UpdatedAt = parseTime(updated)
	if completed.Valid {
		sess.CompletedAt = parseTime(completed.String)
	}

	if sess.History, err = s.turns(ctx, id); err != nil {
		return nil, err
	}
	if sess.Profile, err = s.profile(ctx, id); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) turns(ctx context.Context, id string) ([]onboarding.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT speaker, text, created_at FROM turns
		 WHERE session_id = ? ORDER BY seq`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []onboarding.Turn
	for rows.Next() {
		var speaker, text, created string
		if err := rows.Scan(&speaker, &text, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, onboarding.Turn{
			Speaker:   llm.Speaker(speaker),
			Text:      text,
			CreatedAt: parseTime(created),
		})
	}
	return turns, rows.Err()
}

func (s *Store) profile(ctx context.Context, id string) (onboarding.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, value FROM profile_fields WHERE session_id = ?`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	defer rows.Close()

	profile := onboarding.Profile{}
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("scan profile field: %w", err)
		}
		profile[field] = value
	}
	return profile, rows.Err()
}

// AppendTurn adds one turn to the end of the session's history.
func (s *Store) AppendTurn(ctx context.Context, id string, speaker llm.Speaker, text string) error {
	return s.inTx(ctx, id, func(tx *sql.Tx, ts string) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO turns (session_id, speaker, text, created_at)
			 VALUES (?, ?, ?, ?)`,
			id, string(speaker), text, ts,
		)
		if err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
		return nil
	})
}

// MergeProfileFields upserts each entry of fields into the session's
// profile. Fields not named are left alone.
func (s *Store) MergeProfileFields(ctx context.Context, id string, fields map[string]string) error {
	return s.inTx(ctx, id, func(tx *sql.Tx, ts string) error {
		for field, value := range fields {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO profile_fields (session_id, field, value, updated_at)
				 VALUES (?, ?, ?, ?)
				 ON CONFLICT (session_id, field) DO UPDATE
				 SET value = excluded.value, updated_at = excluded.updated_at`,
				id, field, value, ts,
			)
			if err != nil {
				return fmt.Errorf("upsert field %s: %w", field, err)
			}
		}
		return nil
	})
}

// MarkCompleted sets the session's status to completed and records the
// completion time. Completing an already-completed session keeps the
// original completion time.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	return s.inTx(ctx, id, func(tx *sql.Tx, ts string) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE sessions SET status = ?, completed_at = COALESCE(completed_at, ?)
			 WHERE id = ?`,
			string(onboarding.StatusCompleted), ts, id,
		)
		if err != nil {
			return fmt.Errorf("mark completed: %w", err)
		}
		return nil
	})
}

// inTx touches the session's updated_at and runs fn in the same
// transaction. It returns [onboarding.ErrSessionNotFound] when no
// session has the given id.
func (s *Store) inTx(ctx context.Context, id string, fn func(tx *sql.Tx, ts string) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ts := s.timestamp()
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, ts, id,
	)
	if err != nil {
		return fmt.Errorf("touch session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch session %s: %w", id, err)
	}
	if n == 0 {
		return onboarding.ErrSessionNotFound
	}

	if err := fn(tx, ts); err != nil {
		return err
	}
	return tx.Commit()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
