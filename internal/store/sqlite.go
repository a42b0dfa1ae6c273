package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"interview-turn-service/internal/models"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the turn history database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single writer avoids SQLITE_BUSY between concurrent turns.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS turns (
		turn_id TEXT PRIMARY KEY,
		session_code TEXT NOT NULL DEFAULT '',
		transcript TEXT NOT NULL,
		feedback_text TEXT NOT NULL DEFAULT '',
		diagram_source TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_code, finished_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveTurn inserts a turn record, replacing every column of an earlier record with the same ID.
func (s *SQLiteStore) SaveTurn(ctx context.Context, turn models.TurnRecord) error {
	query := `
	INSERT INTO turns (turn_id, session_code, transcript, feedback_text, diagram_source,
		outcome, error, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(turn_id) DO UPDATE SET
		session_code = excluded.session_code,
		transcript = excluded.transcript,
		started_at = excluded.started_at,
		feedback_text = excluded.feedback_text,
		diagram_source = excluded.diagram_source,
		outcome = excluded.outcome,
		error = excluded.error,
		finished_at = excluded.finished_at`

	_, err := s.db.ExecContext(ctx, query,
		turn.TurnID, turn.SessionCode, turn.Transcript, turn.FeedbackText, turn.DiagramSource,
		string(turn.Outcome), turn.Error, turn.StartedAt.UnixMilli(), turn.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save turn %s: %w", turn.TurnID, err)
	}
	return nil
}

// ListTurns returns the most recent turns first.
func (s *SQLiteStore) ListTurns(ctx context.Context, sessionCode string, limit int) ([]models.TurnRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT turn_id, session_code, transcript, feedback_text, diagram_source,
		       outcome, error, started_at, finished_at
		FROM turns
		WHERE (? = '' OR session_code = ?)
		ORDER BY finished_at DESC, turn_id DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, sessionCode, sessionCode, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	turns := []models.TurnRecord{}
	for rows.Next() {
		var t models.TurnRecord
		var outcome string
		var startedAt, finishedAt int64
		if err := rows.Scan(
			&t.TurnID, &t.SessionCode, &t.Transcript, &t.FeedbackText, &t.DiagramSource,
			&outcome, &t.Error, &startedAt, &finishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Outcome = models.TurnOutcome(outcome)
		t.StartedAt = time.UnixMilli(startedAt)
		t.FinishedAt = time.UnixMilli(finishedAt)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
