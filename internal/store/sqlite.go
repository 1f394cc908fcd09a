package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/smartfi/internal/domain"
	"github.com/ashureev/smartfi/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analysis_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		source TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analysis_messages_session ON analysis_messages(session_id, id);
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

// Get returns the value stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set creates or replaces the value for key.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	err := shared.RetryOnConflict(ctx, s.retry, "kv.set", func() error {
		_, err := s.db.ExecContext(ctx, query, key, value, time.Now().Unix())
		return err
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Remove deletes key.
func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	err := shared.RetryOnConflict(ctx, s.retry, "kv.remove", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
		return err
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// AppendMessage stores one analysis history entry.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.AnalysisMessage) error {
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var source interface{}
	if msg.Source != "" {
		source = msg.Source
	}

	query := `
		INSERT INTO analysis_messages (session_id, role, content, source, created_at)
		VALUES (?, ?, ?, ?, ?)`
	err := shared.RetryOnConflict(ctx, s.retry, "messages.append", func() error {
		_, err := s.db.ExecContext(ctx, query, msg.SessionID, msg.Role, msg.Content, source, createdAt.UnixMilli())
		return err
	})
	if err != nil {
		return fmt.Errorf("append analysis message: %w", err)
	}
	return nil
}

// ListMessages returns the latest limit entries for a session, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]*domain.AnalysisMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT session_id, role, content, source, created_at FROM (
			SELECT id, session_id, role, content, source, created_at
			FROM analysis_messages WHERE session_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query analysis messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close analysis message rows", "error", closeErr)
		}
	}()

	var msgs []*domain.AnalysisMessage
	for rows.Next() {
		var msg domain.AnalysisMessage
		var source sql.NullString
		var createdAt int64
		if err := rows.Scan(&msg.SessionID, &msg.Role, &msg.Content, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan analysis message row: %w", err)
		}
		msg.Source = source.String
		msg.CreatedAt = time.UnixMilli(createdAt)
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis messages: %w", err)
	}
	return msgs, nil
}

// DeleteMessages removes a session's history.
func (s *SQLiteStore) DeleteMessages(ctx context.Context, sessionID string) (int64, error) {
	var deleted int64
	err := shared.RetryOnConflict(ctx, s.retry, "messages.delete", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM analysis_messages WHERE session_id = ?`, sessionID)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete analysis messages: %w", err)
	}
	return deleted, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

var _ Repository = (*SQLiteStore)(nil)
