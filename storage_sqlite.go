package agentrelay

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var _ TranscriptStore = &SQLiteStorage{}

// SQLiteStorage implements TranscriptStore using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens the transcript database at dbPath.
// The transcript_items table is created on first use.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &SQLiteStorage{db: db}
	if err := storage.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return storage, nil
}

// initDB creates transcript_items and its session index.
func (s *SQLiteStorage) initDB() error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS transcript_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		kind TEXT NOT NULL,
		role TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(session_id, position)
	);
	CREATE INDEX IF NOT EXISTS idx_transcript_items_session ON transcript_items(session_id);`

	_, err := s.db.Exec(createTableSQL)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// Close releases the database handle.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveTranscript replaces the stored transcript of the session in one transaction.
func (s *SQLiteStorage) SaveTranscript(ctx context.Context, sessionID string, items []Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM transcript_items WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}

	query := `
	INSERT INTO transcript_items (session_id, item_id, position, kind, role, payload, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	position := 0
	for _, item := range items {
		if !persistable(item) {
			continue
		}
		payload, err := encodeItem(item)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, sessionID, item.ID, position, item.Kind, item.Role, payload, now); err != nil {
			return fmt.Errorf("failed to insert transcript item: %w", err)
		}
		position++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transcript: %w", err)
	}
	return nil
}

// LoadTranscript returns the stored items of the session in their original order.
func (s *SQLiteStorage) LoadTranscript(ctx context.Context, sessionID string) ([]Item, error) {
	query := `
	SELECT payload
	FROM transcript_items
	WHERE session_id = ?
	ORDER BY position ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		item, err := decodeItem(payload)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return items, nil
}
