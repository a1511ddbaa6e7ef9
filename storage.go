package agentrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// TranscriptStore persists the conversation history of a session so the next
// run can continue it. SaveTranscript replaces what was stored for the
// session; LoadTranscript returns an empty history for an unknown session.
type TranscriptStore interface {
	SaveTranscript(ctx context.Context, sessionID string, items []Item) error
	LoadTranscript(ctx context.Context, sessionID string) ([]Item, error)
	Close() error
}

// OpenTranscriptStore picks the backend from dsn: a postgres:// or
// postgresql:// URL opens Postgres, anything else is a SQLite file path.
func OpenTranscriptStore(dsn string) (TranscriptStore, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgresStorage(dsn)
	}
	return NewSQLiteStorage(dsn)
}

// persistable reports whether item belongs in a stored transcript. Items that
// never completed are not replayed to the model, so they are not kept either.
func persistable(item Item) bool {
	return item.Status == ItemStatusCompleted
}

func encodeItem(item Item) (string, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("failed to encode item %s: %w", item.ID, err)
	}
	return string(data), nil
}

func decodeItem(payload string) (Item, error) {
	var item Item
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		return Item{}, fmt.Errorf("failed to decode item: %w", err)
	}
	return item, nil
}
