package agentrelay

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var _ TranscriptStore = &PostgresStorage{}

type transcriptItem struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"index:idx_transcript_session_position,unique;not null"`
	Position  int    `gorm:"index:idx_transcript_session_position,unique;not null"`
	ItemID    string `gorm:"not null"`
	Kind      string `gorm:"not null"`
	Role      string `gorm:"not null"`
	Payload   string `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
}

func (transcriptItem) TableName() string {
	return "transcript_items"
}

// PostgresStorage implements TranscriptStore on Postgres through gorm.
type PostgresStorage struct {
	db *gorm.DB
}

func NewPostgresStorage(dsn string) (*PostgresStorage, error) {
	return newPostgresStorage(postgres.Open(dsn))
}

func newPostgresStorage(dialector gorm.Dialector) (*PostgresStorage, error) {
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&transcriptItem{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &PostgresStorage{db: db}, nil
}

func (s *PostgresStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStorage) SaveTranscript(ctx context.Context, sessionID string, items []Item) error {
	rows := make([]transcriptItem, 0, len(items))
	for _, item := range items {
		if !persistable(item) {
			continue
		}
		payload, err := encodeItem(item)
		if err != nil {
			return err
		}
		rows = append(rows, transcriptItem{
			SessionID: sessionID,
			Position:  len(rows),
			ItemID:    item.ID,
			Kind:      string(item.Kind),
			Role:      string(item.Role),
			Payload:   payload,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&transcriptItem{}).Error; err != nil {
			return fmt.Errorf("failed to clear transcript: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert transcript: %w", err)
		}
		return nil
	})
}

func (s *PostgresStorage) LoadTranscript(ctx context.Context, sessionID string) ([]Item, error) {
	var rows []transcriptItem
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		item, err := decodeItem(row.Payload)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
