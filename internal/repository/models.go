package repository

import (
	"time"

	"support-agent/internal/domain"
)

type turnRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	SessionID string    `gorm:"size:191;not null;index:idx_turns_session_id_id,priority:1"`
	Speaker   string    `gorm:"size:16;not null"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (turnRow) TableName() string {
	return "turns"
}

func (r turnRow) toTurn() domain.Turn {
	return domain.Turn{
		SessionID: r.SessionID,
		Speaker:   domain.Speaker(r.Speaker),
		Text:      r.Text,
		CreatedAt: r.CreatedAt,
	}
}

func turnRowFromTurn(t domain.Turn) turnRow {
	return turnRow{
		SessionID: t.SessionID,
		Speaker:   string(t.Speaker),
		Text:      t.Text,
		CreatedAt: t.CreatedAt,
	}
}

type processedMessageRow struct {
	MessageID   string    `gorm:"primaryKey;size:191"`
	ProcessedAt time.Time `gorm:"not null"`
}

func (processedMessageRow) TableName() string {
	return "processed_messages"
}
