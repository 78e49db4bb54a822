// Package repository persists the per-session conversation log.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"support-agent/internal/domain"
)

// HistoryStore defines the conversation log operations consumed by the
// orchestrator and the webhook handler.
type HistoryStore interface {
	ReadLastN(ctx context.Context, sessionID string, n int) ([]domain.Turn, error)
	Append(ctx context.Context, turn domain.Turn) error
	MarkProcessed(ctx context.Context, messageID string) (bool, error)
}

// Store wraps a gorm connection to the session history tables.
type Store struct {
	db *gorm.DB
}

// New opens the database for the given driver ("postgres" or "sqlite") and
// runs migrations.
func New(driver, dsn string) (*Store, error) {
	db, err := openGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open %s: %w", driver, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("repository: migrate: %w", err)
	}
	return s, nil
}

func openGorm(driver, dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("dsn must not be empty")
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(&turnRow{}, &processedMessageRow{})
}

// ReadLastN returns the most recent n turns for a session in chronological
// order.
func (s *Store) ReadLastN(ctx context.Context, sessionID string, n int) ([]domain.Turn, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("repository: session id must not be empty")
	}
	if n <= 0 {
		return nil, nil
	}

	var rows []turnRow
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("repository: read history: %w", err)
	}

	turns := make([]domain.Turn, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		turns = append(turns, rows[i].toTurn())
	}
	return turns, nil
}

// Append writes one turn at the end of the session's log.
func (s *Store) Append(ctx context.Context, turn domain.Turn) error {
	if strings.TrimSpace(turn.SessionID) == "" {
		return errors.New("repository: turn session id must not be empty")
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	row := turnRowFromTurn(turn)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("repository: append turn: %w", err)
	}
	return nil
}

// MarkProcessed records a platform message id and reports whether it was
// seen before. Webhook deliveries are at-least-once; a true result means
// the event is a redelivery and must be skipped.
func (s *Store) MarkProcessed(ctx context.Context, messageID string) (bool, error) {
	if strings.TrimSpace(messageID) == "" {
		return false, nil
	}

	row := processedMessageRow{MessageID: messageID, ProcessedAt: time.Now().UTC()}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("repository: mark processed: %w", res.Error)
	}
	return res.RowsAffected == 0, nil
}
