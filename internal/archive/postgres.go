package archive

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/avalon-server/internal/engine"
)

// sessionEvent is the postgres row for one archived event.
type sessionEvent struct {
	SessionID  int64     `gorm:"primaryKey;autoIncrement:false"`
	Seq        int       `gorm:"primaryKey;autoIncrement:false"`
	EventType  string    `gorm:"not null;index:idx_session_events_type"`
	Payload    string    `gorm:"type:jsonb;not null"`
	ArchivedAt time.Time `gorm:"not null"`
}

func (sessionEvent) TableName() string { return "session_events" }

type PostgresStore struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	if err := db.AutoMigrate(&sessionEvent{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Append(ctx context.Context, r Record) error {
	payload, err := encode(r.Event)
	if err != nil {
		return err
	}
	row := sessionEvent{
		SessionID:  r.SessionID,
		Seq:        r.Event.Seq,
		EventType:  string(r.Event.Type),
		Payload:    payload,
		ArchivedAt: r.At.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, sessionID int64) ([]engine.Event, error) {
	var rows []sessionEvent
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	events := make([]engine.Event, 0, len(rows))
	for _, row := range rows {
		e, err := decode(row.Payload)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
