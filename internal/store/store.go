package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"archean-status-relay/internal/model"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrPersistence wraps every failure of the underlying database.
	ErrPersistence = errors.New("persistence error")
)

// ReminderStore is the reminder table capability used by the waiting list.
type ReminderStore interface {
	FindReminder(ctx context.Context, requesterID string) (model.Reminder, error)
	UpsertReminder(ctx context.Context, r model.Reminder) (model.Reminder, error)
	DeleteReminder(ctx context.Context, requesterID string) (model.Reminder, error)
	RemindersForCount(ctx context.Context, count int) ([]model.Reminder, error)
	DeleteReminderIfTarget(ctx context.Context, id int64, target int) (bool, error)
}

// StatisticStore is the append-only statistics table capability.
type StatisticStore interface {
	AppendStatistic(ctx context.Context, rec *model.StatisticRecord) error
	PeakStatistic(ctx context.Context) (*model.StatisticRecord, error)
	RecentStatistics(ctx context.Context, limit int) ([]model.StatisticRecord, error)
}

// SubscriptionStore manages push subscriptions for direct delivery.
type SubscriptionStore interface {
	SaveSubscription(ctx context.Context, sub model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
}

// Store defines every table operation of the relay.
type Store interface {
	ReminderStore
	StatisticStore
	SubscriptionStore
	Close() error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func wrap(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Close releases the underlying connection pool.
func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return wrap("get sql.DB", err)
	}
	return sqlDB.Close()
}

// FindReminder returns the requester's reminder or ErrNotFound.
func (s *gormStore) FindReminder(ctx context.Context, requesterID string) (model.Reminder, error) {
	var r model.Reminder
	if err := s.db.WithContext(ctx).Where("requester_id = ?", requesterID).Take(&r).Error; err != nil {
		return model.Reminder{}, wrap("find reminder", err)
	}
	return r, nil
}

// UpsertReminder creates the requester's reminder or, when one already exists,
// replaces its target and fallback in place. It returns the stored row.
func (s *gormStore) UpsertReminder(ctx context.Context, r model.Reminder) (model.Reminder, error) {
	var stored model.Reminder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "requester_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"target_player_count", "fallback_location", "updated_at"}),
		}).Create(&r).Error; err != nil {
			return err
		}
		return tx.Where("requester_id = ?", r.RequesterID).Take(&stored).Error
	})
	if err != nil {
		return model.Reminder{}, wrap("upsert reminder", err)
	}
	return stored, nil
}

// DeleteReminder removes and returns the requester's reminder, or ErrNotFound.
func (s *gormStore) DeleteReminder(ctx context.Context, requesterID string) (model.Reminder, error) {
	var r model.Reminder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("requester_id = ?", requesterID).Take(&r).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", r.ID).Delete(&model.Reminder{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return model.Reminder{}, wrap("delete reminder", err)
	}
	return r, nil
}

// RemindersForCount returns every reminder waiting for exactly count players, oldest first.
func (s *gormStore) RemindersForCount(ctx context.Context, count int) ([]model.Reminder, error) {
	var reminders []model.Reminder
	if err := s.db.WithContext(ctx).
		Where("target_player_count = ?", count).
		Order("created_at ASC, id ASC").
		Find(&reminders).Error; err != nil {
		return nil, wrap("select reminders", err)
	}
	return reminders, nil
}

// DeleteReminderIfTarget deletes the reminder only if it still waits for target.
// It reports whether a row was deleted, so a reminder retargeted in the meantime survives.
func (s *gormStore) DeleteReminderIfTarget(ctx context.Context, id int64, target int) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("id = ? AND target_player_count = ?", id, target).
		Delete(&model.Reminder{})
	if res.Error != nil {
		return false, wrap("delete matched reminder", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// AppendStatistic inserts one statistics row.
func (s *gormStore) AppendStatistic(ctx context.Context, rec *model.StatisticRecord) error {
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return wrap("append statistic", err)
	}
	return nil
}

// PeakStatistic returns the row with the highest player count, the earliest one on ties.
// It returns nil when the table is empty.
func (s *gormStore) PeakStatistic(ctx context.Context) (*model.StatisticRecord, error) {
	var rec model.StatisticRecord
	err := s.db.WithContext(ctx).
		Order("player_count DESC, recorded_at ASC, id ASC").
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("peak statistic", err)
	}
	return &rec, nil
}

// RecentStatistics returns up to limit rows, newest first.
func (s *gormStore) RecentStatistics(ctx context.Context, limit int) ([]model.StatisticRecord, error) {
	var recs []model.StatisticRecord
	if err := s.db.WithContext(ctx).
		Order("recorded_at DESC, id DESC").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, wrap("recent statistics", err)
	}
	return recs, nil
}

// SaveSubscription creates or refreshes a push subscription keyed by endpoint.
func (s *gormStore) SaveSubscription(ctx context.Context, sub model.PushSubscription) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
	}).Create(&sub).Error; err != nil {
		return wrap("save subscription", err)
	}
	return nil
}

// DeleteSubscription removes a push subscription. Deleting an unknown endpoint is not an error.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return wrap("delete subscription", err)
	}
	return nil
}

// SubscriptionsForUser lists the push subscriptions registered by a user.
func (s *gormStore) SubscriptionsForUser(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return nil, wrap("select subscriptions", err)
	}
	return subs, nil
}
