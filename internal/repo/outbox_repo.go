// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the edge
// outbox (OutboxRecord).
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/rfid-gate/internal/domain"
)

// InsertOutbox appends an unsent record and returns it with its id.
func InsertOutbox(ctx context.Context, db *gorm.DB, observedAt time.Time, tag string) (*domain.OutboxRecord, error) {
	rec := &domain.OutboxRecord{
		ObservedAt: observedAt.UTC(),
		Tag:        tag,
		Sent:       false,
	}
	return rec, db.WithContext(ctx).Create(rec).Error
}

// TrimOutbox deletes the oldest rows, sent or not, until at most capacity
// remain. It returns the number of rows removed.
func TrimOutbox(ctx context.Context, db *gorm.DB, capacity int) (int64, error) {
	if capacity <= 0 {
		return 0, nil
	}
	var total int64
	if err := db.WithContext(ctx).Model(&domain.OutboxRecord{}).Count(&total).Error; err != nil {
		return 0, err
	}
	excess := total - int64(capacity)
	if excess <= 0 {
		return 0, nil
	}
	oldest := db.Model(&domain.OutboxRecord{}).Select("id").Order("id ASC").Limit(int(excess))
	res := db.WithContext(ctx).Where("id IN (?)", oldest).Delete(&domain.OutboxRecord{})
	return res.RowsAffected, res.Error
}

// ListUnsent returns up to limit unsent records ordered by ascending id.
func ListUnsent(ctx context.Context, db *gorm.DB, limit int) ([]domain.OutboxRecord, error) {
	var out []domain.OutboxRecord
	q := db.WithContext(ctx).Where("sent = ?", false).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountUnsent returns the unsent backlog size.
func CountUnsent(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.OutboxRecord{}).Where("sent = ?", false).Count(&n).Error
	return n, err
}

// MarkSent flips sent=true for ids. Empty input is a no-op.
func MarkSent(ctx context.Context, db *gorm.DB, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.OutboxRecord{}).
		Where("id IN ?", ids).
		Update("sent", true).Error
}
