// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the central
// audit log (AuditEvent).
//
// All functions are context-aware and accept a *gorm.DB handle, so they can
// run inside a transaction opened by the decision service.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/rfid-gate/internal/domain"
)

// ErrNotFound aliases gorm.ErrRecordNotFound for callers outside this package.
var ErrNotFound = gorm.ErrRecordNotFound

// InsertAuditEvent appends a row; ev.ID is populated on success.
func InsertAuditEvent(ctx context.Context, db *gorm.DB, ev *domain.AuditEvent) error {
	return db.WithContext(ctx).Create(ev).Error
}

// LastReceivedAt returns ReceivedAt of the most recent row (highest id) for
// the (readerID, tag) pair, or ErrNotFound when the pair was never seen.
func LastReceivedAt(ctx context.Context, db *gorm.DB, readerID, tag string) (time.Time, error) {
	var ev domain.AuditEvent
	err := db.WithContext(ctx).
		Select("id", "received_at").
		Where("reader_id = ? AND tag = ?", readerID, tag).
		Order("id DESC").
		Take(&ev).Error
	if err != nil {
		return time.Time{}, err
	}
	return ev.ReceivedAt, nil
}

// RecentAuditEvents returns up to limit rows, newest first.
func RecentAuditEvents(ctx context.Context, db *gorm.DB, limit int) ([]domain.AuditEvent, error) {
	out := []domain.AuditEvent{}
	err := db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// TrimAuditEvents keeps roughly the newest maxEvents rows by deleting every
// id below maxId-maxEvents+1. maxEvents <= 0 disables trimming.
func TrimAuditEvents(ctx context.Context, db *gorm.DB, maxEvents int) (int64, error) {
	if maxEvents <= 0 {
		return 0, nil
	}
	// Highest id via ORDER BY (avoid MAX() -> TEXT in SQLite)
	var last domain.AuditEvent
	err := db.WithContext(ctx).Select("id").Order("id DESC").Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	keepFrom := last.ID - int64(maxEvents) + 1
	if keepFrom <= 1 {
		return 0, nil
	}
	res := db.WithContext(ctx).Where("id < ?", keepFrom).Delete(&domain.AuditEvent{})
	return res.RowsAffected, res.Error
}

// CountAuditEvents returns the number of rows in the audit log.
func CountAuditEvents(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.AuditEvent{}).Count(&n).Error
	return n, err
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
