// Package outbox is the edge device's durable, capacity-bounded log of tag
// reads that the center has not yet acknowledged.
//
// Guarantees:
//   - ids strictly increase in insertion order and are never reused.
//   - An unsent record is only ever lost to the capacity trim, which drops the
//     oldest rows first whether or not they were sent. Under a long link outage
//     the oldest reads are sacrificed rather than growing without bound.
//   - sent moves false → true only, and only through MarkSent.
//
// Both the insert and the trim are committed before Append returns.
package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/rfid-gate/internal/domain"
	"github.com/tbourn/rfid-gate/internal/repo"
)

// DefaultCapacity is the row cap applied when none is configured.
const DefaultCapacity = 10000

// Outbox wraps the outbox table.
type Outbox struct {
	DB       *gorm.DB
	Capacity int
	Log      zerolog.Logger
}

// New returns an Outbox; capacity <= 0 selects DefaultCapacity.
func New(db *gorm.DB, capacity int, logger zerolog.Logger) *Outbox {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Outbox{DB: db, Capacity: capacity, Log: logger}
}

// Append persists a new unsent read and then enforces the capacity cap.
func (o *Outbox) Append(ctx context.Context, observedAt time.Time, tag string) (*domain.OutboxRecord, error) {
	rec, err := repo.InsertOutbox(ctx, o.DB, observedAt, tag)
	if err != nil {
		return nil, err
	}
	trimmed, err := repo.TrimOutbox(ctx, o.DB, o.Capacity)
	if err != nil {
		return rec, err
	}
	if trimmed > 0 {
		o.Log.Info().Int64("count", trimmed).Int("capacity", o.Capacity).Msg("outbox trimmed oldest events")
		outboxTrimmed.Add(float64(trimmed))
	}
	return rec, nil
}

// Unsent returns up to limit unsent records, oldest first.
func (o *Outbox) Unsent(ctx context.Context, limit int) ([]domain.OutboxRecord, error) {
	return repo.ListUnsent(ctx, o.DB, limit)
}

// MarkSent records that the center acknowledged ids.
func (o *Outbox) MarkSent(ctx context.Context, ids []int64) error {
	return repo.MarkSent(ctx, o.DB, ids)
}

// Pending returns the unsent backlog size and refreshes the backlog gauge.
func (o *Outbox) Pending(ctx context.Context) (int64, error) {
	n, err := repo.CountUnsent(ctx, o.DB)
	if err == nil {
		outboxPending.Set(float64(n))
	}
	return n, err
}
