package domain

import "time"

// OutboxRecord is a tag read buffered on the edge device until the center
// acknowledges the batch that carried it. Sent only ever moves false → true.
type OutboxRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement;index:idx_outbox_sent_id,priority:2"`
	ObservedAt time.Time `gorm:"not null"`
	Tag        string    `gorm:"type:varchar(128);not null"`
	Sent       bool      `gorm:"not null;index:idx_outbox_sent_id,priority:1"`
}

// TableName returns the database table name for OutboxRecord.
func (OutboxRecord) TableName() string { return "outbox" }

