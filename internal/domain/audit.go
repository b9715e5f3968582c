// Package domain defines the persistence models for the access-control
// pipeline: the central audit log of decided tag reads and the edge outbox of
// not-yet-confirmed reads. These types are mapped with GORM and shared across
// the repository and service layers.
package domain

import "time"

// AuditEvent is one ingested tag read together with its decision outcome.
// Rows are never updated after insert; retention trim removes the oldest ids.
//
// Fields:
//   - ID: monotonic primary key (SQLite AUTOINCREMENT, never reused).
//   - ReaderID: logical reader that produced the read.
//   - Tag: normalized (trimmed, uppercase) tag identifier.
//   - TSClient: edge-supplied timestamp, stored verbatim (may be unparseable).
//   - ReceivedAt: center UTC instant the batch arrived.
//   - SourceIP: remote address of the posting edge.
//   - Fired / Reason: decision outcome.
//   - EdgeEventID: the edge outbox id, kept for traceability only.
type AuditEvent struct {
	ID          int64     `json:"id"            gorm:"primaryKey;autoIncrement"`
	ReaderID    string    `json:"reader_id"     gorm:"type:varchar(64);not null;index:idx_events_reader_tag_recv,priority:1;index:idx_events_reader_edge,priority:1"`
	Tag         string    `json:"tag"           gorm:"type:varchar(128);not null;index:idx_events_reader_tag_recv,priority:2"`
	TSClient    string    `json:"ts_client"     gorm:"column:ts_client;type:text;not null"`
	ReceivedAt  time.Time `json:"received_at"   gorm:"not null;index:idx_events_reader_tag_recv,priority:3"`
	SourceIP    string    `json:"source_ip"     gorm:"type:varchar(64);not null"`
	Fired       bool      `json:"fired"         gorm:"not null"`
	Reason      Reason    `json:"reason"        gorm:"type:varchar(32);not null"`
	EdgeEventID *int64    `json:"edge_event_id" gorm:"index:idx_events_reader_edge,priority:2"`
}

// TableName returns the database table name for AuditEvent.
func (AuditEvent) TableName() string { return "events" }
