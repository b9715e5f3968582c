// Package services – DecisionService
//
// DecisionService classifies every incoming tag read, fires the relay for
// the reads that pass, and persists an audit row for each read regardless of
// outcome. Checks run in a fixed order and the first match wins:
//
//  1. unknown_tag        tag not in the known-tag registry
//  2. outside_schedule   reader not armed at received_at
//  3. too_late           received_at - ts_client > ignore-late threshold
//  4. duplicate          same (reader, tag) seen within the dedup window
//  5. ok / relay failure relay fired, or the actuator's failure code
//
// A batch is evaluated strictly in array order under one process-wide lock,
// inside one database transaction, so the dedup check and the insert of a
// read cannot interleave with another request. Retention trim runs after
// each batch.
//
// Observability: Ingest is OpenTelemetry-instrumented and every outcome is
// counted in rfid_decisions_total{reason}.
package services

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/rfid-gate/internal/config"
	"github.com/tbourn/rfid-gate/internal/domain"
	"github.com/tbourn/rfid-gate/internal/observability"
	"github.com/tbourn/rfid-gate/internal/relay"
	"github.com/tbourn/rfid-gate/internal/repo"
	"github.com/tbourn/rfid-gate/internal/utils"

	// OpenTelemetry
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Registry answers known-tag membership for normalized tag ids.
type Registry interface {
	Contains(tag string) bool
}

// Actuator fires the relay channel assigned to a reader.
type Actuator interface {
	FireReader(readerID string) error
}

// Notifier receives each persisted audit row after commit. Publish must
// return without waiting on the downstream system.
type Notifier interface {
	Publish(ctx context.Context, ev domain.AuditEvent)
}

// Incoming is one tag read as submitted by an edge device.
type Incoming struct {
	EdgeEventID *int64
	TS          string
	Tag         string
}

// Batch is one ingestion request.
type Batch struct {
	ReaderID string
	SourceIP string
	Events   []Incoming
}

// Result is the per-read outcome returned to the edge.
type Result struct {
	DBID        int64         `json:"db_id"`
	EdgeEventID *int64        `json:"edge_event_id"`
	Tag         string        `json:"tag"`
	Fired       bool          `json:"fired"`
	Reason      domain.Reason `json:"reason"`
}

// DecisionService is the central decision engine. Its configuration fields
// are read-only after construction.
type DecisionService struct {
	DB        *gorm.DB
	Tags      Registry
	Schedules config.Schedules
	Location  *time.Location // wall clock for schedule windows; nil = Local

	DedupWindow time.Duration // <= 0 disables dedup
	IgnoreLate  time.Duration // <= 0 disables the late check
	MaxEvents   int           // <= 0 disables retention

	Relay    Actuator
	Notifier Notifier // optional

	// Now returns the receive time; defaults to time.Now.
	Now func() time.Time

	mu sync.Mutex
}

const (
	DefaultEventsLimit = 100
	MaxEventsLimit     = 1000
)

// Ingest evaluates and persists a batch, one audit row per read. A blank tag
// is still recorded and classified unknown_tag. All reads of the batch share
// one received_at instant.
func (s *DecisionService) Ingest(ctx context.Context, b Batch) ([]Result, error) {
	tr := observability.Tracer("services")
	ctx, span := tr.Start(ctx, "Ingest",
		trace.WithAttributes(
			attribute.String("reader.id", b.ReaderID),
			attribute.Int("events.count", len(b.Events)),
		),
	)
	defer span.End()

	if s.DB == nil {
		return nil, ErrNotConfigured
	}
	if b.Events == nil {
		return nil, ErrMissingReaderOrEvents
	}
	if b.SourceIP == "" {
		b.SourceIP = "unknown"
	}

	receivedAt := s.now().UTC()
	results := make([]Result, 0, len(b.Events))
	rows := make([]domain.AuditEvent, 0, len(b.Events))

	s.mu.Lock()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, in := range b.Events {
			tag := domain.NormalizeTag(in.Tag)
			reason, err := s.evaluate(ctx, tx, b.ReaderID, tag, in.TS, receivedAt)
			if err != nil {
				return err
			}

			ev := domain.AuditEvent{
				ReaderID:    b.ReaderID,
				Tag:         tag,
				TSClient:    in.TS,
				ReceivedAt:  receivedAt,
				SourceIP:    b.SourceIP,
				Fired:       reason == domain.ReasonOK,
				Reason:      reason,
				EdgeEventID: in.EdgeEventID,
			}
			if err := repo.InsertAuditEvent(ctx, tx, &ev); err != nil {
				return err
			}

			rows = append(rows, ev)
			results = append(results, Result{
				DBID:        ev.ID,
				EdgeEventID: ev.EdgeEventID,
				Tag:         ev.Tag,
				Fired:       ev.Fired,
				Reason:      ev.Reason,
			})
		}
		return nil
	})
	if err == nil {
		var trimmed int64
		trimmed, err = repo.TrimAuditEvents(ctx, s.DB, s.MaxEvents)
		observability.ObserveRetention(trimmed)
	}
	s.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ingest failed")
		return nil, err
	}

	for _, ev := range rows {
		observability.ObserveDecision(ev.Reason)
		if s.Notifier != nil {
			s.Notifier.Publish(ctx, ev)
		}
	}
	span.SetAttributes(attribute.Int("results.count", len(results)))
	return results, nil
}

// evaluate runs the ordered checks for one normalized tag. Only the last
// step has a side effect (the relay).
func (s *DecisionService) evaluate(ctx context.Context, tx *gorm.DB, readerID, tag, tsClient string, receivedAt time.Time) (domain.Reason, error) {
	if s.Tags == nil || !s.Tags.Contains(tag) {
		return domain.ReasonUnknownTag, nil
	}

	sc, found := s.Schedules.For(readerID)
	if !Armed(sc, found, receivedAt, s.Location) {
		return domain.ReasonOutsideSchedule, nil
	}

	if Late(receivedAt, tsClient, s.IgnoreLate) {
		return domain.ReasonTooLate, nil
	}

	if s.DedupWindow > 0 {
		prev, err := repo.LastReceivedAt(ctx, tx, readerID, tag)
		switch {
		case err == nil:
			if withinWindow(receivedAt, prev, s.DedupWindow) {
				return domain.ReasonDuplicate, nil
			}
		case repo.IsNotFound(err):
		default:
			return "", err
		}
	}

	if s.Relay == nil {
		return domain.ReasonRelayDisabled, nil
	}
	return relay.Reason(s.Relay.FireReader(readerID)), nil
}

// Recent returns the newest audit rows first. limit is clamped to
// [1, MaxEventsLimit].
func (s *DecisionService) Recent(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	tr := observability.Tracer("services")
	ctx, span := tr.Start(ctx, "Recent", trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	if s.DB == nil {
		return nil, ErrNotConfigured
	}
	return repo.RecentAuditEvents(ctx, s.DB, ClampLimit(limit))
}

// ClampLimit normalizes a requested page size.
func ClampLimit(limit int) int {
	return utils.Clamp(limit, 1, MaxEventsLimit)
}

func (s *DecisionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
