package uplink

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/rfid-gate/internal/domain"
	"github.com/tbourn/rfid-gate/internal/observability"
)

// Store is the outbox contract used by Sender.
type Store interface {
	Unsent(ctx context.Context, limit int) ([]domain.OutboxRecord, error)
	MarkSent(ctx context.Context, ids []int64) error
	Pending(ctx context.Context) (int64, error)
}

// Poster delivers a batch; *Client implements it.
type Poster interface {
	Post(ctx context.Context, batch Batch) error
}

// Policy decides when a flush is due.
type Policy struct {
	Interval  time.Duration // flush at least this often while reads are pending
	BatchSize int           // flush as soon as this many reads are pending
}

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 200
)

// Sender batches unsent outbox rows and acknowledges them on success.
// It is driven by the edge loop and is not safe for concurrent use.
type Sender struct {
	store    Store
	poster   Poster
	readerID string
	policy   Policy
	log      zerolog.Logger

	now       func() time.Time
	lastFlush time.Time
	backlog   int64
	healthy   bool
}

// NewSender wires a Sender. The backlog estimate starts at zero and is
// refreshed from the store after every flush.
func NewSender(store Store, poster Poster, readerID string, policy Policy, logger zerolog.Logger) *Sender {
	if policy.Interval <= 0 {
		policy.Interval = defaultInterval
	}
	if policy.BatchSize <= 0 {
		policy.BatchSize = defaultBatchSize
	}
	return &Sender{
		store:    store,
		poster:   poster,
		readerID: readerID,
		policy:   policy,
		log:      logger.With().Str("reader_id", readerID).Logger(),
		now:      time.Now,
		healthy:  true,
	}
}

// Added tells the sender that n reads were appended to the outbox.
func (s *Sender) Added(n int) { s.backlog += int64(n) }

// Due reports whether a flush should run now: the interval has elapsed, or
// the backlog reached the batch size. After a failed flush only the interval
// applies, so a dead link is retried at the flush cadence rather than on
// every loop tick.
func (s *Sender) Due() bool {
	if s.now().Sub(s.lastFlush) >= s.policy.Interval {
		return true
	}
	return s.healthy && s.backlog >= int64(s.policy.BatchSize)
}

// MaybeFlush flushes when Due.
func (s *Sender) MaybeFlush(ctx context.Context) (int, error) {
	if !s.Due() {
		return 0, nil
	}
	return s.Flush(ctx)
}

// Flush sends up to BatchSize unsent records as one request and marks them
// sent on success. It returns how many records were acknowledged.
func (s *Sender) Flush(ctx context.Context) (int, error) {
	s.lastFlush = s.now()

	recs, err := s.store.Unsent(ctx, s.policy.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		s.backlog = 0
		return 0, nil
	}

	ctx, span := observability.Tracer("uplink").Start(ctx, "Flush", trace.WithAttributes(
		attribute.String("reader.id", s.readerID),
		attribute.Int("events.count", len(recs)),
	))
	defer span.End()

	if err := s.poster.Post(ctx, NewBatch(s.readerID, recs)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "post failed")
		s.healthy = false
		batchesTotal.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Int("count", len(recs)).Msg("uplink send failed, will retry")
		return 0, err
	}
	s.healthy = true
	batchesTotal.WithLabelValues("ok").Inc()
	eventsSent.Add(float64(len(recs)))

	ids := make([]int64, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	if err := s.store.MarkSent(ctx, ids); err != nil {
		return 0, err
	}
	s.log.Info().Int("count", len(recs)).Msg("sent events")

	if n, err := s.store.Pending(ctx); err == nil {
		s.backlog = n
	}
	return len(recs), nil
}
