// Package edge runs the reader-side control loop: poll the serial line,
// decode frames into tag ids, persist each read in the outbox, and flush the
// outbox to the center when the flush policy says so. Everything runs on one
// goroutine; the only long block is the serial reconnect delay.
package edge

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/rfid-gate/internal/domain"
	"github.com/tbourn/rfid-gate/internal/frame"
)

// Line yields whatever bytes the reader has sent since the last call.
type Line interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Store persists reads; *outbox.Outbox implements it.
type Store interface {
	Append(ctx context.Context, observedAt time.Time, tag string) (*domain.OutboxRecord, error)
}

// Flusher delivers pending reads; *uplink.Sender implements it.
type Flusher interface {
	Added(n int)
	MaybeFlush(ctx context.Context) (int, error)
}

// Options tunes the loop.
type Options struct {
	PollInterval time.Duration // pause between iterations (default 20ms)
}

// Agent is the edge control loop. It is not safe for concurrent use.
type Agent struct {
	line    Line
	dec     frame.Decoder
	store   Store
	flusher Flusher
	opt     Options
	log     zerolog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
	buf   []byte
}

// New wires an Agent.
func New(line Line, dec frame.Decoder, store Store, flusher Flusher, opt Options, logger zerolog.Logger) *Agent {
	if opt.PollInterval <= 0 {
		opt.PollInterval = 20 * time.Millisecond
	}
	return &Agent{
		line:    line,
		dec:     dec,
		store:   store,
		flusher: flusher,
		opt:     opt,
		log:     logger.With().Str("protocol", dec.Protocol()).Logger(),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Run loops until ctx is done, then closes the line. Cancellation is a
// clean exit and returns nil.
func (a *Agent) Run(ctx context.Context) error {
	defer func() {
		if err := a.line.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close serial line")
		}
	}()
	a.log.Info().Dur("poll", a.opt.PollInterval).Msg("edge loop started")

	for {
		if err := a.Step(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				a.log.Info().Msg("edge loop stopped")
				return nil
			}
			return err
		}
		if err := a.sleep(ctx, a.opt.PollInterval); err != nil {
			a.log.Info().Msg("edge loop stopped")
			return nil
		}
	}
}

// Step runs one iteration: read, decode, persist, maybe flush. Storage and
// uplink faults are logged; only cancellation is returned.
func (a *Agent) Step(ctx context.Context) error {
	chunk, err := a.line.Read(ctx)
	if err != nil {
		return err
	}
	if len(chunk) > 0 {
		a.buf = append(a.buf, chunk...)
		for _, tag := range a.dec.Decode(&a.buf) {
			observed := a.now().UTC()
			a.log.Info().Str("tag", tag).Time("observed_at", observed).Msg("tag read")
			if _, err := a.store.Append(ctx, observed, tag); err != nil {
				a.log.Error().Err(err).Str("tag", tag).Msg("outbox append failed")
				continue
			}
			a.flusher.Added(1)
		}
	}

	if _, err := a.flusher.MaybeFlush(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
