// Package serialline owns the serial connection to an RFID reader. It hands
// out whatever bytes are currently available without blocking the caller's
// loop, and transparently reopens the port after transport faults.
//
// Fault policy:
//   - Open retries forever with a fixed delay; every failed attempt is logged.
//   - A read error closes and forgets the handle; the next Read reopens it.
//   - There is no backoff growth: transient and persistent faults are treated
//     the same way.
package serialline

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// Port is the subset of a serial port used by Line and the relay board.
type Port interface {
	io.ReadWriteCloser
}

// OpenFunc opens a port by device name.
type OpenFunc func(name string, baud int, readTimeout time.Duration) (Port, error)

const (
	defaultRetryDelay  = 5 * time.Second
	defaultReadTimeout = 20 * time.Millisecond
	readChunk          = 256
)

// Options configures a Line.
type Options struct {
	Port        string        // device path, e.g. /dev/ttyUSB0
	Baud        int           // line speed
	RetryDelay  time.Duration // fixed delay between open attempts (default 5s)
	ReadTimeout time.Duration // per-read poll window (default 20ms)
}

// Line is a self-healing, polled serial connection. It is not safe for
// concurrent use; the edge loop is its only caller.
type Line struct {
	opt   Options
	log   zerolog.Logger
	open  OpenFunc
	sleep func(context.Context, time.Duration) error

	port Port
	buf  []byte
}

// New constructs a Line that opens real serial devices.
func New(opt Options, logger zerolog.Logger) *Line {
	return NewWithOpener(opt, logger, OpenSerial)
}

// NewWithOpener constructs a Line with a custom port opener.
func NewWithOpener(opt Options, logger zerolog.Logger, open OpenFunc) *Line {
	if opt.RetryDelay <= 0 {
		opt.RetryDelay = defaultRetryDelay
	}
	if opt.ReadTimeout <= 0 {
		opt.ReadTimeout = defaultReadTimeout
	}
	return &Line{
		opt:   opt,
		log:   logger.With().Str("port", opt.Port).Int("baud", opt.Baud).Logger(),
		open:  open,
		sleep: sleepCtx,
		buf:   make([]byte, readChunk),
	}
}

// Open blocks until the port is open or ctx is done. Only cancellation is
// reported as an error.
func (l *Line) Open(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.log.Info().Msg("opening serial port")
		p, err := l.open(l.opt.Port, l.opt.Baud, l.opt.ReadTimeout)
		if err == nil {
			l.port = p
			l.log.Info().Msg("serial port opened")
			return nil
		}
		l.log.Error().Err(err).Dur("retry_in", l.opt.RetryDelay).Msg("serial open failed")
		if err := l.sleep(ctx, l.opt.RetryDelay); err != nil {
			return err
		}
	}
}

// Read returns the bytes available right now (possibly none). A missing
// handle is reopened first. Transport faults are logged and swallowed; the
// returned error is non-nil only when ctx is done.
//
// The returned slice is only valid until the next call.
func (l *Line) Read(ctx context.Context) ([]byte, error) {
	if l.port == nil {
		if err := l.Open(ctx); err != nil {
			return nil, err
		}
	}
	n, err := l.port.Read(l.buf)
	if err != nil {
		l.log.Error().Err(err).Msg("serial read failed, reopening")
		l.drop()
		return nil, nil
	}
	return l.buf[:n], nil
}

// Connected reports whether a handle is currently held.
func (l *Line) Connected() bool { return l.port != nil }

// Close releases the port, if open.
func (l *Line) Close() error {
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	return err
}

func (l *Line) drop() {
	if l.port != nil {
		_ = l.port.Close()
		l.port = nil
	}
}

// OpenSerial opens a device as 8N1 at baud with the given read timeout.
func OpenSerial(name string, baud int, readTimeout time.Duration) (Port, error) {
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
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
