// Package relay drives a 4-channel serial relay board. Each channel has a
// fixed 8-byte "momentary" command; the pulse length is set by the board,
// not timed in software.
//
// The serial handle is opened lazily on the first fire and shared by all
// callers. A failed open is reported immediately (no retry loop); a write
// error closes and forgets the handle so the next fire reopens it.
package relay

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/rfid-gate/internal/domain"
	"github.com/tbourn/rfid-gate/internal/serialline"
)

var (
	// ErrDisabled is returned when the relay board is switched off in config.
	ErrDisabled = errors.New("relay disabled")
	// ErrNoChannel is returned for a reader or channel without a command.
	ErrNoChannel = errors.New("no relay channel")
	// ErrTransport wraps serial open and write failures.
	ErrTransport = errors.New("relay transport error")
)

var commands = map[int][]byte{
	1: {0x55, 0x56, 0x00, 0x00, 0x00, 0x01, 0x04, 0xB0},
	2: {0x55, 0x56, 0x00, 0x00, 0x00, 0x02, 0x04, 0xB1},
	3: {0x55, 0x56, 0x00, 0x00, 0x00, 0x03, 0x04, 0xB2},
	4: {0x55, 0x56, 0x00, 0x00, 0x00, 0x04, 0x04, 0xB3},
}

// Command returns the momentary command for channel, if any.
func Command(channel int) ([]byte, bool) {
	cmd, ok := commands[channel]
	return cmd, ok
}

const (
	responseDelay = 50 * time.Millisecond
	responseSize  = 8
)

// Options configures a Board.
type Options struct {
	Enabled bool
	Port    string
	Baud    int
	Timeout time.Duration  // serial read timeout for the response drain
	Mapping map[string]int // reader id → channel, matched case-insensitively
}

// Board is the process-wide relay actuator. It is safe for concurrent use.
type Board struct {
	opt  Options
	log  zerolog.Logger
	open serialline.OpenFunc

	// DrainResponse reads the board's optional reply after each write.
	DrainResponse bool
	sleep         func(time.Duration)

	mu   sync.Mutex
	port serialline.Port
}

// New constructs a Board on real serial devices.
func New(opt Options, logger zerolog.Logger) *Board {
	return NewWithOpener(opt, logger, serialline.OpenSerial)
}

// NewWithOpener constructs a Board with a custom port opener.
func NewWithOpener(opt Options, logger zerolog.Logger, open serialline.OpenFunc) *Board {
	if opt.Timeout <= 0 {
		opt.Timeout = 200 * time.Millisecond
	}
	mapping := make(map[string]int, len(opt.Mapping))
	for k, v := range opt.Mapping {
		mapping[strings.ToLower(k)] = v
	}
	opt.Mapping = mapping
	return &Board{
		opt:           opt,
		log:           logger.With().Str("component", "relay").Str("port", opt.Port).Logger(),
		open:          open,
		DrainResponse: true,
		sleep:         time.Sleep,
	}
}

// Enabled reports whether the board is switched on.
func (b *Board) Enabled() bool { return b.opt.Enabled }

// Channel returns the channel mapped to readerID.
func (b *Board) Channel(readerID string) (int, bool) {
	ch, ok := b.opt.Mapping[strings.ToLower(readerID)]
	if !ok || ch == 0 {
		return 0, false
	}
	return ch, true
}

// FireReader fires the channel mapped to readerID.
func (b *Board) FireReader(readerID string) error {
	if !b.opt.Enabled {
		return ErrDisabled
	}
	ch, ok := b.Channel(readerID)
	if !ok {
		return ErrNoChannel
	}
	return b.Fire(ch)
}

// Fire sends the momentary command for channel.
func (b *Board) Fire(channel int) error {
	if !b.opt.Enabled {
		return ErrDisabled
	}
	cmd, ok := Command(channel)
	if !ok {
		b.log.Error().Int("channel", channel).Msg("unknown relay channel")
		return ErrNoChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureOpen(); err != nil {
		relayFailures.Inc()
		return err
	}

	if _, err := b.port.Write(cmd); err != nil {
		b.log.Error().Err(err).Int("channel", channel).Msg("relay write failed")
		b.drop()
		relayFailures.Inc()
		return fmt.Errorf("%w: write: %v", ErrTransport, err)
	}
	if d, ok := b.port.(interface{ Drain() error }); ok {
		if err := d.Drain(); err != nil {
			b.log.Error().Err(err).Int("channel", channel).Msg("relay flush failed")
			b.drop()
			relayFailures.Inc()
			return fmt.Errorf("%w: flush: %v", ErrTransport, err)
		}
	}
	if b.DrainResponse {
		b.sleep(responseDelay)
		resp := make([]byte, responseSize)
		_, _ = b.port.Read(resp)
	}

	relayFires.WithLabelValues(fmt.Sprint(channel)).Inc()
	b.log.Info().Int("channel", channel).Msg("relay momentary fired")
	return nil
}

// Close releases the serial handle, if open.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}

// Reason maps a FireReader result to an audit reason.
func Reason(err error) domain.Reason {
	switch {
	case err == nil:
		return domain.ReasonOK
	case errors.Is(err, ErrDisabled):
		return domain.ReasonRelayDisabled
	case errors.Is(err, ErrNoChannel):
		return domain.ReasonNoChannel
	default:
		return domain.ReasonRelayError
	}
}

func (b *Board) ensureOpen() error {
	if b.port != nil {
		return nil
	}
	b.log.Info().Int("baud", b.opt.Baud).Msg("opening relay serial port")
	p, err := b.open(b.opt.Port, b.opt.Baud, b.opt.Timeout)
	if err != nil {
		b.log.Error().Err(err).Msg("cannot open relay port")
		return fmt.Errorf("%w: open: %v", ErrTransport, err)
	}
	b.port = p
	b.log.Info().Msg("relay serial port opened")
	return nil
}

func (b *Board) drop() {
	if b.port != nil {
		_ = b.port.Close()
		b.port = nil
	}
}
