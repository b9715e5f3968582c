// Package notify publishes decision outcomes to downstream consumers. The
// MQTT publisher sends every audit row as JSON to
// <topic_prefix>/<reader_id>/events with QoS 0. Delivery is best effort and
// asynchronous: failures are logged and never reach the ingestion response.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/tbourn/rfid-gate/internal/config"
	"github.com/tbourn/rfid-gate/internal/domain"
)

// ErrConnectTimeout is returned when the broker does not answer in time.
var ErrConnectTimeout = errors.New("mqtt connect timeout")

// Publisher sends audit rows somewhere.
type Publisher interface {
	Publish(ctx context.Context, ev domain.AuditEvent)
	Close()
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, domain.AuditEvent) {}
func (Nop) Close()                                     {}

// client is the part of mqtt.Client used here.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// publishQueueSize bounds rows waiting for the broker. A full queue drops
// the newest row.
const publishQueueSize = 1024

// closeDrain bounds how long Close waits for queued rows.
const closeDrain = 2 * time.Second

// MQTT publishes to a broker from a single background worker, so a slow or
// unreachable broker never holds up ingestion.
type MQTT struct {
	client  client
	prefix  string
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan domain.AuditEvent
	done    chan struct{}
	dropped atomic.Int64
}

// Topic returns the events topic of readerID.
func Topic(prefix, readerID string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return readerID + "/events"
	}
	return prefix + "/" + readerID + "/events"
}

// NewMQTT connects to cfg.Broker. The client reconnects on its own after
// the first successful connect.
func NewMQTT(cfg config.MQTTConfig, logger zerolog.Logger) (*MQTT, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout).
		SetWriteTimeout(timeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, ErrConnectTimeout
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	logger.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
	return newMQTT(c, cfg.TopicPrefix, timeout, publishQueueSize, logger), nil
}

func newMQTT(c client, prefix string, timeout time.Duration, queueSize int, logger zerolog.Logger) *MQTT {
	m := &MQTT{
		client:  c,
		prefix:  prefix,
		timeout: timeout,
		log:     logger.With().Str("component", "mqtt").Logger(),
		queue:   make(chan domain.AuditEvent, queueSize),
		done:    make(chan struct{}),
	}
	go m.run()
	return m
}

// Publish queues ev for the worker and returns immediately. Rows are
// dropped with a warning when the queue is full or the publisher is closed.
func (m *MQTT) Publish(_ context.Context, ev domain.AuditEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- ev:
	default:
		n := m.dropped.Add(1)
		m.log.Warn().Int64("id", ev.ID).Int64("dropped", n).Msg("mqtt queue full, row dropped")
	}
}

// Dropped returns the number of rows discarded on a full queue.
func (m *MQTT) Dropped() int64 { return m.dropped.Load() }

func (m *MQTT) run() {
	defer close(m.done)
	for ev := range m.queue {
		m.send(ev)
	}
}

// send publishes one row with QoS 0, waiting at most the configured timeout.
func (m *MQTT) send(ev domain.AuditEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		m.log.Error().Err(err).Int64("id", ev.ID).Msg("mqtt marshal failed")
		return
	}
	topic := Topic(m.prefix, ev.ReaderID)
	token := m.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(m.timeout) {
		m.log.Warn().Str("topic", topic).Int64("id", ev.ID).Msg("mqtt publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		m.log.Error().Err(err).Str("topic", topic).Int64("id", ev.ID).Msg("mqtt publish failed")
	}
}

// Close stops accepting rows, gives queued ones up to closeDrain, then
// disconnects allowing 250ms for in-flight work.
func (m *MQTT) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.mu.Unlock()

	select {
	case <-m.done:
	case <-time.After(closeDrain):
		m.log.Warn().Int("pending", len(m.queue)).Msg("mqtt close before queue drained")
	}
	m.client.Disconnect(250)
}
