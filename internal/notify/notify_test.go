package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/rfid-gate/internal/domain"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(complete bool, err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	token        *fakeToken
	block        chan struct{} // when set, Publish waits on it
	sent         []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) snapshot() ([]published, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.sent...), c.disconnected
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "rfid/gate-1/events", Topic("rfid", "gate-1"))
	assert.Equal(t, "site/a/gate-1/events", Topic("/site/a/", "gate-1"))
	assert.Equal(t, "gate-1/events", Topic("", "gate-1"))
}

func TestMQTT_PublishesAuditRow(t *testing.T) {
	fc := &fakeClient{token: newToken(true, nil)}
	m := newMQTT(fc, "rfid", time.Second, 8, zerolog.Nop())

	m.Publish(context.Background(), domain.AuditEvent{ID: 9, ReaderID: "gate-1", Tag: "AABB", Fired: true, Reason: domain.ReasonOK})
	m.Close()

	sent, disconnected := fc.snapshot()
	require.Len(t, sent, 1)
	assert.Equal(t, "rfid/gate-1/events", sent[0].topic)
	assert.Equal(t, byte(0), sent[0].qos)

	var got map[string]any
	require.NoError(t, json.Unmarshal(sent[0].payload, &got))
	assert.Equal(t, float64(9), got["id"])
	assert.Equal(t, "ok", got["reason"])
	assert.Equal(t, true, got["fired"])
	assert.True(t, disconnected)
}

func TestMQTT_FailuresAreLogged(t *testing.T) {
	var buf bytes.Buffer
	fc := &fakeClient{token: newToken(true, errors.New("not connected"))}
	m := newMQTT(fc, "rfid", time.Second, 8, zerolog.New(&buf))

	m.Publish(context.Background(), domain.AuditEvent{ID: 1, ReaderID: "gate-1"})
	m.Close()
	assert.Contains(t, buf.String(), "mqtt publish failed")
	assert.Contains(t, buf.String(), "not connected")
}

func TestMQTT_TimeoutIsLogged(t *testing.T) {
	var buf bytes.Buffer
	fc := &fakeClient{token: newToken(false, nil)}
	m := newMQTT(fc, "rfid", 10*time.Millisecond, 8, zerolog.New(&buf))

	m.Publish(context.Background(), domain.AuditEvent{ID: 1, ReaderID: "gate-1"})
	m.Close()
	assert.Contains(t, buf.String(), "mqtt publish timed out")
}

func TestMQTT_StalledBrokerDoesNotBlockCaller(t *testing.T) {
	fc := &fakeClient{token: newToken(false, nil), block: make(chan struct{})}
	m := newMQTT(fc, "rfid", 5*time.Second, 64, zerolog.Nop())

	start := time.Now()
	for i := 1; i <= 50; i++ {
		m.Publish(context.Background(), domain.AuditEvent{ID: int64(i), ReaderID: "gate-1"})
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Zero(t, m.Dropped())

	fc.token = newToken(true, nil)
	close(fc.block)
	m.Close()
	sent, _ := fc.snapshot()
	assert.Len(t, sent, 50)
}

func TestMQTT_FullQueueDrops(t *testing.T) {
	var buf bytes.Buffer
	fc := &fakeClient{token: newToken(true, nil), block: make(chan struct{})}
	m := newMQTT(fc, "rfid", time.Second, 1, zerolog.New(&buf))

	// the worker holds one row inside the blocked Publish, the queue one more
	for i := 1; i <= 5; i++ {
		m.Publish(context.Background(), domain.AuditEvent{ID: int64(i), ReaderID: "gate-1"})
	}
	assert.GreaterOrEqual(t, m.Dropped(), int64(3))

	close(fc.block)
	m.Close()
	m.Publish(context.Background(), domain.AuditEvent{ID: 99, ReaderID: "gate-1"})

	sent, _ := fc.snapshot()
	assert.Equal(t, int64(5), int64(len(sent))+m.Dropped())
	assert.Contains(t, buf.String(), "mqtt queue full")
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	p.Publish(context.Background(), domain.AuditEvent{})
	p.Close()
}
