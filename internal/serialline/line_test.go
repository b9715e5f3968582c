package serialline

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePort struct {
	chunks [][]byte
	err    error
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	if len(p.chunks) == 0 {
		return 0, nil
	}
	n := copy(b, p.chunks[0])
	p.chunks = p.chunks[1:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *fakePort) Close() error                { p.closed = true; return nil }

type opener struct {
	fails int
	ports []*fakePort
	calls int
}

func (o *opener) open(string, int, time.Duration) (Port, error) {
	o.calls++
	if o.fails > 0 {
		o.fails--
		return nil, errors.New("no such device")
	}
	p := o.ports[0]
	o.ports = o.ports[1:]
	return p, nil
}

func newTestLine(o *opener, logs *bytes.Buffer) (*Line, *[]time.Duration) {
	l := NewWithOpener(Options{Port: "/dev/ttyTEST", Baud: 115200}, zerolog.New(logs), o.open)
	var slept []time.Duration
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return l, &slept
}

func TestOpen_RetriesWithFixedDelay(t *testing.T) {
	var logs bytes.Buffer
	o := &opener{fails: 3, ports: []*fakePort{{}}}
	l, slept := newTestLine(o, &logs)

	require.NoError(t, l.Open(context.Background()))
	assert.True(t, l.Connected())
	assert.Equal(t, 4, o.calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, *slept)
	assert.Equal(t, 3, bytes.Count(logs.Bytes(), []byte("serial open failed")))
}

func TestOpen_StopsOnCancel(t *testing.T) {
	o := &opener{fails: 1 << 30}
	l := NewWithOpener(Options{Port: "x", RetryDelay: time.Hour}, zerolog.Nop(), o.open)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := l.Open(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, l.Connected())
}

func TestRead_ReturnsAvailableBytes(t *testing.T) {
	p := &fakePort{chunks: [][]byte{{0x11, 0x00}, {0xEE}}}
	o := &opener{ports: []*fakePort{p}}
	l, _ := newTestLine(o, &bytes.Buffer{})
	ctx := context.Background()

	b, err := l.Read(ctx) // opens lazily
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x00}, b)

	b, err = l.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xEE}, b)

	b, err = l.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, b)
	assert.Equal(t, 1, o.calls)
}

func TestRead_ErrorDropsHandleAndNextReadReopens(t *testing.T) {
	broken := &fakePort{err: errors.New("input/output error")}
	healthy := &fakePort{chunks: [][]byte{{0x43, 0x54}}}
	o := &opener{ports: []*fakePort{broken, healthy}}
	l, _ := newTestLine(o, &bytes.Buffer{})
	ctx := context.Background()

	b, err := l.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, b)
	assert.True(t, broken.closed)
	assert.False(t, l.Connected())

	b, err = l.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x43, 0x54}, b)
	assert.Equal(t, 2, o.calls)

	require.NoError(t, l.Close())
	assert.True(t, healthy.closed)
	require.NoError(t, l.Close())
}
