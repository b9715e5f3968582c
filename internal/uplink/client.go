// Package uplink pushes buffered tag reads from the edge outbox to the
// central ingestion endpoint. Records are acknowledged (marked sent) only
// after the center answers with a 2xx status; every other outcome leaves
// them in the outbox for the next flush. The sender does not deduplicate
// re-sent events.
package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/tbourn/rfid-gate/internal/domain"
)

// ErrStatus is wrapped when the center answers with a non-2xx status.
var ErrStatus = errors.New("unexpected ingest status")

// Event is one tag read on the wire.
type Event struct {
	ID  int64  `json:"id"`
	TS  string `json:"ts"`
	Tag string `json:"tag"`
}

// Batch is the POST /api/tags request body.
type Batch struct {
	ReaderID string  `json:"reader_id"`
	Events   []Event `json:"events"`
}

// NewBatch renders outbox records as a wire batch, preserving order.
func NewBatch(readerID string, recs []domain.OutboxRecord) Batch {
	b := Batch{ReaderID: readerID, Events: make([]Event, 0, len(recs))}
	for _, r := range recs {
		b.Events = append(b.Events, Event{
			ID:  r.ID,
			TS:  r.ObservedAt.UTC().Format(time.RFC3339Nano),
			Tag: r.Tag,
		})
	}
	return b
}

// Client posts batches to the center.
type Client struct {
	url        string
	httpClient *http.Client
}

// readerIDHeader keys the center's per-device rate limiter.
const readerIDHeader = "X-Reader-ID"

// NewClient constructs a Client for the full ingestion URL
// (e.g. http://10.0.0.10:5000/api/tags) with a fixed request timeout.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Post sends one batch. It returns nil only for a 2xx answer.
func (c *Client) Post(ctx context.Context, batch Batch) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(readerIDHeader, batch.ReaderID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
