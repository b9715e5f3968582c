// Tag ingestion and audit query handlers.
//
//   - POST /api/tags     evaluate a batch of reads from one edge device
//   - GET  /api/events   most recent audit rows, newest first
//   - GET  /api/health   liveness
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rfid-gate/internal/domain"
	"github.com/tbourn/rfid-gate/internal/http/middleware"
	"github.com/tbourn/rfid-gate/internal/services"
	"github.com/tbourn/rfid-gate/internal/utils"
)

// DecisionService is the engine contract consumed by the handlers.
type DecisionService interface {
	Ingest(ctx context.Context, b services.Batch) ([]services.Result, error)
	Recent(ctx context.Context, limit int) ([]domain.AuditEvent, error)
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	decisions DecisionService
}

// New binds Handlers to a decision service.
func New(decisions DecisionService) *Handlers {
	return &Handlers{decisions: decisions}
}

// TagEvent documents one read in the ingestion payload.
type TagEvent struct {
	ID  int64  `json:"id" example:"42"`
	TS  string `json:"ts" example:"2024-05-01T10:00:00.123456+00:00"`
	Tag string `json:"tag" example:"E2801191A5030060ACB87676"`
}

// IngestRequest documents the ingestion payload.
type IngestRequest struct {
	ReaderID string     `json:"reader_id" example:"gate-1"`
	Events   []TagEvent `json:"events"`
}

// IngestResponse is the ingestion result.
type IngestResponse struct {
	Status  string            `json:"status" example:"ok"`
	Count   int               `json:"count" example:"1"`
	Results []services.Result `json:"results"`
}

// HealthResponse is the liveness body.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// IngestTags godoc
// @ID          ingestTags
// @Summary     Ingest a batch of tag reads
// @Description Classifies every read (unknown_tag, outside_schedule, too_late, duplicate, ok or a relay failure), fires the relay for accepted reads and persists an audit row per read. Reads without a tag field (or with a null tag) are skipped; an empty tag is recorded as unknown_tag.
// @Tags        Tags
// @Accept      json
// @Produce     json
// @Param       X-Reader-ID  header  string                  false  "Reader id (rate-limit key)"
// @Param       body         body    handlers.IngestRequest  true   "Batch"
// @Success     200  {object}  handlers.IngestResponse
// @Failure     400  {object}  handlers.ErrorResponse  "invalid_json or missing_reader_or_events"
// @Failure     413  {object}  handlers.ErrorResponse  "payload_too_large"
// @Failure     429  {object}  handlers.ErrorResponse  "too_many_requests"
// @Failure     500  {object}  handlers.ErrorResponse  "ingest_failed"
// @Router      /tags [post]
func (h *Handlers) IngestTags(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "request body too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeInvalidJSON, "cannot read request body")
		return
	}

	batch, code := parseBatch(raw)
	if code != "" {
		middleware.LoggerFrom(c).Warn().Str("code", code).Msg("rejected ingest payload")
		fail(c, http.StatusBadRequest, code, "")
		return
	}
	// The TCP peer, never a forwarded header an edge could forge.
	batch.SourceIP = c.RemoteIP()

	results, err := h.decisions.Ingest(c.Request.Context(), batch)
	if err != nil {
		if errors.Is(err, services.ErrMissingReaderOrEvents) {
			fail(c, http.StatusBadRequest, ErrCodeMissingReaderOrEvents, "")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeIngestFailed, err.Error())
		return
	}

	middleware.LoggerFrom(c).Info().
		Str("reader_id", batch.ReaderID).
		Int("count", len(results)).
		Msg("batch processed")
	ok(c, http.StatusOK, IngestResponse{Status: "ok", Count: len(results), Results: results})
}

// ListEvents godoc
// @ID          listEvents
// @Summary     Recent audit rows
// @Description Returns the most recent audit rows, newest first.
// @Tags        Events
// @Produce     json
// @Param       limit  query  int  false  "Row count"  minimum(1) maximum(1000) default(100)
// @Success     200  {array}   domain.AuditEvent
// @Failure     500  {object}  handlers.ErrorResponse  "list_failed"
// @Router      /events [get]
func (h *Handlers) ListEvents(c *gin.Context) {
	limit := services.ClampLimit(utils.AtoiDefault(c.Query("limit"), services.DefaultEventsLimit))

	rows, err := h.decisions.Recent(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, rows)
}

// Health godoc
// @ID          health
// @Summary     Liveness probe
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ok(c, http.StatusOK, HealthResponse{Status: "ok"})
}

// parseBatch decodes the ingestion payload leniently. It returns an error
// code for payloads that must be rejected as a whole:
//   - invalid_json: the body is not JSON
//   - missing_reader_or_events: reader_id is not a string or events is not
//     an array
//
// Inside events, entries that are not objects or carry no usable tag are
// dropped; a non-integer id becomes null and a non-string ts becomes "".
func parseBatch(raw []byte) (services.Batch, string) {
	if !json.Valid(raw) {
		return services.Batch{}, ErrCodeInvalidJSON
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		return services.Batch{}, ErrCodeMissingReaderOrEvents
	}

	readerID, okReader := asJSONString(payload["reader_id"])
	var events []json.RawMessage
	rawEvents := payload["events"]
	if !okReader || isNull(rawEvents) || json.Unmarshal(rawEvents, &events) != nil || events == nil {
		return services.Batch{}, ErrCodeMissingReaderOrEvents
	}

	batch := services.Batch{ReaderID: readerID, Events: make([]services.Incoming, 0, len(events))}
	for _, ev := range events {
		var fields map[string]json.RawMessage
		if json.Unmarshal(ev, &fields) != nil || fields == nil {
			continue
		}
		tag, ok := tagValue(fields["tag"])
		if !ok {
			continue
		}
		in := services.Incoming{Tag: tag}
		if ts, ok := asJSONString(fields["ts"]); ok {
			in.TS = ts
		}
		var id int64
		if v := fields["id"]; !isNull(v) && json.Unmarshal(v, &id) == nil {
			in.EdgeEventID = &id
		}
		batch.Events = append(batch.Events, in)
	}
	return batch, ""
}

// tagValue accepts a JSON string or number.
func tagValue(v json.RawMessage) (string, bool) {
	if isNull(v) {
		return "", false
	}
	if s, ok := asJSONString(v); ok {
		return s, true
	}
	var n json.Number
	if json.Unmarshal(v, &n) == nil {
		return n.String(), true
	}
	return "", false
}

func asJSONString(v json.RawMessage) (string, bool) {
	if isNull(v) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

func isNull(v json.RawMessage) bool {
	t := strings.TrimSpace(string(v))
	return t == "" || t == "null"
}
