package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/rfid-gate/internal/config"
	"github.com/tbourn/rfid-gate/internal/domain"
	"github.com/tbourn/rfid-gate/internal/relay"
	"github.com/tbourn/rfid-gate/internal/repo"
)

const knownTag = "E2801191A5030060ACB87676"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:decide_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, repo.MigrateCenter(db))
	t.Cleanup(func() { _ = repo.Close(db) })
	return db
}

type fakeRelay struct {
	mu    sync.Mutex
	err   error
	fires []string
}

func (f *fakeRelay) FireReader(readerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.fires = append(f.fires, readerID)
	return nil
}

func (f *fakeRelay) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fires)
}

type recorder struct {
	mu   sync.Mutex
	rows []domain.AuditEvent
}

func (r *recorder) Publish(_ context.Context, ev domain.AuditEvent) {
	r.mu.Lock()
	r.rows = append(r.rows, ev)
	r.mu.Unlock()
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time       { return c.t }
func (c *clock) add(d time.Duration) { c.t = c.t.Add(d) }

func newService(t *testing.T) (*DecisionService, *fakeRelay, *clock) {
	t.Helper()
	rl := &fakeRelay{}
	clk := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := &DecisionService{
		DB:          newTestDB(t),
		Tags:        config.NewKnownTags(knownTag, "AABBCC", "DDEEFF"),
		Schedules:   config.Schedules{},
		Location:    time.UTC,
		DedupWindow: 10 * time.Second,
		IgnoreLate:  300 * time.Second,
		MaxEvents:   1000,
		Relay:       rl,
		Now:         clk.now,
	}
	return s, rl, clk
}

func one(tag, ts string) []Incoming {
	return []Incoming{{Tag: tag, TS: ts}}
}

func TestIngest_UnknownTagNeverFires(t *testing.T) {
	s, rl, _ := newService(t)
	s.Schedules = config.Schedules{"gate-1": {Mode: config.ModeNever}}

	for i := 0; i < 3; i++ {
		res, err := s.Ingest(context.Background(), Batch{ReaderID: "gate-1", Events: one("CAFEBABE", "")})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, domain.ReasonUnknownTag, res[0].Reason)
		assert.False(t, res[0].Fired)
	}
	assert.Zero(t, rl.count())
}

func TestIngest_OutsideSchedule(t *testing.T) {
	s, rl, clk := newService(t)
	s.Schedules = config.Schedules{
		"gate-1": {Mode: config.ModeWindow, StartHour: 21, EndHour: 6},
		"gate-2": {Mode: config.ModeNever},
	}
	clk.t = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	res, err := s.Ingest(context.Background(), Batch{ReaderID: "gate-1", Events: one(knownTag, "")})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonOutsideSchedule, res[0].Reason)

	res, err = s.Ingest(context.Background(), Batch{ReaderID: "gate-2", Events: one(knownTag, "")})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonOutsideSchedule, res[0].Reason)
	assert.Zero(t, rl.count())

	clk.t = time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)
	res, err = s.Ingest(context.Background(), Batch{ReaderID: "gate-1", Events: one(knownTag, "")})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonOK, res[0].Reason)
	assert.True(t, res[0].Fired)
}

func TestIngest_TooLate(t *testing.T) {
	s, rl, clk := newService(t)
	old := clk.t.Add(-301 * time.Second).Format(time.RFC3339Nano)

	res, err := s.Ingest(context.Background(), Batch{ReaderID: "gate-1", Events: one(knownTag, old)})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonTooLate, res[0].Reason)
	assert.False(t, res[0].Fired)
	assert.Zero(t, rl.count())
}

func TestIngest_UnparseableTimestampIsOnTime(t *testing.T) {
	s, _, _ := newService(t)

	res, err := s.Ingest(context.Background(), Batch{ReaderID: "gate-1", Events: one(knownTag, "yesterday-ish")})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonOK, res[0].Reason)
}

func TestIngest_LateCheckDisabled(t *testing.T) {
	s, _, clk := newService(t)
	s.IgnoreLate = 0
	old := clk.t.Add(-24 * time.Hour).Format(time.RFC3339Nano)

	res, err := s.Ingest(context.Background(), Batch{ReaderID: "gate-1", Events: one(knownTag, old)})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonOK, res[0].Reason)
}

func TestIngest_DedupWindow(t *testing.T) {
	s, rl, clk := newService(t)
	ctx := context.Background()
	b := Batch{ReaderID: "gate-1", Events: one(knownTag, "")}

	res, err := s.Ingest(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonOK, res[0].Reason)

	clk.add(5 * time.Second)
	res, err = s.Ingest(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonDuplicate, res[0].Reason)
	assert.False(t, res[0].Fired)

	clk.add(11 * time.Second)
	res, err = s.Ingest(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonOK, res[0].Reason)

	assert.Equal(t, 2, rl.count())

	// Another reader is tracked separately.
	res, err = s.Ingest(ctx, Batch{ReaderID: "gate-2", Events: one(knownTag, "")})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonOK, res[0].Reason)
}

func TestIngest_DedupBoundaryInclusive(t *testing.T) {
	s, _, clk := newService(t)
	ctx := context.Background()
	b := Batch{ReaderID: "gate-1", Events: one(knownTag, "")}

	_, err := s.Ingest(ctx, b)
	require.NoError(t, err)
	clk.add(10 * time.Second)
	res, err := s.Ingest(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonDuplicate, res[0].Reason)
}

func TestIngest_DedupWithinOneBatch(t *testing.T) {
	s, _, _ := newService(t)

	res, err := s.Ingest(context.Background(), Batch{ReaderID: "gate-1", Events: []Incoming{
		{Tag: knownTag}, {Tag: knownTag},
	}})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, domain.ReasonOK, res[0].Reason)
	assert.Equal(t, domain.ReasonDuplicate, res[1].Reason)
}

func TestIngest_DedupDisabled(t *testing.T) {
	s, _, _ := newService(t)
	s.DedupWindow = 0

	res, err := s.Ingest(context.Background(), Batch{ReaderID: "gate-1", Events: []Incoming{
		{Tag: knownTag}, {Tag: knownTag},
	}})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonOK, res[1].Reason)
}

func TestIngest_RelayFailureReasons(t *testing.T) {
	cases := []struct {
		err  error
		want domain.Reason
	}{
		{relay.ErrDisabled, domain.ReasonRelayDisabled},
		{relay.ErrNoChannel, domain.ReasonNoChannel},
		{fmt.Errorf("%w: open: boom", relay.ErrTransport), domain.ReasonRelayError},
	}
	for _, tc := range cases {
		t.Run(string(tc.want), func(t *testing.T) {
			s, rl, _ := newService(t)
			rl.err = tc.err

			res, err := s.Ingest(context.Background(), Batch{ReaderID: "gate-1", Events: one(knownTag, "")})
			require.NoError(t, err)
			assert.Equal(t, tc.want, res[0].Reason)
			assert.False(t, res[0].Fired)

			rows, err := s.Recent(context.Background(), 10)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, tc.want, rows[0].Reason)
		})
	}
}

func TestIngest_PersistsEveryRead(t *testing.T) {
	s, _, clk := newService(t)
	rec := &recorder{}
	s.Notifier = rec
	id7 := int64(7)
	ts := clk.t.Add(-time.Second).Format(time.RFC3339Nano)

	res, err := s.Ingest(context.Background(), Batch{
		ReaderID: "gate-1",
		SourceIP: "10.0.0.5",
		Events: []Incoming{
			{EdgeEventID: &id7, TS: ts, Tag: " aabbcc "},
			{Tag: ""},
			{Tag: "   "},
			{Tag: "0000"},
		},
	})
	require.NoError(t, err)
	require.Len(t, res, 4, "blank tags are recorded too")

	assert.Equal(t, "AABBCC", res[0].Tag)
	require.NotNil(t, res[0].EdgeEventID)
	assert.Equal(t, int64(7), *res[0].EdgeEventID)
	assert.Equal(t, domain.ReasonOK, res[0].Reason)
	for _, r := range res[1:3] {
		assert.Equal(t, "", r.Tag)
		assert.Equal(t, domain.ReasonUnknownTag, r.Reason)
		assert.False(t, r.Fired)
	}
	assert.Equal(t, "0000", res[3].Tag)
	assert.Equal(t, domain.ReasonUnknownTag, res[3].Reason)
	assert.Nil(t, res[3].EdgeEventID)
	assert.Greater(t, res[3].DBID, res[0].DBID)

	rows, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	first := rows[3]
	assert.Equal(t, "gate-1", first.ReaderID)
	assert.Equal(t, ts, first.TSClient)
	assert.Equal(t, "10.0.0.5", first.SourceIP)
	assert.True(t, first.Fired)
	assert.True(t, first.ReceivedAt.Equal(clk.t))
	assert.Equal(t, "", rows[0].TSClient)

	require.Len(t, rec.rows, 4)
	assert.Equal(t, res[0].DBID, rec.rows[0].ID)
}

func TestIngest_BlankTagsAreAudited(t *testing.T) {
	s, rl, _ := newService(t)

	res, err := s.Ingest(context.Background(), Batch{
		ReaderID: "gate-1",
		Events:   []Incoming{{Tag: ""}, {Tag: "  "}},
	})
	require.NoError(t, err)
	require.Len(t, res, 2)
	for _, r := range res {
		assert.Equal(t, domain.ReasonUnknownTag, r.Reason)
	}
	n, err := repo.CountAuditEvents(context.Background(), s.DB)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Empty(t, rl.fires)
}

func TestIngest_DefaultsSourceIP(t *testing.T) {
	s, _, _ := newService(t)

	_, err := s.Ingest(context.Background(), Batch{ReaderID: "gate-1", Events: one("AABBCC", "")})
	require.NoError(t, err)
	rows, err := s.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "unknown", rows[0].SourceIP)
}

func TestIngest_MissingEvents(t *testing.T) {
	s, _, _ := newService(t)
	_, err := s.Ingest(context.Background(), Batch{ReaderID: "gate-1"})
	assert.ErrorIs(t, err, ErrMissingReaderOrEvents)

	res, err := s.Ingest(context.Background(), Batch{ReaderID: "gate-1", Events: []Incoming{}})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestIngest_NotConfigured(t *testing.T) {
	_, err := (&DecisionService{}).Ingest(context.Background(), Batch{Events: []Incoming{}})
	assert.True(t, errors.Is(err, ErrNotConfigured))
	_, err = (&DecisionService{}).Recent(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestIngest_RetentionTrim(t *testing.T) {
	s, _, _ := newService(t)
	s.MaxEvents = 3

	events := make([]Incoming, 5)
	for i := range events {
		events[i] = Incoming{Tag: fmt.Sprintf("FF%02d", i)}
	}
	_, err := s.Ingest(context.Background(), Batch{ReaderID: "gate-1", Events: events})
	require.NoError(t, err)

	n, err := repo.CountAuditEvents(context.Background(), s.DB)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	rows, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "FF04", rows[0].Tag)
	assert.Equal(t, "FF02", rows[2].Tag)
}

func TestIngest_ConcurrentDuplicatesFireOnce(t *testing.T) {
	s, rl, _ := newService(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Ingest(context.Background(), Batch{ReaderID: "gate-1", Events: one(knownTag, "")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, rl.count())
	n, err := repo.CountAuditEvents(context.Background(), s.DB)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
}

func TestRecent_NewestFirstAndClamp(t *testing.T) {
	s, _, clk := newService(t)
	for _, tag := range []string{"AABBCC", "DDEEFF", knownTag} {
		_, err := s.Ingest(context.Background(), Batch{ReaderID: "gate-1", Events: one(tag, "")})
		require.NoError(t, err)
		clk.add(time.Second)
	}

	rows, err := s.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, knownTag, rows[0].Tag)
	assert.Equal(t, "DDEEFF", rows[1].Tag)

	rows, err = s.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 1, ClampLimit(-5))
	assert.Equal(t, 1, ClampLimit(0))
	assert.Equal(t, 50, ClampLimit(50))
	assert.Equal(t, MaxEventsLimit, ClampLimit(5000))
}
