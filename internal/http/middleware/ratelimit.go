package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

const (
	bucketIdleTTL = 10 * time.Minute
	sweepInterval = time.Minute
)

var rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rfidgate",
	Subsystem: "http",
	Name:      "rate_limited_total",
	Help:      "Requests rejected by the /api limiter, by caller kind.",
}, []string{"kind"})

// KeyFunc picks the bucket of a request. The prefix before ':' is the
// caller kind used as metric label.
type KeyFunc func(*gin.Context) string

// KeyByReaderOrIP gives every edge device its own bucket via X-Reader-ID,
// so readers sharing a NAT address do not starve each other. Requests
// without the header fall back to the client IP.
func KeyByReaderOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if id := strings.TrimSpace(c.GetHeader(ReaderIDHeader)); id != "" {
			return "reader:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is an in-memory token bucket per key. Process-local; it
// throttles chatty readers and is not an access control.
type RateLimiter struct {
	limit rate.Limit
	burst int
	key   KeyFunc
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter refills rps tokens per second per key; burst is raised to 1
// when not positive.
func NewRateLimiter(rps float64, burst int, key KeyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		key:     key,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// allow takes one token from key's bucket. Idle buckets are swept at most
// once per sweepInterval.
func (rl *RateLimiter) allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= sweepInterval {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= bucketIdleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

// Handler answers 429 with Retry-After when the bucket is empty. Edges keep
// the batch in their outbox and retry on the next flush.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rl.key(c)
		if rl.allow(key) {
			c.Next()
			return
		}
		kind, _, _ := strings.Cut(key, ":")
		rateLimited.WithLabelValues(kind).Inc()
		c.Header("Retry-After", "1")
		AbortError(c, http.StatusTooManyRequests, ErrCodeTooManyRequests, "rate limit exceeded")
	}
}
