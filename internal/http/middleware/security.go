package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions selects the optional response headers.
type SecurityOptions struct {
	EnableHSTS   bool          // sent only on HTTPS requests
	HSTSMaxAge   time.Duration // 180 days when zero
	NoStore      bool          // audit rows must not sit in shared caches
	EnablePolicy bool          // Permissions-Policy, cross-domain policy
}

type header struct{ key, value string }

// staticHeaders returns the headers that do not depend on the request.
func (o SecurityOptions) staticHeaders() []header {
	hs := []header{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	if o.EnablePolicy {
		hs = append(hs,
			header{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
			header{"X-Permitted-Cross-Domain-Policies", "none"},
		)
	}
	if o.NoStore {
		hs = append(hs,
			header{"Cache-Control", "no-store"},
			header{"Pragma", "no-cache"},
			header{"Expires", "0"},
		)
	}
	return hs
}

// SecurityHeaders sets hardening headers for the JSON API and exposes
// X-Request-ID to browser dashboards.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	static := opt.staticHeaders()
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := fmt.Sprintf("max-age=%d; includeSubDomains", int64(maxAge.Seconds()))

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range static {
			h.Set(kv.key, kv.value)
		}
		if opt.EnableHSTS && overTLS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}
		c.Next()
	}
}

// exposeHeader appends name to Access-Control-Expose-Headers once.
func exposeHeader(h http.Header, name string) {
	const key = "Access-Control-Expose-Headers"
	cur := h.Get(key)
	switch {
	case cur == "":
		h.Set(key, name)
	case !strings.Contains(cur, name):
		h.Set(key, cur+", "+name)
	}
}

// overTLS reports a direct TLS connection or one terminated by a proxy.
func overTLS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
