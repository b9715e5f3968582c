// Package handlers provides the HTTP handlers of the central service.
//
// Every error is written through fail(), which produces
//
//	{"status":"error","error":"<code>","request_id":"…"}
//
// and logs 5xx responses with the request-scoped logger.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rfid-gate/internal/http/middleware"
)

// ErrorResponse documents the error envelope for OpenAPI.
type ErrorResponse = middleware.ErrorBody

// fail aborts with the error envelope. Server errors are logged.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	middleware.AbortError(c, status, code, msg)
}

// Fail is the exported variant of fail for the router fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
