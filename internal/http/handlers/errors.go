// Package handlers defines the machine-readable error codes returned in the
// "error" field of the error envelope. Codes are lowercase snake_case and
// stable; edge devices and dashboards branch on them.
package handlers

import "github.com/tbourn/rfid-gate/internal/http/middleware"

const (
	ErrCodeInvalidJSON           = "invalid_json"
	ErrCodeMissingReaderOrEvents = "missing_reader_or_events"
	ErrCodePayloadTooLarge       = "payload_too_large"
	ErrCodeNotFound              = "not_found"
	ErrCodeMethodNotAllowed      = "method_not_allowed"
	ErrCodeIngestFailed          = "ingest_failed"
	ErrCodeListFailed            = "list_failed"

	// Written by Recovery and the rate limiter.
	ErrCodeInternal        = middleware.ErrCodeInternal
	ErrCodeTooManyRequests = middleware.ErrCodeTooManyRequests
)
