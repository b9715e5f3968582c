// Package services holds the central decision engine. This file centralizes
// service-level error values so handlers can translate them into HTTP
// status codes and error codes.
package services

import "errors"

var (
	// ErrMissingReaderOrEvents is returned for a batch without a reader id
	// or without an events list.
	ErrMissingReaderOrEvents = errors.New("missing reader id or events")

	// ErrNotConfigured is returned when a DecisionService lacks a database.
	ErrNotConfigured = errors.New("decision service not configured")
)
