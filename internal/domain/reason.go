package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Reason classifies the outcome of a single decision. Rejections are
// first-class outcomes and are persisted like successes.
type Reason string

const (
	ReasonOK              Reason = "ok"
	ReasonUnknownTag      Reason = "unknown_tag"
	ReasonOutsideSchedule Reason = "outside_schedule"
	ReasonTooLate         Reason = "too_late"
	ReasonDuplicate       Reason = "duplicate"

	// Relay actuator failures.
	ReasonRelayDisabled Reason = "relay_disabled"
	ReasonNoChannel     Reason = "no_channel_for_reader"
	ReasonRelayError    Reason = "relay_error"
)

// Reasons lists every outcome code, in evaluation order.
var Reasons = []Reason{
	ReasonUnknownTag,
	ReasonOutsideSchedule,
	ReasonTooLate,
	ReasonDuplicate,
	ReasonOK,
	ReasonRelayDisabled,
	ReasonNoChannel,
	ReasonRelayError,
}

// NormalizeTag trims surrounding whitespace and upper-cases a tag id so that
// registry lookups and dedup keys are case-insensitive. A Caser is stateful,
// so one is built per call.
func NormalizeTag(raw string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(raw))
}
