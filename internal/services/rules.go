package services

import (
	"strings"
	"time"

	"github.com/tbourn/rfid-gate/internal/config"
)

// Armed reports whether a reader with schedule sc (found reports presence)
// may fire at instant at, evaluated on the wall clock of loc.
//
// A missing entry and an unknown mode are always armed. A window with
// start == end is treated as always armed; start > end wraps past midnight.
func Armed(sc config.Schedule, found bool, at time.Time, loc *time.Location) bool {
	if !found {
		return true
	}
	switch strings.ToLower(sc.Mode) {
	case config.ModeNever:
		return false
	case config.ModeWindow:
		if loc == nil {
			loc = time.Local
		}
		hour := at.In(loc).Hour()
		start, end := sc.StartHour, sc.EndHour
		switch {
		case start == end:
			return true
		case start < end:
			return start <= hour && hour < end
		default:
			return hour >= start || hour < end
		}
	default:
		return true
	}
}

// clientLayouts are the accepted ts formats. Zone-less values are read as UTC.
var clientLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseClientTS parses an edge timestamp.
func ParseClientTS(ts string) (time.Time, bool) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return time.Time{}, false
	}
	for _, layout := range clientLayouts {
		if t, err := time.ParseInLocation(layout, ts, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Late reports whether a read stamped tsClient arrived more than threshold
// after it was observed. An unparseable stamp or threshold <= 0 is never late.
func Late(receivedAt time.Time, tsClient string, threshold time.Duration) bool {
	if threshold <= 0 {
		return false
	}
	observed, ok := ParseClientTS(tsClient)
	if !ok {
		return false
	}
	return receivedAt.Sub(observed) > threshold
}

// withinWindow reports whether two instants are at most window apart.
func withinWindow(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}
