package config

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/rs/zerolog"

	"github.com/tbourn/rfid-gate/internal/domain"
)

// KnownTags is the immutable registry of tag ids allowed to open a gate.
type KnownTags struct {
	tags map[string]struct{}
}

// NewKnownTags builds a registry from raw tag ids.
func NewKnownTags(ids ...string) *KnownTags {
	k := &KnownTags{tags: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id = domain.NormalizeTag(id); id != "" {
			k.tags[id] = struct{}{}
		}
	}
	return k
}

// Contains reports whether tag is registered. tag must already be normalized.
func (k *KnownTags) Contains(tag string) bool {
	if k == nil {
		return false
	}
	_, ok := k.tags[tag]
	return ok
}

// Len returns the number of registered tags.
func (k *KnownTags) Len() int {
	if k == nil {
		return 0
	}
	return len(k.tags)
}

// LoadKnownTags reads a JSON object keyed by tag id; values are ignored.
// A missing or malformed file yields an empty registry and a warning.
func LoadKnownTags(path string, logger zerolog.Logger) *KnownTags {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Str("path", path).Msg("known tags file not found, registry is empty")
		} else {
			logger.Warn().Err(err).Str("path", path).Msg("cannot read known tags file, registry is empty")
		}
		return NewKnownTags()
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("known tags file is not a JSON object, registry is empty")
		return NewKnownTags()
	}

	ids := make([]string, 0, len(obj))
	for id := range obj {
		ids = append(ids, id)
	}
	k := NewKnownTags(ids...)
	logger.Info().Int("count", k.Len()).Str("path", path).Msg("known tags loaded")
	return k
}
