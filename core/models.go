package core

import (
	"time"
)

// Status is the transient lifecycle marker of an Entry. It is never persisted.
type Status int

const (
	// StatusUnknown is the zero value: nothing is known about persistence yet.
	StatusUnknown Status = iota
	// StatusNew marks an entry that has no persisted row.
	StatusNew
	// StatusSaved marks an entry whose row matches its in-memory state.
	StatusSaved
	// StatusUpdated is set by callers to signal pending changes before WriteEntry.
	StatusUpdated
	// StatusDeleted is set by callers to request deletion through WriteEntry.
	StatusDeleted
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusNew:
		return "new"
	case StatusSaved:
		return "saved"
	case StatusUpdated:
		return "updated"
	case StatusDeleted:
		return "deleted"
	default:
		return "invalid"
	}
}

// Entry is one stored record.
// Data is opaque to the store; it is only handed to the caller-supplied
// tag and metric functions and to the payload codec.
type Entry[T any] struct {
	Key       string
	CreatedAt time.Time // Set on first save, immutable afterwards
	UpdatedAt time.Time // Set on every save, never moves backwards
	Data      T
	Status    Status
}

// TagPrefix is the namespace shared by a family of tags, e.g. "color".
type TagPrefix struct {
	Key             string
	Label           string
	NormalizedLabel string
}

// NewTagPrefix builds a TagPrefix whose label is its key.
func NewTagPrefix(key string) TagPrefix {
	return TagPrefix{
		Key:             key,
		Label:           key,
		NormalizedLabel: NormalizeLabel(key),
	}
}

// TagKey is a parsed "prefix:value" tag identity.
type TagKey struct {
	Prefix string
	Value  string
}

// String returns the canonical "prefix:value" form.
func (k TagKey) String() string {
	return k.Prefix + TagKeySeparator + k.Value
}

// Label is the display label of the tag (its value).
func (k TagKey) Label() string {
	return k.Value
}

// Implicit metric keys injected for every entry.
const (
	MetricCreatedAt = "createdAt"
	MetricUpdatedAt = "updatedAt"
)

// TimeMetric converts a timestamp to the value stored for the implicit time metrics.
func TimeMetric(t time.Time) float64 {
	return float64(t.UnixMicro())
}
