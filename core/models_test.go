package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusUnknown, "unknown"},
		{StatusNew, "new"},
		{StatusSaved, "saved"},
		{StatusUpdated, "updated"},
		{StatusDeleted, "deleted"},
		{Status(42), "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestNewTagPrefix(t *testing.T) {
	prefix := NewTagPrefix("Color")
	assert.Equal(t, "Color", prefix.Key)
	assert.Equal(t, "Color", prefix.Label)
	assert.Equal(t, "color", prefix.NormalizedLabel)
}

func TestTagKeyString(t *testing.T) {
	key := TagKey{Prefix: "status", Value: "low"}
	assert.Equal(t, "status:low", key.String())
	assert.Equal(t, "low", key.Label())
}

func TestTimeMetric(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 6000, time.UTC)
	assert.Equal(t, float64(ts.UnixMicro()), TimeMetric(ts))
	assert.Less(t, TimeMetric(ts), TimeMetric(ts.Add(time.Microsecond)))
}
