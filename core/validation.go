// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// MinEntryKeyLength is the shortest entry key accepted by any operation.
const MinEntryKeyLength = 5

// TagKeySeparator splits a tag key into prefix and value.
const TagKeySeparator = ":"

// ValidateEntryKey checks an entry key against the minimum length rule.
func ValidateEntryKey(key string) error {
	if len(key) < MinEntryKeyLength {
		return fmt.Errorf("%w: %w: %q is shorter than %d characters",
			ErrInvalidInput, ErrInvalidEntryKey, key, MinEntryKeyLength)
	}
	return nil
}

// NewEntryKey generates a fresh, time-ordered, unique entry key.
// ULIDs are 26 characters, well above MinEntryKeyLength.
func NewEntryKey() string {
	return ulid.Make().String()
}

// ParseTagKey splits "prefix:value" at the first separator.
//
// Validation rules:
//   - the separator must be present
//   - prefix and value must both be non-empty
//
// Values may contain further separators ("time:12:30" has prefix "time").
func ParseTagKey(key string) (TagKey, error) {
	prefix, value, ok := strings.Cut(key, TagKeySeparator)
	if !ok || prefix == "" || value == "" {
		return TagKey{}, fmt.Errorf("%w: %w: %q", ErrInvalidInput, ErrMalformedTagKey, key)
	}
	return TagKey{Prefix: prefix, Value: value}, nil
}

// NormalizeLabel returns the case-insensitive lookup form of a label.
func NormalizeLabel(label string) string {
	return strings.ToLower(label)
}

// ValidateMetricKey rejects empty metric names.
func ValidateMetricKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrEmptyMetricKey)
	}
	return nil
}

// ValidateMetricValue rejects NaN and infinite values.
func ValidateMetricValue(key string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %w: %s=%v", ErrInvalidInput, ErrInvalidMetricValue, key, value)
	}
	return nil
}

// ValidateStatus checks that s is one of the defined statuses.
func ValidateStatus(s Status) error {
	if s < StatusUnknown || s > StatusDeleted {
		return fmt.Errorf("%w: %w: value %d", ErrInvalidInput, ErrUnsupportedStatus, int(s))
	}
	return nil
}

// Now returns the current time in the precision entries are stored with.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
