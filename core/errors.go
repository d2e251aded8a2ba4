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

import "errors"

// ErrInvalidInput is the umbrella for every rejected-input error. Callers can
// match it with errors.Is regardless of the specific cause.
var ErrInvalidInput = errors.New("invalid input")

// Domain validation errors
var (
	// ErrInvalidEntryKey indicates an entry key is missing or shorter than MinEntryKeyLength.
	ErrInvalidEntryKey = errors.New("invalid entry key")

	// ErrMalformedTagKey indicates a tag key is not of the form "prefix:value".
	ErrMalformedTagKey = errors.New("malformed tag key")

	// ErrUnsupportedStatus indicates an entry status the store cannot act on.
	ErrUnsupportedStatus = errors.New("unsupported entry status")

	// ErrEmptyMetricKey indicates a metric was named with the empty string.
	ErrEmptyMetricKey = errors.New("metric key cannot be empty")

	// ErrInvalidMetricValue indicates a NaN or infinite metric value.
	ErrInvalidMetricValue = errors.New("metric value must be finite")
)

// ErrNotFound indicates that a required entry does not exist.
var ErrNotFound = errors.New("entry not found")
