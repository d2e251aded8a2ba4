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


package tagstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotActive is returned by data operations on a store that is not activated.
	ErrNotActive = errors.New("store is not active")

	// ErrReloadRequired is returned once a transaction may have left the
	// in-memory indexes out of step with storage. Call Reload to recover.
	ErrReloadRequired = errors.New("store must be reloaded")

	// ErrBackendRequired is returned when New is given a nil backend.
	ErrBackendRequired = errors.New("storage backend required")
)

// TxOutcome classifies how a transaction ended.
type TxOutcome int

const (
	// TxCommitted means the transaction committed.
	TxCommitted TxOutcome = iota
	// TxRolledBackCleanly means storage rolled back and no in-memory index was touched.
	TxRolledBackCleanly
	// TxPossiblyInconsistent means memory and storage may disagree.
	TxPossiblyInconsistent
)

func (o TxOutcome) String() string {
	switch o {
	case TxCommitted:
		return "committed"
	case TxRolledBackCleanly:
		return "rolled_back"
	case TxPossiblyInconsistent:
		return "possibly_inconsistent"
	default:
		return "invalid"
	}
}

// TransactionError reports a failed transaction and its outcome.
type TransactionError struct {
	Outcome TxOutcome
	Err     error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s: %v", e.Outcome, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// Is matches ErrReloadRequired when the outcome leaves the store desynced.
func (e *TransactionError) Is(target error) bool {
	return target == ErrReloadRequired && e.Outcome == TxPossiblyInconsistent
}
