package index

import "errors"

// LoadState tracks lazy hydration of a Tag or Metric.
type LoadState int

const (
	Unloaded LoadState = iota
	Loading
	Loaded
)

func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "invalid"
	}
}

// ErrLoadInProgress is returned when a load is re-entered.
var ErrLoadInProgress = errors.New("load already in progress")
