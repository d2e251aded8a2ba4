package tagstore

import (
	"errors"
	"log/slog"

	"github.com/poiesic/tagstore/storage"
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Store.
type Option[T any] func(*Store[T]) error

// WithTagKeys sets the function deriving an entry's tag keys from its data.
// Every returned key must be of the form "prefix:value".
// Default: no tags.
func WithTagKeys[T any](fn func(T) []string) Option[T] {
	return func(s *Store[T]) error {
		s.tagKeysOf = fn
		return nil
	}
}

// WithMetrics sets the function deriving an entry's metric values from its data.
// The implicit createdAt and updatedAt metrics are added on top and override
// values of the same name.
// Default: no metrics beyond the implicit ones.
func WithMetrics[T any](fn func(T) map[string]float64) Option[T] {
	return func(s *Store[T]) error {
		s.metricsOf = fn
		return nil
	}
}

// WithCodec sets the payload codec.
// Default: storage.JSONCodec.
func WithCodec[T any](codec storage.Codec) Option[T] {
	return func(s *Store[T]) error {
		if codec == nil {
			return errors.New("codec cannot be nil")
		}
		s.codec = codec
		return nil
	}
}

// WithKeyGenerator sets the function producing keys for entries written
// without one. Generated keys are still validated.
// Default: core.NewEntryKey (ULID).
func WithKeyGenerator[T any](fn func() string) Option[T] {
	return func(s *Store[T]) error {
		if fn == nil {
			return errors.New("key generator cannot be nil")
		}
		s.newKey = fn
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(s *Store[T]) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithRegisterer sets where the store's Prometheus collectors are registered.
// Default: a private registry, so several stores can coexist in one process.
func WithRegisterer[T any](reg prometheus.Registerer) Option[T] {
	return func(s *Store[T]) error {
		if reg == nil {
			return errors.New("registerer cannot be nil")
		}
		s.registerer = reg
		return nil
	}
}
