package badger

import (
	"fmt"
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/tagstore/storage"
)

// Row layout: createdAt (varint micros), updatedAt (varint micros), data (string).
func marshalEntryRow(row *storage.EntryRow) []byte {
	created := row.CreatedAt.UnixMicro()
	updated := row.UpdatedAt.UnixMicro()
	data := string(row.Data)

	buf := make([]byte, varint.Int64.Size(created)+varint.Int64.Size(updated)+ord.String.Size(data))
	n := varint.Int64.Marshal(created, buf)
	n += varint.Int64.Marshal(updated, buf[n:])
	ord.String.Marshal(data, buf[n:])
	return buf
}

func unmarshalEntryRow(key string, bs []byte) (*storage.EntryRow, error) {
	created, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return nil, fmt.Errorf("%w: entry %s createdAt: %w", storage.ErrSerializationFailed, key, err)
	}
	updated, m, err := varint.Int64.Unmarshal(bs[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: entry %s updatedAt: %w", storage.ErrSerializationFailed, key, err)
	}
	n += m
	data, _, err := ord.String.Unmarshal(bs[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: entry %s data: %w", storage.ErrSerializationFailed, key, err)
	}

	row := &storage.EntryRow{
		Key:       key,
		CreatedAt: time.UnixMicro(created).UTC(),
		UpdatedAt: time.UnixMicro(updated).UTC(),
	}
	if data != "" {
		row.Data = []byte(data)
	}
	return row, nil
}

// marshalStrings writes a fixed sequence of strings.
func marshalStrings(values ...string) []byte {
	size := 0
	for _, v := range values {
		size += ord.String.Size(v)
	}
	buf := make([]byte, size)
	n := 0
	for _, v := range values {
		n += ord.String.Marshal(v, buf[n:])
	}
	return buf
}

// unmarshalStrings reads count strings written by marshalStrings.
func unmarshalStrings(bs []byte, count int) ([]string, error) {
	values := make([]string, count)
	n := 0
	for i := range values {
		v, m, err := ord.String.Unmarshal(bs[n:])
		if err != nil {
			return nil, fmt.Errorf("%w: string %d of %d: %w", storage.ErrSerializationFailed, i+1, count, err)
		}
		values[i] = v
		n += m
	}
	return values, nil
}

// Layout: metricKey (string), IEEE-754 bits (varint).
func marshalMetricValue(metricKey string, value float64) []byte {
	bits := math.Float64bits(value)
	buf := make([]byte, ord.String.Size(metricKey)+varint.Uint64.Size(bits))
	n := ord.String.Marshal(metricKey, buf)
	varint.Uint64.Marshal(bits, buf[n:])
	return buf
}

func unmarshalMetricValue(bs []byte) (string, float64, error) {
	metricKey, n, err := ord.String.Unmarshal(bs)
	if err != nil {
		return "", 0, fmt.Errorf("%w: metric key: %w", storage.ErrSerializationFailed, err)
	}
	bits, _, err := varint.Uint64.Unmarshal(bs[n:])
	if err != nil {
		return "", 0, fmt.Errorf("%w: metric value: %w", storage.ErrSerializationFailed, err)
	}
	return metricKey, math.Float64frombits(bits), nil
}
