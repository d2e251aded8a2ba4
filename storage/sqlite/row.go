package sqlite

import (
	"fmt"
	"strconv"
)

// Row is one result row as an ordered column/value mapping.
type Row struct {
	columns []string
	values  []any
}

// Columns returns the column names in result order.
func (r Row) Columns() []string {
	return r.columns
}

// Value returns the raw driver value of a column.
func (r Row) Value(column string) (any, bool) {
	for i, c := range r.columns {
		if c == column {
			return r.values[i], true
		}
	}
	return nil, false
}

// String returns a TEXT column. NULL and missing columns yield "".
func (r Row) String(column string) string {
	v, _ := r.Value(column)
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// Int64 returns an INTEGER column. NULL and missing columns yield 0.
func (r Row) Int64(column string) int64 {
	v, _ := r.Value(column)
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}

// Float64 returns a REAL column. NULL and missing columns yield 0.
func (r Row) Float64(column string) float64 {
	v, _ := r.Value(column)
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

// Bytes returns a BLOB column. NULL and missing columns yield nil.
func (r Row) Bytes(column string) []byte {
	v, _ := r.Value(column)
	switch t := v.(type) {
	case []byte:
		return t
	case string:
		return []byte(t)
	default:
		return nil
	}
}
