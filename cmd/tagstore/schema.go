package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// document is a top-level JSON object stored as an entry payload.
type document map[string]any

// schema maps document fields to tags and metrics.
type schema struct {
	tagFields    []string
	metricFields []string
}

// tagKeys emits "field:value" for every configured field holding a string,
// number, bool or array of those. Empty values produce no tag.
func (s schema) tagKeys(doc document) []string {
	var keys []string
	for _, field := range s.tagFields {
		value, ok := doc[field]
		if !ok {
			continue
		}
		for _, v := range tagValues(value) {
			keys = append(keys, field+":"+v)
		}
	}
	return keys
}

// metrics emits numeric fields. Strings that parse as finite floats count;
// anything else is skipped.
func (s schema) metrics(doc document) map[string]float64 {
	out := make(map[string]float64, len(s.metricFields))
	for _, field := range s.metricFields {
		switch v := doc[field].(type) {
		case float64:
			out[field] = v
		case bool:
			if v {
				out[field] = 1
			} else {
				out[field] = 0
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				out[field] = f
			}
		}
	}
	return out
}

func tagValues(value any) []string {
	switch v := value.(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return []string{v}
		}
	case float64:
		return []string{strconv.FormatFloat(v, 'f', -1, 64)}
	case bool:
		return []string{strconv.FormatBool(v)}
	case []any:
		var out []string
		for _, item := range v {
			if _, nested := item.([]any); nested {
				continue
			}
			out = append(out, tagValues(item)...)
		}
		return out
	}
	return nil
}

func describeSchema(s schema) string {
	return fmt.Sprintf("tags from %v, metrics from %v", s.tagFields, s.metricFields)
}
