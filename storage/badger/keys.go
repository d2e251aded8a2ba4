package badger

import (
	"encoding/binary"

	"github.com/go-crypt/x/blake2b"
)

// Key prefixes for different data types
const (
	entryPrefix       = "entry:"
	tagPrefixPrefix   = "tpfx:"
	tagPrefix         = "tag:"
	tagEntryPrefix    = "tagent:"
	entryTagPrefix    = "enttag:"
	metricPrefix      = "metric:"
	metricValuePrefix = "mval:"
	entryMetricPrefix = "entmet:"
	schemaVersionKey  = "schema:version"
)

// hashSize is the width of a hashed key component.
const hashSize = 8

// componentHash reduces a variable-length key component to a fixed-width
// BLAKE2b digest so composite keys can be scanned by prefix.
// Collisions are possible; every composite value carries the full component
// and readers verify it.
func componentHash(s string) uint64 {
	h, _ := blake2b.New(hashSize, nil) // 8 bytes = 64 bits
	h.Write([]byte(s))
	return binary.BigEndian.Uint64(h.Sum(nil))
}

func makeEntryKey(key string) []byte {
	return []byte(entryPrefix + key)
}

func makeTagPrefixKey(prefix string) []byte {
	return []byte(tagPrefixPrefix + prefix)
}

func makeTagKey(tagKey string) []byte {
	return []byte(tagPrefix + tagKey)
}

func makeMetricKey(metricKey string) []byte {
	return []byte(metricPrefix + metricKey)
}

// makePartialHashedKey generates prefix:hash(component).
func makePartialHashedKey(prefix, component string) []byte {
	buf := make([]byte, len(prefix)+hashSize)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], componentHash(component))
	return buf
}

// makeHashedKey generates prefix:hash(component):suffix.
func makeHashedKey(prefix, component, suffix string) []byte {
	partial := makePartialHashedKey(prefix, component)
	buf := make([]byte, len(partial)+len(suffix))
	offset := copy(buf, partial)
	copy(buf[offset:], suffix)
	return buf
}

// makeTagEntryKey generates the inverted index key tag → entry.
// Format: tagent:hash(tagKey):entryKey, value = tagKey
func makeTagEntryKey(tagKey, entryKey string) []byte {
	return makeHashedKey(tagEntryPrefix, tagKey, entryKey)
}

// makeEntryTagKey generates the reverse lookup key entry → tag.
// Format: enttag:hash(entryKey):tagKey, value = entryKey
func makeEntryTagKey(entryKey, tagKey string) []byte {
	return makeHashedKey(entryTagPrefix, entryKey, tagKey)
}

// makeMetricValueKey generates the key holding one metric value.
// Format: mval:hash(metricKey):entryKey, value = (metricKey, value)
func makeMetricValueKey(metricKey, entryKey string) []byte {
	return makeHashedKey(metricValuePrefix, metricKey, entryKey)
}

// makeEntryMetricKey generates the reverse lookup key entry → metric.
// Format: entmet:hash(entryKey):metricKey, value = entryKey
func makeEntryMetricKey(entryKey, metricKey string) []byte {
	return makeHashedKey(entryMetricPrefix, entryKey, metricKey)
}
