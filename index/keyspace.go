package index

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// Keyspace interns entry keys to dense ordinals.
type Keyspace struct {
	ords map[string]uint32
	keys []string
}

// NewKeyspace creates an empty keyspace.
func NewKeyspace() *Keyspace {
	return &Keyspace{ords: make(map[string]uint32)}
}

// Intern returns the ordinal of key, assigning the next one if key is new.
func (k *Keyspace) Intern(key string) uint32 {
	if ord, ok := k.ords[key]; ok {
		return ord
	}
	ord := uint32(len(k.keys))
	k.keys = append(k.keys, key)
	k.ords[key] = ord
	return ord
}

// Lookup returns the ordinal of key without assigning one.
func (k *Keyspace) Lookup(key string) (uint32, bool) {
	ord, ok := k.ords[key]
	return ord, ok
}

// Forget drops the mapping of key. Its ordinal is retired; interning the key
// again yields a fresh, higher ordinal.
func (k *Keyspace) Forget(key string) {
	delete(k.ords, key)
}

// Key returns the key an ordinal was assigned to.
func (k *Keyspace) Key(ord uint32) string {
	return k.keys[ord]
}

// Len returns the number of ordinals handed out, retired ones included.
func (k *Keyspace) Len() int {
	return len(k.keys)
}

// Keys resolves a bitmap to keys in ascending ordinal order.
func (k *Keyspace) Keys(bm *roaring.Bitmap) []string {
	keys := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		keys = append(keys, k.keys[it.Next()])
	}
	return keys
}
