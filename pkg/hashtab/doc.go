// Package hashtab provides an open-addressing hash table with tombstones and
// in-place rehashing.
//
// Slots are tracked with two flag bits each (empty, deleted) packed sixteen to
// a word. Lookups probe with a triangular step, so every slot of the
// power-of-two table is visited before the probe returns to its start.
//
// The table is not safe for concurrent use.
//
// Usage:
//
//	t := hashtab.New[uint64, *Entry](hashtab.HashUint64)
//	idx, res := t.Put(origin)
//	if res.Inserted() {
//		t.SetValue(idx, entry)
//	}
package hashtab
