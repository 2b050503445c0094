package hashtab

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

const (
	// LoadFactor is the fraction of slots that may be occupied (live or
	// tombstoned) before Put rehashes.
	LoadFactor = 0.77
	// MinCapacity is the smallest allocated capacity.
	MinCapacity = 16
	// shrinkFloor is the size above which removals may shrink the table.
	shrinkFloor = 4096
)

// PutResult reports what Put did with the slot it returned.
type PutResult int

const (
	// Present means the key was already in the table.
	Present PutResult = iota
	// FilledEmpty means the key was placed into a never-used slot.
	FilledEmpty
	// ReusedTombstone means the key was placed into a previously deleted slot.
	ReusedTombstone
)

func (r PutResult) String() string {
	switch r {
	case Present:
		return "present"
	case FilledEmpty:
		return "filled-empty"
	case ReusedTombstone:
		return "reused-tombstone"
	default:
		return "unknown"
	}
}

// Inserted reports whether Put created a new entry.
func (r PutResult) Inserted() bool { return r != Present }

// IterAction is returned by an Iterate callback.
type IterAction int

const (
	// Continue moves on to the next slot.
	Continue IterAction = iota
	// Delete removes the current slot (without shrinking) and continues.
	Delete
	// Stop ends the iteration.
	Stop
)

// Table is a generic open-addressing hash table.
//
// Slot indices returned by Get and Put stay valid until the next Put,
// Resize or shrinking Remove.
type Table[K comparable, V any] struct {
	hash       func(K) uint32
	capacity   uint32
	size       uint32
	occupied   uint32
	upperBound uint32
	flags      []uint32
	keys       []K
	vals       []V
}

// New creates an empty table. Storage is allocated on first insert.
func New[K comparable, V any](hash func(K) uint32) *Table[K, V] {
	return &Table[K, V]{hash: hash}
}

// NewWithCapacity creates a table sized for at least n entries.
func NewWithCapacity[K comparable, V any](hash func(K) uint32, n int) *Table[K, V] {
	t := New[K, V](hash)
	if n > 0 {
		t.Resize(int(float64(n)/LoadFactor) + 1)
	}
	return t
}

// HashUint64 hashes a 64-bit key.
func HashUint64(k uint64) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], k)
	return murmur3.Sum32(b[:])
}

// HashString hashes a string key.
func HashString(s string) uint32 {
	return murmur3.Sum32([]byte(s))
}

// Len returns the number of live entries.
func (t *Table[K, V]) Len() int { return int(t.size) }

// Cap returns the number of slots. It doubles as the "not found" index.
func (t *Table[K, V]) Cap() int { return int(t.capacity) }

// Occupied returns the number of live plus tombstoned slots.
func (t *Table[K, V]) Occupied() int { return int(t.occupied) }

// UpperBound returns the occupancy at which the next Put rehashes.
func (t *Table[K, V]) UpperBound() int { return int(t.upperBound) }

// Get returns the slot holding key. On a miss it returns (Cap(), false).
func (t *Table[K, V]) Get(key K) (int, bool) {
	if t.capacity == 0 {
		return 0, false
	}
	mask := t.capacity - 1
	i := t.hash(key) & mask
	last := i
	var step uint32
	for !isEmpty(t.flags, i) && (isDeleted(t.flags, i) || t.keys[i] != key) {
		step++
		i = (i + step) & mask
		if i == last {
			return int(t.capacity), false
		}
	}
	if isEither(t.flags, i) {
		return int(t.capacity), false
	}
	return int(i), true
}

// Put finds or creates the slot for key. The value of a newly created slot
// is the zero value; set it with SetValue.
func (t *Table[K, V]) Put(key K) (int, PutResult) {
	if t.occupied >= t.upperBound {
		if t.capacity > t.size<<1 {
			// Plenty of tombstones: rehash at the same capacity.
			t.resize(t.capacity - 1)
		} else {
			t.resize(t.capacity + 1)
		}
	}

	mask := t.capacity - 1
	x, site := t.capacity, t.capacity
	i := t.hash(key) & mask
	if isEmpty(t.flags, i) {
		x = i
	} else {
		last := i
		var step uint32
		for !isEmpty(t.flags, i) && (isDeleted(t.flags, i) || t.keys[i] != key) {
			if isDeleted(t.flags, i) && site == t.capacity {
				site = i
			}
			step++
			i = (i + step) & mask
			if i == last {
				x = site
				break
			}
		}
		if x == t.capacity {
			if isEmpty(t.flags, i) && site != t.capacity {
				x = site
			} else {
				x = i
			}
		}
	}

	switch {
	case isEmpty(t.flags, x):
		t.keys[x] = key
		setBothFalse(t.flags, x)
		t.size++
		t.occupied++
		return int(x), FilledEmpty
	case isDeleted(t.flags, x):
		t.keys[x] = key
		setBothFalse(t.flags, x)
		t.size++
		return int(x), ReusedTombstone
	default:
		return int(x), Present
	}
}

// Remove tombstones the slot at idx. The value slot is zeroed so the table
// does not keep references alive. When shrink is set and the table is large
// and sparse, storage is reduced.
func (t *Table[K, V]) Remove(idx int, shrink bool) bool {
	if !t.Exists(idx) {
		return false
	}
	i := uint32(idx)
	setDeletedTrue(t.flags, i)
	var zk K
	var zv V
	t.keys[i] = zk
	t.vals[i] = zv
	t.size--
	if shrink && t.size > shrinkFloor && t.size < t.capacity>>2 {
		t.resize(uint32(float64(t.size) / LoadFactor * 1.5))
	}
	return true
}

// Resize rehashes the table into at least n slots (rounded up to a power of
// two). It returns false, leaving the table unchanged, when the current
// entries would not fit under the new bound.
func (t *Table[K, V]) Resize(n int) bool {
	if n < 0 {
		return false
	}
	return t.resize(uint32(n))
}

func (t *Table[K, V]) resize(n uint32) bool {
	n = roundUp(n)
	if t.size >= bound(n) {
		return false
	}

	newFlags := make([]uint32, flagWords(n))
	for j := range newFlags {
		newFlags[j] = 0xaaaaaaaa
	}
	oldCap := t.capacity
	if oldCap < n {
		t.keys = append(t.keys, make([]K, n-oldCap)...)
		t.vals = append(t.vals, make([]V, n-oldCap)...)
	}

	mask := n - 1
	for j := uint32(0); j != oldCap; j++ {
		if isEither(t.flags, j) {
			continue
		}
		key, val := t.keys[j], t.vals[j]
		setDeletedTrue(t.flags, j)
		for {
			i := t.hash(key) & mask
			var step uint32
			for !isEmpty(newFlags, i) {
				step++
				i = (i + step) & mask
			}
			setEmptyFalse(newFlags, i)
			if i < oldCap && !isEither(t.flags, i) {
				// Kick out the resident entry and keep placing it.
				t.keys[i], key = key, t.keys[i]
				t.vals[i], val = val, t.vals[i]
				setDeletedTrue(t.flags, i)
				continue
			}
			t.keys[i] = key
			t.vals[i] = val
			break
		}
	}

	if oldCap > n {
		keys := make([]K, n)
		copy(keys, t.keys)
		vals := make([]V, n)
		copy(vals, t.vals)
		t.keys, t.vals = keys, vals
	}

	t.flags = newFlags
	t.capacity = n
	t.occupied = t.size
	t.upperBound = bound(n)
	return true
}

// Iterate calls fn for every live slot in index order.
func (t *Table[K, V]) Iterate(fn func(idx int) IterAction) {
	for i := uint32(0); i < t.capacity; i++ {
		if isEither(t.flags, i) {
			continue
		}
		switch fn(int(i)) {
		case Delete:
			t.Remove(int(i), false)
		case Stop:
			return
		}
	}
}

// Exists reports whether idx is a live slot.
func (t *Table[K, V]) Exists(idx int) bool {
	return idx >= 0 && uint32(idx) < t.capacity && !isEither(t.flags, uint32(idx))
}

// Key returns the key stored at idx.
func (t *Table[K, V]) Key(idx int) K { return t.keys[idx] }

// Value returns the value stored at idx.
func (t *Table[K, V]) Value(idx int) V { return t.vals[idx] }

// SetValue stores v at idx.
func (t *Table[K, V]) SetValue(idx int, v V) { t.vals[idx] = v }

// Lookup returns the value stored under key.
func (t *Table[K, V]) Lookup(key K) (V, bool) {
	idx, ok := t.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return t.vals[idx], true
}

// Contains reports whether key is present.
func (t *Table[K, V]) Contains(key K) bool {
	_, ok := t.Get(key)
	return ok
}

// Insert adds key with value v. It fails if key is already present.
func (t *Table[K, V]) Insert(key K, v V) bool {
	idx, res := t.Put(key)
	if res == Present {
		return false
	}
	t.vals[idx] = v
	return true
}

// Replace stores v under key and returns the previous value, if any.
func (t *Table[K, V]) Replace(key K, v V) (V, bool) {
	idx, res := t.Put(key)
	old := t.vals[idx]
	t.vals[idx] = v
	if res != Present {
		var zero V
		return zero, false
	}
	return old, true
}

// Delete removes key, shrinking the table when it becomes sparse.
func (t *Table[K, V]) Delete(key K) bool {
	idx, ok := t.Get(key)
	if !ok {
		return false
	}
	return t.Remove(idx, true)
}

// Clear removes every entry but keeps the allocated storage.
func (t *Table[K, V]) Clear() {
	for j := range t.flags {
		t.flags[j] = 0xaaaaaaaa
	}
	clear(t.keys)
	clear(t.vals)
	t.size = 0
	t.occupied = 0
}

func bound(n uint32) uint32 {
	return uint32(float64(n)*LoadFactor + 0.5)
}

func roundUp(n uint32) uint32 {
	if n < MinCapacity {
		return MinCapacity
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

func flagWords(n uint32) uint32 {
	if n < 16 {
		return 1
	}
	return n >> 4
}

func flagShift(i uint32) uint32 { return (i & 0xf) << 1 }

func isEmpty(f []uint32, i uint32) bool   { return (f[i>>4]>>flagShift(i))&2 != 0 }
func isDeleted(f []uint32, i uint32) bool { return (f[i>>4]>>flagShift(i))&1 != 0 }
func isEither(f []uint32, i uint32) bool  { return (f[i>>4]>>flagShift(i))&3 != 0 }

func setEmptyFalse(f []uint32, i uint32)  { f[i>>4] &^= 2 << flagShift(i) }
func setBothFalse(f []uint32, i uint32)   { f[i>>4] &^= 3 << flagShift(i) }
func setDeletedTrue(f []uint32, i uint32) { f[i>>4] |= 1 << flagShift(i) }
