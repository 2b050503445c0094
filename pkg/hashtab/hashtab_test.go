package hashtab

import (
	"testing"
)

func identityHash(k uint64) uint32 { return uint32(k) }

func constHash(uint64) uint32 { return 0 }

func TestEmptyTable(t *testing.T) {
	tab := New[uint64, int](HashUint64)
	if tab.Len() != 0 || tab.Cap() != 0 {
		t.Fatalf("Len/Cap = %d/%d, want 0/0", tab.Len(), tab.Cap())
	}
	if _, ok := tab.Get(1); ok {
		t.Error("Get() on empty table found a key")
	}
	if tab.Remove(0, true) {
		t.Error("Remove() on empty table = true")
	}
}

func TestPutGetRemove(t *testing.T) {
	const n = 10000
	tab := New[uint64, uint64](HashUint64)

	for k := uint64(1); k <= n; k++ {
		idx, res := tab.Put(k)
		if res != FilledEmpty {
			t.Fatalf("Put(%d) = %v, want filled-empty", k, res)
		}
		tab.SetValue(idx, k*2)
		if tab.Occupied() > tab.UpperBound() {
			t.Fatalf("occupied %d exceeds upper bound %d", tab.Occupied(), tab.UpperBound())
		}
	}
	if tab.Len() != n {
		t.Fatalf("Len() = %d, want %d", tab.Len(), n)
	}

	for k := uint64(1); k <= n; k++ {
		idx, ok := tab.Get(k)
		if !ok {
			t.Fatalf("Get(%d) missed", k)
		}
		if tab.Key(idx) != k || tab.Value(idx) != k*2 {
			t.Fatalf("slot %d = (%d, %d), want (%d, %d)", idx, tab.Key(idx), tab.Value(idx), k, k*2)
		}
		if _, res := tab.Put(k); res != Present {
			t.Fatalf("second Put(%d) = %v, want present", k, res)
		}
	}

	for k := uint64(1); k <= n; k += 2 {
		if !tab.Delete(k) {
			t.Fatalf("Delete(%d) = false", k)
		}
	}
	if tab.Len() != n/2 {
		t.Fatalf("Len() = %d, want %d", tab.Len(), n/2)
	}
	for k := uint64(1); k <= n; k++ {
		_, ok := tab.Get(k)
		if want := k%2 == 0; ok != want {
			t.Fatalf("Get(%d) ok = %v, want %v", k, ok, want)
		}
	}
}

func TestRemoveZeroesValue(t *testing.T) {
	tab := New[uint64, *int](identityHash)
	v := 42
	tab.Insert(3, &v)
	idx, _ := tab.Get(3)
	if !tab.Remove(idx, false) {
		t.Fatal("Remove() = false")
	}
	if tab.vals[idx] != nil {
		t.Error("value slot still references the removed value")
	}
	if tab.Exists(idx) {
		t.Error("Exists() = true after Remove")
	}
	if tab.Remove(idx, false) {
		t.Error("second Remove() = true")
	}
}

func TestPutReusesFirstTombstone(t *testing.T) {
	tab := New[uint64, int](constHash)
	// All keys collide, so they land on the probe sequence 0, 1, 3, 6, ...
	for _, k := range []uint64{10, 20, 30} {
		tab.Put(k)
	}
	ia, _ := tab.Get(10)
	ib, _ := tab.Get(20)
	tab.Remove(ia, false)
	tab.Remove(ib, false)

	occupied := tab.Occupied()
	idx, res := tab.Put(40)
	if res != ReusedTombstone {
		t.Fatalf("Put() = %v, want reused-tombstone", res)
	}
	if idx != ia {
		t.Errorf("Put() slot = %d, want first tombstone %d", idx, ia)
	}
	if tab.Occupied() != occupied {
		t.Errorf("Occupied() = %d, want %d", tab.Occupied(), occupied)
	}
	if !tab.Contains(30) || !tab.Contains(40) || tab.Contains(20) {
		t.Error("unexpected membership after tombstone reuse")
	}
}

func TestPutFindsKeyPastTombstone(t *testing.T) {
	tab := New[uint64, int](constHash)
	tab.Put(1)
	tab.Put(2)
	i1, _ := tab.Get(1)
	tab.Remove(i1, false)

	i2, _ := tab.Get(2)
	idx, res := tab.Put(2)
	if res != Present || idx != i2 {
		t.Errorf("Put(2) = (%d, %v), want (%d, present)", idx, res, i2)
	}
	if tab.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tab.Len())
	}
}

func TestCompactionKeepsCapacity(t *testing.T) {
	tab := New[uint64, int](HashUint64)
	for k := uint64(0); k < 12; k++ {
		tab.Put(k)
	}
	if tab.Cap() != MinCapacity || tab.Occupied() != tab.UpperBound() {
		t.Fatalf("Cap/Occupied/UpperBound = %d/%d/%d", tab.Cap(), tab.Occupied(), tab.UpperBound())
	}
	for k := uint64(0); k < 10; k++ {
		tab.Delete(k)
	}
	if tab.Occupied() != 12 {
		t.Fatalf("Occupied() = %d, want 12 (tombstones count)", tab.Occupied())
	}

	tab.Put(100)
	if tab.Cap() != MinCapacity {
		t.Errorf("Cap() = %d, want %d", tab.Cap(), MinCapacity)
	}
	if tab.Occupied() != 3 {
		t.Errorf("Occupied() = %d, want 3", tab.Occupied())
	}
	for _, k := range []uint64{10, 11, 100} {
		if !tab.Contains(k) {
			t.Errorf("Contains(%d) = false after compaction", k)
		}
	}
}

func TestShrinkAboveFloor(t *testing.T) {
	const n = 20000
	tab := New[uint64, uint64](HashUint64)
	for k := uint64(0); k < n; k++ {
		tab.Insert(k, k)
	}
	if tab.Cap() != 32768 {
		t.Fatalf("Cap() = %d, want 32768", tab.Cap())
	}

	// Dropping below a quarter of capacity while above the floor shrinks.
	for k := uint64(0); k < 12000; k++ {
		if !tab.Delete(k) {
			t.Fatalf("Delete(%d) = false", k)
		}
	}
	if tab.Cap() != 16384 {
		t.Errorf("Cap() = %d, want 16384", tab.Cap())
	}
	if tab.Len() != n-12000 {
		t.Errorf("Len() = %d, want %d", tab.Len(), n-12000)
	}
	for k := uint64(12000); k < n; k++ {
		v, ok := tab.Lookup(k)
		if !ok || v != k {
			t.Fatalf("Lookup(%d) = (%d, %v), want (%d, true)", k, v, ok, k)
		}
	}
}

func TestNoShrinkWithoutFlag(t *testing.T) {
	tab := New[uint64, int](HashUint64)
	for k := uint64(0); k < 20000; k++ {
		tab.Put(k)
	}
	capBefore := tab.Cap()
	for k := uint64(0); k < 15000; k++ {
		idx, _ := tab.Get(k)
		tab.Remove(idx, false)
	}
	if tab.Cap() != capBefore {
		t.Errorf("Cap() = %d, want %d", tab.Cap(), capBefore)
	}
}

func TestResize(t *testing.T) {
	tab := New[uint64, uint64](HashUint64)
	for k := uint64(0); k < 20; k++ {
		tab.Insert(k, k+1)
	}

	t.Run("refuses too small", func(t *testing.T) {
		c := tab.Cap()
		if tab.Resize(16) {
			t.Fatal("Resize(16) = true with 20 entries")
		}
		if tab.Cap() != c {
			t.Errorf("Cap() = %d, want %d", tab.Cap(), c)
		}
	})

	t.Run("grow", func(t *testing.T) {
		if !tab.Resize(200) {
			t.Fatal("Resize(200) = false")
		}
		if tab.Cap() != 256 {
			t.Errorf("Cap() = %d, want 256", tab.Cap())
		}
		for k := uint64(0); k < 20; k++ {
			if v, ok := tab.Lookup(k); !ok || v != k+1 {
				t.Errorf("Lookup(%d) = (%d, %v)", k, v, ok)
			}
		}
	})

	t.Run("shrink", func(t *testing.T) {
		if !tab.Resize(30) {
			t.Fatal("Resize(30) = false")
		}
		if tab.Cap() != 32 {
			t.Errorf("Cap() = %d, want 32", tab.Cap())
		}
		for k := uint64(0); k < 20; k++ {
			if v, ok := tab.Lookup(k); !ok || v != k+1 {
				t.Errorf("Lookup(%d) = (%d, %v)", k, v, ok)
			}
		}
	})
}

func TestResizeKicksOutCollidingEntries(t *testing.T) {
	tab := New[uint64, uint64](identityHash)
	// With identity hashing, growing re-places keys into slots that still
	// hold unprocessed residents.
	for k := uint64(0); k < 32; k += 3 {
		tab.Insert(k, k)
	}
	if !tab.Resize(64) {
		t.Fatal("Resize(64) = false")
	}
	for k := uint64(0); k < 32; k += 3 {
		if v, ok := tab.Lookup(k); !ok || v != k {
			t.Errorf("Lookup(%d) = (%d, %v)", k, v, ok)
		}
	}
}

func TestIterate(t *testing.T) {
	tab := New[uint64, int](HashUint64)
	for k := uint64(1); k <= 100; k++ {
		tab.Insert(k, int(k))
	}

	t.Run("delete", func(t *testing.T) {
		tab.Iterate(func(idx int) IterAction {
			if tab.Key(idx)%2 == 0 {
				return Delete
			}
			return Continue
		})
		if tab.Len() != 50 {
			t.Fatalf("Len() = %d, want 50", tab.Len())
		}
		for k := uint64(2); k <= 100; k += 2 {
			if tab.Contains(k) {
				t.Fatalf("Contains(%d) = true after delete", k)
			}
		}
	})

	t.Run("stop", func(t *testing.T) {
		visited := 0
		tab.Iterate(func(int) IterAction {
			visited++
			return Stop
		})
		if visited != 1 {
			t.Errorf("visited = %d, want 1", visited)
		}
	})
}

func TestMapHelpers(t *testing.T) {
	tab := New[string, string](HashString)

	if !tab.Insert("a", "1") {
		t.Fatal("Insert(a) = false")
	}
	if tab.Insert("a", "2") {
		t.Fatal("Insert(a) twice = true")
	}
	if v, _ := tab.Lookup("a"); v != "1" {
		t.Errorf("Lookup(a) = %q, want 1", v)
	}

	old, replaced := tab.Replace("a", "3")
	if !replaced || old != "1" {
		t.Errorf("Replace(a) = (%q, %v), want (1, true)", old, replaced)
	}
	if _, replaced := tab.Replace("b", "4"); replaced {
		t.Error("Replace(b) reported a previous value")
	}
	if tab.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tab.Len())
	}

	tab.Clear()
	if tab.Len() != 0 || tab.Occupied() != 0 || tab.Contains("a") {
		t.Error("Clear() left entries behind")
	}
	if tab.Cap() == 0 {
		t.Error("Clear() released storage")
	}
	if !tab.Insert("a", "5") {
		t.Error("Insert(a) after Clear = false")
	}
}

func TestNewWithCapacity(t *testing.T) {
	tab := NewWithCapacity[uint64, int](HashUint64, 1000)
	c := tab.Cap()
	for k := uint64(0); k < 1000; k++ {
		tab.Put(k)
	}
	if tab.Cap() != c {
		t.Errorf("Cap() grew from %d to %d", c, tab.Cap())
	}
}

func TestRoundUp(t *testing.T) {
	tests := []struct{ in, want uint32 }{
		{0, 16}, {1, 16}, {16, 16}, {17, 32}, {1000, 1024}, {1024, 1024},
	}
	for _, tt := range tests {
		if got := roundUp(tt.in); got != tt.want {
			t.Errorf("roundUp(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
