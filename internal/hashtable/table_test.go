package hashtable

import (
	"fmt"
	"testing"
)

func TestInsertFind(t *testing.T) {
	tbl := New[int]()
	entry, inserted := tbl.Insert([]byte("foo"), 1)
	if !inserted {
		t.Fatalf("expected inserted=true")
	}
	if entry.Value != 1 {
		t.Fatalf("entry.Value = %d, want 1", entry.Value)
	}

	_, inserted = tbl.Insert([]byte("foo"), 2)
	if inserted {
		t.Fatalf("expected inserted=false on duplicate key")
	}

	found := tbl.Find([]byte("foo"))
	if found == nil || found.Value != 1 {
		t.Fatalf("Find(foo) = %v, want value 1", found)
	}

	if tbl.Find([]byte("missing")) != nil {
		t.Fatalf("expected Find(missing) = nil")
	}
}

func TestUpsertOverwrites(t *testing.T) {
	tbl := New[int]()
	tbl.Upsert([]byte("k"), 1)
	entry, existed := tbl.Upsert([]byte("k"), 2)
	if !existed {
		t.Fatalf("expected existed=true on second Upsert")
	}
	if entry.Value != 2 {
		t.Fatalf("entry.Value = %d, want 2", entry.Value)
	}
}

func TestUpsertSharedReusesKeyIdentity(t *testing.T) {
	data := New[int]()
	entry, _ := data.Insert([]byte("k"), 1)

	expire := New[int64]()
	expire.UpsertShared(entry.Key, 1000)

	expireEntry := expire.Find([]byte("k"))
	if expireEntry == nil {
		t.Fatalf("expected expire entry to be found")
	}
	if expireEntry.Key != entry.Key {
		t.Fatalf("expire entry does not share key identity with data entry")
	}
}

func TestEraseRemovesEntry(t *testing.T) {
	tbl := New[int]()
	tbl.Insert([]byte("a"), 1)
	tbl.Insert([]byte("b"), 2)

	if !tbl.Erase([]byte("a")) {
		t.Fatalf("expected Erase(a) = true")
	}
	if tbl.Find([]byte("a")) != nil {
		t.Fatalf("a should be gone")
	}
	if tbl.Find([]byte("b")) == nil {
		t.Fatalf("b should still be present")
	}
	if tbl.Erase([]byte("a")) {
		t.Fatalf("expected second Erase(a) = false")
	}
	if tbl.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", tbl.Count())
	}
}

func TestCountAndLoadFactor(t *testing.T) {
	tbl := New[int]()
	if tbl.LoadFactor() != 0 {
		t.Fatalf("LoadFactor() on empty table = %v, want 0", tbl.LoadFactor())
	}
	for i := 0; i < 3; i++ {
		tbl.Insert([]byte(fmt.Sprintf("k%d", i)), i)
	}
	if tbl.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", tbl.Count())
	}
	if tbl.BucketCount() == 0 {
		t.Fatalf("BucketCount() = 0, want > 0")
	}
}

func TestClear(t *testing.T) {
	tbl := New[int]()
	tbl.Insert([]byte("a"), 1)
	tbl.Clear()
	if tbl.Count() != 0 {
		t.Fatalf("Count() after Clear = %d, want 0", tbl.Count())
	}
	if tbl.Find([]byte("a")) != nil {
		t.Fatalf("expected table empty after Clear")
	}
	if tbl.IsRehashing() {
		t.Fatalf("expected IsRehashing() = false after Clear")
	}
}

// TestRehashTriggersAndCompletes drives enough inserts to force the bucket
// array to double at least once, and checks every previously-inserted key
// remains findable throughout (before, during, and after the incremental
// rehash completes).
func TestRehashTriggersAndCompletes(t *testing.T) {
	tbl := New[int]()
	const n = 200
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		if _, inserted := tbl.Insert(key, i); !inserted {
			t.Fatalf("insert %d: expected inserted=true", i)
		}
		for j := 0; j <= i; j++ {
			probe := []byte(fmt.Sprintf("key-%d", j))
			entry := tbl.Find(probe)
			if entry == nil || entry.Value != j {
				t.Fatalf("after inserting %d: Find(key-%d) = %v, want %d", i, j, entry, j)
			}
		}
	}
	if tbl.Count() != n {
		t.Fatalf("Count() = %d, want %d", tbl.Count(), n)
	}
}

func TestRehashSomeDrivesToCompletion(t *testing.T) {
	tbl := New[int]()
	for i := 0; i < 10; i++ {
		tbl.Insert([]byte(fmt.Sprintf("k%d", i)), i)
	}
	if !tbl.IsRehashing() {
		t.Skip("table did not start rehashing at this size; growth threshold not met")
	}
	for tbl.IsRehashing() {
		tbl.RehashSome(1)
	}
	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("k%d", i))
		if tbl.Find(key) == nil {
			t.Fatalf("Find(%s) = nil after rehash completed", key)
		}
	}
}

func TestRandomEntryReturnsInsertedEntries(t *testing.T) {
	tbl := NewSeeded[int](1)
	keys := map[string]bool{}
	for i := 0; i < 20; i++ {
		k := fmt.Sprintf("rk%d", i)
		keys[k] = true
		tbl.Insert([]byte(k), i)
	}
	for i := 0; i < 50; i++ {
		entry := tbl.RandomEntry()
		if entry == nil {
			t.Fatalf("RandomEntry() = nil on non-empty table")
		}
		if !keys[string(entry.Key.Bytes)] {
			t.Fatalf("RandomEntry() returned unknown key %q", entry.Key.Bytes)
		}
	}
}

func TestRandomEntryEmptyTable(t *testing.T) {
	tbl := New[int]()
	if tbl.RandomEntry() != nil {
		t.Fatalf("expected nil RandomEntry() on empty table")
	}
}

// TestTraverseBucketVisitsEveryEntryOnce inserts a small number of keys
// (below the rehash threshold, so no rehash is in progress) and walks
// every bucket via the returned cursor until it returns to 0, checking
// every inserted key is seen exactly once.
func TestTraverseBucketVisitsEveryEntryOnce(t *testing.T) {
	tbl := New[int]()
	want := map[string]bool{}
	for i := 0; i < 3; i++ {
		k := fmt.Sprintf("tk%d", i)
		want[k] = true
		tbl.Insert([]byte(k), i)
	}

	seen := map[string]int{}
	cursor := 0
	for {
		cursor = tbl.TraverseBucket(cursor, func(e *Entry[int]) {
			seen[string(e.Key.Bytes)]++
		})
		if cursor == 0 {
			break
		}
	}

	if len(seen) != len(want) {
		t.Fatalf("visited %d distinct keys, want %d", len(seen), len(want))
	}
	for k, count := range seen {
		if count != 1 {
			t.Fatalf("key %q visited %d times, want 1", k, count)
		}
		if !want[k] {
			t.Fatalf("visited unexpected key %q", k)
		}
	}
}
