// Package hashtable implements the two-bucket-array, incrementally
// rehashing table the data-structure service uses for both the data table
// and the expire table. Grounded on original_source/hash_table.h's
// HashTable<ValueType, Allocator>, generalized from its allocator-templated
// C++ to a Go generic over the stored value type, and from its single-shot
// Expand()-does-everything rehash to the explicit incremental RehashSome(k)
// the data-structure service's cron drives.
package hashtable

import (
	"math/bits"
	"math/rand"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Entry is one chain node. Key is shared by pointer with the corresponding
// entry in a table's companion table (data <-> expire) so either side can
// see last-access updates the other makes.
type Entry[V any] struct {
	Key   *Key
	Value V
	Next  *Entry[V]
}

// Table is a chained hash table with power-of-two bucket counts and
// incremental rehashing: buckets[0] is always the live table; buckets[1]
// holds the grown table while a rehash is in progress, and rehashIndex is
// the cursor into buckets[0] marking which indices have already moved to
// buckets[1]. rehashIndex == -1 means no rehash is in progress.
type Table[V any] struct {
	buckets     [2][]*Entry[V]
	entries     int
	rehashIndex int32

	rng *rand.Rand
}

// New returns an empty table. Its bucket array is allocated lazily on the
// first insert, matching the original's deferred initial resize.
func New[V any]() *Table[V] {
	return &Table[V]{
		rehashIndex: -1,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewSeeded returns an empty table with a deterministic random source, for
// tests that exercise RandomEntry.
func NewSeeded[V any](seed int64) *Table[V] {
	t := New[V]()
	t.rng = rand.New(rand.NewSource(seed))
	return t
}

func hash(key []byte) uint64 { return xxhash.Sum64(key) }

// IsRehashing reports whether a rehash is in progress.
func (t *Table[V]) IsRehashing() bool { return t.rehashIndex >= 0 }

// Count returns the number of entries stored.
func (t *Table[V]) Count() int { return t.entries }

// BucketCount returns the size of the live bucket array.
func (t *Table[V]) BucketCount() int { return len(t.buckets[0]) }

// LoadFactor returns Count()/BucketCount(), or 0 for an empty table.
func (t *Table[V]) LoadFactor() float64 {
	if len(t.buckets[0]) == 0 {
		return 0
	}
	return float64(t.entries) / float64(len(t.buckets[0]))
}

// Clear drops every entry and resets rehashing state.
func (t *Table[V]) Clear() {
	t.buckets[0] = nil
	t.buckets[1] = nil
	t.entries = 0
	t.rehashIndex = -1
}

// bucketFor returns which table (0 or 1) and index key currently lives in,
// without performing a rehash step. During a rehash, indices at or past the
// cursor are still in buckets[0]; indices before it have already moved to
// buckets[1].
func (t *Table[V]) bucketFor(key []byte) (table int, index int) {
	h := hash(key)
	idx0 := int(h % uint64(len(t.buckets[0])))
	if !t.IsRehashing() || int32(idx0) >= t.rehashIndex {
		return 0, idx0
	}
	return 1, int(h % uint64(len(t.buckets[1])))
}

func (t *Table[V]) searchBucket(table, index int, key []byte) *Entry[V] {
	for e := t.buckets[table][index]; e != nil; e = e.Next {
		if e.Key.Equals(key) {
			return e
		}
	}
	return nil
}

// FindOrCreate looks up key, creating an entry for it when createOnMissing
// is set. createSharedKey controls whether a fresh *Key is allocated for a
// new entry (false is used by UpsertShared, which supplies its own *Key
// taken from the companion table). Returns (entry, existed).
func (t *Table[V]) FindOrCreate(key []byte, createOnMissing, createSharedKey bool) (*Entry[V], bool) {
	if len(t.buckets[0]) == 0 {
		if !createOnMissing {
			return nil, false
		}
		t.buckets[0] = make([]*Entry[V], 4)
	}

	table, index := t.bucketFor(key)
	if entry := t.searchBucket(table, index, key); entry != nil {
		return entry, true
	}
	if !createOnMissing {
		return nil, false
	}

	if t.IsRehashing() {
		t.RehashSome(1)
		table, index = t.bucketFor(key)
	} else if t.entries >= len(t.buckets[0]) {
		t.startRehash()
		table, index = t.bucketFor(key)
	}

	entry := &Entry[V]{Next: t.buckets[table][index]}
	if createSharedKey {
		entry.Key = &Key{Bytes: append([]byte(nil), key...)}
	}
	t.buckets[table][index] = entry
	t.entries++
	return entry, false
}

// Insert creates key with value only if key doesn't already exist. Returns
// (entry, inserted).
func (t *Table[V]) Insert(key []byte, value V) (*Entry[V], bool) {
	entry, existed := t.FindOrCreate(key, true, true)
	if !existed {
		entry.Value = value
	}
	return entry, !existed
}

// Upsert creates or overwrites key with value, allocating a fresh shared
// key record. Returns (entry, overwritten).
func (t *Table[V]) Upsert(key []byte, value V) (*Entry[V], bool) {
	entry, existed := t.FindOrCreate(key, true, true)
	entry.Value = value
	return entry, existed
}

// UpsertShared is Upsert using an already-constructed *Key shared with a
// companion table — used when inserting into the expire table under the
// same key identity the data table already holds. Returns (entry,
// overwritten).
func (t *Table[V]) UpsertShared(key *Key, value V) (*Entry[V], bool) {
	entry, existed := t.FindOrCreate(key.Bytes, true, false)
	if !existed {
		entry.Key = key
	}
	entry.Value = value
	return entry, existed
}

// Find returns key's entry, or nil if absent.
func (t *Table[V]) Find(key []byte) *Entry[V] {
	entry, _ := t.FindOrCreate(key, false, false)
	return entry
}

// Erase removes key's entry if present, stepping the rehash cursor if one
// is in progress. Returns whether an entry was removed.
func (t *Table[V]) Erase(key []byte) bool {
	if len(t.buckets[0]) == 0 {
		return false
	}
	if t.IsRehashing() {
		t.RehashSome(1)
	}
	table, index := t.bucketFor(key)

	var prev *Entry[V]
	for e := t.buckets[table][index]; e != nil; e = e.Next {
		if e.Key.Equals(key) {
			if prev == nil {
				t.buckets[table][index] = e.Next
			} else {
				prev.Next = e.Next
			}
			t.entries--
			return true
		}
		prev = e
	}
	return false
}

// RandomEntry picks a uniformly random non-empty bucket (consulting
// buckets[1] for indices below the rehash cursor) then a uniformly random
// entry within that bucket's chain.
func (t *Table[V]) RandomEntry() *Entry[V] {
	if len(t.buckets[0]) == 0 {
		return nil
	}
	for {
		idx := int(t.rng.Uint64() % uint64(len(t.buckets[0])))
		var bucket *Entry[V]
		if !t.IsRehashing() || int32(idx) >= t.rehashIndex {
			bucket = t.buckets[0][idx]
		} else {
			idx2 := int(t.rng.Uint64() % uint64(len(t.buckets[1])))
			bucket = t.buckets[1][idx2]
		}
		if bucket != nil {
			return t.randomInChain(bucket)
		}
	}
}

func (t *Table[V]) randomInChain(head *Entry[V]) *Entry[V] {
	length := 1
	for e := head; e.Next != nil; e = e.Next {
		length++
	}
	target := t.rng.Intn(length)
	e := head
	for i := 0; i < target; i++ {
		e = e.Next
	}
	return e
}

// TraverseBucket invokes fn on every entry in buckets[0][cursor] and
// returns the next cursor to visit, using a reversed-bit-increment scheme
// so repeated calls starting from 0 visit every bucket exactly once even
// across a table expansion partway through the sweep. Like the original,
// it is a no-op during an active rehash (rehashing reshuffles bucket
// contents out from under a stable traversal order).
func (t *Table[V]) TraverseBucket(cursor int, fn func(*Entry[V])) int {
	if t.IsRehashing() {
		return cursor
	}
	for e := t.buckets[0][cursor]; e != nil; e = e.Next {
		fn(e)
	}
	return nextIndex(cursor, len(t.buckets[0]))
}

// startRehash begins moving entries into a doubled bucket array and takes
// the first incremental step, matching the original's StartRehashing.
func (t *Table[V]) startRehash() {
	t.buckets[1] = make([]*Entry[V], len(t.buckets[0])*2)
	t.rehashIndex = 0
	t.RehashSome(1)
}

// RehashSome moves up to bucketsToRehash non-empty buckets (or up to
// 10*bucketsToRehash probes of empty buckets) from buckets[0] to
// buckets[1], advancing the cursor. When the cursor reaches the end,
// buckets[1] replaces buckets[0] and rehashing ends. Returns whether
// rehashing finished during this call.
func (t *Table[V]) RehashSome(bucketsToRehash int) bool {
	emptyAllowed := bucketsToRehash * 10
	for {
		moved := t.rehashBucket(int(t.rehashIndex))
		t.rehashIndex++
		if int(t.rehashIndex) == len(t.buckets[0]) {
			t.buckets[0] = t.buckets[1]
			t.buckets[1] = nil
			t.rehashIndex = -1
			return true
		}
		if moved == 0 {
			emptyAllowed--
			if emptyAllowed == 0 {
				return false
			}
		} else {
			bucketsToRehash--
			if bucketsToRehash == 0 {
				return false
			}
		}
	}
}

func (t *Table[V]) rehashBucket(index int) int {
	head := t.buckets[0][index]
	if head == nil {
		return 0
	}
	moved := 0
	for e := head; e != nil; {
		next := e.Next
		target := int(hash(e.Key.Bytes) % uint64(len(t.buckets[1])))
		e.Next = t.buckets[1][target]
		t.buckets[1][target] = e
		e = next
		moved++
	}
	t.buckets[0][index] = nil
	return moved
}

// nextIndex computes the next bucket cursor from index using a
// reversed-bit increment over size's bit width (size is a power of two):
// incrementing the bit-reversal of index and reversing back again produces
// a sequence that, followed from 0, lands on every value in [0, size) in
// an order stable across a doubling of size. Grounded directly on
// original_source/hash_table.h's detail::NextIndex/detail::rev.
func nextIndex(index, size int) int {
	highBit := bits.Len(uint(size)) - 1
	mask := uint64(1)<<uint(highBit) - 1
	v := uint64(index) | ^mask
	v = bits.Reverse64(v)
	v++
	v = bits.Reverse64(v)
	return int(v)
}
