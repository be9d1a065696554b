package dss

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/rdss-io/rdss/internal/hashtable"
	"github.com/rdss-io/rdss/internal/memaccount"
	"github.com/rdss-io/rdss/internal/wire"
)

// evictionPoolLimit bounds how many sampled candidates the LRU pool carries
// between calls, matching original_source's kEvictionPoolLimit.
const evictionPoolLimit = 16

// lruCandidate is one entry in the eviction pool: a key's last-access tick
// paired with a private copy of its bytes (the original entry may be
// erased, rehashed, or have its LastAccess bumped again before the pool
// gets around to it, so the candidate must be re-validated against the
// live table before eviction — see GetSomeOldEntry).
type lruCandidate struct {
	lastAccess uint32
	key        []byte
}

// Evictor implements spec.md 4.J: policy-gated exceeded()/evict(), and LRU
// sampling into a small ordered pool. Grounded on original_source's
// eviction_strategy.h/.cc, with accounting substituted for the original's
// MemoryTracker delta-around-Erase trick (Go has no manual allocator to
// diff, so freed bytes are computed directly from the entry being removed).
type Evictor struct {
	dataTable   *hashtable.Table[*wire.SharedString]
	expireTable *hashtable.Table[time.Time]
	accountant  *memaccount.Accountant

	policy     MaxMemoryPolicy
	maxMemory  int64
	maxSamples int

	lruClock uint32
	pool     []lruCandidate

	evictedKeys atomic.Uint64
}

func newEvictor(dataTable *hashtable.Table[*wire.SharedString], expireTable *hashtable.Table[time.Time], accountant *memaccount.Accountant, cfg Config) *Evictor {
	return &Evictor{
		dataTable:   dataTable,
		expireTable: expireTable,
		accountant:  accountant,
		policy:      cfg.MaxMemoryPolicy,
		maxMemory:   cfg.MaxMemory,
		maxSamples:  cfg.MaxMemorySamples,
	}
}

// GetLRUClock returns the current coarse LRU tick.
func (e *Evictor) GetLRUClock() uint32 { return e.lruClock }

// RefreshLRUClock advances the LRU tick by one, called once per cron cycle
// rather than sampling wall-clock time (spec.md 5's data/expire tables
// store a tick counter, not a timestamp, per the hashtable Key comment).
func (e *Evictor) RefreshLRUClock() { e.lruClock++ }

// EvictedKeys returns the running count of keys this evictor has removed.
func (e *Evictor) EvictedKeys() uint64 { return e.evictedKeys.Load() }

// Exceeded returns accounted bytes minus maxMemory, or 0 when under budget
// or maxMemory is 0 (unlimited).
func (e *Evictor) Exceeded() int64 {
	if e.maxMemory == 0 {
		return 0
	}
	allocated := e.accountant.GetAllocated()
	if allocated <= e.maxMemory {
		return 0
	}
	return allocated - e.maxMemory
}

// Evict attempts to free bytesToFree bytes according to the configured
// policy, returning whether it succeeded. noeviction always fails
// immediately; allkeys-random and allkeys-lru loop picking victims until
// the goal is met or the table empties.
func (e *Evictor) Evict(bytesToFree int64) bool {
	switch e.policy {
	case PolicyNoEviction:
		return false
	case PolicyAllKeysRandom:
		var freed int64
		for freed < bytesToFree {
			if e.dataTable.Count() == 0 {
				return false
			}
			entry := e.dataTable.RandomEntry()
			if entry == nil {
				return false
			}
			freed += e.evictEntry(entry)
		}
		return true
	case PolicyAllKeysLRU:
		var freed int64
		for freed < bytesToFree {
			if e.dataTable.Count() == 0 {
				return false
			}
			entry := e.GetSomeOldEntry(e.maxSamples)
			if entry == nil {
				return false
			}
			freed += e.evictEntry(entry)
		}
		return true
	default:
		return false
	}
}

func (e *Evictor) evictEntry(entry *DataEntry) int64 {
	key := entry.Key.Bytes
	freed := int64(len(key) + valueLen(entry.Value))
	e.expireTable.Erase(key)
	e.dataTable.Erase(key)
	e.accountant.Deallocate(memaccount.CategoryBulk, int(freed))
	e.evictedKeys.Add(1)
	return freed
}

// GetSomeOldEntry samples up to samples random data entries into the
// eviction pool (ordered ascending by last-access, truncated to
// evictionPoolLimit), then pops and returns the oldest surviving one,
// re-validating it against the live table since the pool is carried across
// calls and the sampled entry may have been touched, evicted, or rehashed
// since. Grounded on original_source's GetSomeOldEntry.
func (e *Evictor) GetSomeOldEntry(samples int) *DataEntry {
	for {
		toSample := samples
		if count := e.dataTable.Count(); toSample > count {
			toSample = count
		}
		for i := 0; i < toSample; i++ {
			entry := e.dataTable.RandomEntry()
			if entry == nil {
				continue
			}
			e.insertCandidate(lruCandidate{
				lastAccess: entry.Key.LastAccess,
				key:        append([]byte(nil), entry.Key.Bytes...),
			})
		}
		if len(e.pool) > evictionPoolLimit {
			e.pool = e.pool[:evictionPoolLimit]
		}

		for len(e.pool) > 0 {
			oldest := e.pool[0]
			e.pool = e.pool[1:]
			entry := e.dataTable.Find(oldest.key)
			if entry == nil || entry.Key.LastAccess != oldest.lastAccess {
				continue
			}
			return entry
		}

		if toSample == 0 {
			return nil
		}
	}
}

// insertCandidate inserts c into the pool keeping it sorted ascending by
// last-access, matching the original's std::set<LRUEntry, CompareLRUEntry>.
func (e *Evictor) insertCandidate(c lruCandidate) {
	i := sort.Search(len(e.pool), func(i int) bool { return e.pool[i].lastAccess >= c.lastAccess })
	e.pool = append(e.pool, lruCandidate{})
	copy(e.pool[i+1:], e.pool[i:])
	e.pool[i] = c
}
