package hashtable

import "bytes"

// Key is the record a data-table entry and an expire-table entry share by
// pointer identity: when a key gets a TTL, the expire table's entry holds
// the same *Key the data table's entry holds, so either table can update
// last-access time for the other to see. Grounded on
// original_source/hash_table.h's HashTableKey, minus its LRU time_point
// type (the LRU clock here is the data-structure service's coarse tick
// counter, not a steady_clock sample).
type Key struct {
	Bytes      []byte
	LastAccess uint32
}

// Equals reports whether k's bytes match s.
func (k *Key) Equals(s []byte) bool {
	return bytes.Equal(k.Bytes, s)
}
