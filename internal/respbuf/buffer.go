// Package respbuf implements the growable read/write buffer the client
// pipeline uses for query and output bytes. It generalizes original_source's
// buffer.h VectorBuffer (EnsureAvailable/Sink/CommitWrite/Stored/Consume)
// from a C++ std::vector<char> with resize-doubling into an explicit Go
// []byte with the growth policy spec.md 4.B specifies.
package respbuf

import "github.com/rdss-io/rdss/internal/memaccount"

const oneMiB = 1 << 20

// Buffer is a byte buffer with read_index <= write_index <= capacity. A
// Buffer may instead hold a borrowed external view (built via NewBorrowed),
// used for zero-copy receives out of a provisioned buffer ring; in that
// mode EnsureAvailable/Produce are not valid.
type Buffer struct {
	data       []byte
	readIndex  int
	writeIndex int
	borrowed   bool

	accountant *memaccount.Accountant
	category   memaccount.Category
}

// New returns an empty owned buffer that accounts its growth against acc
// in category cat (CategoryQuery for connection buffers).
func New(acc *memaccount.Accountant, cat memaccount.Category) *Buffer {
	return &Buffer{accountant: acc, category: cat}
}

// NewBorrowed wraps an externally-owned view (e.g. one entry of a
// provisioned buffer ring) without taking ownership or accounting it.
func NewBorrowed(view []byte) *Buffer {
	return &Buffer{data: view, writeIndex: len(view), borrowed: true}
}

// EnsureAvailable guarantees capacity-writeIndex >= n, growing the backing
// array if necessary. Growth policy: double the required size while the
// result stays below 1MiB, otherwise add 1MiB increments. greedy forces the
// doubling step even when n is already satisfied — the client loop passes
// greedy = capacity < 16KiB so a connection's buffer reaches a useful size
// in one grow instead of creeping up one recv at a time.
//
// Returns the previous backing array when a relocation happened (nil
// otherwise) so callers holding argument views into the old memory can
// rebase them via [[internal/resp.Rebase]].
func (b *Buffer) EnsureAvailable(n int, greedy bool) (oldBase []byte) {
	if b.borrowed {
		panic("respbuf: EnsureAvailable on a borrowed buffer")
	}
	target := b.writeIndex + n
	if !greedy && cap(b.data)-b.writeIndex >= n {
		return nil
	}

	newCap := growTo(cap(b.data), target)
	if greedy {
		if g := growTo(cap(b.data), cap(b.data)+1); g > newCap {
			newCap = g
		}
	}
	if newCap <= cap(b.data) {
		return nil
	}

	old := b.data
	fresh := make([]byte, b.writeIndex, newCap)
	copy(fresh, old[:b.writeIndex])
	b.data = fresh
	if b.accountant != nil {
		b.accountant.Allocate(b.category, newCap-cap(old))
	}
	if old == nil {
		return nil
	}
	return old
}

// growTo computes the next capacity >= target starting from cur, following
// the double-below-1MiB / +1MiB-above-1MiB policy.
func growTo(cur, target int) int {
	if cur >= target {
		return cur
	}
	next := cur
	if next == 0 {
		next = 4096
	}
	for next < target {
		if next < oneMiB {
			next *= 2
		} else {
			next += oneMiB
		}
	}
	return next
}

// Sink returns the writable tail; write into it then call Produce(n).
func (b *Buffer) Sink() []byte {
	return b.data[b.writeIndex:cap(b.data)]
}

// Produce commits n bytes written into the slice returned by Sink.
func (b *Buffer) Produce(n int) {
	b.writeIndex += n
	if b.writeIndex > len(b.data) {
		b.data = b.data[:b.writeIndex]
	}
}

// Source returns the readable range [readIndex, writeIndex).
func (b *Buffer) Source() []byte {
	return b.data[b.readIndex:b.writeIndex]
}

// Consume advances readIndex by n; once it catches up to writeIndex both
// indices reset to zero so the next EnsureAvailable reuses the front of
// the array instead of growing forever.
func (b *Buffer) Consume(n int) {
	b.readIndex += n
	if b.readIndex > b.writeIndex {
		panic("respbuf: Consume beyond write index")
	}
	if b.readIndex == b.writeIndex {
		b.readIndex = 0
		b.writeIndex = 0
	}
}

// Reset discards everything currently buffered.
func (b *Buffer) Reset() {
	b.readIndex = 0
	b.writeIndex = 0
}

// Available reports how much unread data remains.
func (b *Buffer) Available() int { return b.writeIndex - b.readIndex }

// Cap reports the current backing capacity.
func (b *Buffer) Cap() int { return cap(b.data) }

// Base returns the current backing array's identity, used to detect
// relocation (b.Base() != oldBase) when deciding whether to rebase parser
// views.
func (b *Buffer) Base() []byte { return b.data }
