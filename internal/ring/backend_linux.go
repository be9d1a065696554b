//go:build linux

package ring

import (
	"fmt"

	"github.com/pawelgaczynski/giouring"
)

// giouringBackend adapts github.com/pawelgaczynski/giouring's liburing
// binding to this package's narrow backend interface. giouring's
// SubmissionQueueEntry/CompletionQueueEntry mirror the kernel's
// io_uring_sqe/io_uring_cqe layouts directly (Prepare* helpers fill the
// opcode-specific union fields, UserData is a plain struct field), the
// same shape the teacher's internal/uring package wraps for ublk's
// URING_CMD opcode.
type giouringBackend struct {
	ring *giouring.Ring
}

func newRealBackend(cfg Config) (backend, error) {
	entries := cfg.CQSize
	if entries == 0 {
		entries = defaultCQSize
	}
	r, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("ring %s: create: %w", cfg.Name, err)
	}
	return &giouringBackend{ring: r}, nil
}

func (b *giouringBackend) FD() int32 { return int32(b.ring.Fd()) }

func (b *giouringBackend) GetSQE() (sqe, error) {
	entry := b.ring.GetSQE()
	if entry == nil {
		return nil, ErrRingFull
	}
	return &giouringSQE{entry: entry}, nil
}

func (b *giouringBackend) SubmitAndWaitTimeout(waitNr int, timeoutNanos int64) (int, error) {
	ts := giouring.NewTimespec(timeoutNanos)
	n, err := b.ring.SubmitAndWaitTimeout(uint32(waitNr), ts, nil)
	return int(n), err
}

func (b *giouringBackend) PeekCQE() (userData uint64, res int32, flags uint32, ok bool) {
	cqe, err := b.ring.PeekCQE()
	if err != nil || cqe == nil {
		return 0, 0, 0, false
	}
	return cqe.UserData, cqe.Res, cqe.Flags, true
}

func (b *giouringBackend) CQESeen() {
	b.ring.CQEAdvance(1)
}

func (b *giouringBackend) Close() error {
	b.ring.QueueExit()
	return nil
}

type giouringSQE struct {
	entry *giouring.SubmissionQueueEntry
}

func (s *giouringSQE) SetUserData(ud uint64) { s.entry.UserData = ud }

func (s *giouringSQE) PrepareNop() { s.entry.PrepareNop() }

func (s *giouringSQE) PrepareAccept(fd int32, flags int32) {
	s.entry.PrepareAccept(fd, 0, 0, flags)
}

func (s *giouringSQE) PrepareRecv(fd int32, buf []byte, flags int32) {
	var ptr uintptr
	if len(buf) > 0 {
		ptr = uintptr(bufAddr(buf))
	}
	s.entry.PrepareRecv(fd, ptr, uint32(len(buf)), flags)
}

func (s *giouringSQE) PrepareSend(fd int32, buf []byte, flags int32) {
	var ptr uintptr
	if len(buf) > 0 {
		ptr = uintptr(bufAddr(buf))
	}
	s.entry.PrepareSend(fd, ptr, uint32(len(buf)), flags)
}

func (s *giouringSQE) PrepareWritev(fd int32, iovecsPtr uintptr, count int, offset uint64) {
	s.entry.PrepareWritev(fd, iovecsPtr, uint32(count), offset)
}

func (s *giouringSQE) PrepareTimeoutMillis(ms int64) {
	ts := giouring.NewTimespec(ms * 1_000_000)
	s.entry.PrepareTimeout(ts, 0, 0)
}

func (s *giouringSQE) PrepareMsgRing(targetFD int32, res int32, userData uint64) {
	s.entry.PrepareMsgRing(targetFD, res, userData, 0)
}
