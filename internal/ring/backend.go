package ring

import "errors"

// ErrUnsupported is returned by the non-Linux backend: real submission
// requires the io_uring syscalls, available only under GOOS=linux.
// Mirrors the teacher's iouring_stub.go "giouring not enabled" fallback.
var ErrUnsupported = errors.New("ring: io_uring backend unsupported on this platform")

// ErrClosed is returned by operations submitted after the worker has
// started shutting down.
var ErrClosed = errors.New("ring: worker closed")

// ErrRingFull is returned by GetSQE when the submission queue has no free
// entries; the client pipeline never issues more than one outstanding
// operation per connection per worker, so this indicates SQSize is
// undersized for the connection count rather than a transient condition.
var ErrRingFull = errors.New("ring: submission queue full")

// sqe is the narrow view into a submission entry a prep function fills in.
// The real backend's sqe wraps *giouring.SubmissionQueueEntry; the fake
// backend used by tests wraps a plain struct. Only the fields operations
// in this package actually use are exposed.
type sqe interface {
	SetUserData(ud uint64)
	PrepareNop()
	PrepareAccept(fd int32, flags int32)
	PrepareRecv(fd int32, buf []byte, flags int32)
	PrepareSend(fd int32, buf []byte, flags int32)
	PrepareWritev(fd int32, iovecs uintptr, count int, offset uint64)
	PrepareTimeoutMillis(ms int64)
	PrepareMsgRing(targetFD int32, res int32, userData uint64)
}

// backend is the narrow set of ring operations Worker needs: acquire a
// submission slot, push prepared entries to the kernel, and drain
// completions. Grounded on the teacher's uring.Ring interface, generalized
// from its ublk-specific SubmitIOCmd/PrepareIOCmd/FlushSubmissions to
// generic GetSQE/Submit/PeekCQE primitives closer to liburing's own shape
// (which is what github.com/pawelgaczynski/giouring binds).
type backend interface {
	// FD returns the ring's own file descriptor, used as the msg_ring
	// target when another worker transfers a continuation here.
	FD() int32
	GetSQE() (sqe, error)
	SubmitAndWaitTimeout(waitNr int, timeout int64) (int, error)
	PeekCQE() (userData uint64, res int32, flags uint32, ok bool)
	CQESeen()
	Close() error
}
