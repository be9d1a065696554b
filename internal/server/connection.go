package server

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/rdss-io/rdss/internal/ring"
)

// iovecsAddr returns iovecs' backing address for handing to Writev, which
// wants a raw pointer the same way giouring's PrepareWritev does. Callers
// keep the slice live on their own stack across the blocking Writev call.
func iovecsAddr(iovecs []unix.Iovec) uintptr {
	return uintptr(unsafe.Pointer(&iovecs[0]))
}

// Connection wraps one accepted client fd and the worker its I/O ops are
// submitted on. Recv/Send/Writev return (bytes, error) derived from the
// completion result the way original_source's RingIO::await_resume turns a
// negative result into an errno, and Close is idempotent exactly like the
// original's Connection::Close (guarded by an active_ flag).
type Connection struct {
	fd     int32
	worker *ring.Worker
	closed atomic.Bool
	slot   int32
	direct bool
}

func newConnection(fd int32, worker *ring.Worker) *Connection {
	return &Connection{fd: fd, worker: worker}
}

// FD returns the connection's raw file descriptor.
func (c *Connection) FD() int32 { return c.fd }

// RegisterFD assigns this connection's fd a fixed-file slot on its owning
// worker, matching spec.md 4.G's register_fd_on_current_worker. Once
// registered, Recv/Send/Writev still address the connection by raw fd;
// registration is exposed for callers that need the slot number itself.
func (c *Connection) RegisterFD() int32 {
	if !c.direct {
		c.slot = c.worker.RegisterFD(int(c.fd))
		c.direct = true
	}
	return c.slot
}

// Recv reads into buf, returning the byte count or the errno a negative
// completion result encoded. A zero-length, nil-error result means EOF.
func (c *Connection) Recv(buf []byte) (int, error) {
	comp := c.worker.Recv(c.fd, buf)
	if err := comp.Err(); err != nil {
		return 0, err
	}
	return int(comp.Res), nil
}

// Send writes view in full as a single submission.
func (c *Connection) Send(view []byte) (int, error) {
	comp := c.worker.Send(c.fd, view)
	if err := comp.Err(); err != nil {
		return 0, err
	}
	return int(comp.Res), nil
}

// Writev submits a scatter/gather write of iovecs, used for replies whose
// formatted bytes are not contiguous in the output buffer (bulk/array
// replies referencing borrowed value bytes, per wire.Result.NeedsGather).
func (c *Connection) Writev(iovecs []unix.Iovec) (int, error) {
	if len(iovecs) == 0 {
		return 0, nil
	}
	comp := c.worker.Writev(c.fd, iovecsAddr(iovecs), len(iovecs))
	if err := comp.Err(); err != nil {
		return 0, err
	}
	return int(comp.Res), nil
}

// Close releases the connection's fd. Safe to call more than once; only
// the first call actually closes.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.direct {
		c.worker.UnregisterFD(int(c.fd))
	}
	return unix.Close(int(c.fd))
}
