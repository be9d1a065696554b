// Package server implements the TCP front end: a listening socket wrapped
// around an accept ring operation, a Connection type wrapping a client fd,
// and the per-connection client state machine that drives recv/parse/
// invoke/reply. Grounded on original_source's listener.h/listener.cc (plain
// socket/bind/listen with SO_REUSEADDR and a backlog of 1000, an Accept
// that returns an awaitable) and connection.h (Recv/Send/Writev/Close as
// ring-backed awaitables, optional fixed-file registration), translated
// from the original's coroutine awaitables onto [[internal/ring]].Worker's
// blocking-submit operations.
package server

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/rdss-io/rdss/internal/logging"
	"github.com/rdss-io/rdss/internal/ring"
)

const listenBacklog = 1000

// Listener owns a bound, listening, non-blocking socket and accepts new
// connections as ring operations on a fixed worker.
type Listener struct {
	fd     int32
	worker *ring.Worker
	logger *logging.Logger
}

// Listen creates a listening socket on port (SO_REUSEADDR, backlog 1000,
// non-blocking) and binds future Accept calls to worker's ring, matching
// original_source's Listener::Create.
func Listen(port int, worker *ring.Worker) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("rdss: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rdss: setsockopt SO_REUSEADDR: %w", err)
	}

	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rdss: bind: %w", err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rdss: listen: %w", err)
	}

	logger := logging.Default()
	if worker != nil {
		logger = logger.WithWorker(worker.Name())
	}
	return &Listener{
		fd:     int32(fd),
		worker: worker,
		logger: logger,
	}, nil
}

// FD returns the listening socket's file descriptor.
func (l *Listener) FD() int32 { return l.fd }

// Accept submits an accept on the listening socket and blocks until a new
// connection arrives, ctx is canceled, or the listener closes. The new
// connection is wired to ioWorker, the worker that will own its recv/send
// pipeline (which may differ from the worker the Listener itself accepts
// on, letting connections fan out round-robin across I/O workers).
func (l *Listener) Accept(ctx context.Context, ioWorker *ring.Worker) (*Connection, error) {
	done := make(chan ring.Completion, 1)
	go func() { done <- l.worker.Accept(l.fd) }()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case c := <-done:
		if err := c.Err(); err != nil {
			l.logger.Debugf("accept: %v", err)
			return nil, fmt.Errorf("rdss: accept: %w", err)
		}
		return newConnection(c.Res, ioWorker), nil
	}
}

// Close shuts down the listening socket; in-flight Accept calls observe
// the usual cancel-on-close kernel behavior.
func (l *Listener) Close() error {
	return unix.Close(int(l.fd))
}
