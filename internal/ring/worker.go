// Package ring implements the worker/event-loop runtime the I/O and
// data-structure threads run on: one completion ring per worker, typed
// awaitable operations, and a msg_ring-based cross-worker hand-off.
// Grounded on the teacher's internal/uring package (Ring interface,
// submit/flush/wait split, CPU-affinity pinning in queue.Runner.ioLoop),
// generalized from ublk's URING_CMD-only opcode to the generic
// accept/recv/send/writev/timeout/nop/msg_ring set a TCP-serving event loop
// needs, and from the teacher's channel-based completion delivery (it waits
// on a []Result returned from WaitForCompletion) to a per-operation Go
// channel so many goroutines can await distinct in-flight operations on the
// same worker concurrently.
package ring

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rdss-io/rdss/internal/logging"
)

const (
	defaultCQSize          = 65536
	defaultSQSize          = 4096
	defaultWaitBatchSize   = 256
	defaultSubmitBatchSize = 32
	waitTimeout            = 25 * time.Millisecond
)

// Config parameterizes a Worker's ring and pinning, matching spec.md 4.F's
// construction parameters.
type Config struct {
	Name              string
	CQSize            uint32
	SQSize            uint32
	EnableSubmitPoll  bool
	MaxRegisteredFDs  int
	EnableBufferRing  bool
	CPU               int // -1 = no affinity
	WaitBatchSize     int
	SubmitBatchSize   int
	backendForTesting backend // injected by tests in place of a real ring
}

type opRequest struct {
	userData uint64
	kind     Kind
	prep     func(sqe)
	done     chan Completion
}

// Worker owns one completion ring and runs its event loop on a single
// pinned OS thread (via Run, called from the goroutine that is to become
// that thread). All other goroutines interact with it only through
// Submit/RunOn/the typed operation helpers, which are safe to call
// concurrently from any goroutine.
type Worker struct {
	name    string
	backend backend
	cfg     Config
	logger  *logging.Logger

	submitCh chan opRequest
	jobCh    chan func()
	doneCh   chan struct{}

	nextUserData atomic.Uint64
	active       atomic.Bool
	pending      map[uint64]chan Completion
	fdRegistry   map[int]int32 // connection fd -> registered fixed-file slot
	mu           sync.Mutex    // guards fdRegistry only; pending is loop-owned
}

// NewWorker constructs a Worker and creates its backend ring right away
// (or uses the injected test backend); Run later pins the goroutine that
// drives it.
func NewWorker(cfg Config) (*Worker, error) {
	if cfg.CQSize == 0 {
		cfg.CQSize = defaultCQSize
	}
	if cfg.SQSize == 0 {
		cfg.SQSize = defaultSQSize
	}
	if cfg.WaitBatchSize == 0 {
		cfg.WaitBatchSize = defaultWaitBatchSize
	}
	if cfg.SubmitBatchSize == 0 {
		cfg.SubmitBatchSize = defaultSubmitBatchSize
	}

	b := cfg.backendForTesting
	if b == nil {
		var err error
		b, err = newRealBackend(cfg)
		if err != nil {
			return nil, err
		}
	}

	w := &Worker{
		name:     cfg.Name,
		backend:  b,
		cfg:      cfg,
		logger:   logging.Default().WithWorker(cfg.Name),
		submitCh: make(chan opRequest, cfg.SQSize),
		jobCh:    make(chan func(), cfg.SubmitBatchSize),
		doneCh:   make(chan struct{}),
		pending:    make(map[uint64]chan Completion),
		fdRegistry: make(map[int]int32),
	}
	w.active.Store(true)
	return w, nil
}

// FD returns the worker's ring file descriptor, the msg_ring target other
// workers submit to when transferring a continuation here.
func (w *Worker) FD() int32 { return w.backend.FD() }

// Name returns the worker's configured name, used to tag its log lines and
// identify it in diagnostics.
func (w *Worker) Name() string { return w.name }

// Run pins the calling goroutine's OS thread, applies CPU affinity, and
// runs the completion loop until Deactivate is called and all in-flight
// operations have drained. Matches queue.Runner.ioLoop's
// LockOSThread+SchedSetaffinity prelude.
func (w *Worker) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if w.cfg.CPU >= 0 {
		var mask unix.CPUSet
		mask.Set(w.cfg.CPU)
		if err := unix.SchedSetaffinity(0, &mask); err != nil {
			w.logger.Warnf("failed to set CPU affinity to %d: %v", w.cfg.CPU, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.Deactivate()
		default:
		}

		w.drainSubmissions()

		n, err := w.backend.SubmitAndWaitTimeout(1, waitTimeout.Nanoseconds())
		if err != nil {
			w.logger.Warnf("submit_and_wait: %v", err)
		}
		_ = n

		w.drainCompletions()

		if !w.active.Load() && len(w.pending) == 0 {
			return w.backend.Close()
		}
	}
}

// drainSubmissions pulls every request and job queued since the last loop
// iteration without blocking, preparing an SQE for each. Called only from
// the worker's own loop goroutine.
func (w *Worker) drainSubmissions() {
	for {
		select {
		case req := <-w.submitCh:
			w.prepare(req)
		case job := <-w.jobCh:
			job()
		default:
			return
		}
	}
}

func (w *Worker) prepare(req opRequest) {
	entry, err := w.backend.GetSQE()
	if err != nil {
		req.done <- Completion{Res: -int32(unix.EAGAIN)}
		return
	}
	req.prep(entry)
	entry.SetUserData(req.userData)
	w.pending[req.userData] = req.done
}

// drainCompletions processes every completion currently posted to the CQ.
// It does not read the ring's overflow counter, so completion-ring
// overflow is neither detected nor logged.
func (w *Worker) drainCompletions() {
	seen := 0
	for {
		userData, res, flags, ok := w.backend.PeekCQE()
		if !ok {
			return
		}
		ch := w.pending[userData]
		delete(w.pending, userData)
		w.backend.CQESeen()
		if ch != nil {
			ch <- Completion{Res: res, Flags: flags}
		}
		seen++
		if seen%w.cfg.SubmitBatchSize == 0 {
			w.drainSubmissions()
		}
	}
}

// Deactivate marks the worker for shutdown; the loop exits once every
// outstanding operation has completed. Safe to call from any goroutine.
func (w *Worker) Deactivate() {
	w.active.Store(false)
}

// submit is the shared path every typed operation helper funnels through:
// allocate a userData tag, hand the backend a prep callback, block until
// the loop delivers a Completion.
func (w *Worker) submit(kind Kind, prep func(sqe)) Completion {
	ud := w.nextUserData.Add(1)
	done := make(chan Completion, 1)
	w.submitCh <- opRequest{userData: ud, kind: kind, prep: prep, done: done}
	return <-done
}

// Nop submits a no-op completion, used to measure round-trip latency and
// in tests.
func (w *Worker) Nop() Completion {
	return w.submit(KindNop, func(s sqe) { s.PrepareNop() })
}

// Accept submits an accept on listenFD. Completion.Res is the new
// connection's fd on success.
func (w *Worker) Accept(listenFD int32) Completion {
	return w.submit(KindAccept, func(s sqe) { s.PrepareAccept(listenFD, 0) })
}

// Recv submits a receive into buf on fd. Completion.Res is the byte count.
func (w *Worker) Recv(fd int32, buf []byte) Completion {
	return w.submit(KindRecv, func(s sqe) { s.PrepareRecv(fd, buf, 0) })
}

// Send submits a send of buf on fd. Completion.Res is the byte count.
func (w *Worker) Send(fd int32, buf []byte) Completion {
	return w.submit(KindSend, func(s sqe) { s.PrepareSend(fd, buf, 0) })
}

// Writev submits a scatter/gather write of iovecs on fd.
func (w *Worker) Writev(fd int32, iovecsPtr uintptr, count int) Completion {
	return w.submit(KindWritev, func(s sqe) { s.PrepareWritev(fd, iovecsPtr, count, 0) })
}

// Timeout submits a relative timeout, used by the data-structure worker's
// cron loop to wake once per millisecond without a dedicated OS timer.
func (w *Worker) Timeout(d time.Duration) Completion {
	return w.submit(KindTimeout, func(s sqe) { s.PrepareTimeoutMillis(d.Milliseconds()) })
}

// RunOn enqueues job to run serially on w's own loop goroutine and blocks
// the caller until it has. Used by Transfer/ResumeOn, and directly by code
// already running on its own worker that needs to call into another
// worker's owned state (e.g. the data-structure service).
func (w *Worker) RunOn(job func()) {
	done := make(chan struct{})
	w.jobCh <- func() {
		job()
		close(done)
	}
	w.nudge()
	<-done
}

// nudge queues a zero-payload msg_ring against w's own ring. The request
// goes through submitCh, which only w's loop drains, so a loop already
// blocked in SubmitAndWaitTimeout still sees the job only after its ~25ms
// wait returns.
func (w *Worker) nudge() {
	ud := w.nextUserData.Add(1)
	done := make(chan Completion, 1)
	select {
	case w.submitCh <- opRequest{userData: ud, kind: KindMsgRing, prep: func(s sqe) {
		s.PrepareMsgRing(w.FD(), 0, 0)
	}, done: done}:
	default:
		// Submission queue momentarily full: the loop will still observe
		// the job via jobCh on its next unblocked pass.
	}
}

// RegisterFD assigns fd a fixed-file slot in this worker's registered-fd
// table, matching spec.md 4.G's "connection registered on this worker."
// Registration is bookkeeping only here: submitting ops against the
// registered slot instead of the raw fd is left to the server package,
// which knows which operations are hot enough on a given connection to be
// worth the fixed-file fast path.
func (w *Worker) RegisterFD(fd int) int32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if slot, ok := w.fdRegistry[fd]; ok {
		return slot
	}
	slot := int32(len(w.fdRegistry))
	w.fdRegistry[fd] = slot
	return slot
}

// RegisteredSlot reports the fixed-file slot fd was registered under, if
// any.
func (w *Worker) RegisteredSlot(fd int) (int32, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	slot, ok := w.fdRegistry[fd]
	return slot, ok
}

// UnregisterFD releases fd's fixed-file slot on connection close.
func (w *Worker) UnregisterFD(fd int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.fdRegistry, fd)
}

// Transfer hands job to dst to run on dst's own loop and queues a msg_ring
// to dst's ring on src; src's loop submits it on its next pass, so a dst
// blocked waiting for unrelated completions wakes no later than its own
// ~25ms wait timeout. Matches spec.md 4.F's
// transfer(src, dest): the client state machine's
// transfer(io_worker, data_worker) / transfer(data_worker, io_worker) pair
// is exactly two calls to this function.
func Transfer(src, dst *Worker, job func()) {
	ud := src.nextUserData.Add(1)
	done := make(chan Completion, 1)
	select {
	case src.submitCh <- opRequest{userData: ud, kind: KindMsgRing, prep: func(s sqe) {
		s.PrepareMsgRing(dst.FD(), 0, 0)
	}, done: done}:
	default:
	}
	dst.RunOn(job)
}

// ResumeOn is Transfer's non-worker-goroutine variant: a background
// goroutine not running on any worker's loop hands job to dst using a
// one-off ring purely to issue the wakeup msg_ring, matching spec.md 4.F's
// resume_on's "local temporary ring."
func ResumeOn(dst *Worker, job func()) error {
	tmp, err := newRealBackend(Config{Name: dst.name + "-resume-tmp", SQSize: 8, CQSize: 8})
	if err != nil {
		return err
	}
	defer tmp.Close()

	entry, err := tmp.GetSQE()
	if err == nil {
		entry.PrepareMsgRing(dst.FD(), 0, 0)
		entry.SetUserData(1)
		_, _ = tmp.SubmitAndWaitTimeout(0, 0)
	}
	dst.RunOn(job)
	return nil
}
