package server

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/rdss-io/rdss/internal/logging"
	"github.com/rdss-io/rdss/internal/memaccount"
	"github.com/rdss-io/rdss/internal/resp"
	"github.com/rdss-io/rdss/internal/respbuf"
	"github.com/rdss-io/rdss/internal/ring"
	"github.com/rdss-io/rdss/internal/wire"
)

// connIO is the slice of Connection that Client drives. Kept as an
// interface so the state machine can be exercised with a fake in tests
// without a real ring/socket underneath; *Connection satisfies it
// directly.
type connIO interface {
	Recv(buf []byte) (int, error)
	Send(view []byte) (int, error)
	Writev(iovecs []unix.Iovec) (int, error)
	Close() error
	FD() int32
}

// queryBufTarget is the per-recv floor spec.md 4.H's ensure_available call
// guarantees before every recv.
const queryBufTarget = 16 * 1024

// Handler dispatches one parsed command into result. Implemented by
// internal/dss.Service.Invoke; kept as a function type here so
// internal/server has no import-time dependency on internal/dss (the data
// structure service instead depends on this package's Connection/Client
// shapes only through the handler closure it's constructed with).
type Handler func(args []resp.Arg, result *wire.Result)

// Client holds one connection's full pipeline state: the owned connection,
// query and output buffers, a lazily-engaged multi-bulk parser, the most
// recent parsed argument views, scratch iovecs, and a reusable Result.
// Grounded on original_source's Connection struct fields (buffer, parser,
// vec, arguments) carried across QueueRead/ParseBuffer/QueueWrite calls.
type Client struct {
	conn     connIO
	transfer func(job func())
	handler  Handler

	queryBuf *respbuf.Buffer
	outBuf   *respbuf.Buffer
	multi    *resp.MultiBulkParser
	args     []resp.Arg
	result   wire.Result

	inBytes    uint64
	outBytes   uint64
	maxOutSize int

	logger *logging.Logger
}

// WorkerTransfer returns the transfer function production code passes to
// NewClient: running job on dataWorker via [[internal/ring]].Transfer from
// ioWorker, the literal transfer(io_worker -> data_worker) spec.md 4.H
// names.
func WorkerTransfer(ioWorker, dataWorker *ring.Worker) func(func()) {
	return func(job func()) { ring.Transfer(ioWorker, dataWorker, job) }
}

// NewClient wires a freshly accepted connection to the accountant it will
// run its pipeline on. transfer must run job to completion on whichever
// worker owns the command dictionary before returning, per spec.md 4.H's
// transfer(io_worker -> data_worker); invoke; transfer(data_worker ->
// io_worker) sequence — see WorkerTransfer for the production
// implementation.
func NewClient(conn connIO, transfer func(func()), handler Handler, acc *memaccount.Accountant) *Client {
	return &Client{
		conn:     conn,
		transfer: transfer,
		handler:  handler,
		queryBuf: respbuf.New(acc, memaccount.CategoryQuery),
		outBuf:   respbuf.New(acc, memaccount.CategoryQuery),
		multi:    resp.NewMultiBulkParser(),
		logger:   logging.Default().WithConn(int(conn.FD())),
	}
}

// Run drives the connection until it closes or ctx is canceled, looping
// through the six steps spec.md 4.H names: ensure buffer space, recv,
// parse, transfer/invoke/transfer, reply, cleanup.
func (c *Client) Run(ctx context.Context) {
	defer c.conn.Close()

	inMultiBulk := false
	needRecv := true
	for {
		if ctx.Err() != nil {
			return
		}

		if needRecv {
			// Step 1: ensure room before the next recv, rebasing c.args if
			// the buffer relocated. c.args is nil while a multi-bulk parse
			// is still in progress (Parse hands back views only on
			// StateDone); the views the parser holds for a partial command
			// keep pointing at the old backing array, whose bytes a
			// relocation leaves unchanged.
			greedy := c.queryBuf.Cap() < queryBufTarget
			if oldBase := c.queryBuf.EnsureAvailable(queryBufTarget, greedy); oldBase != nil && inMultiBulk {
				resp.Rebase(oldBase, c.queryBuf.Base(), c.args)
			}

			// Step 2: recv into the freshly ensured tail.
			n, recvErr := c.conn.Recv(c.queryBuf.Sink())
			if recvErr != nil || n == 0 {
				if recvErr != nil {
					c.logger.Debugf("recv: %v", recvErr)
				}
				return
			}
			c.queryBuf.Produce(n)
			c.inBytes += uint64(n)
		}

		// Step 3: parse what's arrived. A command may span several recvs,
		// in which case Init/Parsing sends us back to step 2 with state
		// (cursor, partial args) preserved on c.multi. A pipelined command
		// already sitting in the buffer from a previous recv is parsed
		// immediately without waiting on the network again.
		var state resp.State
		src := c.queryBuf.Source()
		if inMultiBulk || (len(src) > 0 && src[0] == '*') {
			inMultiBulk = true
			state, c.args = c.multi.Parse(c.queryBuf)
		} else {
			state, c.args = resp.ParseInline(c.queryBuf)
		}

		protocolError := false
		switch state {
		case resp.StateInit, resp.StateParsing:
			needRecv = true
			continue
		case resp.StateError:
			c.result.SetError(wire.KindProtocol)
			inMultiBulk = false
			c.multi.Reset()
			protocolError = true
		case resp.StateDone:
			inMultiBulk = false
			c.result.Reset()
			if len(c.args) == 0 {
				// A blank inline line: nothing to reply to, just see if
				// there's already another pipelined command buffered.
				needRecv = c.queryBuf.Available() == 0
				continue
			}
			// Step 4: hand the parsed command to the data-structure
			// worker, run the handler there, come back.
			c.transfer(func() {
				c.handler(c.args, &c.result)
			})
		}

		// Step 5: reply.
		iovecs := resp.Format(&c.result, c.outBuf)
		var wn int
		var sendErr error
		if len(iovecs) > 0 {
			wn, sendErr = c.conn.Writev(iovecs)
		} else {
			wn, sendErr = c.conn.Send(c.outBuf.Source())
		}
		if sendErr != nil || wn == 0 {
			if sendErr != nil {
				c.logger.Debugf("send: %v", sendErr)
			}
			return
		}
		c.outBytes += uint64(wn)
		if c.outBuf.Available() > c.maxOutSize {
			c.maxOutSize = c.outBuf.Available()
		}
		if protocolError {
			// The parser bailed out mid-header/mid-length without
			// consuming the offending bytes, so the buffer's read cursor
			// no longer lines up with a frame boundary; resuming would
			// just re-trip the same error forever. Closing matches how a
			// desynced RESP stream is handled in practice.
			return
		}

		// Step 6: cleanup. Argument storage (c.args' backing array) is
		// reused across commands rather than reallocated. The query buffer
		// is left alone rather than force-reset: the parser Consume's exactly
		// the bytes this command used in one shot, once the whole command was
		// parsed (never mid-command, which would let respbuf reset the buffer
		// to offset 0 under views the parser had already handed back), and
		// respbuf zeroes its own indices once they catch up, so a pipelined
		// command already sitting in the tail of the buffer survives into the
		// next loop iteration's parse instead of being discarded. outBuf and
		// the Result reset for the next command.
		c.outBuf.Reset()
		c.result.Reset()
		needRecv = c.queryBuf.Available() == 0
	}
}

// Stats returns the connection's lifetime input/output byte counters and
// the largest output buffer size observed.
func (c *Client) Stats() (inBytes, outBytes uint64, maxOutSize int) {
	return c.inBytes, c.outBytes, c.maxOutSize
}
