package server

import (
	"context"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/rdss-io/rdss/internal/memaccount"
	"github.com/rdss-io/rdss/internal/resp"
	"github.com/rdss-io/rdss/internal/wire"
)

// fakeConn is an in-memory connIO: recvQueue holds byte chunks fed to
// successive Recv calls (simulating however the kernel happened to split a
// client's writes across TCP segments); sent collects everything written
// back, concatenating Writev's gathered iovecs the same way a real socket
// would.
type fakeConn struct {
	recvQueue [][]byte
	recvIdx   int
	sent      []byte
	closed    bool
}

func (f *fakeConn) Recv(buf []byte) (int, error) {
	if f.recvIdx >= len(f.recvQueue) {
		return 0, nil
	}
	chunk := f.recvQueue[f.recvIdx]
	f.recvIdx++
	n := copy(buf, chunk)
	return n, nil
}

func (f *fakeConn) Send(view []byte) (int, error) {
	f.sent = append(f.sent, view...)
	return len(view), nil
}

func (f *fakeConn) Writev(iovecs []unix.Iovec) (int, error) {
	n := 0
	for _, iov := range iovecs {
		if iov.Len == 0 {
			continue
		}
		b := unsafe.Slice(iov.Base, int(iov.Len))
		f.sent = append(f.sent, b...)
		n += int(iov.Len)
	}
	return n, nil
}

func (f *fakeConn) Close() error { f.closed = true; return nil }
func (f *fakeConn) FD() int32    { return 99 }

func inlineTransfer(job func()) { job() }

func TestClientRepliesToInlineCommand(t *testing.T) {
	conn := &fakeConn{recvQueue: [][]byte{[]byte("PING\r\n")}}
	var gotArgs []string
	handler := func(args []resp.Arg, result *wire.Result) {
		for _, a := range args {
			gotArgs = append(gotArgs, string(a.Data))
		}
		result.SetOk()
	}
	c := NewClient(conn, inlineTransfer, handler, memaccount.New())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Run(ctx)

	require.Equal(t, []string{"PING"}, gotArgs)
	require.Equal(t, "+OK\r\n", string(conn.sent))
	require.True(t, conn.closed)
}

func TestClientHandlesMultiBulkCommand(t *testing.T) {
	conn := &fakeConn{recvQueue: [][]byte{
		[]byte("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"),
	}}
	var gotArgs []string
	handler := func(args []resp.Arg, result *wire.Result) {
		for _, a := range args {
			gotArgs = append(gotArgs, string(a.Data))
		}
		result.SetOk()
	}
	c := NewClient(conn, inlineTransfer, handler, memaccount.New())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Run(ctx)

	require.Equal(t, []string{"SET", "foo", "bar"}, gotArgs)
	require.Equal(t, "+OK\r\n", string(conn.sent))
}

func TestClientHandlesPipelinedCommandsFromOneRecv(t *testing.T) {
	conn := &fakeConn{recvQueue: [][]byte{
		[]byte("PING\r\nPING\r\n"),
	}}
	calls := 0
	handler := func(args []resp.Arg, result *wire.Result) {
		calls++
		result.SetOk()
	}
	c := NewClient(conn, inlineTransfer, handler, memaccount.New())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Run(ctx)

	require.Equal(t, 2, calls)
	require.Equal(t, "+OK\r\n+OK\r\n", string(conn.sent))
}

func TestClientHandlesCommandSplitAcrossRecvs(t *testing.T) {
	conn := &fakeConn{recvQueue: [][]byte{
		[]byte("*3\r\n$3\r\nSET\r\n$3\r\nfo"),
		[]byte("o\r\n$3\r\nbar\r\n"),
	}}
	var gotArgs []string
	handler := func(args []resp.Arg, result *wire.Result) {
		for _, a := range args {
			gotArgs = append(gotArgs, string(a.Data))
		}
		result.SetOk()
	}
	c := NewClient(conn, inlineTransfer, handler, memaccount.New())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Run(ctx)

	require.Equal(t, []string{"SET", "foo", "bar"}, gotArgs)
}

func TestClientRepliesProtocolErrorOnBadMultiBulkHeader(t *testing.T) {
	conn := &fakeConn{recvQueue: [][]byte{[]byte("*abc\r\n")}}
	called := false
	handler := func(args []resp.Arg, result *wire.Result) { called = true }
	c := NewClient(conn, inlineTransfer, handler, memaccount.New())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Run(ctx)

	require.False(t, called)
	require.Equal(t, string(wire.KindProtocol.Bytes()), string(conn.sent))
}

func TestClientClosesOnZeroByteRecv(t *testing.T) {
	conn := &fakeConn{recvQueue: nil}
	c := NewClient(conn, inlineTransfer, func(args []resp.Arg, result *wire.Result) {}, memaccount.New())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Run(ctx)

	require.True(t, conn.closed)
}
