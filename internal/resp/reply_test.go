package resp

import (
	"testing"
	"unsafe"

	"github.com/rdss-io/rdss/internal/memaccount"
	"github.com/rdss-io/rdss/internal/respbuf"
	"github.com/rdss-io/rdss/internal/wire"
	"golang.org/x/sys/unix"
)

func newOut() *respbuf.Buffer {
	return respbuf.New(memaccount.New(), memaccount.CategoryQuery)
}

// joinIovecs reassembles a reply the way a writev syscall would consume it,
// letting tests assert on the logical bytes without caring how many gather
// segments Format chose to split the reply into.
func joinIovecs(iovecs []unix.Iovec) []byte {
	var out []byte
	for _, iov := range iovecs {
		n := int(iov.Len)
		if n == 0 || iov.Base == nil {
			continue
		}
		out = append(out, unsafe.Slice(iov.Base, n)...)
	}
	return out
}

func TestFormatOk(t *testing.T) {
	out := newOut()
	var r wire.Result
	r.SetOk()
	if iovecs := Format(&r, out); iovecs != nil {
		t.Fatalf("expected nil iovecs for OK, got %v", iovecs)
	}
	if got := string(out.Source()); got != "+OK\r\n" {
		t.Fatalf("Source() = %q, want %q", got, "+OK\r\n")
	}
}

func TestFormatNil(t *testing.T) {
	out := newOut()
	var r wire.Result
	r.SetNil()
	Format(&r, out)
	if got := string(out.Source()); got != "$-1\r\n" {
		t.Fatalf("Source() = %q, want %q", got, "$-1\r\n")
	}
}

func TestFormatError(t *testing.T) {
	out := newOut()
	var r wire.Result
	r.SetError(wire.KindWrongArgNum)
	Format(&r, out)
	if got := string(out.Source()); got != string(wire.KindWrongArgNum.Bytes()) {
		t.Fatalf("Source() = %q, want %q", got, wire.KindWrongArgNum.Bytes())
	}
}

func TestFormatInt(t *testing.T) {
	out := newOut()
	var r wire.Result
	r.SetInt(42)
	Format(&r, out)
	if got := string(out.Source()); got != ":42\r\n" {
		t.Fatalf("Source() = %q, want %q", got, ":42\r\n")
	}

	out2 := newOut()
	var r2 wire.Result
	r2.SetInt(-7)
	Format(&r2, out2)
	if got := string(out2.Source()); got != ":-7\r\n" {
		t.Fatalf("Source() = %q, want %q", got, ":-7\r\n")
	}
}

func TestFormatBulkString(t *testing.T) {
	out := newOut()
	var r wire.Result
	r.SetString(&wire.SharedString{Bytes: []byte("hello")})
	iovecs := Format(&r, out)
	if len(iovecs) != 3 {
		t.Fatalf("len(iovecs) = %d, want 3", len(iovecs))
	}
	got := joinIovecs(iovecs)
	if string(got) != "$5\r\nhello\r\n" {
		t.Fatalf("reassembled reply = %q, want %q", got, "$5\r\nhello\r\n")
	}
}

func TestFormatBulkStringEmpty(t *testing.T) {
	out := newOut()
	var r wire.Result
	r.SetString(&wire.SharedString{Bytes: []byte("")})
	iovecs := Format(&r, out)
	got := joinIovecs(iovecs)
	if string(got) != "$0\r\n\r\n" {
		t.Fatalf("reassembled reply = %q, want %q", got, "$0\r\n\r\n")
	}
}

func TestFormatBulkStringNilValue(t *testing.T) {
	out := newOut()
	var r wire.Result
	r.SetString(nil)
	iovecs := Format(&r, out)
	if iovecs != nil {
		t.Fatalf("expected nil iovecs for nil string, got %v", iovecs)
	}
	if got := string(out.Source()); got != "$-1\r\n" {
		t.Fatalf("Source() = %q, want %q", got, "$-1\r\n")
	}
}

func TestFormatArray(t *testing.T) {
	out := newOut()
	var r wire.Result
	r.AppendString(&wire.SharedString{Bytes: []byte("one")})
	r.AppendString(&wire.SharedString{Bytes: []byte("two")})
	iovecs := Format(&r, out)
	got := joinIovecs(iovecs)
	want := "*2\r\n$3\r\none\r\n$3\r\ntwo\r\n"
	if string(got) != want {
		t.Fatalf("reassembled reply = %q, want %q", got, want)
	}
}

func TestFormatArrayWithNilElement(t *testing.T) {
	out := newOut()
	var r wire.Result
	r.AppendString(&wire.SharedString{Bytes: []byte("a")})
	r.AppendString(nil)
	iovecs := Format(&r, out)
	got := joinIovecs(iovecs)
	want := "*2\r\n$1\r\na\r\n$-1\r\n"
	if string(got) != want {
		t.Fatalf("reassembled reply = %q, want %q", got, want)
	}
}

func TestFormatArrayEmpty(t *testing.T) {
	out := newOut()
	var r wire.Result
	r.Tag = wire.TagStrings
	iovecs := Format(&r, out)
	got := joinIovecs(iovecs)
	if string(got) != "*0\r\n" {
		t.Fatalf("reassembled reply = %q, want %q", got, "*0\r\n")
	}
}
