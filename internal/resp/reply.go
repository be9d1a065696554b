package resp

import (
	"strconv"

	"github.com/rdss-io/rdss/internal/respbuf"
	"github.com/rdss-io/rdss/internal/wire"
	"golang.org/x/sys/unix"
)

var (
	bytesOK  = []byte("+OK\r\n")
	bytesNil = []byte("$-1\r\n")
)

// Format writes result's RESP encoding into out, returning a scatter/gather
// iovec list when the reply borrows value bytes (String/Strings) instead
// of being fully contained in out. Callers check len(iovecs) > 0 (or
// result.NeedsGather()) to decide between a plain send and a writev,
// matching spec.md 4.D's needs_gather policy.
func Format(result *wire.Result, out *respbuf.Buffer) []unix.Iovec {
	switch result.Tag {
	case wire.TagOk:
		writeRaw(out, bytesOK)
		return nil
	case wire.TagNil:
		writeRaw(out, bytesNil)
		return nil
	case wire.TagError:
		writeRaw(out, result.Kind.Bytes())
		return nil
	case wire.TagInt:
		writeInt(out, result.Int)
		return nil
	case wire.TagString:
		return formatBulkString(result.Str, out)
	case wire.TagStrings:
		return formatArray(result.Strs, out)
	default:
		writeRaw(out, wire.KindProtocol.Bytes())
		return nil
	}
}

func writeRaw(out *respbuf.Buffer, b []byte) {
	out.EnsureAvailable(len(b), false)
	n := copy(out.Sink(), b)
	out.Produce(n)
}

func writeInt(out *respbuf.Buffer, n int64) {
	out.EnsureAvailable(32, false)
	sink := out.Sink()
	sink[0] = ':'
	written := strconv.AppendInt(sink[1:1], n, 10)
	end := 1 + len(written)
	sink[end] = '\r'
	sink[end+1] = '\n'
	out.Produce(end + 2)
}

// formatBulkString writes "$<len>\r\n" into out, then returns a 3-iovec
// gather of {header, value bytes, trailing CRLF} — the trailing CRLF
// reuses the tail of the header bytes already committed to out, per
// spec.md 4.D.
//
// out is sized for the whole reply up front (bulkHeaderSize) before any
// iovec captures its address: a relocation triggered by a later
// EnsureAvailable call would otherwise dangle the iovecs built so far.
func formatBulkString(v *wire.SharedString, out *respbuf.Buffer) []unix.Iovec {
	if v == nil {
		writeRaw(out, bytesNil)
		return nil
	}
	out.EnsureAvailable(bulkHeaderSize(len(v.Bytes)), false)

	headerStart := out.Available()
	writeBulkHeader(out, len(v.Bytes))
	header := out.Source()[headerStart:]
	crlf := header[len(header)-2:]

	iovecs := make([]unix.Iovec, 0, 3)
	iovecs = append(iovecs, toIovec(header[:len(header)-2]))
	if len(v.Bytes) > 0 {
		iovecs = append(iovecs, toIovec(v.Bytes))
	}
	iovecs = append(iovecs, toIovec(crlf))
	return iovecs
}

// bulkHeaderSize returns the number of header bytes writeBulkHeader commits
// for a value of the given length: "$<len>\r\n" plus the reserved trailing
// "\r\n".
func bulkHeaderSize(length int) int {
	return 1 + len(strconv.Itoa(length)) + 4
}

// writeBulkHeader writes "$<len>\r\n\r\n" into out (no value bytes),
// reserving room for the value's trailing CRLF so the header's own
// final two bytes can be reused by the caller as that CRLF. Callers must
// have already ensured out has bulkHeaderSize(length) bytes available.
func writeBulkHeader(out *respbuf.Buffer, length int) {
	sink := out.Sink()
	sink[0] = '$'
	written := strconv.AppendInt(sink[1:1], int64(length), 10)
	end := 1 + len(written)
	sink[end] = '\r'
	sink[end+1] = '\n'
	sink[end+2] = '\r'
	sink[end+3] = '\n'
	out.Produce(end + 4)
}

// formatArray writes "*<count>\r\n" then a gather triple per element
// (nil elements render as a plain "$-1\r\n" with no extra iovec). The whole
// reply is sized into out in one EnsureAvailable call before any iovec is
// taken, for the same reason formatBulkString pre-sizes: out must not
// relocate while earlier iovecs still point into it.
func formatArray(vs []*wire.SharedString, out *respbuf.Buffer) []unix.Iovec {
	total := 1 + len(strconv.Itoa(len(vs))) + 2
	for _, v := range vs {
		if v == nil {
			total += len(bytesNil)
			continue
		}
		total += bulkHeaderSize(len(v.Bytes))
	}
	out.EnsureAvailable(total, false)

	sink := out.Sink()
	sink[0] = '*'
	written := strconv.AppendInt(sink[1:1], int64(len(vs)), 10)
	end := 1 + len(written)
	sink[end] = '\r'
	sink[end+1] = '\n'
	out.Produce(end + 2)

	iovecs := make([]unix.Iovec, 0, 1+3*len(vs))
	iovecs = append(iovecs, toIovec(out.Source()))

	for _, v := range vs {
		if v == nil {
			start := out.Available()
			sink := out.Sink()
			copy(sink, bytesNil)
			out.Produce(len(bytesNil))
			iovecs = append(iovecs, toIovec(out.Source()[start:]))
			continue
		}
		start := out.Available()
		writeBulkHeader(out, len(v.Bytes))
		header := out.Source()[start:]
		crlf := header[len(header)-2:]
		iovecs = append(iovecs, toIovec(header[:len(header)-2]))
		if len(v.Bytes) > 0 {
			iovecs = append(iovecs, toIovec(v.Bytes))
		}
		iovecs = append(iovecs, toIovec(crlf))
	}
	return iovecs
}

func toIovec(b []byte) unix.Iovec {
	var iov unix.Iovec
	if len(b) > 0 {
		iov.Base = &b[0]
		iov.SetLen(len(b))
	}
	return iov
}
