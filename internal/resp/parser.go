// Package resp implements the RESP2 codec: restartable inline/multi-bulk
// parsing (grounded on original_source's redis_parser.cc InlineParser/
// MultiBulkParser and connection.cc's ParseBuffer cursor accumulation) and
// the reply formatter (spec.md 4.D).
package resp

import (
	"bytes"
	"strconv"

	"github.com/rdss-io/rdss/internal/respbuf"
)

// State mirrors the parser lifecycle spec.md 4.C names.
type State int

const (
	StateInit State = iota
	StateParsing
	StateError
	StateDone
)

// maxInlineBufferSize is the implementation limit spec.md 4.C requires to
// be at least 16KiB before an unterminated inline command is an error.
const maxInlineBufferSize = 64 * 1024

// Arg is a view into the connection's query buffer; valid until the next
// Consume on that buffer or a relocation that isn't rebased.
type Arg struct {
	Data []byte
}

// InlineParser parses "CMD arg arg\r\n" framed input. It holds no state
// across calls beyond what's needed to report maxInlineBufferSize
// overflow, since inline commands are parsed in a single pass once their
// CRLF has arrived.
type InlineParser struct{}

// ParseInline consumes bytes from buf until a CRLF, splitting on
// whitespace. Returns StateParsing if no CRLF has arrived yet (caller
// should recv more and retry), StateError on overflow, or StateDone with
// the split argument views.
func ParseInline(buf *respbuf.Buffer) (State, []Arg) {
	src := buf.Source()
	if len(src) == 0 {
		return StateParsing, nil
	}

	idx := bytes.Index(src, []byte("\r\n"))
	if idx < 0 {
		if buf.Available() > maxInlineBufferSize {
			return StateError, nil
		}
		return StateParsing, nil
	}

	line := src[:idx]
	var args []Arg
	i := 0
	for i < len(line) {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		if i >= len(line) {
			break
		}
		start := i
		for i < len(line) && !isSpace(line[i]) {
			i++
		}
		args = append(args, Arg{Data: line[start:i]})
	}
	buf.Consume(idx + 2)
	return StateDone, args
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// MultiBulkParser parses "*N\r\n$L\r\n<L bytes>\r\n"*N framed input,
// restartable across partial arrivals: (expectedArgs, argsToParse) persist
// across Parse calls the way original_source's MultiBulkParser keeps
// args_/args_to_parse_ between invocations.
type MultiBulkParser struct {
	state        State
	expectedArgs int
	argsToParse  int
	result       []Arg
	cursor       int // bytes of buf.Source() parsed so far but not yet Consume'd
}

// NewMultiBulkParser returns a parser ready to read a fresh command.
func NewMultiBulkParser() *MultiBulkParser {
	return &MultiBulkParser{state: StateInit}
}

// Reset discards any in-progress parse, used after a command completes or
// after a protocol error closes the connection's parse.
func (p *MultiBulkParser) Reset() {
	p.state = StateInit
	p.expectedArgs = 0
	p.argsToParse = 0
	p.result = p.result[:0]
	p.cursor = 0
}

// Parse interprets as much of buf as it can without consuming anything
// from it until the whole command has arrived: every Arg it returns is a
// view into buf.Source(), so consuming mid-command (and letting
// respbuf.Consume reset the buffer to offset 0 once drained) would let the
// next recv overwrite bytes those views still point into. Instead the
// parser tracks its own cursor across calls and issues a single
// buf.Consume(total) only on the StateDone transition, matching
// original_source's connection.cc, which advances the query-buffer cursor
// only after ParseBuffer reports the whole command parsed.
//
// Returns StateParsing when more bytes are needed (caller should recv and
// retry with the same parser instance), StateError on a malformed header
// or length, or StateDone with the full argument list once all N bulk
// strings have arrived.
func (p *MultiBulkParser) Parse(buf *respbuf.Buffer) (State, []Arg) {
	if p.state != StateParsing {
		p.Reset()
	}

	src := buf.Source()
	if len(src) == 0 {
		return p.state, nil
	}

	cursor := p.cursor
	if p.state == StateInit {
		if src[0] != '*' {
			p.state = StateError
			return p.state, nil
		}
		crlf := bytes.Index(src[1:], []byte("\r\n"))
		if crlf < 0 {
			return p.state, nil
		}
		crlf += 1
		n, err := strconv.Atoi(string(src[1:crlf]))
		if err != nil || n < 0 {
			p.state = StateError
			return p.state, nil
		}
		p.expectedArgs = n
		p.argsToParse = n
		p.state = StateParsing
		cursor = crlf + 2
	}

	for p.argsToParse > 0 {
		if cursor >= len(src) {
			p.cursor = cursor
			return p.state, nil
		}
		if src[cursor] != '$' {
			p.state = StateError
			return p.state, nil
		}
		rel := bytes.Index(src[cursor:], []byte("\r\n"))
		if rel == 0 {
			p.state = StateError
			return p.state, nil
		}
		if rel < 0 {
			p.cursor = cursor
			return p.state, nil
		}
		crlf := cursor + rel
		strLen, err := strconv.Atoi(string(src[cursor+1 : crlf]))
		if err != nil || strLen < 0 {
			p.state = StateError
			return p.state, nil
		}

		dataStart := crlf + 2
		if dataStart+strLen+2 > len(src) {
			p.cursor = cursor
			return p.state, nil
		}
		if src[dataStart+strLen] != '\r' || src[dataStart+strLen+1] != '\n' {
			p.state = StateError
			return p.state, nil
		}

		p.result = append(p.result, Arg{Data: src[dataStart : dataStart+strLen]})
		cursor = dataStart + strLen + 2
		p.argsToParse--
	}

	buf.Consume(cursor)
	p.state = StateInit
	p.cursor = 0
	out := p.result
	p.result = nil
	return StateDone, out
}

// Rebase fixes up previously-returned argument views after buf's backing
// array relocated: each view is translated by the same offset within the
// old array to the corresponding offset within newBase. Required for P6 —
// a relocation during a multi-bulk parse must not invalidate args already
// produced in an earlier Parse call but not yet consumed by the caller.
func Rebase(oldBase, newBase []byte, args []Arg) {
	if len(oldBase) == 0 || len(newBase) == 0 {
		return
	}
	for i, a := range args {
		if len(a.Data) == 0 {
			continue
		}
		offset := dataOffset(oldBase, a.Data)
		if offset < 0 {
			continue
		}
		args[i].Data = newBase[offset : offset+len(a.Data)]
	}
}

// dataOffset returns view's start offset within base, or -1 if view isn't
// a subslice of base (compared by address range, not content).
func dataOffset(base, view []byte) int {
	if len(base) == 0 || len(view) == 0 {
		return -1
	}
	baseStart := sliceAddr(base)
	viewStart := sliceAddr(view)
	offset := viewStart - baseStart
	if offset < 0 || offset+len(view) > len(base) {
		return -1
	}
	return offset
}
