// Package wire holds the vocabulary shared between the RESP codec and the
// data-structure service: the tagged Result union and the fixed error kinds
// the wire protocol exposes.
package wire

// Kind identifies one of the fixed wire error strings a command can produce.
type Kind int

const (
	KindNone Kind = iota
	KindProtocol
	KindUnknownCommand
	KindOOM
	KindWrongArgNum
	KindSyntax
	KindNotAnInt
)

// Bytes are the exact wire forms from the protocol spec; they must match
// byte-for-byte, including the leading '-' and trailing CRLF.
var kindBytes = map[Kind][]byte{
	KindProtocol:       []byte("-ERR Protocol error\r\n"),
	KindUnknownCommand: []byte("-ERR unknown command\r\n"),
	KindOOM:            []byte("-OOM command not allowed when used memory > 'maxmemory'.\r\n"),
	KindWrongArgNum:    []byte("-ERR wrong number of arguments.\r\n"),
	KindSyntax:         []byte("-ERR syntax error\r\n"),
	KindNotAnInt:       []byte("-ERR value is not an integer or out of range\r\n"),
}

// Bytes returns the fixed wire-form byte string for k.
func (k Kind) Bytes() []byte {
	b, ok := kindBytes[k]
	if !ok {
		return kindBytes[KindProtocol]
	}
	return b
}

// Tag discriminates the Result union.
type Tag int

const (
	TagOk Tag = iota
	TagNil
	TagError
	TagInt
	TagString
	TagStrings
)

// SharedString is a reference-counted-by-GC byte string shared between a
// data-table entry and any in-flight reply referencing it; see
// [[internal/hashtable]] for how entries hold these.
type SharedString struct {
	Bytes []byte
}

// Result is the tagged union command handlers fill in and the reply
// formatter consumes: {Ok, Nil, Error(kind), Int(i64), String(shared or
// nil), Strings(list of shared or nil)}.
type Result struct {
	Tag  Tag
	Kind Kind
	Int  int64
	Str  *SharedString // nil means RESP nil bulk string
	Strs []*SharedString
}

// Reset clears the result for reuse across commands on the same connection.
func (r *Result) Reset() {
	r.Tag = TagOk
	r.Kind = KindNone
	r.Int = 0
	r.Str = nil
	r.Strs = r.Strs[:0]
}

func (r *Result) SetOk()          { r.Tag = TagOk }
func (r *Result) SetNil()         { r.Tag = TagNil }
func (r *Result) SetInt(n int64)  { r.Tag = TagInt; r.Int = n }
func (r *Result) SetError(k Kind) { r.Tag = TagError; r.Kind = k }

// SetString sets a present string reply; pass nil for a nil bulk reply.
func (r *Result) SetString(s *SharedString) {
	r.Tag = TagString
	r.Str = s
}

// AppendString appends one element to a Strings (array) reply, nil meaning
// that element renders as "$-1\r\n".
func (r *Result) AppendString(s *SharedString) {
	r.Tag = TagStrings
	r.Strs = append(r.Strs, s)
}

// NeedsGather reports whether the formatted reply requires a scatter/gather
// write (String/Strings carry borrowed value bytes) as opposed to a single
// contiguous buffer write.
func (r *Result) NeedsGather() bool {
	return r.Tag == TagString && r.Str != nil || r.Tag == TagStrings
}
