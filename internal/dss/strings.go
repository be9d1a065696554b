package dss

import (
	"strconv"
	"strings"
	"time"

	"github.com/rdss-io/rdss/internal/memaccount"
	"github.com/rdss-io/rdss/internal/resp"
	"github.com/rdss-io/rdss/internal/wire"
)

// parseInt64 parses s as a base-10 signed integer, rejecting anything that
// doesn't consume the whole input (no leading/trailing junk, no leading
// "+"), matching the strictness of original_source's std::from_chars-based
// ParseInt.
func parseInt64(s []byte) (int64, bool) {
	if len(s) > 0 && s[0] == '+' {
		return 0, false
	}
	n, err := strconv.ParseInt(string(s), 10, 64)
	return n, err == nil
}

func parseInt32(s []byte) (int32, bool) {
	n, err := strconv.ParseInt(string(s), 10, 32)
	return int32(n), err == nil
}

func parseUint32(s []byte) (uint32, bool) {
	n, err := strconv.ParseUint(string(s), 10, 32)
	return uint32(n), err == nil
}

// parseExpireToken recognizes one of EX/PX/EXAT/PXAT at args[i] (tok is its
// upper-cased form) and, if recognized, parses the numeric operand at
// args[i+1] relative to cmdTime into an absolute expiration time. matched
// reports whether tok was one of the four tokens at all; errKind is
// KindNone on success. Grounded on original_source's ExtractExpireOptions.
func parseExpireToken(tok string, args []resp.Arg, i int, cmdTime time.Time) (t time.Time, matched bool, errKind wire.Kind) {
	switch tok {
	case "EX", "PX", "EXAT", "PXAT":
		matched = true
	default:
		return time.Time{}, false, wire.KindNone
	}

	if i == len(args)-1 {
		return time.Time{}, true, wire.KindSyntax
	}
	n, ok := parseInt64(args[i+1].Data)
	if !ok || n <= 0 {
		return time.Time{}, true, wire.KindNotAnInt
	}

	switch tok {
	case "EX":
		t = cmdTime.Add(time.Duration(n) * time.Second)
	case "PX":
		t = cmdTime.Add(time.Duration(n) * time.Millisecond)
	case "EXAT":
		t = time.Unix(n, 0)
	case "PXAT":
		t = time.UnixMilli(n)
	}
	return t, true, wire.KindNone
}

// setOptions is the parsed form of SET's trailing option list.
type setOptions struct {
	mode       SetMode
	expireTime time.Time
	hasExpire  bool
	keepTTL    bool
	get        bool
}

// extractSetOptions parses SET's options (args excludes the command name,
// key, and value). A KEEPTTL alongside an expire option, or an expire option
// repeated, or NX/XX repeated, is a syntax error — the SET-KEEPTTL-plus-an-
// expire-option open question resolves to "syntax error", matching the
// straight-line port of ExtractSetOptions's mutually-exclusive checks.
// Grounded on original_source's ExtractSetOptions.
func extractSetOptions(args []resp.Arg, cmdTime time.Time, result *wire.Result) (setOptions, bool) {
	opts := setOptions{mode: SetModeRegular}

	for i := 0; i < len(args); i++ {
		tok := strings.ToUpper(string(args[i].Data))
		switch tok {
		case "GET":
			opts.get = true
			continue
		case "NX":
			if opts.mode != SetModeRegular {
				result.SetError(wire.KindSyntax)
				return opts, false
			}
			opts.mode = SetModeNX
			continue
		case "XX":
			if opts.mode != SetModeRegular {
				result.SetError(wire.KindSyntax)
				return opts, false
			}
			opts.mode = SetModeXX
			continue
		case "KEEPTTL":
			if opts.hasExpire {
				result.SetError(wire.KindSyntax)
				return opts, false
			}
			opts.keepTTL = true
			continue
		}

		t, matched, errKind := parseExpireToken(tok, args, i, cmdTime)
		if !matched {
			result.SetError(wire.KindSyntax)
			return opts, false
		}
		if errKind != wire.KindNone {
			result.SetError(errKind)
			return opts, false
		}
		if opts.hasExpire || opts.keepTTL {
			result.SetError(wire.KindSyntax)
			return opts, false
		}
		opts.expireTime = t
		opts.hasExpire = true
		i++ // also consumes the operand
	}
	return opts, true
}

// setCommand implements SET's full option surface: [NX|XX] [GET]
// [EX s|PX ms|EXAT ts|PXAT ts-ms|KEEPTTL]. Grounded on original_source's
// SetFunction.
func setCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) < 3 {
		result.SetError(wire.KindWrongArgNum)
		return
	}

	cmdTime := s.GetCommandTimeSnapshot()
	opts := setOptions{mode: SetModeRegular}
	if len(args) > 3 {
		var ok bool
		opts, ok = extractSetOptions(args[3:], cmdTime, result)
		if !ok {
			return
		}
	}

	key := args[1].Data
	status, entry, oldValue := s.SetData(key, args[2].Data, opts.mode, opts.get)
	if status == SetNoOp {
		result.SetNil()
		return
	}

	if opts.hasExpire {
		s.expireTable.UpsertShared(entry.Key, opts.expireTime)
	} else if status == SetUpdated && !opts.keepTTL {
		s.expireTable.Erase(key)
	}

	if opts.get {
		if oldValue == nil {
			result.SetNil()
		} else {
			result.SetString(oldValue)
		}
		return
	}
	result.SetOk()
}

// msetCommand sets every key/value pair unconditionally, clearing any TTL
// each key previously carried. Grounded on original_source's MSetFunction.
func msetCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) < 3 || len(args)%2 == 0 {
		result.SetError(wire.KindWrongArgNum)
		return
	}
	for i := 1; i < len(args); i += 2 {
		s.SetData(args[i].Data, args[i+1].Data, SetModeRegular, false)
		s.expireTable.Erase(args[i].Data)
	}
	result.SetOk()
}

// msetnxCommand sets every pair only if none of the named keys already
// exist; returns 1 when the pairs were set, 0 (setting nothing) when any
// key already exists. Grounded on original_source's MSetNXFunction.
func msetnxCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) < 3 || len(args)%2 == 0 {
		result.SetError(wire.KindWrongArgNum)
		return
	}
	for i := 1; i < len(args); i += 2 {
		if s.FindOrExpire(args[i].Data) != nil {
			result.SetInt(0)
			return
		}
	}
	for i := 1; i < len(args); i += 2 {
		s.SetData(args[i].Data, args[i+1].Data, SetModeNX, false)
	}
	result.SetInt(1)
}

// setEXCommandBase implements the shared body of SETEX/PSETEX: unconditional
// upsert plus a mandatory TTL given directly (not via option tokens).
// Grounded on original_source's SetEXFunctionBase.
func setEXCommandBase(s *Service, args []resp.Arg, result *wire.Result, unit time.Duration) {
	if len(args) != 4 {
		result.SetError(wire.KindWrongArgNum)
		return
	}
	n, ok := parseInt64(args[2].Data)
	if !ok {
		result.SetError(wire.KindNotAnInt)
		return
	}
	if n <= 0 {
		result.SetError(wire.KindNotAnInt)
		return
	}

	now := s.GetCommandTimeSnapshot()
	expireTime := now.Add(time.Duration(n) * unit)

	_, entry, _ := s.SetData(args[1].Data, args[3].Data, SetModeRegular, false)
	s.expireTable.UpsertShared(entry.Key, expireTime)
	entry.Key.LastAccess = s.GetLRUClock()
	result.SetOk()
}

func setexCommand(s *Service, args []resp.Arg, result *wire.Result) {
	setEXCommandBase(s, args, result, time.Second)
}

func psetexCommand(s *Service, args []resp.Arg, result *wire.Result) {
	setEXCommandBase(s, args, result, time.Millisecond)
}

// setnxCommand inserts only if key is absent, returning 1/0. Grounded on
// original_source's SetNXFunction.
func setnxCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) != 3 {
		result.SetError(wire.KindWrongArgNum)
		return
	}
	status, _, _ := s.SetData(args[1].Data, args[2].Data, SetModeNX, false)
	if status == SetInserted {
		result.SetInt(1)
	} else {
		result.SetInt(0)
	}
}

// setrangeCommand overwrites key's value starting at a byte offset, padding
// with zero bytes if the offset is past the current length, creating the
// key if absent. Always builds a fresh value rather than mutating in place,
// since the existing value may be referenced by an in-flight reply.
// Grounded on original_source's SetRangeFunction.
func setrangeCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) != 4 {
		result.SetError(wire.KindWrongArgNum)
		return
	}
	start, ok := parseUint32(args[2].Data)
	if !ok {
		result.SetError(wire.KindNotAnInt)
		return
	}

	key := args[1].Data
	data := args[3].Data

	entry, existed := s.dataTable.FindOrCreate(key, true, true)
	if !existed {
		s.accountant.Allocate(memaccount.CategoryBulk, len(entry.Key.Bytes))
	} else if expireEntry := s.expireTable.Find(key); expireEntry != nil && !s.commandTimeSnapshot.Before(expireEntry.Value) {
		s.expireTable.Erase(key)
		existed = false
	}

	var buf []byte
	if !existed {
		if start > 0 {
			buf = make([]byte, start)
		}
		buf = append(buf, data...)
	} else {
		old := entry.Value.Bytes
		if int(start) > len(old) {
			buf = append(append([]byte(nil), old...), make([]byte, int(start)-len(old))...)
			buf = append(buf, data...)
		} else {
			buf = append(append([]byte(nil), old[:start]...), data...)
			if end := int(start) + len(data); end < len(old) {
				buf = append(buf, old[end:]...)
			}
		}
	}
	s.replaceValue(entry, buf)
	entry.Key.LastAccess = s.GetLRUClock()
	result.SetInt(int64(len(entry.Value.Bytes)))
}

// strlenCommand returns the byte length of key's value, 0 if absent.
// Grounded on original_source's StrlenFunction.
func strlenCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) != 2 {
		result.SetError(wire.KindWrongArgNum)
		return
	}
	entry := s.FindOrExpire(args[1].Data)
	if entry == nil {
		result.SetInt(0)
		return
	}
	result.SetInt(int64(len(entry.Value.Bytes)))
	entry.Key.LastAccess = s.GetLRUClock()
}

// getBase is the single-key read path every GET-family command goes
// through: find-or-expire, set the result, touch the LRU. Grounded on
// original_source's detail::GetFunctionBase.
func getBase(s *Service, key []byte, result *wire.Result) *DataEntry {
	entry := s.FindOrExpire(key)
	if entry == nil {
		result.SetNil()
		return nil
	}
	result.SetString(entry.Value)
	entry.Key.LastAccess = s.GetLRUClock()
	return entry
}

func getCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) != 2 {
		result.SetError(wire.KindWrongArgNum)
		return
	}
	getBase(s, args[1].Data, result)
}

func mgetCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) < 2 {
		result.SetError(wire.KindWrongArgNum)
		return
	}
	for _, a := range args[1:] {
		entry := s.FindOrExpire(a.Data)
		if entry == nil {
			result.AppendString(nil)
			continue
		}
		result.AppendString(entry.Value)
		entry.Key.LastAccess = s.GetLRUClock()
	}
}

// getdelCommand returns key's value and erases it in the same step.
// Grounded on original_source's GetDelFunction.
func getdelCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) != 2 {
		result.SetError(wire.KindWrongArgNum)
		return
	}
	entry := getBase(s, args[1].Data, result)
	if entry != nil {
		s.EraseKey(args[1].Data)
	}
}

// getexCommand returns key's value, optionally also setting a new TTL via
// the usual expire-option tokens, or clearing it via PERSIST. Grounded on
// original_source's GetEXFunction.
func getexCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) < 2 {
		result.SetError(wire.KindWrongArgNum)
		return
	}

	var (
		persist    bool
		hasExpire  bool
		expireTime time.Time
	)
	cmdTime := s.GetCommandTimeSnapshot()
	for i := 2; i < len(args); i++ {
		tok := strings.ToUpper(string(args[i].Data))
		if tok == "PERSIST" {
			if hasExpire || persist {
				result.SetError(wire.KindSyntax)
				return
			}
			persist = true
			continue
		}

		t, matched, errKind := parseExpireToken(tok, args, i, cmdTime)
		if !matched {
			result.SetError(wire.KindSyntax)
			return
		}
		if errKind != wire.KindNone {
			result.SetError(errKind)
			return
		}
		if persist || hasExpire {
			result.SetError(wire.KindSyntax)
			return
		}
		expireTime = t
		hasExpire = true
		i++
	}

	key := args[1].Data
	entry := getBase(s, key, result)
	if entry == nil {
		return
	}
	if persist {
		s.expireTable.Erase(key)
	} else if hasExpire {
		s.expireTable.UpsertShared(entry.Key, expireTime)
	}
}

// getsetCommand sets key unconditionally and returns its previous value (or
// nil), clearing any TTL it carried. Grounded on original_source's
// GetSetFunction.
func getsetCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) != 3 {
		result.SetError(wire.KindWrongArgNum)
		return
	}
	_, _, oldValue := s.SetData(args[1].Data, args[2].Data, SetModeRegular, true)
	s.expireTable.Erase(args[1].Data)
	if oldValue == nil {
		result.SetNil()
		return
	}
	result.SetString(oldValue)
}

var emptySharedString = &wire.SharedString{Bytes: []byte{}}

// getrangeCommand returns the inclusive byte range [start,end] of key's
// value, with negative indices counting from the end, clamped to the
// value's bounds. Diverges from a literal port of the original in one spot:
// the original clamps its end index to len (not len-1) before slicing,
// which in C++ reads the string's implicit null terminator but would be an
// out-of-bounds slice in Go, so the end index is clamped to len-1 here
// instead. Grounded on original_source's GetRangeFunction.
func getrangeCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) != 4 {
		result.SetError(wire.KindWrongArgNum)
		return
	}
	start, ok := parseInt32(args[2].Data)
	if !ok {
		result.SetError(wire.KindNotAnInt)
		return
	}
	end, ok := parseInt32(args[3].Data)
	if !ok {
		result.SetError(wire.KindNotAnInt)
		return
	}

	entry := s.FindOrExpire(args[1].Data)
	if entry == nil {
		result.SetString(emptySharedString)
		return
	}

	size := int32(len(entry.Value.Bytes))
	transform := func(i int32) int32 {
		if i < 0 {
			i += size
			if i < 0 {
				i = 0
			}
		}
		if i > size {
			i = size
		}
		return i
	}
	startIdx := transform(start)
	endIdx := transform(end)

	if startIdx >= size || endIdx < startIdx {
		result.SetString(emptySharedString)
	} else {
		if endIdx >= size {
			endIdx = size - 1
		}
		result.SetString(&wire.SharedString{Bytes: append([]byte(nil), entry.Value.Bytes[startIdx:endIdx+1]...)})
	}
	entry.Key.LastAccess = s.GetLRUClock()
}

// appendCommand appends value to key's existing bytes, creating key if
// absent. Always builds a fresh value rather than mutating in place, since
// the existing value may be referenced by an in-flight reply. Grounded on
// original_source's AppendFunction (which does not check the expire table —
// matched here for fidelity).
func appendCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) != 3 {
		result.SetError(wire.KindWrongArgNum)
		return
	}
	key := args[1].Data
	value := args[2].Data

	entry, existed := s.dataTable.FindOrCreate(key, true, true)
	if !existed {
		s.accountant.Allocate(memaccount.CategoryBulk, len(entry.Key.Bytes))
		s.replaceValue(entry, value)
	} else {
		buf := append(append([]byte(nil), entry.Value.Bytes...), value...)
		s.replaceValue(entry, buf)
	}
	entry.Key.LastAccess = s.GetLRUClock()
	result.SetInt(int64(len(entry.Value.Bytes)))
}

func registerStringCommands(s *Service) {
	s.RegisterCommand("SET", Command{Handler: setCommand, IsWrite: true})
	s.RegisterCommand("SETEX", Command{Handler: setexCommand, IsWrite: true})
	s.RegisterCommand("PSETEX", Command{Handler: psetexCommand, IsWrite: true})
	s.RegisterCommand("SETNX", Command{Handler: setnxCommand, IsWrite: true})
	s.RegisterCommand("SETRANGE", Command{Handler: setrangeCommand, IsWrite: true})
	s.RegisterCommand("MSET", Command{Handler: msetCommand, IsWrite: true})
	s.RegisterCommand("MSETNX", Command{Handler: msetnxCommand, IsWrite: true})
	s.RegisterCommand("GET", Command{Handler: getCommand})
	s.RegisterCommand("MGET", Command{Handler: mgetCommand})
	s.RegisterCommand("GETDEL", Command{Handler: getdelCommand, IsWrite: true})
	s.RegisterCommand("GETEX", Command{Handler: getexCommand, IsWrite: true})
	s.RegisterCommand("GETSET", Command{Handler: getsetCommand, IsWrite: true})
	s.RegisterCommand("GETRANGE", Command{Handler: getrangeCommand})
	s.RegisterCommand("SUBSTR", Command{Handler: getrangeCommand})
	s.RegisterCommand("APPEND", Command{Handler: appendCommand, IsWrite: true})
	s.RegisterCommand("STRLEN", Command{Handler: strlenCommand})
}
