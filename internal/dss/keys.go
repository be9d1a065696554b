package dss

import (
	"time"

	"github.com/rdss-io/rdss/internal/resp"
	"github.com/rdss-io/rdss/internal/wire"
)

// ttlCommand returns the key's remaining TTL in whole seconds, -1 if the
// key exists but carries no expiration, or -2 if it doesn't exist (or has
// just been lazily expired). Grounded on original_source's TtlFunction.
func ttlCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) != 2 {
		result.SetError(wire.KindWrongArgNum)
		return
	}

	key := args[1].Data
	entry := s.dataTable.Find(key)
	if entry == nil {
		result.SetInt(-2)
		return
	}
	expireEntry := s.expireTable.Find(key)
	if expireEntry == nil {
		result.SetInt(-1)
		return
	}

	now := s.GetCommandTimeSnapshot()
	if !now.Before(expireEntry.Value) {
		s.eraseEntry(key, entry)
		result.SetInt(-2)
		return
	}

	ttl := expireEntry.Value.Sub(now)
	result.SetInt(int64(ttl / time.Second))
}

// delCommand erases every named key present in either table, returning the
// count actually removed. Grounded on original_source's DelFunction.
func delCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) < 2 {
		result.SetError(wire.KindWrongArgNum)
		return
	}

	var deleted int64
	for _, a := range args[1:] {
		if s.FindOrExpire(a.Data) != nil {
			s.EraseKey(a.Data)
			deleted++
		}
	}
	result.SetInt(deleted)
}

// existsCommand counts how many of the named keys are present (and not
// stale), touching each survivor's LRU. Grounded on original_source's
// ExistsFunction.
func existsCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) < 2 {
		result.SetError(wire.KindWrongArgNum)
		return
	}

	var count int64
	for _, a := range args[1:] {
		entry := s.FindOrExpire(a.Data)
		if entry != nil {
			entry.Key.LastAccess = s.GetLRUClock()
			count++
		}
	}
	result.SetInt(count)
}

func registerKeyCommands(s *Service) {
	s.RegisterCommand("TTL", Command{Handler: ttlCommand})
	s.RegisterCommand("DEL", Command{Handler: delCommand, IsWrite: true})
	s.RegisterCommand("EXISTS", Command{Handler: existsCommand})
}
