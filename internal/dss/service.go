package dss

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rdss-io/rdss/internal/hashtable"
	"github.com/rdss-io/rdss/internal/logging"
	"github.com/rdss-io/rdss/internal/memaccount"
	"github.com/rdss-io/rdss/internal/resp"
	"github.com/rdss-io/rdss/internal/wire"
)

// SetMode selects SET's upsert semantics.
type SetMode int

const (
	SetModeRegular SetMode = iota // update if present, insert otherwise
	SetModeNX                     // only insert if key doesn't present
	SetModeXX                     // only update if key present
)

// SetStatus reports what SetData actually did.
type SetStatus int

const (
	SetNoOp SetStatus = iota
	SetInserted
	SetUpdated
)

// DataEntry is the data table's entry type, named here so command files
// don't have to spell out the hashtable generic instantiation.
type DataEntry = hashtable.Entry[*wire.SharedString]

// CommandFunc is one command's handler: args[0] is the command name itself,
// matching original_source's HandlerType signature
// (DataStructureService&, CommandStrings) -> Result, translated to take the
// out-parameter Result by pointer.
type CommandFunc func(s *Service, args []resp.Arg, result *wire.Result)

// Command pairs a handler with the write-command flag that gates the
// evictor check in Invoke. Grounded on original_source's command.h Command
// (name_/is_write_command_/handler_).
type Command struct {
	Name    string
	Handler CommandFunc
	IsWrite bool
}

// Stats holds the service's running counters, grounded on
// original_source's DSSStats (a single relaxed atomic commands_processed).
type Stats struct {
	CommandsProcessed atomic.Uint64
}

// Service owns the data table, the expire table, the command dictionary,
// the evictor, the expirer, and the command-time snapshot, exactly as
// spec.md 4.I names. Grounded on original_source's DataStructureService.
type Service struct {
	cfg       Config
	clock     Clock
	accountant *memaccount.Accountant
	logger    *logging.Logger

	commands map[string]*Command

	dataTable   *hashtable.Table[*wire.SharedString]
	expireTable *hashtable.Table[time.Time]

	evictor *Evictor
	expirer *Expirer

	commandTimeSnapshot time.Time
	stats               Stats

	startTime time.Time

	// ConnectedClients, when set, lets the INFO command report a live
	// connection count without internal/dss importing internal/server;
	// wired by cmd/rdss-server.
	ConnectedClients func() int

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New constructs a Service with both hash tables empty and the full
// built-in command surface (spec.md 6's command list) registered.
func New(cfg Config, clock Clock, accountant *memaccount.Accountant) *Service {
	dataTable := hashtable.New[*wire.SharedString]()
	expireTable := hashtable.New[time.Time]()

	s := &Service{
		cfg:                 cfg,
		clock:               clock,
		accountant:          accountant,
		logger:              logging.Default().WithWorker("dss"),
		commands:            make(map[string]*Command),
		dataTable:           dataTable,
		expireTable:         expireTable,
		commandTimeSnapshot: clock.Now(),
		startTime:           clock.Now(),
		shutdownCh:          make(chan struct{}),
	}
	s.evictor = newEvictor(dataTable, expireTable, accountant, cfg)
	s.expirer = newExpirer(dataTable, expireTable, accountant, cfg, clock)
	registerBuiltinCommands(s)
	return s
}

// RegisterCommand stores cmd under both the lower- and upper-case forms of
// name, matching original_source's RegisterCommand (std::tolower pass, then
// std::toupper pass) so lookups in Invoke need no case folding of their own.
func (s *Service) RegisterCommand(name string, cmd Command) {
	cmd.Name = name
	stored := cmd
	s.commands[strings.ToLower(name)] = &stored
	s.commands[strings.ToUpper(name)] = &stored
}

// Invoke looks up args[0]'s command, applies the write-command OOM gate,
// runs the handler, and bumps the processed-commands counter, exactly as
// spec.md 4.I's three numbered steps describe. It implements
// server.Handler, the seam internal/server's Client drives commands
// through.
func (s *Service) Invoke(args []resp.Arg, result *wire.Result) {
	if len(args) == 0 {
		result.SetError(wire.KindProtocol)
		return
	}

	cmd, ok := s.commands[string(args[0].Data)]
	if !ok {
		result.SetError(wire.KindUnknownCommand)
		return
	}

	if cmd.IsWrite {
		if exceeded := s.evictor.Exceeded(); exceeded > 0 {
			if !s.evictor.Evict(exceeded) {
				result.SetError(wire.KindOOM)
				return
			}
		}
	}

	s.commandTimeSnapshot = s.clock.Now()
	cmd.Handler(s, args, result)
	s.stats.CommandsProcessed.Add(1)
}

// GetCommandTimeSnapshot returns the time the currently-executing command
// was invoked at, the single timestamp every TTL comparison within that
// command's handler uses (spec.md 4.I).
func (s *Service) GetCommandTimeSnapshot() time.Time { return s.commandTimeSnapshot }

// DataTable returns the key/value table.
func (s *Service) DataTable() *hashtable.Table[*wire.SharedString] { return s.dataTable }

// ExpireTable returns the key/expiration-time table.
func (s *Service) ExpireTable() *hashtable.Table[time.Time] { return s.expireTable }

// Config returns the service's configuration.
func (s *Service) Config() Config { return s.cfg }

// GetEvictor returns the evictor, for commands (and the cron loop) that
// need GetLRUClock/RefreshLRUClock.
func (s *Service) GetEvictor() *Evictor { return s.evictor }

// GetLRUClock returns the evictor's current coarse LRU tick.
func (s *Service) GetLRUClock() uint32 { return s.evictor.GetLRUClock() }

// Stats returns the service's running counters.
func (s *Service) Stats() *Stats { return &s.stats }

// StartTime returns when the service was constructed, for INFO's uptime
// report.
func (s *Service) StartTime() time.Time { return s.startTime }

// FindOrExpire returns key's data entry if present and not stale, lazily
// erasing it from both tables otherwise. This is the single lazy-expiration
// path every read handler goes through, exactly as spec.md 4.I describes.
func (s *Service) FindOrExpire(key []byte) *DataEntry {
	entry := s.dataTable.Find(key)
	if entry == nil {
		return nil
	}

	expireEntry := s.expireTable.Find(key)
	if expireEntry == nil || s.commandTimeSnapshot.Before(expireEntry.Value) {
		return entry
	}

	s.eraseEntry(key, entry)
	return nil
}

// EraseKey removes key from both tables, accounting the freed bytes.
// Grounded on original_source's EraseKey (erase data, only erase expire if
// the data erase actually removed something).
func (s *Service) EraseKey(key []byte) {
	entry := s.dataTable.Find(key)
	if entry == nil {
		return
	}
	s.eraseEntry(key, entry)
}

func (s *Service) eraseEntry(key []byte, entry *DataEntry) {
	freed := len(key) + valueLen(entry.Value)
	s.dataTable.Erase(key)
	s.expireTable.Erase(key)
	s.accountant.Deallocate(memaccount.CategoryBulk, freed)
}

func valueLen(v *wire.SharedString) int {
	if v == nil {
		return 0
	}
	return len(v.Bytes)
}

// newValue allocates a fresh owned copy of b, accounting its bytes in the
// bulk category.
func (s *Service) newValue(b []byte) *wire.SharedString {
	v := &wire.SharedString{Bytes: append([]byte(nil), b...)}
	s.accountant.Allocate(memaccount.CategoryBulk, len(v.Bytes))
	return v
}

func (s *Service) replaceValue(entry *DataEntry, b []byte) {
	s.accountant.Deallocate(memaccount.CategoryBulk, valueLen(entry.Value))
	entry.Value = s.newValue(b)
}

// SetData implements SET's three-mode upsert semantics over the data
// table, updating last-access to the LRU clock on any entry it touches.
// Returns (status, entry, old value if get was requested and a prior value
// existed). Grounded on original_source's SetData.
func (s *Service) SetData(key, value []byte, mode SetMode, get bool) (SetStatus, *DataEntry, *wire.SharedString) {
	var (
		status   = SetNoOp
		oldValue *wire.SharedString
		setEntry *DataEntry
	)

	switch mode {
	case SetModeRegular:
		entry, existed := s.dataTable.FindOrCreate(key, true, true)
		if existed {
			if get {
				if expireEntry := s.expireTable.Find(key); expireEntry == nil || s.commandTimeSnapshot.Before(expireEntry.Value) {
					oldValue = entry.Value
				}
			}
			s.replaceValue(entry, value)
		} else {
			s.accountant.Allocate(memaccount.CategoryBulk, len(entry.Key.Bytes))
			entry.Value = s.newValue(value)
		}
		setEntry = entry
		status = statusFromExisted(existed)

	case SetModeNX:
		entry := s.dataTable.Find(key)
		if entry != nil {
			expireEntry := s.expireTable.Find(key)
			if expireEntry != nil && !s.commandTimeSnapshot.Before(expireEntry.Value) {
				// Key exists but has already expired: NX treats this as a
				// fresh insert, same as the original.
				s.replaceValue(entry, value)
				s.expireTable.Erase(key)
				setEntry = entry
				status = SetInserted
			}
			// Else: a live key already occupies this name — NoOp.
		} else {
			entry, _ := s.dataTable.Insert(key, nil)
			s.accountant.Allocate(memaccount.CategoryBulk, len(entry.Key.Bytes))
			entry.Value = s.newValue(value)
			setEntry = entry
			status = SetInserted
		}

	case SetModeXX:
		entry := s.dataTable.Find(key)
		if entry == nil {
			break
		}
		expireEntry := s.expireTable.Find(key)
		if expireEntry != nil && !s.commandTimeSnapshot.Before(expireEntry.Value) {
			s.eraseEntry(key, entry)
			break
		}
		if get {
			oldValue = entry.Value
		}
		s.replaceValue(entry, value)
		setEntry = entry
		status = SetUpdated
	}

	if setEntry != nil {
		setEntry.Key.LastAccess = s.GetLRUClock()
	}
	return status, setEntry, oldValue
}

func statusFromExisted(existed bool) SetStatus {
	if existed {
		return SetUpdated
	}
	return SetInserted
}

// ActiveExpire runs one bounded expiration sweep; see Expirer.
func (s *Service) ActiveExpire() { s.expirer.ActiveExpire() }

type rehashable interface {
	IsRehashing() bool
	RehashSome(int) bool
}

// IncrementalRehashing spends up to timeLimit continuing any in-progress
// rehash on each table, one ≤100-bucket slice at a time, matching
// original_source's IncrementalRehashing.
func (s *Service) IncrementalRehashing(timeLimit time.Duration) {
	rehash := func(t rehashable) {
		if !t.IsRehashing() {
			return
		}
		start := time.Now()
		for {
			if t.RehashSome(100) {
				return
			}
			if time.Since(start) >= timeLimit {
				return
			}
		}
	}
	rehash(s.dataTable)
	rehash(s.expireTable)
}

// Shutdown fulfills the shutdown signal exactly once; cmd/rdss-server waits
// on Done() to begin its clean-exit sequence.
func (s *Service) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// Done returns a channel closed once Shutdown has been called.
func (s *Service) Done() <-chan struct{} { return s.shutdownCh }
