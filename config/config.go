// Package config loads the server's INI configuration file. Grounded on
// original_source's config.h/config.cc (a flat Config struct populated
// from an unnamed "global" ini section via the tortellini library's
// operator|-with-default idiom), translated onto gopkg.in/ini.v1 the way
// the corpus's go-ethereum example pulls in that library.
package config

import (
	"fmt"

	"gopkg.in/ini.v1"

	"github.com/rdss-io/rdss/internal/dss"
)

// MaxmemoryPolicy mirrors dss.MaxMemoryPolicy's three values as the
// strings recognized in the ini file, matching original_source's
// MaxmemoryPolicyStrToEnum/EnumToStr pair.
const (
	policyNoEviction    = "noeviction"
	policyAllKeysRandom = "allkeys-random"
	policyAllKeysLRU    = "allkeys-lru"
)

// Config is the full server configuration: the data-structure service
// subset (translated into dss.Config by AsServiceConfig) plus the
// ring-runtime knobs spec.md 6 added on top of original_source's fields.
type Config struct {
	Port       uint16
	HZ         uint32
	MaxClients uint32

	MaxMemory        uint64
	MaxMemoryPolicy  dss.MaxMemoryPolicy
	MaxMemorySamples uint32

	ActiveExpireCycleTimePercent       uint32
	ActiveExpireAcceptableStalePercent uint32
	ActiveExpireKeysPerLoop            uint32

	// Ring-runtime knobs, read from the "ring" section. Not part of the
	// original C++ Config; introduced by this port's C-to-Go redesign,
	// per spec.md 6.
	ClientExecutors    int
	SQPoll             bool
	MaxDirectFDsPerExr int
	UseRingBuffer      bool
	SubmitBatchSize    int
	WaitBatchSize      int
}

// Default returns the configuration spec.md 6 specifies when no file is
// supplied or a key is absent from it.
func Default() Config {
	return Config{
		Port:       6379,
		HZ:         10,
		MaxClients: 10000,
		MaxMemory:  0,

		MaxMemoryPolicy:  dss.PolicyNoEviction,
		MaxMemorySamples: 5,

		ActiveExpireCycleTimePercent:       25,
		ActiveExpireAcceptableStalePercent: 10,
		ActiveExpireKeysPerLoop:            20,

		ClientExecutors:    2,
		SQPoll:             false,
		MaxDirectFDsPerExr: 4096,
		UseRingBuffer:      true,
		SubmitBatchSize:    32,
		WaitBatchSize:      1,
	}
}

// Load reads path and overlays its values onto Default(), the equivalent
// of original_source's Config::ReadFromFile. The core server settings live
// in the file's unnamed/default section, matching the original's
// ini[""]; the ring-runtime knobs this port adds live in a "[ring]"
// section so the two concerns don't share one flat namespace.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := ini.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("rdss: load config %q: %w", path, err)
	}

	main := f.Section("")
	cfg.Port = uint16(main.Key("port").MustUint(int(cfg.Port)))
	cfg.HZ = uint32(main.Key("hz").MustUint(int(cfg.HZ)))
	cfg.MaxClients = uint32(main.Key("maxclients").MustUint(int(cfg.MaxClients)))
	if cfg.MaxClients == 0 {
		cfg.MaxClients = 10000
	}
	cfg.MaxMemory = uint64(main.Key("maxmemory").MustInt64(int64(cfg.MaxMemory)))
	cfg.MaxMemorySamples = uint32(main.Key("maxmemory-samples").MustUint(int(cfg.MaxMemorySamples)))

	policy, err := parseMaxmemoryPolicy(main.Key("maxmemory-policy").MustString(policyNoEviction))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxMemoryPolicy = policy

	cfg.ActiveExpireCycleTimePercent = uint32(main.Key("active_expire_cycle_time_percent").MustUint(int(cfg.ActiveExpireCycleTimePercent)))
	cfg.ActiveExpireAcceptableStalePercent = uint32(main.Key("active_expire_acceptable_stale_percent").MustUint(int(cfg.ActiveExpireAcceptableStalePercent)))
	cfg.ActiveExpireKeysPerLoop = uint32(main.Key("active_expire_keys_per_loop").MustUint(int(cfg.ActiveExpireKeysPerLoop)))

	ring := f.Section("ring")
	cfg.ClientExecutors = ring.Key("client_executors").MustInt(cfg.ClientExecutors)
	cfg.SQPoll = ring.Key("sqpoll").MustBool(cfg.SQPoll)
	cfg.MaxDirectFDsPerExr = ring.Key("max_direct_fds_per_exr").MustInt(cfg.MaxDirectFDsPerExr)
	cfg.UseRingBuffer = ring.Key("use_ring_buffer").MustBool(cfg.UseRingBuffer)
	cfg.SubmitBatchSize = ring.Key("submit_batch_size").MustInt(cfg.SubmitBatchSize)
	cfg.WaitBatchSize = ring.Key("wait_batch_size").MustInt(cfg.WaitBatchSize)

	if err := cfg.SanityCheck(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseMaxmemoryPolicy(s string) (dss.MaxMemoryPolicy, error) {
	switch s {
	case policyNoEviction:
		return dss.PolicyNoEviction, nil
	case policyAllKeysRandom:
		return dss.PolicyAllKeysRandom, nil
	case policyAllKeysLRU:
		return dss.PolicyAllKeysLRU, nil
	default:
		return 0, fmt.Errorf("rdss: unknown maxmemory-policy: %q", s)
	}
}

func maxmemoryPolicyString(p dss.MaxMemoryPolicy) string {
	switch p {
	case dss.PolicyNoEviction:
		return policyNoEviction
	case dss.PolicyAllKeysRandom:
		return policyAllKeysRandom
	case dss.PolicyAllKeysLRU:
		return policyAllKeysLRU
	default:
		return "unknown"
	}
}

// SanityCheck validates the ranges spec.md 6 names for hz,
// active_expire_cycle_time_percent, and active_expire_acceptable_stale_percent.
func (c Config) SanityCheck() error {
	if c.HZ < 1 || c.HZ > 500 {
		return fmt.Errorf("rdss: hz must be in [1, 500], got %d", c.HZ)
	}
	if c.ActiveExpireCycleTimePercent < 1 || c.ActiveExpireCycleTimePercent > 40 {
		return fmt.Errorf("rdss: active_expire_cycle_time_percent must be in [1, 40], got %d", c.ActiveExpireCycleTimePercent)
	}
	if c.ActiveExpireAcceptableStalePercent > 100 {
		return fmt.Errorf("rdss: active_expire_acceptable_stale_percent must be in [0, 100], got %d", c.ActiveExpireAcceptableStalePercent)
	}
	return nil
}

// String renders the configuration the way original_source's
// Config::ToString does, for startup logging.
func (c Config) String() string {
	return fmt.Sprintf("Configs: [port:%d, maxclients:%d, maxmemory:%d, maxmemory-policy:%s, maxmemory-samples:%d].",
		c.Port, c.MaxClients, c.MaxMemory, maxmemoryPolicyString(c.MaxMemoryPolicy), c.MaxMemorySamples)
}

// AsServiceConfig translates the full Config into the dss.Config subset
// internal/dss actually consumes, the boundary SPEC_FULL.md's
// configuration section names as cmd/rdss-server's responsibility.
func (c Config) AsServiceConfig() dss.Config {
	return dss.Config{
		HZ:                                 int(c.HZ),
		MaxMemory:                          int64(c.MaxMemory),
		MaxMemoryPolicy:                    c.MaxMemoryPolicy,
		MaxMemorySamples:                   int(c.MaxMemorySamples),
		ActiveExpireCycleTimePercent:       int(c.ActiveExpireCycleTimePercent),
		ActiveExpireAcceptableStalePercent: int(c.ActiveExpireAcceptableStalePercent),
		ActiveExpireKeysPerLoop:            int(c.ActiveExpireKeysPerLoop),
		Port:                               int(c.Port),
		MaxClients:                         int(c.MaxClients),
	}
}
