package dss

// MaxMemoryPolicy selects the eviction strategy the evictor applies once
// the memory accountant reports the configured cap exceeded.
type MaxMemoryPolicy int

const (
	PolicyNoEviction MaxMemoryPolicy = iota
	PolicyAllKeysRandom
	PolicyAllKeysLRU
)

// Config carries exactly the fields the data-structure service and its
// evictor/expirer need, a subset of the full INI-loaded config package's
// Config — the service package intentionally doesn't import config/flag
// directly (spec.md 3's "external collaborators" boundary); cmd/rdss-server
// is the only place that translates one into the other.
type Config struct {
	HZ int

	MaxMemory        int64
	MaxMemoryPolicy  MaxMemoryPolicy
	MaxMemorySamples int

	ActiveExpireCycleTimePercent       int
	ActiveExpireAcceptableStalePercent int
	ActiveExpireKeysPerLoop            int

	// Port and MaxClients are surfaced only for the INFO command's report;
	// the service does nothing else with them.
	Port       int
	MaxClients int
}
