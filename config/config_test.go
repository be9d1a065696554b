package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rdss-io/rdss/internal/dss"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rdss.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	require.EqualValues(t, 6379, cfg.Port)
	require.EqualValues(t, 10, cfg.HZ)
	require.EqualValues(t, 10000, cfg.MaxClients)
	require.EqualValues(t, 0, cfg.MaxMemory)
	require.Equal(t, dss.PolicyNoEviction, cfg.MaxMemoryPolicy)
	require.EqualValues(t, 5, cfg.MaxMemorySamples)
	require.EqualValues(t, 25, cfg.ActiveExpireCycleTimePercent)
	require.EqualValues(t, 10, cfg.ActiveExpireAcceptableStalePercent)
	require.EqualValues(t, 20, cfg.ActiveExpireKeysPerLoop)
	require.Equal(t, 2, cfg.ClientExecutors)
	require.False(t, cfg.SQPoll)
	require.Equal(t, 4096, cfg.MaxDirectFDsPerExr)
	require.True(t, cfg.UseRingBuffer)
	require.Equal(t, 32, cfg.SubmitBatchSize)
	require.Equal(t, 1, cfg.WaitBatchSize)
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfigFile(t, "port = 7000\nmaxmemory = 1048576\nmaxmemory-policy = allkeys-lru\n\n[ring]\nclient_executors = 4\nsqpoll = true\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.EqualValues(t, 7000, cfg.Port)
	require.EqualValues(t, 1048576, cfg.MaxMemory)
	require.Equal(t, dss.PolicyAllKeysLRU, cfg.MaxMemoryPolicy)
	require.Equal(t, 4, cfg.ClientExecutors)
	require.True(t, cfg.SQPoll)

	// Untouched keys keep their defaults.
	require.EqualValues(t, 10, cfg.HZ)
	require.EqualValues(t, 10000, cfg.MaxClients)
}

func TestLoadRejectsUnknownMaxmemoryPolicy(t *testing.T) {
	path := writeConfigFile(t, "maxmemory-policy = bogus\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsOutOfRangeHZ(t *testing.T) {
	path := writeConfigFile(t, "hz = 0\n")
	_, err := Load(path)
	require.Error(t, err)

	path = writeConfigFile(t, "hz = 501\n")
	_, err = Load(path)
	require.Error(t, err)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.conf"))
	require.Error(t, err)
}

func TestAsServiceConfigTranslatesFields(t *testing.T) {
	cfg := Default()
	cfg.MaxMemory = 512
	cfg.MaxMemoryPolicy = dss.PolicyAllKeysRandom

	sc := cfg.AsServiceConfig()
	require.EqualValues(t, 512, sc.MaxMemory)
	require.Equal(t, dss.PolicyAllKeysRandom, sc.MaxMemoryPolicy)
	require.Equal(t, int(cfg.HZ), sc.HZ)
	require.Equal(t, int(cfg.Port), sc.Port)
}

func TestStringRendersKeyFields(t *testing.T) {
	cfg := Default()
	s := cfg.String()
	require.Contains(t, s, "port:6379")
	require.Contains(t, s, "maxmemory-policy:noeviction")
}
