package dss

import (
	"testing"

	"github.com/rdss-io/rdss/internal/memaccount"
	"github.com/stretchr/testify/require"
)

func newTestEvictor(t *testing.T, policy MaxMemoryPolicy, maxMemory int64) (*Evictor, *Service) {
	t.Helper()
	s, _ := newTestService(t)
	s.cfg.MaxMemoryPolicy = policy
	s.cfg.MaxMemory = maxMemory
	s.evictor = newEvictor(s.dataTable, s.expireTable, s.accountant, s.cfg)
	return s.evictor, s
}

func TestEvictorExceededZeroWhenUnlimited(t *testing.T) {
	e, s := newTestEvictor(t, PolicyNoEviction, 0)
	s.SetData([]byte("k"), []byte("v"), SetModeRegular, false)
	require.Equal(t, int64(0), e.Exceeded())
}

func TestEvictorExceededReportsOverage(t *testing.T) {
	e, s := newTestEvictor(t, PolicyNoEviction, 1)
	s.SetData([]byte("k"), []byte("v"), SetModeRegular, false)
	require.Greater(t, e.Exceeded(), int64(0))
}

func TestEvictorNoEvictionAlwaysFails(t *testing.T) {
	e, s := newTestEvictor(t, PolicyNoEviction, 1)
	s.SetData([]byte("k"), []byte("v"), SetModeRegular, false)
	require.False(t, e.Evict(1))
}

func TestEvictorAllKeysRandomFreesUntilSatisfied(t *testing.T) {
	e, s := newTestEvictor(t, PolicyAllKeysRandom, 1)
	for i := 0; i < 10; i++ {
		s.SetData([]byte{byte(i)}, []byte("value"), SetModeRegular, false)
	}
	before := s.accountant.GetAllocated()

	ok := e.Evict(before)
	require.True(t, ok)
	require.LessOrEqual(t, s.accountant.GetAllocated(), int64(0))
}

func TestEvictorAllKeysRandomFailsOnceTableEmpty(t *testing.T) {
	e, s := newTestEvictor(t, PolicyAllKeysRandom, 1)
	s.SetData([]byte("k"), []byte("v"), SetModeRegular, false)

	ok := e.Evict(1 << 30)
	require.False(t, ok)
	require.Equal(t, 0, s.dataTable.Count())
}

func TestEvictorAllKeysLRUPrefersOldestByLastAccess(t *testing.T) {
	e, s := newTestEvictor(t, PolicyAllKeysLRU, 1)
	s.evictor.maxSamples = 100

	for i := 0; i < 20; i++ {
		_, entry, _ := s.SetData([]byte{byte(i)}, []byte("v"), SetModeRegular, false)
		entry.Key.LastAccess = uint32(i)
	}

	victim := e.GetSomeOldEntry(100)
	require.NotNil(t, victim)
	for _, c := range e.pool {
		require.LessOrEqual(t, victim.Key.LastAccess, c.lastAccess)
	}
}

func TestEvictorEvictedKeysCounterIncrements(t *testing.T) {
	e, s := newTestEvictor(t, PolicyAllKeysRandom, 1)
	s.SetData([]byte("k"), []byte("v"), SetModeRegular, false)

	e.Evict(s.accountant.GetAllocated())
	require.Equal(t, uint64(1), e.EvictedKeys())
}

func TestEvictorRefreshLRUClockAdvancesMonotonically(t *testing.T) {
	e := newEvictor(nil, nil, memaccount.New(), testConfig())
	require.Equal(t, uint32(0), e.GetLRUClock())
	e.RefreshLRUClock()
	e.RefreshLRUClock()
	require.Equal(t, uint32(2), e.GetLRUClock())
}
