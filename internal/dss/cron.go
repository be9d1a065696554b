package dss

import (
	"context"
	"time"

	"github.com/rdss-io/rdss/internal/ring"
)

// RunCron drives the data-structure worker's cron exactly as spec.md 4.I
// describes: every 1ms tick, refresh the command-time snapshot; every
// 1000/hz ms, additionally refresh the LRU clock, run one expiration
// cycle, and spend up to 1ms incrementally rehashing each table. Every
// tick's work runs via worker.RunOn so it's serialized with command
// execution on the same worker, satisfying spec.md 5's "cron observations
// are serialized with command execution" ordering guarantee. Intended to
// be launched as its own goroutine once at service start; it blocks until
// ctx is canceled.
func (s *Service) RunCron(ctx context.Context, worker *ring.Worker) {
	const tick = time.Millisecond
	hzPeriod := time.Second / time.Duration(clampHZ(s.cfg.HZ))
	ticksPerPeriod := int(hzPeriod / tick)
	if ticksPerPeriod < 1 {
		ticksPerPeriod = 1
	}

	elapsedTicks := 0
	for {
		if ctx.Err() != nil {
			return
		}

		// A timeout op's natural completion is ETIME; that's the clock
		// firing, not a failure, so its result is intentionally ignored.
		worker.Timeout(tick)

		worker.RunOn(func() {
			s.commandTimeSnapshot = s.clock.Now()
			elapsedTicks++
			if elapsedTicks < ticksPerPeriod {
				return
			}
			elapsedTicks = 0
			s.evictor.RefreshLRUClock()
			s.ActiveExpire()
			s.IncrementalRehashing(time.Millisecond)
		})
	}
}

func clampHZ(hz int) int {
	if hz < 1 {
		return 1
	}
	if hz > 500 {
		return 500
	}
	return hz
}
