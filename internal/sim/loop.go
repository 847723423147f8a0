package sim

import (
	"context"

	"github.com/banshee-data/trafficsim/internal/monitoring"
	"github.com/banshee-data/trafficsim/internal/timeutil"
)

// Loop ticks a world at its fixed interval.
type Loop struct {
	world *World
	clock timeutil.Clock
}

// NewLoop creates a loop. A nil clock selects the real clock.
func NewLoop(w *World, clock timeutil.Clock) *Loop {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Loop{world: w, clock: clock}
}

// Run steps the world on every tick until ctx is done. Ticks missed while a
// step runs long are dropped rather than replayed.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.world.TickInterval()
	ticker := l.clock.NewTicker(interval)
	defer ticker.Stop()

	monitoring.Logf("[sim] loop started, interval %s", interval)
	start := l.world.Tick()
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("[sim] loop stopped after %d ticks", l.world.Tick()-start)
			return nil
		case <-ticker.C():
			l.world.Step(ctx)
		}
	}
}

// RunTicks steps the world n times as fast as possible, stopping early if
// ctx is done.
func (l *Loop) RunTicks(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.world.Step(ctx)
	}
	return nil
}
