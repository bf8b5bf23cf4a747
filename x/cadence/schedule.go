// Package cadence schedules the fixed tick rhythm of the hash chain. Deadlines
// are absolute instants computed from a genesis anchor, so a loop that falls
// behind on one tick re-converges on the next instead of accumulating drift.
package cadence

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Schedule hands out tick deadlines anchored at a genesis instant. It is
// immutable after construction and safe for concurrent use.
type Schedule struct {
	start    time.Time
	interval time.Duration
	clk      clock.Clock
}

// NewSchedule anchors a schedule at the clock's current instant. A nil clock
// falls back to the wall clock; tests pass clock.NewMock().
func NewSchedule(cfg Config, clk clock.Clock) *Schedule {
	if clk == nil {
		clk = clock.New()
	}
	return NewScheduleAt(cfg, clk, clk.Now())
}

// NewScheduleAt anchors a schedule at an explicit genesis instant.
func NewScheduleAt(cfg Config, clk clock.Clock, start time.Time) *Schedule {
	if clk == nil {
		clk = clock.New()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Schedule{start: start, interval: interval, clk: clk}
}

// Start returns the genesis instant deadlines are anchored to.
func (s *Schedule) Start() time.Time {
	return s.start
}

// Interval returns the tick interval.
func (s *Schedule) Interval() time.Duration {
	return s.interval
}

// Now reads the schedule's clock.
func (s *Schedule) Now() time.Time {
	return s.clk.Now()
}

// Deadline returns the target instant of tick i. Tick 0 is due one interval
// after genesis, every later tick one interval after its predecessor.
func (s *Schedule) Deadline(i uint64) time.Time {
	return s.start.Add(time.Duration(i+1) * s.interval)
}

// WaitTick blocks until tick i's deadline passes or ctx is done. Ticks fire
// late, never early: a deadline already in the past does not block, but it
// still reports ctx.Err() so a caller running behind schedule observes
// cancellation.
func (s *Schedule) WaitTick(ctx context.Context, i uint64) error {
	wait := s.Deadline(i).Sub(s.clk.Now())
	if wait <= 0 {
		return ctx.Err()
	}

	timer := s.clk.Timer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Behind reports how far past tick i's deadline the given instant is.
// Non-positive means on time.
func (s *Schedule) Behind(i uint64, now time.Time) time.Duration {
	return now.Sub(s.Deadline(i))
}

// Missed reports whether tick i finished so late that tick i+1's deadline had
// already passed by then.
func (s *Schedule) Missed(i uint64, now time.Time) bool {
	return s.Behind(i, now) >= s.interval
}

// TickAt returns the index of the tick pending at the given instant.
func (s *Schedule) TickAt(now time.Time) uint64 {
	if !now.After(s.start) {
		return 0
	}
	return uint64(now.Sub(s.start) / s.interval)
}
