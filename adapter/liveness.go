package adapter

import "sync/atomic"

// Liveness counts event-loop ticks since the last processed interest.
type Liveness struct {
	ticks atomic.Int64
}

func (l *Liveness) Reset() { l.ticks.Store(0) }

// Tick advances the counter and returns the new value.
func (l *Liveness) Tick() int64 { return l.ticks.Add(1) }

func (l *Liveness) Load() int64 { return l.ticks.Load() }
