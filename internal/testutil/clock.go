package testutil

import (
	"strconv"
	"sync/atomic"
	"time"

	"compsynth/internal/synth"
)

// Epoch is the instant reported by FixedClock.
var Epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// FixedClock returns a clock frozen at Epoch, so run timestamps and
// clock-derived seeds are stable across test runs.
func FixedClock() synth.Clock {
	return frozenClock{}
}

type frozenClock struct{}

func (frozenClock) Now() time.Time { return Epoch }

// RunIDs returns an IDGenerator yielding prefix-1, prefix-2 and so on.
func RunIDs(prefix string) synth.IDGenerator {
	return &runIDs{prefix: prefix}
}

type runIDs struct {
	prefix string
	n      atomic.Int64
}

func (g *runIDs) New() string {
	return g.prefix + "-" + strconv.FormatInt(g.n.Add(1), 10)
}
