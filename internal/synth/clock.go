package synth

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so run bookkeeping is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// seedStream selects the PCG stream. Changing it changes every seeded dataset.
const seedStream = 0x9e3779b97f4a7c15

// NewRand returns the generator used for one synthesis pass.
// Equal seeds always produce equal draw sequences.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), seedStream))
}

// DeriveSeed returns the seed for the n-th dataset of a run. The first dataset
// uses the base seed unchanged, so a single-percentage run can be reproduced
// from the seed recorded in the ledger.
func DeriveSeed(base int64, n int) int64 {
	return base + int64(n)
}

// SeedFromClock picks a seed when none is configured.
func SeedFromClock(c Clock) int64 {
	return c.Now().UnixNano()
}

// randInclusive draws uniformly from [lo, hi].
func randInclusive(rng *rand.Rand, lo, hi int) int {
	return lo + rng.IntN(hi-lo+1)
}
