package synth

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
)

const progressUsers = 1000

// SynthOptions controls how accounts are split between the two branches.
type SynthOptions struct {
	// PercCompromised is the share of a user's records replaced by donor
	// records when the user takes the injection branch.
	PercCompromised float64

	// ProbIntact is the probability that a user's records are emitted
	// untouched. It is read from the prob_compromised setting: despite that
	// name, the branch it selects performs no injection.
	ProbIntact float64

	// KeepUnpaired emits a user untouched when no other user holds enough
	// records to donate, instead of failing the pass with NoSuitableDonorError.
	KeepUnpaired bool

	// OnSplice, when set, is called once for every injected window.
	OnSplice func(Splice)
}

// Validate checks that both ratios lie in [0, 1].
func (o SynthOptions) Validate() error {
	if o.PercCompromised < 0 || o.PercCompromised > 1 {
		return fmt.Errorf("perc_compromised must be within [0, 1], got %v", o.PercCompromised)
	}
	if o.ProbIntact < 0 || o.ProbIntact > 1 {
		return fmt.Errorf("prob_compromised must be within [0, 1], got %v", o.ProbIntact)
	}
	return nil
}

// Splice describes one injected window. Victim positions Begin+1 through End
// carry donor records starting at DonorBegin.
type Splice struct {
	Victim     int
	Donor      int
	Begin      int
	End        int
	DonorBegin int
}

// Len returns the number of victim positions replaced.
func (s Splice) Len() int { return s.End - s.Begin }

// SynthStats summarizes one synthesis pass.
type SynthStats struct {
	Users         int
	IntactUsers   int // users emitted untouched by the coin flip
	InjectedUsers int // users that received a non-empty donor window
	EmptyWindows  int // users on the injection branch too short to replace anything
	UnpairedUsers int // users kept untouched because no donor qualified
	Written       int64
	Injected      int64 // written records copied from a donor
	Omitted       int64 // records with fewer than two fields, dropped
}

// Synthesize walks groups in id order and writes each user's records to w,
// splicing donor windows into the users that lose the coin flip. All
// randomness comes from rng, so a fixed seed gives identical output.
func Synthesize(ctx context.Context, groups []UserGroup, opts SynthOptions, rng *rand.Rand, w RecordWriter, logger Logger) (*SynthStats, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s := &synthesizer{
		groups: groups,
		opts:   opts,
		rng:    rng,
		out:    w,
		pool:   newDonorPool(groups),
		stats:  &SynthStats{Users: len(groups)},
		logger: logger,
	}

	for i := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.user(i); err != nil {
			return nil, fmt.Errorf("synthesizing user %d: %w", i, err)
		}
		if i%progressUsers == 0 {
			logger.Info("users processed", "users", i)
		}
	}

	logger.Info("synthesis done",
		"users", s.stats.Users,
		"injected_users", s.stats.InjectedUsers,
		"unpaired_users", s.stats.UnpairedUsers,
		"written", s.stats.Written,
		"omitted", s.stats.Omitted,
	)
	return s.stats, nil
}

type synthesizer struct {
	groups []UserGroup
	opts   SynthOptions
	rng    *rand.Rand
	out    RecordWriter
	pool   *donorPool
	stats  *SynthStats
	logger Logger
}

func (s *synthesizer) user(i int) error {
	group := s.groups[i]

	if s.rng.Float64() < s.opts.ProbIntact {
		s.stats.IntactUsers++
		return s.emitAll(i, group)
	}

	n := len(group)
	k := int(float64(n) * s.opts.PercCompromised)
	if k == 0 {
		s.stats.EmptyWindows++
		return s.emitAll(i, group)
	}

	j, err := s.pool.pick(s.rng, i, k)
	if err != nil {
		if s.opts.KeepUnpaired && errors.Is(err, ErrNoSuitableDonor) {
			s.stats.UnpairedUsers++
			s.logger.Warn("no donor for user, keeping records", "user", i, "records", n, "needed", k+1)
			return s.emitAll(i, group)
		}
		return err
	}
	donor := s.groups[j]

	begin := randInclusive(s.rng, 0, max(1, n-k-1))
	end := max(begin, min(begin+k, n-1))
	cursor := randInclusive(s.rng, 0, max(1, len(donor)-k-1))

	sp := Splice{Victim: i, Donor: j, Begin: begin, End: end, DonorBegin: cursor}
	if sp.Len() > 0 {
		s.stats.InjectedUsers++
	} else {
		s.stats.EmptyWindows++
	}
	if s.opts.OnSplice != nil {
		s.opts.OnSplice(sp)
	}

	for idx, rec := range group {
		if idx <= begin || idx > end {
			if err := s.emit(i, NoSource, rec); err != nil {
				return err
			}
			continue
		}
		if err := s.emit(i, j, donor[cursor]); err != nil {
			return err
		}
		cursor++
	}
	return nil
}

func (s *synthesizer) emitAll(i int, group UserGroup) error {
	for _, rec := range group {
		if err := s.emit(i, NoSource, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *synthesizer) emit(userID, source int, rec Record) error {
	if !rec.Full() {
		s.stats.Omitted++
		return nil
	}
	if err := s.out.WriteRecord(OutputRecord{
		UserID: userID,
		Source: source,
		Fields: [2]string{rec[0], rec[1]},
	}); err != nil {
		return err
	}
	s.stats.Written++
	if source != NoSource {
		s.stats.Injected++
	}
	return nil
}
