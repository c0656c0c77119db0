package synth

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"sort"
)

// donorPool orders users by group size so the users holding more than k
// records form a suffix that can be found by binary search.
type donorPool struct {
	ids   []int // user ids ordered by group size, ties by id
	sizes []int // sizes[x] == len(groups[ids[x]])
	pos   []int // pos[id] is the position of id in ids
}

func newDonorPool(groups []UserGroup) *donorPool {
	ids := make([]int, len(groups))
	for i := range ids {
		ids[i] = i
	}
	slices.SortStableFunc(ids, func(a, b int) int {
		return cmp.Compare(len(groups[a]), len(groups[b]))
	})

	p := &donorPool{
		ids:   ids,
		sizes: make([]int, len(ids)),
		pos:   make([]int, len(ids)),
	}
	for x, id := range ids {
		p.sizes[x] = len(groups[id])
		p.pos[id] = x
	}
	return p
}

// pick draws a donor uniformly from the users other than victim that hold
// more than k records.
func (p *donorPool) pick(rng *rand.Rand, victim, k int) (int, error) {
	lo := p.lowerBound(k)
	n := len(p.ids) - lo
	vpos := p.pos[victim]
	victimEligible := vpos >= lo
	if victimEligible {
		n--
	}
	if n <= 0 {
		return 0, &NoSuitableDonorError{Victim: victim, Needed: k + 1}
	}

	x := lo + rng.IntN(n)
	if victimEligible && x >= vpos {
		x++
	}
	return p.ids[x], nil
}

func (p *donorPool) lowerBound(k int) int {
	return sort.Search(len(p.sizes), func(x int) bool { return p.sizes[x] > k })
}
