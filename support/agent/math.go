package agent

import (
	"math"
	"math/rand"
)

// RateIterator fires events at a given average rate per tick, with exponentially distributed gaps.
type RateIterator struct {
	rnd  *rand.Rand
	rate float64
	next float64
}

func NewRateIterator(rate float64, seed int64) *RateIterator {
	ri := &RateIterator{
		rnd:  rand.New(rand.NewSource(seed)),
		rate: rate,
		next: 1.0, // next occurrence should happen next tick
	}
	ri.chooseNext() // randomize first occurrence
	return ri
}

// Tick calls f once for each event that lands in this tick.
// f is called `rate` times on average, but may be called zero or many times in any Tick.
func (ri *RateIterator) Tick(f func() error) error {
	ri.next -= 1.0
	for ri.next < 1.0 {
		if err := f(); err != nil {
			return err
		}
		ri.chooseNext()
	}
	return nil
}

func (ri *RateIterator) chooseNext() {
	if ri.rate <= 0 {
		ri.next = math.Inf(1)
		return
	}
	ri.next += -math.Log(1-ri.rnd.Float64()) / ri.rate
}
