// Package gate decides whether a batch of changes is worth an external
// annotation request.
//
// Policies are pure: the same Input and the same sequence of random draws
// always produce the same Decision. Randomness is passed in explicitly and
// never read from a package-level generator.
package gate

import (
	"math/rand/v2"
)

// Decision is the outcome of a policy.
type Decision int

const (
	// Skip means no request is sent for this cycle.
	Skip Decision = iota
	// Proceed means a request is sent.
	Proceed
)

// String returns the decision name used in logs and metrics labels.
func (d Decision) String() string {
	if d == Proceed {
		return "proceed"
	}
	return "skip"
}

// Input is what a policy may look at: counts, never content.
type Input struct {
	Changed int // number of changed lines
	Total   int // lines in the current snapshot
}

// Rand is a source of uniform samples in [0, 1).
type Rand interface {
	Float64() float64
}

// NewRand returns a deterministic source seeded with seed.
func NewRand(seed uint64) Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Policy maps an Input to a Decision.
type Policy interface {
	Decide(in Input, r Rand) Decision
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(in Input, r Rand) Decision

// Decide calls f.
func (f PolicyFunc) Decide(in Input, r Rand) Decision { return f(in, r) }

// Always proceeds whenever something changed.
var Always Policy = PolicyFunc(func(in Input, _ Rand) Decision {
	if in.Changed == 0 {
		return Skip
	}
	return Proceed
})

// Never skips every cycle.
var Never Policy = PolicyFunc(func(Input, Rand) Decision { return Skip })

// ThresholdPolicy proceeds with probability threshold + change ratio.
//
// The change ratio is min(1, changed/total). One sample r is drawn per
// decision and the policy proceeds iff r <= Threshold + ratio, so larger
// edits are more likely to be annotated and a threshold of 1 always
// proceeds. An empty change set skips without drawing.
type ThresholdPolicy struct {
	Threshold float64
}

// Decide implements Policy.
func (p ThresholdPolicy) Decide(in Input, r Rand) Decision {
	if in.Changed <= 0 {
		return Skip
	}

	ratio := 1.0
	if in.Total > 0 {
		ratio = min(1, float64(in.Changed)/float64(in.Total))
	}

	if r.Float64() <= p.Threshold+ratio {
		return Proceed
	}
	return Skip
}
