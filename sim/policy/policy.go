// Package policy defines the decision capabilities a server runs during an episode:
// pricing (what to bid for an auctioned task) and weighting (how to split capacity
// across resident tasks). Policies are interchangeable behind these interfaces.
//
// Exploration state is never hidden inside a policy. The caller owns the action
// counter and exploration schedule and passes both in through DecisionContext.
package policy

import (
	"math/rand/v2"

	"github.com/flexalloc/flexalloc-sim/sim"
	"github.com/flexalloc/flexalloc-sim/sim/replay"
)

// DecisionContext carries caller-owned state into a single policy decision.
type DecisionContext struct {
	Training    bool
	ActionCount int64      // decisions taken so far by the caller, advanced externally
	Epsilon     float64    // exploration probability, only honoured while Training
	RNG         *rand.Rand // stream owned by the deciding server for this step
}

// explore reports whether this decision should be a random one.
func (dc DecisionContext) explore() bool {
	return dc.Training && dc.RNG != nil && dc.Epsilon > 0 && dc.RNG.Float64() < dc.Epsilon
}

// PricingPolicy decides a server's bid for the auctioned task. A bid of 0 means the
// server does not participate. Implementations must be safe for concurrent calls.
type PricingPolicy interface {
	Name() string
	Bid(auction sim.Task, allocated []sim.Task, server sim.Server, timeStep int, dc DecisionContext) float64
}

// WeightingPolicy decides the relative weight of each resident task on a server.
// Callers invoke it only when more than one task is resident.
// Implementations must be safe for concurrent calls.
type WeightingPolicy interface {
	Name() string
	Weight(tasks []sim.Task, server sim.Server, timeStep int, dc DecisionContext) map[sim.TaskID]float64
}

// Learner is implemented by policies that update from replay batches.
// Train is never called concurrently with itself.
type Learner interface {
	Train(batch []replay.Experience)
}
