package policy

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/flexalloc/flexalloc-sim/sim"
	"golang.org/x/sync/errgroup"
)

// Assign picks one member of pool uniformly at random for every server.
// Servers are visited in order so the assignment is reproducible for a given rng.
// Panics if pool is empty.
func Assign[T any](servers []sim.Server, pool []T, rng *rand.Rand) map[sim.ServerID]T {
	if len(pool) == 0 {
		panic("policy.Assign: empty pool")
	}
	assigned := make(map[sim.ServerID]T, len(servers))
	for _, s := range servers {
		assigned[s.ID] = pool[rng.IntN(len(pool))]
	}
	return assigned
}

// CollectBids asks every server's pricing policy for a bid on the auction task.
// Decisions run concurrently and all of them are gathered before returning.
// contextFor is called sequentially, before any decision starts.
func CollectBids(ctx context.Context, state sim.EnvState, assigned map[sim.ServerID]PricingPolicy,
	contextFor func(sim.ServerID) DecisionContext) (sim.Bids, error) {
	if state.AuctionTask == nil {
		return nil, fmt.Errorf("CollectBids: state at time step %d has no auction task", state.TimeStep)
	}
	bids := make([]float64, len(state.ServerTasks))
	g, _ := errgroup.WithContext(ctx)
	for i, st := range state.ServerTasks {
		p, ok := assigned[st.Server.ID]
		if !ok {
			continue
		}
		dc := contextFor(st.Server.ID)
		g.Go(func() error {
			bid := p.Bid(*state.AuctionTask, st.Tasks, st.Server, state.TimeStep, dc)
			if math.IsNaN(bid) || math.IsInf(bid, 0) || bid < 0 {
				return fmt.Errorf("pricing policy %s bid %v for server %d", p.Name(), bid, st.Server.ID)
			}
			bids[i] = bid
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(sim.Bids, len(bids))
	for i, st := range state.ServerTasks {
		out[st.Server.ID] = bids[i]
	}
	return out, nil
}

// CollectWeights asks every server's weighting policy to weight its resident tasks.
// A lone task gets weight 1 without consulting the policy; servers with no tasks are omitted.
// contextFor is called sequentially, before any decision starts.
func CollectWeights(ctx context.Context, state sim.EnvState, assigned map[sim.ServerID]WeightingPolicy,
	contextFor func(sim.ServerID) DecisionContext) (sim.Weights, error) {
	perServer := make([]map[sim.TaskID]float64, len(state.ServerTasks))
	g, _ := errgroup.WithContext(ctx)
	for i, st := range state.ServerTasks {
		switch len(st.Tasks) {
		case 0:
			continue
		case 1:
			perServer[i] = map[sim.TaskID]float64{st.Tasks[0].ID: 1}
			continue
		}
		p, ok := assigned[st.Server.ID]
		if !ok {
			continue
		}
		dc := contextFor(st.Server.ID)
		g.Go(func() error {
			raw := p.Weight(st.Tasks, st.Server, state.TimeStep, dc)
			weights := make(map[sim.TaskID]float64, len(st.Tasks))
			for _, t := range st.Tasks {
				w := raw[t.ID]
				if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
					return fmt.Errorf("weighting policy %s weight %v for task %d on server %d", p.Name(), w, t.ID, st.Server.ID)
				}
				weights[t.ID] = w
			}
			perServer[i] = weights
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(sim.Weights, len(perServer))
	for i, st := range state.ServerTasks {
		if perServer[i] != nil {
			out[st.Server.ID] = perServer[i]
		}
	}
	return out, nil
}
