package policy

import (
	"fmt"

	"github.com/flexalloc/flexalloc-sim/sim"
	"github.com/flexalloc/flexalloc-sim/sim/replay"
)

// atParallelLimit reports whether a server already runs as many tasks as it may.
// A limit of 0 means unlimited.
func atParallelLimit(allocated []sim.Task, limit int) bool {
	return limit > 0 && len(allocated) >= limit
}

// FixedPricing always bids the same price.
type FixedPricing struct {
	name          string
	price         float64
	parallelLimit int
}

// NewFixedPricing creates a fixed-price policy. Panics if price is negative.
func NewFixedPricing(name string, price float64, parallelLimit int) *FixedPricing {
	if price < 0 {
		panic(fmt.Sprintf("NewFixedPricing: price must be >= 0, got %v", price))
	}
	return &FixedPricing{name: name, price: price, parallelLimit: parallelLimit}
}

func (p *FixedPricing) Name() string { return p.name }

func (p *FixedPricing) Bid(_ sim.Task, allocated []sim.Task, _ sim.Server, _ int, _ DecisionContext) float64 {
	if atParallelLimit(allocated, p.parallelLimit) {
		return 0
	}
	return p.price
}

// RandomPricing bids a uniformly drawn level in [0, levels). Bids 0 when no RNG is supplied.
type RandomPricing struct {
	name          string
	levels        int
	parallelLimit int
}

// NewRandomPricing creates a random pricing policy. Panics if levels < 1.
func NewRandomPricing(name string, levels, parallelLimit int) *RandomPricing {
	if levels < 1 {
		panic(fmt.Sprintf("NewRandomPricing: levels must be >= 1, got %d", levels))
	}
	return &RandomPricing{name: name, levels: levels, parallelLimit: parallelLimit}
}

func (p *RandomPricing) Name() string { return p.name }

func (p *RandomPricing) Bid(_ sim.Task, allocated []sim.Task, _ sim.Server, _ int, dc DecisionContext) float64 {
	if atParallelLimit(allocated, p.parallelLimit) || dc.RNG == nil {
		return 0
	}
	return float64(dc.RNG.IntN(p.levels))
}

// BanditPricing bids one of levels discrete prices 0..levels-1, choosing epsilon-greedily
// on the running-mean reward each price has earned.
type BanditPricing struct {
	name          string
	levels        int
	parallelLimit int
	table         *valueTable
}

// NewBanditPricing creates a learning pricing policy. Panics if levels < 2.
func NewBanditPricing(name string, levels, parallelLimit int) *BanditPricing {
	if levels < 2 {
		panic(fmt.Sprintf("NewBanditPricing: levels must be >= 2, got %d", levels))
	}
	return &BanditPricing{name: name, levels: levels, parallelLimit: parallelLimit, table: newValueTable(levels)}
}

func (p *BanditPricing) Name() string { return p.name }

func (p *BanditPricing) Bid(_ sim.Task, allocated []sim.Task, _ sim.Server, _ int, dc DecisionContext) float64 {
	if atParallelLimit(allocated, p.parallelLimit) {
		return 0
	}
	if dc.explore() {
		return float64(dc.RNG.IntN(p.levels))
	}
	return float64(p.table.greedy(p.levels / 2))
}

// Train folds each experience's reward into the mean value of the price it bid.
func (p *BanditPricing) Train(batch []replay.Experience) {
	for _, e := range batch {
		p.table.update(levelOf(e.Action, 0, p.levels), e.Reward)
	}
}

// Values returns the learned mean reward and visit count per price level.
func (p *BanditPricing) Values() ([]float64, []int64) {
	return p.table.snapshot()
}
