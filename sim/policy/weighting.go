package policy

import (
	"fmt"

	"github.com/flexalloc/flexalloc-sim/sim"
	"github.com/flexalloc/flexalloc-sim/sim/replay"
)

// UniformWeighting gives every task weight 1.
type UniformWeighting struct {
	name string
}

func NewUniformWeighting(name string) *UniformWeighting {
	return &UniformWeighting{name: name}
}

func (w *UniformWeighting) Name() string { return w.name }

func (w *UniformWeighting) Weight(tasks []sim.Task, _ sim.Server, _ int, _ DecisionContext) map[sim.TaskID]float64 {
	weights := make(map[sim.TaskID]float64, len(tasks))
	for _, t := range tasks {
		weights[t.ID] = 1
	}
	return weights
}

// DeadlineWeighting favours tasks closest to their deadline: weight = 1/(deadline-t+1).
type DeadlineWeighting struct {
	name string
}

func NewDeadlineWeighting(name string) *DeadlineWeighting {
	return &DeadlineWeighting{name: name}
}

func (w *DeadlineWeighting) Name() string { return w.name }

func (w *DeadlineWeighting) Weight(tasks []sim.Task, _ sim.Server, timeStep int, _ DecisionContext) map[sim.TaskID]float64 {
	weights := make(map[sim.TaskID]float64, len(tasks))
	for _, t := range tasks {
		slack := t.Deadline - timeStep
		if slack < 0 {
			slack = 0
		}
		weights[t.ID] = 1 / float64(slack+1)
	}
	return weights
}

// BanditWeighting assigns each task one of levels discrete weights 1..levels, chosen
// epsilon-greedily per task on the running-mean reward each weight has earned.
type BanditWeighting struct {
	name   string
	levels int
	table  *valueTable
}

// NewBanditWeighting creates a learning weighting policy. Panics if levels < 2.
func NewBanditWeighting(name string, levels int) *BanditWeighting {
	if levels < 2 {
		panic(fmt.Sprintf("NewBanditWeighting: levels must be >= 2, got %d", levels))
	}
	return &BanditWeighting{name: name, levels: levels, table: newValueTable(levels)}
}

func (w *BanditWeighting) Name() string { return w.name }

func (w *BanditWeighting) Weight(tasks []sim.Task, _ sim.Server, _ int, dc DecisionContext) map[sim.TaskID]float64 {
	greedy := w.table.greedy(0)
	weights := make(map[sim.TaskID]float64, len(tasks))
	for _, t := range tasks {
		level := greedy
		if dc.explore() {
			level = dc.RNG.IntN(w.levels)
		}
		weights[t.ID] = float64(level + 1)
	}
	return weights
}

// Train folds each experience's reward into the mean value of the weight it assigned.
func (w *BanditWeighting) Train(batch []replay.Experience) {
	for _, e := range batch {
		w.table.update(levelOf(e.Action, 1, w.levels), e.Reward)
	}
}

// Values returns the learned mean reward and visit count per weight level.
func (w *BanditWeighting) Values() ([]float64, []int64) {
	return w.table.snapshot()
}
