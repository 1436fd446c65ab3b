package collector

import (
	"github.com/flexalloc/flexalloc-sim/sim"
	"github.com/sirupsen/logrus"
)

// WeightingCollector emits one record per weighted task per allocation step.
// Servers holding a single task are skipped: a lone task gets the full capacity
// whatever its weight.
type WeightingCollector struct {
	params  RewardParams
	sinks   map[sim.ServerID]Sink
	emitted int
}

// NewWeightingCollector creates a collector routing each server's records to its sink.
func NewWeightingCollector(params RewardParams, sinks map[sim.ServerID]Sink) *WeightingCollector {
	return &WeightingCollector{params: params, sinks: sinks}
}

// OnAllocation records one allocation step from state to next under weights.
//
// Each task is credited OtherTaskDiscount times the outcome reward of every other task
// on its server that finished this step. A task that itself finished also receives its
// own outcome reward and its record is terminal with an empty next observation.
func (c *WeightingCollector) OnAllocation(state, next sim.EnvState, weights sim.Weights, result sim.StepResult) {
	for _, st := range state.ServerTasks {
		id := st.Server.ID
		sink, ok := c.sinks[id]
		if !ok || len(st.Tasks) <= 1 {
			continue
		}
		finished := result.Finished[id]
		nextTasks := next.TasksOf(id)

		for _, t := range st.Tasks {
			obs := sim.WeightingObservation(t, st.Tasks, st.Server, state.TimeStep)
			action := weights[id][t.ID]
			reward := 0.0
			for _, f := range finished {
				if f.ID != t.ID {
					reward += c.params.outcomeReward(f)
				}
			}
			reward *= c.params.OtherTaskDiscount

			if nt, ok := findTask(nextTasks, t.ID); ok {
				sink.AddExperience(obs, action, sim.WeightingObservation(nt, nextTasks, st.Server, next.TimeStep), reward, false)
				c.emitted++
				continue
			}
			ft, ok := findTask(finished, t.ID)
			if !ok {
				logrus.Warnf("weighting collector: task %d left server %d without finishing", t.ID, id)
				continue
			}
			sink.AddExperience(obs, action, sim.Observation{}, reward+c.params.outcomeReward(ft), true)
			c.emitted++
		}
	}
}

// Emitted returns the number of records handed to sinks.
func (c *WeightingCollector) Emitted() int { return c.emitted }

func findTask(tasks []sim.Task, id sim.TaskID) (sim.Task, bool) {
	for _, t := range tasks {
		if t.ID == id {
			return t, true
		}
	}
	return sim.Task{}, false
}
