package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// progressTolerance absorbs float rounding when cumulative allotments meet demand exactly.
const progressTolerance = 1e-9

// Weights maps each server to the relative weight of each of its resident tasks.
// Resident tasks missing from a server's map get weight 0.
type Weights map[ServerID]map[TaskID]float64

func (Weights) phase() Phase { return PhaseAllocation }

// apportion splits one time unit of the server's capacity across tasks in proportion
// to their weights. Tasks with zero weight, and every task when the total weight is
// zero, receive nothing.
func apportion(server Server, tasks []*Task, weights map[TaskID]float64) map[TaskID]Allocation {
	total := 0.0
	for _, t := range tasks {
		total += weights[t.ID]
	}
	allocs := make(map[TaskID]Allocation, len(tasks))
	if total <= 0 {
		if len(tasks) > 0 {
			logrus.Debugf("[%s] zero total weight over %d tasks, no progress this step", server.Name, len(tasks))
		}
		return allocs
	}
	for _, t := range tasks {
		w := weights[t.ID]
		if w <= 0 {
			continue
		}
		share := w / total
		allocs[t.ID] = Allocation{
			Storage:     server.StorageCap * share,
			Computation: server.ComputationalCap * share,
			Bandwidth:   server.BandwidthCap * share,
		}
	}
	return allocs
}

// advance applies one step of allotted resources to the task's current stage.
// Only the current stage progresses; surplus allotment is not carried into the next stage.
// Loading is bounded by both the storage and bandwidth shares, computing by the
// computation share and sending by the bandwidth share.
func advance(t *Task, a Allocation) {
	switch t.Stage {
	case StageLoading:
		t.LoadingProgress = addProgress(t.LoadingProgress, math.Min(a.Storage, a.Bandwidth), t.RequiredStorage)
		if t.LoadingProgress == 1 {
			t.Stage = StageComputing
		}
	case StageComputing:
		t.ComputeProgress = addProgress(t.ComputeProgress, a.Computation, t.RequiredComputation)
		if t.ComputeProgress == 1 {
			t.Stage = StageSending
		}
	case StageSending:
		t.SendingProgress = addProgress(t.SendingProgress, a.Bandwidth, t.RequiredResultsData)
		if t.SendingProgress == 1 {
			t.Stage = StageCompleted
		}
	}
}

// addProgress returns progress after allotting amount against demand, clamped to [progress, 1].
func addProgress(progress, amount, demand float64) float64 {
	if demand <= 0 {
		return 1
	}
	if amount <= 0 {
		return progress
	}
	next := progress + amount/demand
	if next >= 1-progressTolerance {
		return 1
	}
	return next
}

// validateWeights rejects weights for unknown servers or non-resident tasks and
// negative or non-finite values.
func validateWeights(known map[ServerID]int, resident [][]*Task, weights Weights) error {
	for sid, tw := range weights {
		idx, ok := known[sid]
		if !ok {
			return fmt.Errorf("%w: weights for unknown server %d", ErrInvariant, sid)
		}
		for tid, w := range tw {
			if !containsTask(resident[idx], tid) {
				return fmt.Errorf("%w: weight for task %d which is not resident on server %d", ErrInvariant, tid, sid)
			}
			if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
				return fmt.Errorf("%w: task %d weight %v, weights must be finite and >= 0", ErrInvariant, tid, w)
			}
		}
	}
	return nil
}

func containsTask(tasks []*Task, id TaskID) bool {
	for _, t := range tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}
