package sim

// TaskFeatureWidth is the number of values NormaliseTask produces per task.
const TaskFeatureWidth = 8

// Observation is a policy input: one feature row per task.
type Observation [][]float64

// NormaliseTask scales a task's requirements against the server it is (or would be) running on.
// Row layout: storage/storageCap, storage/bandwidthCap, computation/computationalCap,
// resultsData/bandwidthCap, deadline-timeStep, loading, compute and sending progress.
func NormaliseTask(t Task, s Server, timeStep int) []float64 {
	return []float64{
		ratio(t.RequiredStorage, s.StorageCap),
		ratio(t.RequiredStorage, s.BandwidthCap),
		ratio(t.RequiredComputation, s.ComputationalCap),
		ratio(t.RequiredResultsData, s.BandwidthCap),
		float64(t.Deadline - timeStep),
		t.LoadingProgress,
		t.ComputeProgress,
		t.SendingProgress,
	}
}

// PricingObservation is the auction task's row flagged 1 followed by each allocated task's row flagged 0.
func PricingObservation(auction Task, allocated []Task, s Server, timeStep int) Observation {
	obs := make(Observation, 0, len(allocated)+1)
	obs = append(obs, append(NormaliseTask(auction, s, timeStep), 1))
	for _, t := range allocated {
		obs = append(obs, append(NormaliseTask(t, s, timeStep), 0))
	}
	return obs
}

// WeightingObservation pairs the weighted task's row with every other allocated task's row.
// The result is empty when the task is alone on the server.
func WeightingObservation(task Task, allocated []Task, s Server, timeStep int) Observation {
	self := NormaliseTask(task, s, timeStep)
	obs := make(Observation, 0, len(allocated))
	for _, t := range allocated {
		if t.ID == task.ID {
			continue
		}
		row := make([]float64, 0, 2*TaskFeatureWidth)
		row = append(row, self...)
		obs = append(obs, append(row, NormaliseTask(t, s, timeStep)...))
	}
	return obs
}

func ratio(num, denom float64) float64 {
	if denom == 0 {
		return 0
	}
	return num / denom
}
