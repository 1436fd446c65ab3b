package sim

import "testing"

// smallSettings draws busy worlds of a few servers over a short horizon.
func smallSettings() *EnvSettings {
	return &EnvSettings{
		Name:       "small",
		TimeSteps:  IntRange{Min: 5, Max: 10},
		NumServers: IntRange{Min: 2, Max: 3},
		Servers: ServerRanges{
			Storage:     FloatRange{Min: 10, Max: 20},
			Computation: FloatRange{Min: 10, Max: 20},
			Bandwidth:   FloatRange{Min: 10, Max: 20},
		},
		Tasks: TaskRanges{
			ArrivalRate: 1,
			Storage:     FloatRange{Min: 5, Max: 20},
			Computation: FloatRange{Min: 5, Max: 20},
			ResultsData: FloatRange{Min: 5, Max: 20},
			Deadline:    IntRange{Min: 2, Max: 6},
		},
	}
}

// fixedEngine replays the given world on every reset.
func fixedEngine(horizon int, servers []Server, tasks ...*Task) *Engine {
	return NewEngineFromWorld(&World{Name: "fixed", TimeSteps: horizon, Servers: servers, Tasks: tasks}, 1)
}

func mustStep(t *testing.T, e *Engine, a Action) StepResult {
	t.Helper()
	res, err := e.Step(a)
	if err != nil {
		t.Fatalf("Step(%T): %v", a, err)
	}
	return res
}

// scriptedAction derives an action purely from the state, so identical states yield
// identical actions.
func scriptedAction(state EnvState) Action {
	if state.IsAuction() {
		bids := make(Bids, len(state.ServerTasks))
		for _, st := range state.ServerTasks {
			bids[st.Server.ID] = float64((int(state.AuctionTask.ID)+int(st.Server.ID))%4) * 1.25
		}
		return bids
	}
	weights := make(Weights, len(state.ServerTasks))
	for _, st := range state.ServerTasks {
		w := make(map[TaskID]float64, len(st.Tasks))
		for i, t := range st.Tasks {
			w[t.ID] = float64(i%3) + 0.5
		}
		weights[st.Server.ID] = w
	}
	return weights
}
