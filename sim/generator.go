package sim

import (
	"math/rand/v2"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"
)

// World is the full definition of one environment: its servers and the task
// arrival schedule, including tasks that have not been auctioned yet.
type World struct {
	Name      string
	TimeSteps int // horizon; auctions happen at time steps 0..TimeSteps
	Servers   []Server
	Tasks     []*Task // ordered by AuctionTime, then ID
}

// GenerateWorld draws a world from settings.
// Deterministic given the same settings and rng state.
func GenerateWorld(settings *EnvSettings, rng *rand.Rand) *World {
	horizon := intBetween(rng, settings.TimeSteps)
	numServers := intBetween(rng, settings.NumServers)

	storage := uniform(settings.Servers.Storage, rng)
	computation := uniform(settings.Servers.Computation, rng)
	bandwidth := uniform(settings.Servers.Bandwidth, rng)
	servers := make([]Server, numServers)
	for i := range servers {
		servers[i] = NewServer(ServerID(i), storage.Rand(), computation.Rand(), bandwidth.Rand())
	}

	arrivals := distuv.Poisson{Lambda: settings.Tasks.ArrivalRate, Src: rng}
	taskStorage := uniform(settings.Tasks.Storage, rng)
	taskComputation := uniform(settings.Tasks.Computation, rng)
	taskResults := uniform(settings.Tasks.ResultsData, rng)

	var tasks []*Task
	for t := 0; t <= horizon; t++ {
		n := int(arrivals.Rand())
		for k := 0; k < n; k++ {
			deadline := t + intBetween(rng, settings.Tasks.Deadline)
			tasks = append(tasks, NewTask(TaskID(len(tasks)),
				taskStorage.Rand(), taskComputation.Rand(), taskResults.Rand(), t, deadline))
		}
	}

	logrus.Debugf("generated world %q: horizon=%d servers=%d tasks=%d",
		settings.Name, horizon, len(servers), len(tasks))
	return &World{
		Name:      settings.Name,
		TimeSteps: horizon,
		Servers:   servers,
		Tasks:     tasks,
	}
}

func intBetween(rng *rand.Rand, r IntRange) int {
	if r.Max == r.Min {
		return r.Min
	}
	return r.Min + rng.IntN(r.Max-r.Min+1)
}

func uniform(r FloatRange, rng *rand.Rand) distuv.Uniform {
	return distuv.Uniform{Min: r.Min, Max: r.Max, Src: rng}
}
