// Package testutil provides shared test infrastructure for packages built on the
// simulation engine: world builders, a recording experience sink and float assertions.
package testutil

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/flexalloc/flexalloc-sim/sim"
	"github.com/flexalloc/flexalloc-sim/sim/replay"
)

// NewWorld builds a world with the given horizon, servers and tasks.
// Tasks must already be ordered by auction time.
func NewWorld(name string, horizon int, servers []sim.Server, tasks ...*sim.Task) *sim.World {
	return &sim.World{Name: name, TimeSteps: horizon, Servers: servers, Tasks: tasks}
}

// Servers creates n servers with identical capacities.
func Servers(n int, storage, computation, bandwidth float64) []sim.Server {
	servers := make([]sim.Server, n)
	for i := range servers {
		servers[i] = sim.NewServer(sim.ServerID(i), storage, computation, bandwidth)
	}
	return servers
}

// SaveEnv resets the engine and writes it to a file in a per-test temp directory.
func SaveEnv(t *testing.T, e *sim.Engine, name string) string {
	t.Helper()
	e.Reset()
	path := filepath.Join(t.TempDir(), name)
	if err := e.SaveEnv(path); err != nil {
		t.Fatalf("SaveEnv(%s): %v", path, err)
	}
	return path
}

// RecordingSink stores every experience it receives.
type RecordingSink struct {
	Records []replay.Experience
}

func (s *RecordingSink) AddExperience(obs sim.Observation, action float64, next sim.Observation, reward float64, terminal bool) {
	s.Records = append(s.Records, replay.Experience{
		Observation:     obs,
		Action:          action,
		NextObservation: next,
		Reward:          reward,
		Terminal:        terminal,
	})
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
