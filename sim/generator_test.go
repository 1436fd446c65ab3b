package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateWorld_SameStream_SameWorld(t *testing.T) {
	draw := func() *World {
		return GenerateWorld(smallSettings(), NewPartitionedRNG(NewSimulationKey(11)).ForSubsystem(SubsystemEnvironment))
	}
	a, b := draw(), draw()

	assert.Equal(t, a.TimeSteps, b.TimeSteps)
	assert.Equal(t, a.Servers, b.Servers)
	require.Equal(t, len(a.Tasks), len(b.Tasks))
	for i := range a.Tasks {
		assert.Equal(t, *a.Tasks[i], *b.Tasks[i])
	}
}

func TestGenerateWorld_RespectsRanges(t *testing.T) {
	s := smallSettings()
	for seed := int64(0); seed < 20; seed++ {
		w := GenerateWorld(s, NewPartitionedRNG(NewSimulationKey(seed)).ForSubsystem(SubsystemEnvironment))

		assert.GreaterOrEqual(t, w.TimeSteps, s.TimeSteps.Min)
		assert.LessOrEqual(t, w.TimeSteps, s.TimeSteps.Max)
		require.GreaterOrEqual(t, len(w.Servers), s.NumServers.Min)
		require.LessOrEqual(t, len(w.Servers), s.NumServers.Max)
		for i, srv := range w.Servers {
			assert.Equal(t, ServerID(i), srv.ID)
			assert.GreaterOrEqual(t, srv.StorageCap, s.Servers.Storage.Min)
			assert.LessOrEqual(t, srv.StorageCap, s.Servers.Storage.Max)
		}
		for i, task := range w.Tasks {
			assert.Equal(t, TaskID(i), task.ID)
			assert.Equal(t, StageUnassigned, task.Stage)
			assert.LessOrEqual(t, task.AuctionTime, w.TimeSteps)
			assert.GreaterOrEqual(t, task.Deadline-task.AuctionTime, s.Tasks.Deadline.Min)
			assert.LessOrEqual(t, task.Deadline-task.AuctionTime, s.Tasks.Deadline.Max)
			if i > 0 {
				assert.LessOrEqual(t, w.Tasks[i-1].AuctionTime, task.AuctionTime)
			}
		}
	}
}
