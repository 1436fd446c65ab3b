package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStage_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to TaskStage
		want     bool
	}{
		{StageUnassigned, StageLoading, true},
		{StageLoading, StageComputing, true},
		{StageComputing, StageSending, true},
		{StageSending, StageCompleted, true},
		{StageLoading, StageFailed, true},
		{StageUnassigned, StageFailed, true},
		{StageLoading, StageSending, false},
		{StageComputing, StageLoading, false},
		{StageCompleted, StageFailed, false},
		{StageFailed, StageLoading, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTaskStage_IsValid(t *testing.T) {
	assert.True(t, StageSending.IsValid())
	assert.False(t, TaskStage("paused").IsValid())
}

func TestTask_InWindow(t *testing.T) {
	task := NewTask(0, 1, 1, 1, 2, 4)
	assert.False(t, task.InWindow(1))
	assert.True(t, task.InWindow(2))
	assert.True(t, task.InWindow(4))
	assert.False(t, task.InWindow(5))
}

func TestTask_Remaining(t *testing.T) {
	task := NewTask(0, 10, 20, 30, 0, 5)
	assert.Zero(t, task.Remaining())

	task.Stage = StageComputing
	task.ComputeProgress = 0.25
	assert.Equal(t, 15.0, task.Remaining())
}

func TestEnvState_CopiesAreIsolated(t *testing.T) {
	e := fixedEngine(0, []Server{NewServer(0, 10, 10, 10)}, NewTask(0, 5, 5, 5, 0, 10))
	e.Reset()
	res := mustStep(t, e, Bids{0: 1})

	res.State.ServerTasks[0].Tasks[0].Stage = StageFailed

	assert.Equal(t, StageLoading, e.State().TasksOf(0)[0].Stage)
	assert.Nil(t, res.State.TasksOf(9))
	assert.Equal(t, 1, res.State.NumResident())
}
