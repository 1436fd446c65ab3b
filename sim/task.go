// Defines the Task struct that models a single unit of work auctioned to a server.
// Tracks resource demand, auction/deadline window, per-stage progress and the price.

package sim

import (
	"fmt"
)

// TaskStage represents the lifecycle stage of a task.
type TaskStage string

const (
	StageUnassigned TaskStage = "unassigned"
	StageLoading    TaskStage = "loading"
	StageComputing  TaskStage = "computing"
	StageSending    TaskStage = "sending"
	StageCompleted  TaskStage = "completed"
	StageFailed     TaskStage = "failed"
)

// stageOrder gives the position of each stage along
// UNASSIGNED → LOADING → COMPUTING → SENDING → {COMPLETED, FAILED}.
var stageOrder = map[TaskStage]int{
	StageUnassigned: 0,
	StageLoading:    1,
	StageComputing:  2,
	StageSending:    3,
	StageCompleted:  4,
	StageFailed:     4,
}

// IsTerminal reports whether the stage is COMPLETED or FAILED.
func (s TaskStage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// IsValid reports whether s is a known stage.
func (s TaskStage) IsValid() bool {
	_, ok := stageOrder[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next respects the monotone stage order.
// FAILED is reachable from every non-terminal stage; nothing leaves a terminal stage.
func (s TaskStage) CanTransitionTo(next TaskStage) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	return stageOrder[next] == stageOrder[s]+1
}

// TaskID is the stable identity of a task within one environment.
type TaskID int

type Task struct {
	ID   TaskID `json:"id"`
	Name string `json:"name"`

	Stage TaskStage `json:"stage"`

	RequiredStorage     float64 `json:"required_storage"`
	RequiredComputation float64 `json:"required_computation"`
	RequiredResultsData float64 `json:"required_results_data"`

	AuctionTime int `json:"auction_time"` // time step the task is auctioned at
	Deadline    int `json:"deadline"`     // last time step the task may still be worked on

	LoadingProgress float64 `json:"loading_progress"` // in [0, 1]
	ComputeProgress float64 `json:"compute_progress"` // in [0, 1]
	SendingProgress float64 `json:"sending_progress"` // in [0, 1]

	Price float64 `json:"price"` // winning bid, set once when the auction resolves
}

// NewTask creates an UNASSIGNED task with the given demand and time window.
func NewTask(id TaskID, storage, computation, resultsData float64, auctionTime, deadline int) *Task {
	return &Task{
		ID:                  id,
		Name:                fmt.Sprintf("task_%d", id),
		Stage:               StageUnassigned,
		RequiredStorage:     storage,
		RequiredComputation: computation,
		RequiredResultsData: resultsData,
		AuctionTime:         auctionTime,
		Deadline:            deadline,
	}
}

// InWindow reports whether timeStep lies in [AuctionTime, Deadline].
func (t Task) InWindow(timeStep int) bool {
	return t.AuctionTime <= timeStep && timeStep <= t.Deadline
}

// Remaining returns the demand still outstanding in the task's current stage, or 0 when
// the stage has no demand (unassigned or terminal).
func (t Task) Remaining() float64 {
	switch t.Stage {
	case StageLoading:
		return (1 - t.LoadingProgress) * t.RequiredStorage
	case StageComputing:
		return (1 - t.ComputeProgress) * t.RequiredComputation
	case StageSending:
		return (1 - t.SendingProgress) * t.RequiredResultsData
	default:
		return 0
	}
}

// This method returns a human-readable string representation of a Task.
func (t Task) String() string {
	return fmt.Sprintf("Task: (ID: %d, Stage: %s, Window: [%d, %d], Progress: %.3f/%.3f/%.3f, Price: %v)",
		t.ID, t.Stage, t.AuctionTime, t.Deadline, t.LoadingProgress, t.ComputeProgress, t.SendingProgress, t.Price)
}
