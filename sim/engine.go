// sim/engine.go
package sim

import (
	"fmt"
	"math/rand/v2"

	"github.com/flexalloc/flexalloc-sim/sim/trace"
	"github.com/sirupsen/logrus"
)

// Phase is the simulation phase a state is in.
type Phase string

const (
	PhaseAuction    Phase = "auction"
	PhaseAllocation Phase = "allocation"
)

// Action is either Bids (auction phase) or Weights (resource-allocation phase).
type Action interface {
	phase() Phase
}

// StepInfo carries diagnostic detail about a committed step.
type StepInfo struct {
	Phase     Phase
	StepCount int // number of steps committed since reset, including this one

	// Auction phase.
	TaskID TaskID
	Winner ServerID
	Sold   bool
	Price  float64

	// Allocation phase: the capacity share each task received.
	Allocations map[ServerID]map[TaskID]Allocation
}

// StepResult is the outcome of a single Step call.
type StepResult struct {
	State EnvState
	// Rewards holds the winning server's price after an auction step; empty when unsold.
	Rewards map[ServerID]float64
	// Finished holds, per server, the tasks that reached COMPLETED or FAILED
	// during an allocation step. Every server has an entry.
	Finished map[ServerID][]Task
	Done     bool
	Info     StepInfo
}

// Engine is the authoritative mutable world. It alternates between an auction phase,
// one step per task arriving at the current time step, and a resource-allocation
// phase that advances time by one unit.
//
// The engine performs no I/O during Step and is not safe for concurrent use.
type Engine struct {
	settings []*EnvSettings
	rng      *PartitionedRNG
	fixed    *Snapshot // when set, Reset restores this snapshot instead of drawing a world

	world       *World
	serverIndex map[ServerID]int
	resident    [][]*Task // parallel to world.Servers, insertion order
	queue       []*Task   // tasks awaiting auction at the current time step
	nextArrival int       // index into world.Tasks of the first task not yet queued
	timeStep    int
	stepCount   int

	trace             *trace.EpisodeTrace
	failureMultiplier float64
}

// NewEngine creates an engine drawing a new world from one of settings on every reset.
// Panics if settings is empty.
func NewEngine(settings []*EnvSettings, seed int64) *Engine {
	if len(settings) == 0 {
		panic("Engine: at least one EnvSettings is required")
	}
	return &Engine{
		settings:          settings,
		rng:               NewPartitionedRNG(NewSimulationKey(seed)),
		failureMultiplier: 1,
	}
}

// SetTrace attaches a decision trace. Pass nil to disable tracing.
func (e *Engine) SetTrace(tr *trace.EpisodeTrace) {
	e.trace = tr
}

// SetFailureMultiplier sets the multiplier applied to the price of failed tasks in
// completion trace records. It does not affect auction rewards.
func (e *Engine) SetFailureMultiplier(m float64) {
	e.failureMultiplier = m
}

// Reset re-initializes the world and returns the initial state with TimeStep 0.
// A loaded engine restores its saved environment; otherwise a new world is drawn.
func (e *Engine) Reset() EnvState {
	if e.fixed != nil {
		e.restore(e.fixed)
		return e.State()
	}
	envRNG := e.rng.ForSubsystem(SubsystemEnvironment)
	settings := e.settings[envRNG.IntN(len(e.settings))]
	e.install(GenerateWorld(settings, envRNG))
	e.timeStep = 0
	e.stepCount = 0
	e.queue = nil
	e.nextArrival = 0
	e.enqueueArrivals()
	logrus.Debugf("[step %05d] reset: %s", e.stepCount, e.State())
	return e.State()
}

// RNG returns a stream from the engine's partitioned RNG.
func (e *Engine) RNG(subsystem string) *rand.Rand {
	return e.rng.ForSubsystem(subsystem)
}

// World returns the current world definition.
func (e *Engine) World() *World {
	return e.world
}

// Phase returns the phase the next Step will execute.
func (e *Engine) Phase() Phase {
	if len(e.queue) > 0 {
		return PhaseAuction
	}
	return PhaseAllocation
}

// Done reports whether the horizon has passed and no tasks remain in flight.
func (e *Engine) Done() bool {
	if e.world == nil {
		return false
	}
	if e.timeStep <= e.world.TimeSteps || len(e.queue) > 0 || e.nextArrival < len(e.world.Tasks) {
		return false
	}
	for _, tasks := range e.resident {
		if len(tasks) > 0 {
			return false
		}
	}
	return true
}

// State publishes an immutable snapshot of the current world.
func (e *Engine) State() EnvState {
	st := EnvState{
		ServerTasks: make([]ServerTasks, len(e.world.Servers)),
		TimeStep:    e.timeStep,
	}
	for i, server := range e.world.Servers {
		tasks := make([]Task, len(e.resident[i]))
		for j, t := range e.resident[i] {
			tasks[j] = *t
		}
		st.ServerTasks[i] = ServerTasks{Server: server, Tasks: tasks}
	}
	if len(e.queue) > 0 {
		auction := *e.queue[0]
		st.AuctionTask = &auction
	}
	return st
}

// Step advances exactly one phase. Bids are required while a task is up for auction
// and Weights otherwise. On error the world is left unchanged.
func (e *Engine) Step(action Action) (StepResult, error) {
	if e.world == nil {
		return StepResult{}, fmt.Errorf("%w: Step called before Reset", ErrInvariant)
	}
	if action == nil || action.phase() != e.Phase() {
		return StepResult{}, fmt.Errorf("%w: got %T during %s phase", ErrInvariant, action, e.Phase())
	}
	switch a := action.(type) {
	case Bids:
		return e.stepAuction(a)
	case Weights:
		return e.stepAllocation(a)
	default:
		return StepResult{}, fmt.Errorf("%w: unsupported action %T", ErrInvariant, action)
	}
}

func (e *Engine) stepAuction(bids Bids) (StepResult, error) {
	task := e.queue[0]
	if task.Stage != StageUnassigned {
		return StepResult{}, fmt.Errorf("%w: auction task %d in stage %s, want %s",
			ErrInvariant, task.ID, task.Stage, StageUnassigned)
	}
	if task.AuctionTime != e.timeStep || !task.InWindow(e.timeStep) {
		return StepResult{}, fmt.Errorf("%w: auction task %d window [%d, %d] does not admit time step %d",
			ErrInvariant, task.ID, task.AuctionTime, task.Deadline, e.timeStep)
	}
	if err := validateBids(e.serverIndex, bids); err != nil {
		return StepResult{}, err
	}

	out := resolveAuction(e.world.Servers, bids)
	e.queue = e.queue[1:]
	e.stepCount++

	rewards := make(map[ServerID]float64, 1)
	if out.sold {
		task.Price = out.price
		task.Stage = StageLoading
		idx := e.serverIndex[out.winner]
		e.resident[idx] = append(e.resident[idx], task)
		rewards[out.winner] = out.price
		logrus.Debugf("[step %05d] auction: %s won by server_%d at %v", e.stepCount, task.Name, out.winner, out.price)
	} else {
		logrus.Debugf("[step %05d] auction: %s unsold", e.stepCount, task.Name)
	}
	e.recordAuction(task, bids, out)

	return StepResult{
		State:   e.State(),
		Rewards: rewards,
		Done:    e.Done(),
		Info: StepInfo{
			Phase:     PhaseAuction,
			StepCount: e.stepCount,
			TaskID:    task.ID,
			Winner:    out.winner,
			Sold:      out.sold,
			Price:     out.price,
		},
	}, nil
}

func (e *Engine) stepAllocation(weights Weights) (StepResult, error) {
	if err := validateWeights(e.serverIndex, e.resident, weights); err != nil {
		return StepResult{}, err
	}
	for _, tasks := range e.resident {
		for _, t := range tasks {
			if !t.InWindow(e.timeStep) || t.Stage.IsTerminal() || t.Stage == StageUnassigned {
				return StepResult{}, fmt.Errorf("%w: resident %s not workable at time step %d", ErrInvariant, t, e.timeStep)
			}
		}
	}

	allocations := make(map[ServerID]map[TaskID]Allocation, len(e.world.Servers))
	finished := make(map[ServerID][]Task, len(e.world.Servers))
	for i, server := range e.world.Servers {
		allocs := apportion(server, e.resident[i], weights[server.ID])
		allocations[server.ID] = allocs

		remaining := make([]*Task, 0, len(e.resident[i]))
		done := make([]Task, 0)
		for _, t := range e.resident[i] {
			advance(t, allocs[t.ID])
			if !t.Stage.IsTerminal() && t.Deadline <= e.timeStep {
				t.Stage = StageFailed
			}
			if t.Stage.IsTerminal() {
				done = append(done, *t)
				e.recordCompletion(server.ID, t)
				continue
			}
			remaining = append(remaining, t)
		}
		e.resident[i] = remaining
		finished[server.ID] = done
	}

	e.timeStep++
	e.stepCount++
	e.enqueueArrivals()
	logrus.Debugf("[step %05d] allocation: advanced to time step %d", e.stepCount, e.timeStep)

	return StepResult{
		State:    e.State(),
		Finished: finished,
		Done:     e.Done(),
		Info: StepInfo{
			Phase:       PhaseAllocation,
			StepCount:   e.stepCount,
			Allocations: allocations,
		},
	}, nil
}

// enqueueArrivals queues every scheduled task whose auction time is the current time step.
func (e *Engine) enqueueArrivals() {
	for e.nextArrival < len(e.world.Tasks) {
		t := e.world.Tasks[e.nextArrival]
		if t.AuctionTime > e.timeStep {
			return
		}
		e.nextArrival++
		if t.AuctionTime < e.timeStep {
			logrus.Warnf("task %d auction time %d already passed at time step %d, skipping", t.ID, t.AuctionTime, e.timeStep)
			continue
		}
		e.queue = append(e.queue, t)
	}
}

// install replaces the world definition and clears resident lists.
func (e *Engine) install(w *World) {
	e.world = w
	e.serverIndex = make(map[ServerID]int, len(w.Servers))
	for i, s := range w.Servers {
		e.serverIndex[s.ID] = i
	}
	e.resident = make([][]*Task, len(w.Servers))
}

func (e *Engine) recordAuction(task *Task, bids Bids, out auctionOutcome) {
	if !e.trace.Enabled() {
		return
	}
	record := trace.AuctionRecord{
		TaskID:   int(task.ID),
		TimeStep: e.timeStep,
		Bids:     make(map[int]float64, len(bids)),
		Winner:   int(out.winner),
		Sold:     out.sold,
		Price:    out.price,
	}
	for id, bid := range bids {
		record.Bids[int(id)] = bid
	}
	e.trace.RecordAuction(record)
}

func (e *Engine) recordCompletion(server ServerID, t *Task) {
	if !e.trace.Enabled() {
		return
	}
	reward := t.Price
	if t.Stage == StageFailed {
		reward = t.Price * e.failureMultiplier
	}
	e.trace.RecordCompletion(trace.CompletionRecord{
		TaskID:    int(t.ID),
		ServerID:  int(server),
		TimeStep:  e.timeStep,
		Completed: t.Stage == StageCompleted,
		Price:     t.Price,
		Reward:    reward,
	})
}
