package sim

import (
	"encoding/json"
	"fmt"
	"os"
)

// envSchemaVersion is the only environment file version this build reads and writes.
const envSchemaVersion = 1

// Snapshot is the serializable form of an engine's world: server definitions, the full
// task arrival schedule (including tasks not yet auctioned) and in-flight progress.
// Floats are written in shortest round-trip form, so a load reproduces them bit-for-bit.
type Snapshot struct {
	SchemaVer   int        `json:"schema_version"`
	Seed        int64      `json:"seed"`
	Name        string     `json:"name"`
	TimeSteps   int        `json:"time_steps"`
	TimeStep    int        `json:"time_step"`
	StepCount   int        `json:"step_count"`
	NextArrival int        `json:"next_arrival"`
	Servers     []Server   `json:"servers"`
	Tasks       []Task     `json:"tasks"`
	Resident    [][]TaskID `json:"resident"` // parallel to Servers, insertion order
	Queue       []TaskID   `json:"auction_queue"`
}

// Snapshot captures the current world. Panics if called before Reset.
func (e *Engine) Snapshot() *Snapshot {
	if e.world == nil {
		panic("Engine.Snapshot() called before Reset()")
	}
	snap := &Snapshot{
		SchemaVer:   envSchemaVersion,
		Seed:        int64(e.rng.Key()),
		Name:        e.world.Name,
		TimeSteps:   e.world.TimeSteps,
		TimeStep:    e.timeStep,
		StepCount:   e.stepCount,
		NextArrival: e.nextArrival,
		Servers:     append([]Server(nil), e.world.Servers...),
		Tasks:       make([]Task, len(e.world.Tasks)),
		Resident:    make([][]TaskID, len(e.resident)),
		Queue:       make([]TaskID, len(e.queue)),
	}
	for i, t := range e.world.Tasks {
		snap.Tasks[i] = *t
	}
	for i, tasks := range e.resident {
		snap.Resident[i] = make([]TaskID, len(tasks))
		for j, t := range tasks {
			snap.Resident[i][j] = t.ID
		}
	}
	for i, t := range e.queue {
		snap.Queue[i] = t.ID
	}
	return snap
}

// SaveEnv writes the current world to path atomically (temp file + rename).
func (e *Engine) SaveEnv(path string) error {
	data, err := json.MarshalIndent(e.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal environment: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp environment: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename environment file: %w", err)
	}
	return nil
}

// LoadEnv restores an engine from an environment file written by SaveEnv.
// The returned engine's Reset restores the same saved world.
func LoadEnv(path string) (*Engine, EnvState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, EnvState{}, fmt.Errorf("failed to read environment %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, EnvState{}, fmt.Errorf("%w: %s: %v", ErrCorruptEnv, path, err)
	}
	if snap.SchemaVer != envSchemaVersion {
		return nil, EnvState{}, fmt.Errorf("%w: %s: got %d, want %d", ErrIncompatibleEnv, path, snap.SchemaVer, envSchemaVersion)
	}
	if err := snap.validate(); err != nil {
		return nil, EnvState{}, fmt.Errorf("%w: %s: %v", ErrCorruptEnv, path, err)
	}
	e := &Engine{
		rng:               NewPartitionedRNG(NewSimulationKey(snap.Seed)),
		fixed:             &snap,
		failureMultiplier: 1,
	}
	e.restore(&snap)
	return e, e.State(), nil
}

// validate checks the internal consistency of a decoded snapshot.
func (s *Snapshot) validate() error {
	if len(s.Servers) == 0 {
		return fmt.Errorf("no servers")
	}
	if len(s.Resident) != len(s.Servers) {
		return fmt.Errorf("resident lists for %d servers, have %d servers", len(s.Resident), len(s.Servers))
	}
	if s.NextArrival < 0 || s.NextArrival > len(s.Tasks) {
		return fmt.Errorf("next arrival %d out of range [0, %d]", s.NextArrival, len(s.Tasks))
	}
	servers := make(map[ServerID]bool, len(s.Servers))
	for _, srv := range s.Servers {
		if servers[srv.ID] {
			return fmt.Errorf("duplicate server id %d", srv.ID)
		}
		servers[srv.ID] = true
	}
	tasks := make(map[TaskID]bool, len(s.Tasks))
	for i, t := range s.Tasks {
		if tasks[t.ID] {
			return fmt.Errorf("duplicate task id %d", t.ID)
		}
		tasks[t.ID] = true
		if !t.Stage.IsValid() {
			return fmt.Errorf("task %d has unknown stage %q", t.ID, t.Stage)
		}
		if i > 0 && t.AuctionTime < s.Tasks[i-1].AuctionTime {
			return fmt.Errorf("task schedule not ordered by auction time at task %d", t.ID)
		}
	}
	placed := make(map[TaskID]bool)
	for _, ids := range append(append([][]TaskID(nil), s.Resident...), s.Queue) {
		for _, id := range ids {
			if !tasks[id] {
				return fmt.Errorf("unknown task id %d", id)
			}
			if placed[id] {
				return fmt.Errorf("task %d placed more than once", id)
			}
			placed[id] = true
		}
	}
	return nil
}

// restore rebuilds the world from a snapshot, copying tasks so the snapshot stays intact.
func (e *Engine) restore(s *Snapshot) {
	byID := make(map[TaskID]*Task, len(s.Tasks))
	w := &World{
		Name:      s.Name,
		TimeSteps: s.TimeSteps,
		Servers:   append([]Server(nil), s.Servers...),
		Tasks:     make([]*Task, len(s.Tasks)),
	}
	for i := range s.Tasks {
		t := s.Tasks[i]
		w.Tasks[i] = &t
		byID[t.ID] = &t
	}
	e.install(w)
	for i, ids := range s.Resident {
		for _, id := range ids {
			e.resident[i] = append(e.resident[i], byID[id])
		}
	}
	e.queue = make([]*Task, 0, len(s.Queue))
	for _, id := range s.Queue {
		e.queue = append(e.queue, byID[id])
	}
	e.timeStep = s.TimeStep
	e.stepCount = s.StepCount
	e.nextArrival = s.NextArrival
}

// NewEngineFromWorld creates an engine whose every Reset replays w from time step 0.
// The world is copied; later changes to w do not affect the engine.
func NewEngineFromWorld(w *World, seed int64) *Engine {
	tasks := make([]*Task, len(w.Tasks))
	for i, t := range w.Tasks {
		c := *t
		tasks[i] = &c
	}
	e := &Engine{
		rng:               NewPartitionedRNG(NewSimulationKey(seed)),
		failureMultiplier: 1,
	}
	e.install(&World{
		Name:      w.Name,
		TimeSteps: w.TimeSteps,
		Servers:   append([]Server(nil), w.Servers...),
		Tasks:     tasks,
	})
	e.enqueueArrivals()
	e.fixed = e.Snapshot()
	e.world = nil
	return e
}
