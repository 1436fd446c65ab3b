package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible episode stream.
// Two engines with the same SimulationKey and identical settings
// MUST produce bit-for-bit identical environments on every reset.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemEnvironment draws settings choice, servers and the task arrival schedule.
	SubsystemEnvironment = "environment"

	// SubsystemAssignment draws the per-episode policy-to-server assignment.
	SubsystemAssignment = "assignment"

	// SubsystemReplay draws replay-buffer sample batches.
	SubsystemReplay = "replay"
)

// SubsystemExploration returns the subsystem name for exploration on server N.
// Each server gets its own stream so concurrent policy calls stay deterministic.
func SubsystemExploration(id ServerID) string {
	return fmt.Sprintf("explore_%d", id)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula: PCG(masterSeed, fnv1a64(subsystemName)).
//
// The returned *rand.Rand also satisfies rand.Source, so it can be handed to gonum
// distuv samplers directly.
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
// Streams handed out may be used from other goroutines as long as each stream
// has a single user.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewPCG(uint64(p.key), fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
