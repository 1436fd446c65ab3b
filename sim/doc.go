// Package sim provides the core simulation engine for a flexible resource-allocation
// compute marketplace.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - task.go: Task lifecycle (unassigned → loading → computing → sending → completed/failed)
//   - engine.go: Reset/Step, phase alternation and the published EnvState
//   - auction.go, allocation.go: the two phases' resolution rules
//
// # Architecture
//
// Each episode alternates two phases on a single timeline. During the auction phase one
// task at a time is priced by every server and the highest positive bid wins. During the
// resource-allocation phase each server splits one time unit of its storage, computation
// and bandwidth across its resident tasks in proportion to submitted weights, and time
// advances by one step. Deadlines are resolved at the end of every allocation step.
//
// The sim package owns the world; decision-making and learning live in sub-packages:
//   - sim/policy/: pricing and weighting policies, exploration schedule, decision fan-out
//   - sim/collector/: deferred credit assignment turning steps into experience records
//   - sim/replay/: experience records and the fixed-capacity replay buffer
//   - sim/training/: agents, training orchestration and metrics
//   - sim/evaluation/: fixed-policy evaluation over saved environments
//   - sim/trace/: decision trace recording
//
// Environments are drawn from EnvSettings (settings.go, generator.go) using a
// PartitionedRNG, and can be saved and restored bit-for-bit (snapshot.go).
package sim
