package sim

import (
	"fmt"
	"strings"
)

// ServerTasks pairs a server with its resident tasks in insertion order.
type ServerTasks struct {
	Server Server
	Tasks  []Task
}

// EnvState is an immutable snapshot of the world published after every step.
// Tasks are value copies; mutating them does not affect the engine.
type EnvState struct {
	// Servers in ID order with their resident tasks.
	ServerTasks []ServerTasks
	// AuctionTask is non-nil exactly during the auction phase.
	AuctionTask *Task
	TimeStep    int
}

// IsAuction reports whether the state is in the auction phase.
func (s EnvState) IsAuction() bool {
	return s.AuctionTask != nil
}

// Servers returns the servers in deterministic order.
func (s EnvState) Servers() []Server {
	servers := make([]Server, len(s.ServerTasks))
	for i, st := range s.ServerTasks {
		servers[i] = st.Server
	}
	return servers
}

// TasksOf returns the resident tasks of the given server, or nil if the server is unknown.
func (s EnvState) TasksOf(id ServerID) []Task {
	for _, st := range s.ServerTasks {
		if st.Server.ID == id {
			return st.Tasks
		}
	}
	return nil
}

// NumResident returns the number of tasks resident across all servers.
func (s EnvState) NumResident() int {
	n := 0
	for _, st := range s.ServerTasks {
		n += len(st.Tasks)
	}
	return n
}

// Equal reports whether two states are identical on every field, comparing floats bit-for-bit.
func (s EnvState) Equal(o EnvState) bool {
	if s.TimeStep != o.TimeStep || len(s.ServerTasks) != len(o.ServerTasks) {
		return false
	}
	if (s.AuctionTask == nil) != (o.AuctionTask == nil) {
		return false
	}
	if s.AuctionTask != nil && *s.AuctionTask != *o.AuctionTask {
		return false
	}
	for i := range s.ServerTasks {
		a, b := s.ServerTasks[i], o.ServerTasks[i]
		if a.Server != b.Server || len(a.Tasks) != len(b.Tasks) {
			return false
		}
		for j := range a.Tasks {
			if a.Tasks[j] != b.Tasks[j] {
				return false
			}
		}
	}
	return true
}

func (s EnvState) String() string {
	parts := make([]string, 0, len(s.ServerTasks))
	for _, st := range s.ServerTasks {
		names := make([]string, len(st.Tasks))
		for i, t := range st.Tasks {
			names[i] = t.Name
		}
		parts = append(parts, fmt.Sprintf("%s: [%s]", st.Server.Name, strings.Join(names, ", ")))
	}
	auction := "None"
	if s.AuctionTask != nil {
		auction = s.AuctionTask.String()
	}
	return fmt.Sprintf("Env State at time step: %d\n\tAuction Task -> %s\n\tServers -> {%s}",
		s.TimeStep, auction, strings.Join(parts, ", "))
}
