package sim

import "fmt"

// ServerID is the stable identity of a server; servers are ordered by ID.
type ServerID int

// Server is a compute node with fixed storage, computational and bandwidth capacity.
// Capacities are per time step for computation and bandwidth; storage is the amount of
// task data the server can load per step.
type Server struct {
	ID               ServerID `json:"id"`
	Name             string   `json:"name"`
	StorageCap       float64  `json:"storage_cap"`
	ComputationalCap float64  `json:"computational_cap"`
	BandwidthCap     float64  `json:"bandwidth_cap"`
}

// NewServer creates a server named after its ID.
func NewServer(id ServerID, storage, computation, bandwidth float64) Server {
	return Server{
		ID:               id,
		Name:             fmt.Sprintf("server_%d", id),
		StorageCap:       storage,
		ComputationalCap: computation,
		BandwidthCap:     bandwidth,
	}
}

func (s Server) String() string {
	return fmt.Sprintf("Server: (ID: %d, Caps: %v/%v/%v)", s.ID, s.StorageCap, s.ComputationalCap, s.BandwidthCap)
}

// Allocation is the share of a server's capacity granted to one task for one time step.
type Allocation struct {
	Storage     float64 `json:"storage"`
	Computation float64 `json:"computation"`
	Bandwidth   float64 `json:"bandwidth"`
}
