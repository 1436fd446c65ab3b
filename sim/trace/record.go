// Package trace provides decision-trace recording for auction and completion analysis.
// This package has no dependencies on sim/ and stores pure data types.
package trace

// AuctionRecord captures a single auction resolution.
type AuctionRecord struct {
	TaskID   int
	TimeStep int
	Bids     map[int]float64 // server ID → bid
	Winner   int             // server ID; meaningful only when Sold
	Sold     bool
	Price    float64
}

// CompletionRecord captures a task leaving its server.
type CompletionRecord struct {
	TaskID    int
	ServerID  int
	TimeStep  int
	Completed bool // false means the task failed
	Price     float64
	Reward    float64 // Price scaled by the failure multiplier on failure
}
