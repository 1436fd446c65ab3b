package sim

import (
	"fmt"
	"math"
)

// Bids maps each server to its bid for the current auction task.
// A missing server or a bid of exactly 0 means the server does not participate.
type Bids map[ServerID]float64

func (Bids) phase() Phase { return PhaseAuction }

// auctionOutcome is the resolved result of a single auction.
type auctionOutcome struct {
	winner ServerID
	price  float64
	sold   bool
}

// resolveAuction picks the highest strictly positive bid.
// Servers are visited in ID order and only a strictly greater bid replaces the
// leader, so ties go to the lowest server ID.
func resolveAuction(servers []Server, bids Bids) auctionOutcome {
	var out auctionOutcome
	for _, s := range servers {
		bid := bids[s.ID]
		if bid <= 0 {
			continue
		}
		if !out.sold || bid > out.price {
			out = auctionOutcome{winner: s.ID, price: bid, sold: true}
		}
	}
	return out
}

// validateBids rejects bids from unknown servers and negative or non-finite values.
func validateBids(known map[ServerID]int, bids Bids) error {
	for id, bid := range bids {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: bid from unknown server %d", ErrInvariant, id)
		}
		if math.IsNaN(bid) || math.IsInf(bid, 0) || bid < 0 {
			return fmt.Errorf("%w: server %d bid %v, bids must be finite and >= 0", ErrInvariant, id, bid)
		}
	}
	return nil
}
