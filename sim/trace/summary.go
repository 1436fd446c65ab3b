package trace

// TraceSummary aggregates statistics from an EpisodeTrace.
type TraceSummary struct {
	Auctions      int
	Sold          int
	Unsold        int
	MeanPrice     float64 // over sold auctions
	MaxPrice      float64
	Completed     int
	Failed        int
	TotalReward   float64
	WinsPerServer map[int]int // server ID → auctions won
}

// Summarize computes aggregate statistics from an EpisodeTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(et *EpisodeTrace) *TraceSummary {
	summary := &TraceSummary{
		WinsPerServer: make(map[int]int),
	}
	if et == nil {
		return summary
	}
	summary.Auctions = len(et.Auctions)
	totalPrice := 0.0
	for _, a := range et.Auctions {
		if !a.Sold {
			summary.Unsold++
			continue
		}
		summary.Sold++
		summary.WinsPerServer[a.Winner]++
		totalPrice += a.Price
		if a.Price > summary.MaxPrice {
			summary.MaxPrice = a.Price
		}
	}
	if summary.Sold > 0 {
		summary.MeanPrice = totalPrice / float64(summary.Sold)
	}
	for _, c := range et.Completions {
		if c.Completed {
			summary.Completed++
		} else {
			summary.Failed++
		}
		summary.TotalReward += c.Reward
	}
	return summary
}
