package policy

import (
	"math"
	"sync"
)

// valueTable tracks a running-mean reward per discrete action level.
// Reads happen concurrently from per-server decisions; updates come from one learner.
type valueTable struct {
	mu     sync.RWMutex
	values []float64
	counts []int64
}

func newValueTable(levels int) *valueTable {
	return &valueTable{
		values: make([]float64, levels),
		counts: make([]int64, levels),
	}
}

// greedy returns the tried level with the highest mean value, lowest level on ties.
// Returns fallback when no level has been tried.
func (v *valueTable) greedy(fallback int) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	best := -1
	for level, n := range v.counts {
		if n == 0 {
			continue
		}
		if best < 0 || v.values[level] > v.values[best] {
			best = level
		}
	}
	if best < 0 {
		return fallback
	}
	return best
}

func (v *valueTable) update(level int, reward float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counts[level]++
	v.values[level] += (reward - v.values[level]) / float64(v.counts[level])
}

// Snapshot returns a copy of the mean value and visit count of every level.
func (v *valueTable) snapshot() ([]float64, []int64) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]float64(nil), v.values...), append([]int64(nil), v.counts...)
}

// levelOf maps a recorded action back to its level index, clamped to the table.
func levelOf(action float64, offset, levels int) int {
	level := int(math.Round(action)) - offset
	return max(0, min(levels-1, level))
}
