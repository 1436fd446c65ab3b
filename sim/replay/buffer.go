// Package replay holds experience records and the fixed-capacity buffer each learning
// policy samples its training batches from.
package replay

import (
	"fmt"
	"math/rand/v2"

	"github.com/flexalloc/flexalloc-sim/sim"
)

// Experience is one observed transition handed to a replay buffer.
type Experience struct {
	Observation     sim.Observation
	Action          float64
	NextObservation sim.Observation
	Reward          float64
	Terminal        bool
}

// Buffer is a fixed-capacity ring of experiences with FIFO eviction.
// Not safe for concurrent mutation; each buffer has exactly one writer.
type Buffer struct {
	items    []Experience
	start    int // index of the oldest record
	size     int
	inserted int64
}

// NewBuffer creates an empty buffer. Panics if capacity is not positive.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		panic(fmt.Sprintf("replay.NewBuffer: capacity must be > 0, got %d", capacity))
	}
	return &Buffer{items: make([]Experience, capacity)}
}

// Add appends an experience, evicting the oldest one when the buffer is full.
// Reports whether a record was evicted.
func (b *Buffer) Add(e Experience) bool {
	b.inserted++
	if b.size < len(b.items) {
		b.items[(b.start+b.size)%len(b.items)] = e
		b.size++
		return false
	}
	b.items[b.start] = e
	b.start = (b.start + 1) % len(b.items)
	return true
}

// Len returns the number of records currently held.
func (b *Buffer) Len() int { return b.size }

// Cap returns the maximum number of records held.
func (b *Buffer) Cap() int { return len(b.items) }

// Inserted returns the total number of Add calls over the buffer's lifetime.
func (b *Buffer) Inserted() int64 { return b.inserted }

// At returns the i-th record counting from the oldest. Panics if i is out of range.
func (b *Buffer) At(i int) Experience {
	if i < 0 || i >= b.size {
		panic(fmt.Sprintf("replay.Buffer.At: index %d out of range [0, %d)", i, b.size))
	}
	return b.items[(b.start+i)%len(b.items)]
}

// Sample draws n distinct records uniformly at random.
func (b *Buffer) Sample(rng *rand.Rand, n int) ([]Experience, error) {
	if n < 0 || n > b.size {
		return nil, fmt.Errorf("cannot sample %d records from a buffer holding %d", n, b.size)
	}
	// Partial Fisher-Yates over record positions.
	idx := make([]int, b.size)
	for i := range idx {
		idx[i] = i
	}
	batch := make([]Experience, n)
	for i := 0; i < n; i++ {
		j := i + rng.IntN(b.size-i)
		idx[i], idx[j] = idx[j], idx[i]
		batch[i] = b.At(idx[i])
	}
	return batch, nil
}
