// Package replay stores agent transitions and samples training batches from them.
package replay

import (
	"errors"
	"fmt"
	"math/rand"

	"sdmrl/models"
)

// ErrEmptyBuffer is returned when sampling before any transition was added.
var ErrEmptyBuffer error = errors.New("cannot sample an empty replay buffer")

// Buffer is a fixed capacity ring of transitions; once full, the oldest are overwritten.
// Buffer is not safe for concurrent use; the training loop is its only reader and writer.
type Buffer struct {
	transitions []models.Transition
	capacity    int
	position    int
	size        int
	added       int
	rng         *rand.Rand
}

// NewBuffer returns an empty buffer holding at most capacity transitions.
func NewBuffer(capacity int, seed int64) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("replay buffer capacity must be positive, got %d", capacity)
	}
	return &Buffer{
		transitions: make([]models.Transition, capacity),
		capacity:    capacity,
		rng:         rand.New(rand.NewSource(seed)),
	}, nil
}

// Add stores a copy of the transition.
func (b *Buffer) Add(tr models.Transition) {
	tr.Observation = append([]float64(nil), tr.Observation...)
	tr.NextObservation = append([]float64(nil), tr.NextObservation...)
	b.transitions[b.position] = tr
	b.position = (b.position + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
	b.added++
}

// Sample draws n transitions uniformly with replacement.
func (b *Buffer) Sample(n int) (models.Batch, error) {
	if b.size == 0 {
		return models.Batch{}, ErrEmptyBuffer
	}
	sampled := make([]models.Transition, n)
	for i := range sampled {
		sampled[i] = b.transitions[b.rng.Intn(b.size)]
	}
	return models.NewBatch(sampled), nil
}

// Len returns the number of stored transitions.
func (b *Buffer) Len() int {
	return b.size
}

// Added returns the number of transitions ever added, including overwritten ones.
func (b *Buffer) Added() int {
	return b.added
}
