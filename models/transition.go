package models

import (
	"gonum.org/v1/gonum/mat"
)

// Transition is a single agent step: do Action in Observation, observe Reward and
// NextObservation. Done is the environment's termination signal; truncation is not
// termination, so bootstrapping still applies to truncated steps.
type Transition struct {
	Observation     []float64
	Action          int
	Reward          float64
	NextObservation []float64
	Done            bool
}

// Batch is a set of transitions stacked along the first axis.
type Batch struct {
	Observations     *mat.Dense // (batch, obs)
	Actions          []int
	NextObservations *mat.Dense // (batch, obs)
	Rewards          []float64
	// Dones holds 1 for terminal transitions and 0 otherwise.
	Dones []float64
}

// Size returns the number of transitions in the batch.
func (b *Batch) Size() int {
	return len(b.Actions)
}

// NewBatch stacks the passed transitions. All observations must share a length.
func NewBatch(transitions []Transition) Batch {
	n := len(transitions)
	if n == 0 {
		return Batch{}
	}
	dim := len(transitions[0].Observation)
	batch := Batch{
		Observations:     mat.NewDense(n, dim, nil),
		Actions:          make([]int, n),
		NextObservations: mat.NewDense(n, dim, nil),
		Rewards:          make([]float64, n),
		Dones:            make([]float64, n),
	}
	for i, tr := range transitions {
		batch.Observations.SetRow(i, tr.Observation)
		batch.NextObservations.SetRow(i, tr.NextObservation)
		batch.Actions[i] = tr.Action
		batch.Rewards[i] = tr.Reward
		if tr.Done {
			batch.Dones[i] = 1
		}
	}
	return batch
}
