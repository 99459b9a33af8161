package models

import (
	"fmt"
)

// AutoReset records episode statistics and resets the wrapped environment as soon as an
// episode ends. The step that ends an episode returns the first observation of the next
// episode, with the true final observation and the episode summary carried in its Info.
type AutoReset struct {
	env           Environment
	episodeReturn float64
	episodeLength int
}

// NewAutoReset wraps the passed environment.
func NewAutoReset(env Environment) *AutoReset {
	return &AutoReset{env: env}
}

// Unwrap returns the wrapped environment.
func (ar *AutoReset) Unwrap() Environment {
	return ar.env
}

func (ar *AutoReset) NumActions() int {
	return ar.env.NumActions()
}

func (ar *AutoReset) ObservationSize() int {
	return ar.env.ObservationSize()
}

func (ar *AutoReset) Reset(seed int64) ([]float64, Info, error) {
	ar.episodeReturn = 0
	ar.episodeLength = 0
	return ar.env.Reset(seed)
}

func (ar *AutoReset) Step(action int) (result StepResult, err error) {
	if result, err = ar.env.Step(action); err != nil {
		return
	}

	ar.episodeReturn += result.Reward
	ar.episodeLength++
	if !result.Done() {
		return
	}

	result.Info.FinalObservation = append([]float64(nil), result.Observation...)
	result.Info.FinalInfo = &EpisodeInfo{
		Return: ar.episodeReturn,
		Length: ar.episodeLength,
	}

	var next []float64
	if next, _, err = ar.Reset(-1); err != nil {
		err = fmt.Errorf("autoreset: %w", err)
		return
	}
	result.Observation = next
	return
}
