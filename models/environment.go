package models

import (
	"errors"
	"fmt"
)

// Environment is a single discrete-action environment with vector observations.
// Implementations do not reset themselves; wrap them in AutoReset for that.
type Environment interface {
	// Reset starts a new episode. A negative seed leaves the environment's rng as is.
	Reset(seed int64) ([]float64, Info, error)
	// Step applies the action and returns the successor.
	Step(action int) (StepResult, error)
	NumActions() int
	ObservationSize() int
}

// StepResult is the outcome of a single environment step.
type StepResult struct {
	Observation []float64
	Reward      float64
	Terminated  bool
	Truncated   bool
	Info        Info
}

// Done reports whether the episode ended, for any reason.
func (sr *StepResult) Done() bool {
	return sr.Terminated || sr.Truncated
}

// Info carries episode-end details. Both fields are nil except on the step that ends an episode.
type Info struct {
	// FinalObservation is the last observation of the episode that just ended,
	// since Observation already belongs to the next episode after an autoreset.
	FinalObservation []float64
	// FinalInfo summarizes the episode that just ended.
	FinalInfo *EpisodeInfo
}

// EpisodeInfo is the return and length of a finished episode.
type EpisodeInfo struct {
	Return float64
	Length int
}

var (
	// ErrMissingFinalObservation is returned when a truncated step does not report the
	// episode's final observation, which is needed to bootstrap the truncated transition.
	ErrMissingFinalObservation error = errors.New("truncated step is missing its final observation")
	// ErrInvalidAction is returned by environments for out of range actions.
	ErrInvalidAction error = errors.New("invalid action")
)

// CheckAction validates an action index against the environment's action count.
func CheckAction(env Environment, action int) error {
	if action < 0 || action >= env.NumActions() {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidAction, action, env.NumActions())
	}
	return nil
}

// Wrapper is an Environment layered over another, such as AutoReset.
// Wrappers handle resets themselves when an episode ends.
type Wrapper interface {
	Environment
	Unwrap() Environment
}

// Unwrap peels every Wrapper off env and returns the innermost environment.
func Unwrap(env Environment) Environment {
	for {
		wrapper, ok := env.(Wrapper)
		if !ok {
			return env
		}
		env = wrapper.Unwrap()
	}
}

// WithAutoReset wraps env in AutoReset unless it is already a Wrapper.
func WithAutoReset(env Environment) Environment {
	if _, ok := env.(Wrapper); ok {
		return env
	}
	return NewAutoReset(env)
}
