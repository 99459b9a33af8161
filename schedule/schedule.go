// Package schedule produces the agent's exploration rate (epsilon) over the course of a run.
package schedule

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Scheduler maps a time index to an exploration rate in [EndE, StartE].
// What the time index counts depends on the scheduler; see Kind.DrivenByEpisodes.
type Scheduler interface {
	Rate(t int) float64
}

// Kind selects a scheduler.
type Kind string

const (
	LINEAR      Kind = "LINEAR"
	EXPONENTIAL Kind = "EXPONENTIAL"
)

// ErrUnknownScheduler is returned for scheduler tags other than LINEAR or EXPONENTIAL.
var ErrUnknownScheduler error = errors.New("unknown epsilon scheduler")

// ParseKind converts a config tag to a Kind.
func ParseKind(tag string) (Kind, error) {
	switch kind := Kind(strings.ToUpper(strings.TrimSpace(tag))); kind {
	case LINEAR, EXPONENTIAL:
		return kind, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScheduler, tag)
}

// DrivenByEpisodes reports whether the scheduler is indexed by completed episodes
// rather than environment steps. The exponential scheduler decays per episode,
// the linear one per step, so callers must track both counts.
func (k Kind) DrivenByEpisodes() bool {
	return k == EXPONENTIAL
}

// Linear decays from StartE to EndE over Duration steps, then holds at EndE.
type Linear struct {
	StartE, EndE float64
	// Duration is exploration_fraction * total_timesteps.
	Duration float64
}

func (l Linear) Rate(t int) float64 {
	if l.Duration <= 0 {
		return l.EndE
	}
	if float64(t) >= l.Duration {
		return l.EndE
	}
	slope := (l.EndE - l.StartE) / l.Duration
	return math.Max(slope*float64(t)+l.StartE, l.EndE)
}

// Exponential decays StartE by a factor of Decay per episode, floored at EndE.
type Exponential struct {
	StartE, EndE float64
	Decay        float64
}

func (e Exponential) Rate(episode int) float64 {
	return math.Max(e.StartE*math.Pow(e.Decay, float64(episode)), e.EndE)
}

// Params holds the union of the schedulers' settings as they appear in training config.
type Params struct {
	StartE, EndE        float64
	ExplorationFraction float64
	TotalTimesteps      int
	Decay               float64
}

// New builds the scheduler for the given kind.
func New(kind Kind, params Params) (Scheduler, error) {
	switch kind {
	case LINEAR:
		return Linear{
			StartE:   params.StartE,
			EndE:     params.EndE,
			Duration: params.ExplorationFraction * float64(params.TotalTimesteps),
		}, nil
	case EXPONENTIAL:
		return Exponential{
			StartE: params.StartE,
			EndE:   params.EndE,
			Decay:  params.Decay,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScheduler, kind)
}
