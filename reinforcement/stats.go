package reinforcement

import (
	"math"

	"sdmrl/atomic_float"
)

// Stats are the trainer's live readouts. The trainer is the only writer;
// any goroutine may read them while training runs.
type Stats struct {
	step        atomic_float.AtomicFloat64
	episode     atomic_float.AtomicFloat64
	epsilon     atomic_float.AtomicFloat64
	loss        atomic_float.AtomicFloat64
	qMean       atomic_float.AtomicFloat64
	sps         atomic_float.AtomicFloat64
	lastReturn  atomic_float.AtomicFloat64
	maxReturn   *atomic_float.AtomicFloat64
	totalReturn atomic_float.AtomicFloat64
}

func NewStats() *Stats {
	return &Stats{
		maxReturn: atomic_float.NewAtomicFloat64(math.Inf(-1)),
	}
}

func (s *Stats) recordStep(step int, epsilon float64) {
	s.step.AtomicSet(float64(step))
	s.epsilon.AtomicSet(epsilon)
}

func (s *Stats) recordEpisode(episode int, episodicReturn float64) {
	s.episode.AtomicSet(float64(episode))
	s.lastReturn.AtomicSet(episodicReturn)
	s.maxReturn.AtomicMax(episodicReturn)
	s.totalReturn.Add(episodicReturn)
}

func (s *Stats) recordTraining(loss, qMean float64) {
	s.loss.AtomicSet(loss)
	s.qMean.AtomicSet(qMean)
}

func (s *Stats) recordSPS(sps float64) {
	s.sps.AtomicSet(sps)
}

// MeanReturn is the average return over all finished episodes, or 0 before the first.
func (s *Stats) MeanReturn() float64 {
	episodes := s.episode.AtomicRead()
	if episodes == 0 {
		return 0
	}
	return s.totalReturn.AtomicRead() / episodes
}

// Values returns the current readouts by name.
func (s *Stats) Values() map[string]float64 {
	values := map[string]float64{
		"global_step":     s.step.AtomicRead(),
		"episodes":        s.episode.AtomicRead(),
		"epsilon":         s.epsilon.AtomicRead(),
		"td_loss":         s.loss.AtomicRead(),
		"q_values":        s.qMean.AtomicRead(),
		"sps":             s.sps.AtomicRead(),
		"episodic_return": s.lastReturn.AtomicRead(),
		"mean_return":     s.MeanReturn(),
	}
	// Infinities do not encode as json.
	if maxReturn := s.maxReturn.AtomicRead(); !math.IsInf(maxReturn, -1) {
		values["max_return"] = maxReturn
	}
	return values
}
