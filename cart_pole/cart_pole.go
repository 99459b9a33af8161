// Package cart_pole is the classic cart-pole balancing task with CartPole-v1 settings:
// push the cart left or right to keep the pole upright for up to 500 steps.
package cart_pole

import (
	"errors"
	"math"
	"math/rand"

	"sdmrl/models"
)

const (
	gravity     = 9.8
	massCart    = 1.0
	massPole    = 0.1
	totalMass   = massCart + massPole
	halfLength  = 0.5
	poleMoment  = massPole * halfLength
	forceMag    = 10.0
	tau         = 0.02
	xThreshold  = 2.4
	resetBounds = 0.05

	// MaxEpisodeSteps is the step at which an episode is truncated.
	MaxEpisodeSteps = 500
)

// thetaThreshold is 12 degrees.
var thetaThreshold = 12 * 2 * math.Pi / 360

// ErrNeedsReset is returned when stepping an episode that already ended.
var ErrNeedsReset error = errors.New("cart pole episode is over; call Reset")

// CartPole state is (x, x_dot, theta, theta_dot). Action 0 pushes left, 1 pushes right.
type CartPole struct {
	state   [4]float64
	steps   int
	done    bool
	started bool
	rng     *rand.Rand
}

func NewCartPole(seed int64) *CartPole {
	return &CartPole{
		rng: rand.New(rand.NewSource(seed)),
	}
}

func (cp *CartPole) NumActions() int      { return 2 }
func (cp *CartPole) ObservationSize() int { return 4 }

// Reset draws every state variable from uniform(-0.05, 0.05). A negative seed keeps the current rng.
func (cp *CartPole) Reset(seed int64) ([]float64, models.Info, error) {
	if seed >= 0 {
		cp.rng.Seed(seed)
	}
	for i := range cp.state {
		cp.state[i] = (cp.rng.Float64()*2 - 1) * resetBounds
	}
	cp.steps = 0
	cp.done = false
	cp.started = true
	return cp.observation(), models.Info{}, nil
}

// Step integrates the dynamics by one euler step of tau seconds.
// Every step, including the failing one, is rewarded 1.
func (cp *CartPole) Step(action int) (result models.StepResult, err error) {
	if err = models.CheckAction(cp, action); err != nil {
		return
	}
	if cp.done || !cp.started {
		err = ErrNeedsReset
		return
	}

	x, xDot, theta, thetaDot := cp.state[0], cp.state[1], cp.state[2], cp.state[3]
	force := -forceMag
	if action == 1 {
		force = forceMag
	}

	cosTheta, sinTheta := math.Cos(theta), math.Sin(theta)
	temp := (force + poleMoment*thetaDot*thetaDot*sinTheta) / totalMass
	thetaAcc := (gravity*sinTheta - cosTheta*temp) /
		(halfLength * (4.0/3.0 - massPole*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMoment*thetaAcc*cosTheta/totalMass

	x += tau * xDot
	xDot += tau * xAcc
	theta += tau * thetaDot
	thetaDot += tau * thetaAcc
	cp.state = [4]float64{x, xDot, theta, thetaDot}
	cp.steps++

	result.Observation = cp.observation()
	result.Reward = 1
	result.Terminated = x < -xThreshold || x > xThreshold ||
		theta < -thetaThreshold || theta > thetaThreshold
	result.Truncated = cp.steps >= MaxEpisodeSteps
	cp.done = result.Done()
	return
}

func (cp *CartPole) observation() []float64 {
	return append([]float64(nil), cp.state[:]...)
}
