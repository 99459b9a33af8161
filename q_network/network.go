// Package q_network provides the action-value function approximators: a plain two layer
// network and two hybrids whose hidden layer passes through an associative memory (DSOM or SDM).
//
// Networks are stateless with respect to their learnable weights: every call takes the
// parameter set to use, so one network serves the live and the target parameters. Gradients
// are derived by hand per architecture and returned in the same Params layout.
package q_network

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"sdmrl/memory"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Architecture selects a network variant.
type Architecture string

const (
	BASELINE Architecture = "BASELINE"
	DSOM     Architecture = "DSOM"
	SDM      Architecture = "SDM"
)

// ErrUnknownArchitecture is returned for architecture tags other than BASELINE, DSOM or SDM.
var ErrUnknownArchitecture error = errors.New("unknown network architecture")

// ParseArchitecture converts a config tag to an Architecture.
func ParseArchitecture(tag string) (Architecture, error) {
	switch arch := Architecture(strings.ToUpper(strings.TrimSpace(tag))); arch {
	case BASELINE, DSOM, SDM:
		return arch, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownArchitecture, tag)
}

// QFunction maps a batch of observations to action values, and exposes the
// architecture-specific updates to run around each gradient step.
type QFunction interface {
	Architecture() Architecture
	// Init draws a fresh parameter set.
	Init(rng *rand.Rand) Params
	// Forward returns the (batch, actions) values of the (batch, obs) observations.
	Forward(params Params, obs *mat.Dense) *mat.Dense
	// Gradient returns the mean squared TD error between the values of the taken
	// actions and targets, those values, and the loss gradient for every trainable parameter.
	Gradient(params Params, obs *mat.Dense, actions []int, targets []float64) (loss float64, qPred []float64, grads Params)
	// PreUpdate runs before the gradient step, on raw batch observations.
	PreUpdate(params Params, obs *mat.Dense) error
	// PostUpdate runs after the optimizer step, on the updated live parameters.
	PostUpdate(params Params)
}

// HyperParams holds the architecture settings.
type HyperParams struct {
	HiddenSize int

	// SparseDim is the number of SDM memory locations.
	SparseDim    int
	SDMKFraction float64

	DSOMLearningRate float64
	Elasticity       float64
	DSOMUpdateMode   memory.UpdateMode
}

// New resolves the architecture once and returns the network.
func New(
	arch Architecture,
	obsDim, numActions int,
	hp HyperParams,
) (QFunction, error) {
	if obsDim <= 0 || numActions <= 0 || hp.HiddenSize <= 0 {
		return nil, fmt.Errorf(
			"network dimensions must be positive: obs=%d actions=%d hidden=%d",
			obsDim, numActions, hp.HiddenSize)
	}

	switch arch {
	case BASELINE:
		return NewBaseline(obsDim, numActions, hp.HiddenSize), nil
	case DSOM:
		som, err := memory.NewDSOM(hp.HiddenSize, hp.DSOMLearningRate, hp.Elasticity, hp.DSOMUpdateMode)
		if err != nil {
			return nil, err
		}
		return NewDSOMNet(obsDim, numActions, som), nil
	case SDM:
		if hp.SparseDim <= 0 {
			return nil, fmt.Errorf("SDM sparse dimension must be positive, got %d", hp.SparseDim)
		}
		sdm, err := memory.NewSDM(hp.SDMKFraction, hp.HiddenSize)
		if err != nil {
			return nil, err
		}
		return NewSDMNet(obsDim, numActions, hp.SparseDim, sdm), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownArchitecture, arch)
}

// backprop maps the gradient of the network output to parameter gradients.
type backprop func(dq *mat.Dense) Params

// mseGradient runs the forward pass, the squared TD error over the taken actions, and the backward pass.
func mseGradient(
	forward func(Params, *mat.Dense) (*mat.Dense, backprop),
	params Params,
	obs *mat.Dense,
	actions []int,
	targets []float64,
) (loss float64, qPred []float64, grads Params) {
	q, back := forward(params, obs)
	batch, numActions := q.Dims()

	qPred = make([]float64, batch)
	dq := mat.NewDense(batch, numActions, nil)
	for b := 0; b < batch; b++ {
		qPred[b] = q.At(b, actions[b])
		err := qPred[b] - targets[b]
		loss += err * err
		dq.Set(b, actions[b], 2*err/float64(batch))
	}
	loss /= float64(batch)

	grads = back(dq)
	return
}

// Argmax returns the greedy action of each row of the (batch, actions) values.
func Argmax(q *mat.Dense) []int {
	batch, _ := q.Dims()
	actions := make([]int, batch)
	for i := range actions {
		actions[i] = floats.MaxIdx(q.RawRowView(i))
	}
	return actions
}

// MaxValues returns the maximum action value of each row.
func MaxValues(q *mat.Dense) []float64 {
	batch, _ := q.Dims()
	maxes := make([]float64, batch)
	for i := range maxes {
		maxes[i] = floats.Max(q.RawRowView(i))
	}
	return maxes
}
