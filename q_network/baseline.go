package q_network

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Baseline is dense -> relu -> dense. It has no memory and no pre/post updates.
type Baseline struct {
	dense1, dense2 dense
}

func NewBaseline(obsDim, numActions, hidden int) *Baseline {
	return &Baseline{
		dense1: dense{name: "dense1", in: obsDim, out: hidden},
		dense2: dense{name: "dense2", in: hidden, out: numActions},
	}
}

func (bl *Baseline) Architecture() Architecture { return BASELINE }

func (bl *Baseline) Init(rng *rand.Rand) Params {
	params := Params{}
	bl.dense1.init(rng, params)
	bl.dense2.init(rng, params)
	return params
}

func (bl *Baseline) Forward(params Params, obs *mat.Dense) *mat.Dense {
	q, _ := bl.forward(params, obs)
	return q
}

func (bl *Baseline) forward(params Params, obs *mat.Dense) (*mat.Dense, backprop) {
	pre := bl.dense1.forward(params, obs)
	hidden := relu(pre)
	q := bl.dense2.forward(params, hidden)

	return q, func(dq *mat.Dense) Params {
		grads := Params{}
		dHidden := bl.dense2.backward(params, hidden, dq, grads, true)
		reluBackward(pre, dHidden)
		bl.dense1.backward(params, obs, dHidden, grads, false)
		return grads
	}
}

func (bl *Baseline) Gradient(
	params Params,
	obs *mat.Dense,
	actions []int,
	targets []float64,
) (float64, []float64, Params) {
	return mseGradient(bl.forward, params, obs, actions, targets)
}

func (bl *Baseline) PreUpdate(Params, *mat.Dense) error { return nil }

func (bl *Baseline) PostUpdate(Params) {}
