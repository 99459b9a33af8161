package q_network

import (
	"math/rand"

	"sdmrl/memory"

	"gonum.org/v1/gonum/mat"
)

const (
	KeysParam   = "sdm/keys"
	ValuesParam = "sdm/values"
)

// SDMNet reads a sparse distributed memory with its hidden layer:
// dense -> relu -> SDM read -> dense.
// Keys and values train by gradient like any weight and are renormalized after each step.
type SDMNet struct {
	dense1, dense2 dense
	sdm            *memory.SDM
	sparseDim      int
}

// NewSDMNet builds the network with sparseDim memory locations of sdm.HiddenSize wide keys and values.
func NewSDMNet(obsDim, numActions, sparseDim int, sdm *memory.SDM) *SDMNet {
	return &SDMNet{
		dense1:    dense{name: "dense1", in: obsDim, out: sdm.HiddenSize},
		dense2:    dense{name: "dense2", in: sdm.HiddenSize, out: numActions},
		sdm:       sdm,
		sparseDim: sparseDim,
	}
}

func (sn *SDMNet) Architecture() Architecture { return SDM }

// Layer returns the SDM.
func (sn *SDMNet) Layer() *memory.SDM { return sn.sdm }

func (sn *SDMNet) Init(rng *rand.Rand) Params {
	params := Params{}
	sn.dense1.init(rng, params)
	sn.dense2.init(rng, params)
	params[KeysParam] = memory.NewKeys(rng, sn.sdm.HiddenSize, sn.sparseDim)
	params[ValuesParam] = memory.NewValues(rng, sn.sparseDim, sn.sdm.HiddenSize)
	return params
}

func (sn *SDMNet) Forward(params Params, obs *mat.Dense) *mat.Dense {
	q, _ := sn.forward(params, obs)
	return q
}

func (sn *SDMNet) forward(params Params, obs *mat.Dense) (*mat.Dense, backprop) {
	keys, values := params[KeysParam], params[ValuesParam]
	pre := sn.dense1.forward(params, obs)
	readout, cache := sn.sdm.Read(keys, values, relu(pre))
	q := sn.dense2.forward(params, readout)

	return q, func(dq *mat.Dense) Params {
		grads := Params{}
		dReadout := sn.dense2.backward(params, readout, dq, grads, true)
		dHidden, dKeys, dValues := sn.sdm.ReadBackward(keys, values, cache, dReadout)
		grads[KeysParam] = dKeys
		grads[ValuesParam] = dValues
		reluBackward(pre, dHidden)
		sn.dense1.backward(params, obs, dHidden, grads, false)
		return grads
	}
}

func (sn *SDMNet) Gradient(
	params Params,
	obs *mat.Dense,
	actions []int,
	targets []float64,
) (float64, []float64, Params) {
	return mseGradient(sn.forward, params, obs, actions, targets)
}

func (sn *SDMNet) PreUpdate(Params, *mat.Dense) error { return nil }

// PostUpdate restores the memory invariants of the just-updated live parameters.
func (sn *SDMNet) PostUpdate(params Params) {
	sn.sdm.Renormalize(params[KeysParam], params[ValuesParam])
}
