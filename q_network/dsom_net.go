package q_network

import (
	"math/rand"

	"sdmrl/memory"

	"gonum.org/v1/gonum/mat"
)

// CodebookParam names the DSOM prototypes in the parameter set.
const CodebookParam = "som/codebook"

// DSOMNet gates the hidden layer with the DSOM's prototype activations:
// dense -> relu -> ⊙ gate(obs) -> dense.
// The gate is a constant to backpropagation; the codebook only moves in PreUpdate.
type DSOMNet struct {
	dense1, dense2 dense
	som            *memory.DSOM
	obsDim         int
}

// NewDSOMNet builds the network around som, whose prototype count sets the hidden width.
func NewDSOMNet(obsDim, numActions int, som *memory.DSOM) *DSOMNet {
	hidden, _ := som.Addresses.Dims()
	return &DSOMNet{
		dense1: dense{name: "dense1", in: obsDim, out: hidden},
		dense2: dense{name: "dense2", in: hidden, out: numActions},
		som:    som,
		obsDim: obsDim,
	}
}

func (dn *DSOMNet) Architecture() Architecture { return DSOM }

// Layer returns the DSOM, e.g. to read its running maximum distance.
func (dn *DSOMNet) Layer() *memory.DSOM { return dn.som }

// SetSmoothing sets the gate's distance scale.
func (dn *DSOMNet) SetSmoothing(k float64) { dn.som.Smoothing = k }

func (dn *DSOMNet) Init(rng *rand.Rand) Params {
	params := Params{}
	dn.dense1.init(rng, params)
	dn.dense2.init(rng, params)
	params[CodebookParam] = memory.NewCodebook(rng, dn.dense1.out, dn.obsDim)
	return params
}

func (dn *DSOMNet) Forward(params Params, obs *mat.Dense) *mat.Dense {
	q, _ := dn.forward(params, obs)
	return q
}

func (dn *DSOMNet) forward(params Params, obs *mat.Dense) (*mat.Dense, backprop) {
	pre := dn.dense1.forward(params, obs)
	gate := dn.som.Gate(params[CodebookParam], obs)
	gated := relu(pre)
	gated.MulElem(gated, gate)
	q := dn.dense2.forward(params, gated)

	return q, func(dq *mat.Dense) Params {
		grads := Params{}
		dGated := dn.dense2.backward(params, gated, dq, grads, true)
		dGated.MulElem(dGated, gate)
		reluBackward(pre, dGated)
		dn.dense1.backward(params, obs, dGated, grads, false)
		return grads
	}
}

func (dn *DSOMNet) Gradient(
	params Params,
	obs *mat.Dense,
	actions []int,
	targets []float64,
) (float64, []float64, Params) {
	return mseGradient(dn.forward, params, obs, actions, targets)
}

// PreUpdate moves the live codebook toward the raw batch observations.
func (dn *DSOMNet) PreUpdate(params Params, obs *mat.Dense) error {
	_, err := dn.som.Update(params[CodebookParam], obs)
	return err
}

func (dn *DSOMNet) PostUpdate(Params) {}
