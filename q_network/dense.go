package q_network

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// dense is a fully connected layer whose kernel and bias live in a Params under its name.
type dense struct {
	name    string
	in, out int
}

func (d dense) kernel() string { return d.name + "/kernel" }
func (d dense) bias() string   { return d.name + "/bias" }

// init adds a lecun-normal kernel and a zero bias to params.
func (d dense) init(rng *rand.Rand, params Params) {
	std := 1 / math.Sqrt(float64(d.in))
	data := make([]float64, d.in*d.out)
	for i := range data {
		data[i] = rng.NormFloat64() * std
	}
	params[d.kernel()] = mat.NewDense(d.in, d.out, data)
	params[d.bias()] = mat.NewDense(1, d.out, nil)
}

// forward returns x·kernel + bias for the (batch, in) input.
func (d dense) forward(params Params, x *mat.Dense) *mat.Dense {
	batch, _ := x.Dims()
	out := mat.NewDense(batch, d.out, nil)
	out.Mul(x, params[d.kernel()])
	bias := params[d.bias()].RawRowView(0)
	for i := 0; i < batch; i++ {
		floats.Add(out.RawRowView(i), bias)
	}
	return out
}

// backward adds the kernel and bias gradients to grads and, if withInput is set,
// returns the gradient with respect to the input.
func (d dense) backward(
	params Params,
	x, dOut *mat.Dense,
	grads Params,
	withInput bool,
) (dx *mat.Dense) {
	dKernel := mat.NewDense(d.in, d.out, nil)
	dKernel.Mul(x.T(), dOut)
	grads[d.kernel()] = dKernel

	batch, _ := dOut.Dims()
	dBias := mat.NewDense(1, d.out, nil)
	biasRow := dBias.RawRowView(0)
	for i := 0; i < batch; i++ {
		floats.Add(biasRow, dOut.RawRowView(i))
	}
	grads[d.bias()] = dBias

	if withInput {
		dx = mat.NewDense(batch, d.in, nil)
		dx.Mul(dOut, params[d.kernel()].T())
	}
	return
}

func relu(x *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(x)
	out.Apply(func(_, _ int, v float64) float64 {
		return math.Max(v, 0)
	}, out)
	return out
}

// reluBackward zeroes the entries of grad in place wherever the pre-activation was not positive.
func reluBackward(pre, grad *mat.Dense) {
	grad.Apply(func(i, j int, g float64) float64 {
		if pre.At(i, j) > 0 {
			return g
		}
		return 0
	}, grad)
}
