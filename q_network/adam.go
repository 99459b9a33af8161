package q_network

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam is the Adam optimizer with per-parameter first and second moment estimates.
type Adam struct {
	LearningRate float64
	Beta1, Beta2 float64
	Epsilon      float64

	step int
	m, v Params
}

// NewAdam returns an Adam optimizer with the usual defaults (0.9, 0.999, 1e-8).
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		m:            Params{},
		v:            Params{},
	}
}

// Steps returns the number of updates applied so far.
func (a *Adam) Steps() int {
	return a.step
}

// Apply performs one update of params in place. Parameters without a gradient are left as is.
func (a *Adam) Apply(params, grads Params) {
	a.step++
	correction1 := 1 - math.Pow(a.Beta1, float64(a.step))
	correction2 := 1 - math.Pow(a.Beta2, float64(a.step))

	for name, grad := range grads {
		param, ok := params[name]
		if !ok {
			continue
		}
		r, c := param.Dims()
		m, ok := a.m[name]
		if !ok {
			m = mat.NewDense(r, c, nil)
			a.m[name] = m
			a.v[name] = mat.NewDense(r, c, nil)
		}
		v := a.v[name]

		mRaw, vRaw, gRaw, pRaw := m.RawMatrix(), v.RawMatrix(), grad.RawMatrix(), param.RawMatrix()
		for i := 0; i < r; i++ {
			mRow := mRaw.Data[i*mRaw.Stride : i*mRaw.Stride+c]
			vRow := vRaw.Data[i*vRaw.Stride : i*vRaw.Stride+c]
			gRow := gRaw.Data[i*gRaw.Stride : i*gRaw.Stride+c]
			pRow := pRaw.Data[i*pRaw.Stride : i*pRaw.Stride+c]
			for j, g := range gRow {
				mRow[j] = a.Beta1*mRow[j] + (1-a.Beta1)*g
				vRow[j] = a.Beta2*vRow[j] + (1-a.Beta2)*g*g
				mHat := mRow[j] / correction1
				vHat := vRow[j] / correction2
				pRow[j] -= a.LearningRate * mHat / (math.Sqrt(vHat) + a.Epsilon)
			}
		}
	}
}
