package q_network

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"sdmrl/memory"

	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"
)

func testHyperParams() HyperParams {
	return HyperParams{
		HiddenSize:       9,
		SparseDim:        12,
		SDMKFraction:     0.5,
		DSOMLearningRate: 0.1,
		Elasticity:       1,
		DSOMUpdateMode:   memory.AVG,
	}
}

func randomObs(rng *rand.Rand, batch, dim int) *mat.Dense {
	data := make([]float64, batch*dim)
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	return mat.NewDense(batch, dim, data)
}

// gradError compares the analytic gradient of every named parameter with central differences of the loss.
func gradError(
	qf QFunction,
	params Params,
	obs *mat.Dense,
	actions []int,
	targets []float64,
	names ...string,
) (worst float64) {
	const h = 1e-6
	_, _, grads := qf.Gradient(params, obs, actions, targets)
	loss := func() float64 {
		l, _, _ := qf.Gradient(params, obs, actions, targets)
		return l
	}

	for _, name := range names {
		param, grad := params[name], grads[name]
		r, c := param.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				orig := param.At(i, j)
				param.Set(i, j, orig+h)
				up := loss()
				param.Set(i, j, orig-h)
				down := loss()
				param.Set(i, j, orig)
				worst = math.Max(worst, math.Abs((up-down)/(2*h)-grad.At(i, j)))
			}
		}
	}
	return
}

func TestNew(t *testing.T) {
	Convey("When building networks", t, func() {
		Convey("Each architecture tag resolves to its network", func() {
			for _, arch := range []Architecture{BASELINE, DSOM, SDM} {
				qf, err := New(arch, 4, 2, testHyperParams())
				So(err, ShouldBeNil)
				So(qf.Architecture(), ShouldEqual, arch)
			}
		})

		Convey("Tags parse case-insensitively", func() {
			arch, err := ParseArchitecture(" sdm ")
			So(err, ShouldBeNil)
			So(arch, ShouldEqual, SDM)
		})

		Convey("Unknown tags are rejected", func() {
			_, err := ParseArchitecture("TRANSFORMER")
			So(errors.Is(err, ErrUnknownArchitecture), ShouldBeTrue)
			_, err = New("TRANSFORMER", 4, 2, testHyperParams())
			So(errors.Is(err, ErrUnknownArchitecture), ShouldBeTrue)
		})

		Convey("Non-positive dimensions are rejected", func() {
			_, err := New(BASELINE, 0, 2, testHyperParams())
			So(err, ShouldNotBeNil)
		})
	})
}

func TestForwardShapes(t *testing.T) {
	Convey("Given a batch of observations", t, func() {
		rng := rand.New(rand.NewSource(3))
		obs := randomObs(rng, 5, 4)

		for _, arch := range []Architecture{BASELINE, DSOM, SDM} {
			qf, _ := New(arch, 4, 3, testHyperParams())
			params := qf.Init(rng)
			q := qf.Forward(params, obs)
			r, c := q.Dims()
			So(r, ShouldEqual, 5)
			So(c, ShouldEqual, 3)
			So(len(Argmax(q)), ShouldEqual, 5)
		}
	})
}

func TestGradients(t *testing.T) {
	Convey("Given a batch with taken actions and TD targets", t, func() {
		rng := rand.New(rand.NewSource(17))
		obs := randomObs(rng, 4, 3)
		actions := []int{0, 1, 1, 0}
		targets := []float64{0.5, -1, 2, 0.1}

		Convey("The baseline gradient matches finite differences", func() {
			qf, _ := New(BASELINE, 3, 2, testHyperParams())
			params := qf.Init(rng)
			So(gradError(qf, params, obs, actions, targets, params.Names()...), ShouldBeLessThan, 1e-5)
		})

		Convey("The DSOM gradient covers the dense layers but not the codebook", func() {
			qf, _ := New(DSOM, 3, 2, testHyperParams())
			params := qf.Init(rng)
			_, _, grads := qf.Gradient(params, obs, actions, targets)
			So(grads, ShouldNotContainKey, CodebookParam)
			So(gradError(qf, params, obs, actions, targets,
				"dense1/kernel", "dense1/bias", "dense2/kernel", "dense2/bias"), ShouldBeLessThan, 1e-5)
		})

		Convey("The SDM gradient reaches the keys and values", func() {
			qf, _ := New(SDM, 3, 2, testHyperParams())
			params := qf.Init(rng)
			So(gradError(qf, params, obs, actions, targets, params.Names()...), ShouldBeLessThan, 1e-5)
		})

		Convey("The loss is the mean squared error of the taken actions", func() {
			qf, _ := New(BASELINE, 3, 2, testHyperParams())
			params := qf.Init(rng)
			loss, qPred, _ := qf.Gradient(params, obs, actions, targets)
			q := qf.Forward(params, obs)
			want := 0.0
			for b, a := range actions {
				So(qPred[b], ShouldEqual, q.At(b, a))
				want += (q.At(b, a) - targets[b]) * (q.At(b, a) - targets[b])
			}
			So(loss, ShouldAlmostEqual, want/4, 1e-12)
		})
	})
}

func TestUpdateHooks(t *testing.T) {
	Convey("Given initialized networks", t, func() {
		rng := rand.New(rand.NewSource(5))
		obs := randomObs(rng, 6, 4)

		Convey("The baseline hooks leave the parameters alone", func() {
			qf, _ := New(BASELINE, 4, 2, testHyperParams())
			params := qf.Init(rng)
			before := params.Clone()
			So(qf.PreUpdate(params, obs), ShouldBeNil)
			qf.PostUpdate(params)
			So(params.Equal(before), ShouldBeTrue)
		})

		Convey("The DSOM pre-update moves only the codebook", func() {
			qf, _ := New(DSOM, 4, 2, testHyperParams())
			params := qf.Init(rng)
			before := params.Clone()
			So(qf.PreUpdate(params, obs), ShouldBeNil)
			So(mat.Equal(params[CodebookParam], before[CodebookParam]), ShouldBeFalse)
			So(mat.Equal(params["dense1/kernel"], before["dense1/kernel"]), ShouldBeTrue)
			So(qf.(*DSOMNet).Layer().MaxDist, ShouldBeGreaterThan, 0)
		})

		Convey("The SDM post-update restores non-negative unit keys", func() {
			qf, _ := New(SDM, 4, 2, testHyperParams())
			params := qf.Init(rng)
			params[KeysParam].Set(0, 0, -3)
			params[ValuesParam].Set(0, 0, -3)
			qf.PostUpdate(params)
			So(params[KeysParam].At(0, 0), ShouldEqual, 0)
			So(params[ValuesParam].At(0, 0), ShouldEqual, 0)
			norm := mat.Norm(params[KeysParam].ColView(1), 2)
			So(norm, ShouldAlmostEqual, 1, 1e-9)
		})
	})
}
