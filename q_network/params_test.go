package q_network

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"
)

func TestSoftUpdate(t *testing.T) {
	Convey("Given live and target parameters", t, func() {
		rng := rand.New(rand.NewSource(1))
		qf := NewBaseline(3, 2, 4)
		live := qf.Init(rng)
		target := qf.Init(rng)
		original := target.Clone()

		Convey("tau=0 leaves the target unchanged", func() {
			SoftUpdate(target, live, 0)
			So(target.Equal(original), ShouldBeTrue)
		})

		Convey("tau=1 copies the live parameters exactly", func() {
			SoftUpdate(target, live, 1)
			So(target.Equal(live), ShouldBeTrue)
			live["dense1/bias"].Set(0, 0, 42)
			So(target["dense1/bias"].At(0, 0), ShouldNotEqual, 42)
		})

		Convey("tau=0.5 averages both", func() {
			SoftUpdate(target, live, 0.5)
			want := (live["dense2/kernel"].At(1, 1) + original["dense2/kernel"].At(1, 1)) / 2
			So(target["dense2/kernel"].At(1, 1), ShouldAlmostEqual, want, 1e-12)
		})
	})
}

func TestSaveLoadParams(t *testing.T) {
	Convey("Given a parameter set saved to disk", t, func() {
		rng := rand.New(rand.NewSource(2))
		params := NewBaseline(3, 2, 4).Init(rng)
		path := filepath.Join(t.TempDir(), "runs", "exp.model")
		So(SaveParams(path, params), ShouldBeNil)

		Convey("Loading it returns identical tensors", func() {
			loaded, err := LoadParams(path)
			So(err, ShouldBeNil)
			So(loaded.Equal(params), ShouldBeTrue)
		})

		Convey("Loading a missing file fails", func() {
			_, err := LoadParams(filepath.Join(t.TempDir(), "missing.model"))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestAdam(t *testing.T) {
	Convey("Given a single parameter and its gradient", t, func() {
		params := Params{"w": mat.NewDense(1, 2, []float64{1, 1})}
		grads := Params{
			"w":     mat.NewDense(1, 2, []float64{0.5, -2}),
			"other": mat.NewDense(1, 1, []float64{1}),
		}
		adam := NewAdam(0.01)
		adam.Apply(params, grads)

		Convey("The first step moves each weight by about the learning rate against its gradient", func() {
			So(adam.Steps(), ShouldEqual, 1)
			So(params["w"].At(0, 0), ShouldAlmostEqual, 0.99, 1e-6)
			So(params["w"].At(0, 1), ShouldAlmostEqual, 1.01, 1e-6)
		})

		Convey("Gradients without a parameter are ignored", func() {
			So(params, ShouldNotContainKey, "other")
		})

		Convey("Repeated steps keep decreasing a positive gradient's weight", func() {
			prev := params["w"].At(0, 0)
			adam.Apply(params, Params{"w": mat.NewDense(1, 2, []float64{0.5, 0})})
			So(params["w"].At(0, 0), ShouldBeLessThan, prev)
			So(math.IsNaN(params["w"].At(0, 1)), ShouldBeFalse)
		})
	})
}
