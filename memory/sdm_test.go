package memory

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	. "github.com/smartystreets/goconvey/convey"
)

func randomSigned(rng *rand.Rand, r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(r, c, data)
}

func columnNorm(m *mat.Dense, j int) float64 {
	r, _ := m.Dims()
	col := make([]float64, r)
	mat.Col(col, j, m)
	return floats.Norm(col, 2)
}

func TestSDMKAbs(t *testing.T) {
	Convey("When sizing the top-k read", t, func() {
		sdm, err := NewSDM(0.995, 128)
		So(err, ShouldBeNil)

		Convey("Near-full retention is clamped to the memory's columns", func() {
			So(sdm.KAbs(128), ShouldEqual, 128)
		})

		Convey("Smaller fractions keep ceil(k*hidden)+1 activations", func() {
			sdm, _ := NewSDM(0.1, 20)
			So(sdm.KAbs(128), ShouldEqual, 3)
		})

		Convey("Invalid settings are rejected", func() {
			_, err := NewSDM(0, 128)
			So(err, ShouldNotBeNil)
			_, err = NewSDM(1.5, 128)
			So(err, ShouldNotBeNil)
			_, err = NewSDM(0.5, 0)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSDMRenormalize(t *testing.T) {
	Convey("When restoring the memory invariants", t, func() {
		rng := rand.New(rand.NewSource(11))
		sdm, _ := NewSDM(0.5, 6)
		keys := randomSigned(rng, 6, 5)
		values := randomSigned(rng, 5, 6)
		// Force a column entirely negative, so it is all zero once clipped.
		for i := 0; i < 6; i++ {
			keys.Set(i, 3, -math.Abs(keys.At(i, 3))-0.1)
		}

		sdm.Renormalize(keys, values)

		Convey("Every key column is unit length, or all zero", func() {
			for j := 0; j < 5; j++ {
				if j == 3 {
					So(columnNorm(keys, j), ShouldEqual, 0)
					continue
				}
				So(columnNorm(keys, j), ShouldAlmostEqual, 1.0, 1e-12)
			}
		})

		Convey("No key or value entry is negative", func() {
			So(mat.Min(keys), ShouldBeGreaterThanOrEqualTo, 0)
			So(mat.Min(values), ShouldBeGreaterThanOrEqualTo, 0)
		})

		Convey("A second renormalization changes nothing", func() {
			keysOnce := mat.DenseCopyOf(keys)
			valuesOnce := mat.DenseCopyOf(values)
			sdm.Renormalize(keys, values)
			So(mat.Equal(keys, keysOnce), ShouldBeTrue)
			So(mat.Equal(values, valuesOnce), ShouldBeTrue)
		})
	})

	Convey("Freshly drawn memories already satisfy the invariants", t, func() {
		rng := rand.New(rand.NewSource(5))
		keys := NewKeys(rng, 8, 4)
		values := NewValues(rng, 4, 8)
		for j := 0; j < 4; j++ {
			So(columnNorm(keys, j), ShouldAlmostEqual, 1.0, 1e-12)
		}
		So(mat.Min(values), ShouldBeGreaterThanOrEqualTo, 0)
	})
}

func TestSDMRead(t *testing.T) {
	Convey("When reading the memory", t, func() {
		rng := rand.New(rand.NewSource(17))
		sdm, _ := NewSDM(0.2, 5) // KAbs = ceil(1)+1 = 2
		keys := NewKeys(rng, 5, 6)
		values := NewValues(rng, 6, 5)
		hidden := randomSigned(rng, 3, 5)

		readout, cache := sdm.Read(keys, values, hidden)

		Convey("Inputs are unitized", func() {
			for b := 0; b < 3; b++ {
				So(floats.Norm(cache.Normed.RawRowView(b), 2), ShouldAlmostEqual, 1.0, 1e-12)
			}
		})

		Convey("Only activations above the KAbs-th largest survive", func() {
			for b := 0; b < 3; b++ {
				nonzero := 0
				for _, s := range cache.Sparse.RawRowView(b) {
					So(s, ShouldBeGreaterThanOrEqualTo, 0)
					if s > 0 {
						nonzero++
					}
				}
				So(nonzero, ShouldBeLessThanOrEqualTo, sdm.KAbs(6)-1)
				So(cache.Sparse.At(b, cache.Thresholds[b]), ShouldEqual, 0)
			}
		})

		Convey("The readout is the sparse activation times the values", func() {
			var want mat.Dense
			want.Mul(cache.Sparse, values)
			So(mat.EqualApprox(&want, readout, 1e-12), ShouldBeTrue)
		})

		Convey("An all-zero input reads zero instead of NaN", func() {
			readout, _ := sdm.Read(keys, values, mat.NewDense(1, 5, nil))
			So(hasNaN(readout), ShouldBeFalse)
			So(mat.Norm(readout, 2), ShouldEqual, 0)
		})
	})
}

func TestSDMReadBackward(t *testing.T) {
	Convey("When backpropagating through a read", t, func() {
		rng := rand.New(rand.NewSource(23))
		sdm, _ := NewSDM(0.5, 4) // KAbs = 3 of 6 columns
		keys := NewKeys(rng, 4, 6)
		values := NewValues(rng, 6, 4)
		hidden := randomSigned(rng, 2, 4)
		weights := randomSigned(rng, 2, 4)

		// loss = sum(readout ⊙ weights), so dLoss/dReadout = weights.
		loss := func() float64 {
			readout, _ := sdm.Read(keys, values, hidden)
			var prod mat.Dense
			prod.MulElem(readout, weights)
			return mat.Sum(&prod)
		}

		_, cache := sdm.Read(keys, values, hidden)
		dHidden, dKeys, dValues := sdm.ReadBackward(keys, values, cache, weights)

		Convey("Analytic gradients match finite differences", func() {
			So(maxGradError(hidden, dHidden, loss), ShouldBeLessThan, 1e-5)
			So(maxGradError(keys, dKeys, loss), ShouldBeLessThan, 1e-5)
			So(maxGradError(values, dValues, loss), ShouldBeLessThan, 1e-5)
		})
	})
}

// maxGradError compares grad against central differences of loss with respect to param.
func maxGradError(param, grad *mat.Dense, loss func() float64) (worst float64) {
	const h = 1e-6
	r, c := param.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			orig := param.At(i, j)
			param.Set(i, j, orig+h)
			up := loss()
			param.Set(i, j, orig-h)
			down := loss()
			param.Set(i, j, orig)
			numeric := (up - down) / (2 * h)
			worst = math.Max(worst, math.Abs(numeric-grad.At(i, j)))
		}
	}
	return
}
