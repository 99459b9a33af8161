package memory

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// Inputs with a smaller norm are scaled by 1/minNorm instead of being unitized.
	minNorm = 1e-12
	// Key columns this close to unit length are not renormalized.
	unitTolerance = 1e-12
	valuesStdDev  = 0.5
)

// SDM is a sparse distributed memory: a (hidden, k) key matrix addressed by unit-length
// inputs, and a (k, out) value matrix read back through the best matching keys.
type SDM struct {
	// KFraction is the fraction of HiddenSize used to size the top-k read.
	KFraction  float64
	HiddenSize int
}

// NewSDM validates the read sparsity settings.
func NewSDM(kFraction float64, hiddenSize int) (*SDM, error) {
	if kFraction <= 0 || kFraction > 1 {
		return nil, fmt.Errorf("SDM k fraction must be in (0,1], got %v", kFraction)
	}
	if hiddenSize <= 0 {
		return nil, fmt.Errorf("SDM hidden size must be positive, got %d", hiddenSize)
	}
	return &SDM{
		KFraction:  kFraction,
		HiddenSize: hiddenSize,
	}, nil
}

// KAbs is the number of activations kept by a read: ceil(KFraction*HiddenSize)+1,
// clamped to [1, columns] where columns is the number of memory locations.
// E.g. k=0.995 over 128 hidden units gives 129, clamped to 128 for 128 columns.
func (s *SDM) KAbs(columns int) int {
	k := int(math.Ceil(s.KFraction*float64(s.HiddenSize))) + 1
	if k > columns {
		k = columns
	}
	if k < 1 {
		k = 1
	}
	return k
}

// NewKeys draws a (hidden, k) key matrix from U[0,1) and renormalizes its columns.
func NewKeys(rng *rand.Rand, hidden, k int) *mat.Dense {
	data := make([]float64, hidden*k)
	for i := range data {
		data[i] = rng.Float64()
	}
	keys := mat.NewDense(hidden, k, data)
	renormalizeKeys(keys)
	return keys
}

// NewValues draws a (k, out) value matrix from N(0, 0.5²) and clips it at zero.
func NewValues(rng *rand.Rand, k, out int) *mat.Dense {
	data := make([]float64, k*out)
	for i := range data {
		data[i] = math.Max(rng.NormFloat64()*valuesStdDev, 0)
	}
	return mat.NewDense(k, out, data)
}

// ReadCache holds the intermediate values of a read needed by ReadBackward.
type ReadCache struct {
	// Normed holds the unitized input rows.
	Normed *mat.Dense
	// Norms holds the input row norms, before flooring.
	Norms []float64
	// Activations is Normed·keys, before sparsification.
	Activations *mat.Dense
	// Sparse is the shifted and clipped activation.
	Sparse *mat.Dense
	// Thresholds holds, per row, the column of the KAbs-th largest activation.
	Thresholds []int
}

// Read addresses the memory with the (batch, hidden) input and returns the (batch, out) readout.
//
// Each input row is scaled to unit length and matched against every key. Per row, the KAbs-th
// largest activation is subtracted from all activations and the result clipped at zero: all but
// the top activations vanish while the winners keep graded weights. The readout is the
// weighted sum of the values.
func (s *SDM) Read(keys, values, hidden *mat.Dense) (*mat.Dense, *ReadCache) {
	batch, _ := hidden.Dims()
	_, columns := keys.Dims()
	kAbs := s.KAbs(columns)

	cache := &ReadCache{
		Normed:     mat.DenseCopyOf(hidden),
		Norms:      make([]float64, batch),
		Thresholds: make([]int, batch),
	}
	for b := 0; b < batch; b++ {
		row := cache.Normed.RawRowView(b)
		cache.Norms[b] = floats.Norm(row, 2)
		floats.Scale(1/math.Max(cache.Norms[b], minNorm), row)
	}

	cache.Activations = mat.NewDense(batch, columns, nil)
	cache.Activations.Mul(cache.Normed, keys)

	cache.Sparse = mat.NewDense(batch, columns, nil)
	sorted := make([]float64, columns)
	order := make([]int, columns)
	for b := 0; b < batch; b++ {
		act := cache.Activations.RawRowView(b)
		copy(sorted, act)
		floats.Argsort(sorted, order)
		threshold := order[columns-kAbs]
		cache.Thresholds[b] = threshold

		floor := act[threshold]
		sparse := cache.Sparse.RawRowView(b)
		for j, a := range act {
			sparse[j] = math.Max(a-floor, 0)
		}
	}

	_, out := values.Dims()
	readout := mat.NewDense(batch, out, nil)
	readout.Mul(cache.Sparse, values)
	return readout, cache
}

// ReadBackward propagates the readout gradient dOut back through a Read, returning
// the gradients with respect to the input, the keys and the values.
// The threshold activation receives the negated gradient of every activation it shifted.
func (s *SDM) ReadBackward(
	keys, values *mat.Dense,
	cache *ReadCache,
	dOut *mat.Dense,
) (dHidden, dKeys, dValues *mat.Dense) {
	batch, hiddenSize := cache.Normed.Dims()
	_, columns := keys.Dims()
	valueRows, out := values.Dims()

	dValues = mat.NewDense(valueRows, out, nil)
	dValues.Mul(cache.Sparse.T(), dOut)

	dSparse := mat.NewDense(batch, columns, nil)
	dSparse.Mul(dOut, values.T())

	dAct := mat.NewDense(batch, columns, nil)
	for b := 0; b < batch; b++ {
		act := cache.Activations.RawRowView(b)
		ds := dSparse.RawRowView(b)
		da := dAct.RawRowView(b)
		threshold := cache.Thresholds[b]
		floor := act[threshold]
		for j := range act {
			if act[j]-floor > 0 {
				da[j] += ds[j]
				da[threshold] -= ds[j]
			}
		}
	}

	dKeys = mat.NewDense(hiddenSize, columns, nil)
	dKeys.Mul(cache.Normed.T(), dAct)

	dNormed := mat.NewDense(batch, hiddenSize, nil)
	dNormed.Mul(dAct, keys.T())

	dHidden = mat.NewDense(batch, hiddenSize, nil)
	for b := 0; b < batch; b++ {
		du := dNormed.RawRowView(b)
		dh := dHidden.RawRowView(b)
		norm := cache.Norms[b]
		if norm <= minNorm {
			// Below the floor the input was only scaled, so the jacobian is diagonal.
			floats.ScaleTo(dh, 1/minNorm, du)
			continue
		}
		u := cache.Normed.RawRowView(b)
		proj := floats.Dot(u, du)
		for i := range dh {
			dh[i] = (du[i] - u[i]*proj) / norm
		}
	}
	return
}

// Renormalize restores the memory's invariants after an unconstrained gradient step: keys are
// clipped at zero and each key column scaled to unit length, values are clipped at zero.
// Columns that are entirely zero after clipping stay zero. Renormalize is idempotent.
func (s *SDM) Renormalize(keys, values *mat.Dense) {
	renormalizeKeys(keys)
	clipNegative(values)
}

func renormalizeKeys(keys *mat.Dense) {
	clipNegative(keys)
	rows, columns := keys.Dims()
	col := make([]float64, rows)
	for j := 0; j < columns; j++ {
		mat.Col(col, j, keys)
		norm := floats.Norm(col, 2)
		if norm == 0 || math.Abs(norm-1) <= unitTolerance {
			continue
		}
		floats.Scale(1/norm, col)
		keys.SetCol(j, col)
	}
}

func clipNegative(m *mat.Dense) {
	m.Apply(func(_, _ int, v float64) float64 {
		return math.Max(v, 0)
	}, m)
}
