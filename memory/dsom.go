// Package memory implements the two associative-memory layers used as hidden layers of the
// Q-network: a Dynamic Self-Organizing Map (DSOM) whose prototypes gate a hidden representation,
// and a Sparse Distributed Memory (SDM) read through its top-k best matching keys.
//
// Both layers keep their learnable matrices outside of the layer struct, in the network's
// parameter set, so the same layer can be applied to live and target parameters alike.
// The layer structs hold only configuration and per-run state.
package memory

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// Floors for the gate smoothing constant and the neighborhood width.
	minSmoothing   = 1e-8
	minDenominator = 1e-12
	// Per-component bound on a single DSOM update.
	maxDelta = 1.0
	// Standard deviation of the initial prototypes.
	codebookStdDev = 0.5
)

// UpdateMode is how per-observation DSOM deltas are reduced over a batch.
type UpdateMode string

const (
	AVG UpdateMode = "AVG"
	SUM UpdateMode = "SUM"
)

// ErrUnknownUpdateMode is returned for reduction modes other than AVG and SUM.
var ErrUnknownUpdateMode error = errors.New("invalid DSOM update mode")

// ParseUpdateMode converts a config tag to an UpdateMode.
func ParseUpdateMode(tag string) (UpdateMode, error) {
	switch mode := UpdateMode(strings.ToUpper(strings.TrimSpace(tag))); mode {
	case AVG, SUM:
		return mode, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownUpdateMode, tag)
}

// DSOM is a self-organizing codebook of prototypes laid out on a square grid of
// fixed topological addresses. Prototypes are never trained by backpropagation;
// they move only through Update.
type DSOM struct {
	// Addresses is the (n, 2) grid position of each prototype. It never changes.
	Addresses *mat.Dense
	// Side is the side length of the address grid.
	Side int
	// MaxDist is the largest prototype-to-prototype distance observed so far. It only grows.
	MaxDist      float64
	LearningRate float64
	Elasticity   float64
	Mode         UpdateMode
	// Smoothing is the gate's distance scale k: gate = exp(-dist/k).
	Smoothing float64
}

// NewDSOM returns a DSOM of n prototypes. Prototype i has grid address (i mod side, i div side)
// where side is the smallest square side holding n prototypes.
func NewDSOM(
	n int,
	learningRate float64,
	elasticity float64,
	mode UpdateMode,
) (*DSOM, error) {
	if n <= 0 {
		return nil, fmt.Errorf("DSOM needs at least one prototype, got %d", n)
	}
	if mode != AVG && mode != SUM {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUpdateMode, mode)
	}

	side := int(math.Ceil(math.Sqrt(float64(n))))
	addresses := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		addresses.Set(i, 0, float64(i%side))
		addresses.Set(i, 1, float64(i/side))
	}

	return &DSOM{
		Addresses:    addresses,
		Side:         side,
		LearningRate: learningRate,
		Elasticity:   elasticity,
		Mode:         mode,
		Smoothing:    0.5,
	}, nil
}

// NewCodebook draws n prototypes of the given dimension from N(0, 0.5²).
func NewCodebook(rng *rand.Rand, n, dim int) *mat.Dense {
	data := make([]float64, n*dim)
	for i := range data {
		data[i] = rng.NormFloat64() * codebookStdDev
	}
	return mat.NewDense(n, dim, data)
}

// Reset forgets the running maximum distance.
func (d *DSOM) Reset() {
	d.MaxDist = 0
}

// Gate returns the (batch, n) activation exp(-‖obs_b - prototype_i‖ / k) of every prototype.
// The result is a constant with respect to the codebook: callers must not backpropagate into it.
func (d *DSOM) Gate(codebook, obs *mat.Dense) *mat.Dense {
	batch, _ := obs.Dims()
	n, _ := codebook.Dims()
	k := math.Max(d.Smoothing, minSmoothing)

	gate := mat.NewDense(batch, n, nil)
	for b := 0; b < batch; b++ {
		x := obs.RawRowView(b)
		row := gate.RawRowView(b)
		for i := 0; i < n; i++ {
			row[i] = math.Exp(-floats.Distance(x, codebook.RawRowView(i), 2) / k)
		}
	}
	return gate
}

// MaxPairwiseDistance returns the largest euclidean distance between any two prototypes.
func MaxPairwiseDistance(codebook *mat.Dense) (maxDist float64) {
	n, _ := codebook.Dims()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if dist := floats.Distance(codebook.RawRowView(i), codebook.RawRowView(j), 2); dist > maxDist {
				maxDist = dist
			}
		}
	}
	return
}

// Update moves the prototypes toward the batch of raw observations and returns the applied delta.
//
// For each observation the nearest prototype wins. Prototype i moves by
//
//	lr * (dist_i / maxDist) * h_i * (obs - prototype_i)
//
// where h_i = exp(-‖addr_i - addr_winner‖² / (elasticity² * (dist_winner/maxDist)²)) is the
// neighborhood weight. Deltas are reduced over the batch per Mode, clipped to [-1, 1] per
// component, and added to the codebook in place. All distances are taken against the codebook
// as it was on entry.
//
// While MaxDist is zero (all prototypes coincide) distances are left unnormalized, and the
// neighborhood width is floored so an observation sitting exactly on its winner yields finite weights.
func (d *DSOM) Update(codebook, obs *mat.Dense) (*mat.Dense, error) {
	if d.Mode != AVG && d.Mode != SUM {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUpdateMode, d.Mode)
	}

	n, dim := codebook.Dims()
	batch, obsDim := obs.Dims()
	if obsDim != dim {
		return nil, fmt.Errorf("observation size %d does not match prototype size %d", obsDim, dim)
	}

	d.MaxDist = math.Max(d.MaxDist, MaxPairwiseDistance(codebook))
	norm := d.MaxDist
	if norm <= 0 {
		norm = 1
	}

	delta := mat.NewDense(n, dim, nil)
	if batch == 0 {
		return delta, nil
	}

	dists := make([]float64, n)
	diff := make([]float64, dim)
	elasticity2 := d.Elasticity * d.Elasticity
	for b := 0; b < batch; b++ {
		x := obs.RawRowView(b)
		for i := range dists {
			dists[i] = floats.Distance(x, codebook.RawRowView(i), 2)
		}

		winner := floats.MinIdx(dists)
		wx, wy := d.Addresses.At(winner, 0), d.Addresses.At(winner, 1)
		winnerDist := dists[winner] / norm
		denominator := math.Max(elasticity2*winnerDist*winnerDist, minDenominator)

		for i := 0; i < n; i++ {
			dx := d.Addresses.At(i, 0) - wx
			dy := d.Addresses.At(i, 1) - wy
			h := math.Exp(-(dx*dx + dy*dy) / denominator)
			coeff := d.LearningRate * (dists[i] / norm) * h
			if coeff == 0 {
				continue
			}
			floats.SubTo(diff, x, codebook.RawRowView(i))
			floats.AddScaled(delta.RawRowView(i), coeff, diff)
		}
	}

	if d.Mode == AVG {
		delta.Scale(1/float64(batch), delta)
	}
	delta.Apply(func(_, _ int, v float64) float64 {
		return math.Max(-maxDelta, math.Min(maxDelta, v))
	}, delta)

	codebook.Add(codebook, delta)
	return delta, nil
}
