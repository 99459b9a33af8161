// progress_views contains views of the training progress: readouts, the learning
// curve and the DSOM codebook mesh.
package progress_views

import (
	"fmt"
	"math"
	"strings"

	"sdmrl/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	curveWidth, curveHeight = 500, 150 // pixels
	meshDim                 = 300      // pixels
	meshMargin              = 10
)

// Progress is the view-model of a snapshot; its fields are immediately usable as view parameters.
type Progress struct {
	Readouts []Readout
	// Curve is the svg polyline 'points' of the recent episodic returns.
	Curve     string
	MinReturn float64
	MaxReturn float64
	Mesh      Mesh
}

// Readout is a single labeled scalar.
type Readout struct {
	Id    string
	Label string
	Value string
}

// Point is a position in pixels.
type Point struct {
	X, Y float64
}

// Edge joins two grid-adjacent prototypes by index.
type Edge struct {
	From, To int
}

// Mesh is the DSOM codebook drawn as its address grid, with prototypes placed by their
// projection onto the codebook's first two principal components.
type Mesh struct {
	Nodes []Point
	Edges []Edge
}

// FromSnapshot converts a snapshot to the progress view-model.
func FromSnapshot(snapshot *models.Snapshot) (prog Progress) {
	if snapshot == nil {
		snapshot = &models.Snapshot{}
	}

	meanReturn := 0.0
	if len(snapshot.Returns) > 0 {
		meanReturn = stat.Mean(snapshot.Returns, nil)
	}
	prog.Readouts = []Readout{
		{Id: "readout-step", Label: "step", Value: fmt.Sprintf("%d", snapshot.Step)},
		{Id: "readout-episode", Label: "episode", Value: fmt.Sprintf("%d", snapshot.Episode)},
		{Id: "readout-epsilon", Label: "epsilon", Value: fmt.Sprintf("%.3f", snapshot.Epsilon)},
		{Id: "readout-loss", Label: "td loss", Value: fmt.Sprintf("%.4f", snapshot.Loss)},
		{Id: "readout-q", Label: "mean q", Value: fmt.Sprintf("%.3f", snapshot.QMean)},
		{Id: "readout-sps", Label: "steps/sec", Value: fmt.Sprintf("%.0f", snapshot.SPS)},
		{Id: "readout-return", Label: "mean return", Value: fmt.Sprintf("%.2f", meanReturn)},
	}

	prog.Curve, prog.MinReturn, prog.MaxReturn = curve(snapshot.Returns)
	prog.Mesh = mesh(snapshot.Codebook, snapshot.GridSide)
	return
}

// curve scales the returns into the curve's canvas, oldest at the left.
func curve(returns []float64) (points string, minVal, maxVal float64) {
	if len(returns) == 0 {
		return "", 0, 0
	}
	minVal, maxVal = floats.Min(returns), floats.Max(returns)
	span := maxVal - minVal
	dx := 0.0
	if len(returns) > 1 {
		dx = float64(curveWidth) / float64(len(returns)-1)
	}

	var sb strings.Builder
	for i, r := range returns {
		y := float64(curveHeight) / 2
		if span > 0 {
			y = float64(curveHeight) * (1 - (r-minVal)/span)
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%.1f,%.1f", float64(i)*dx, y)
	}
	return sb.String(), minVal, maxVal
}

// mesh lays out the codebook, one node per prototype.
func mesh(codebook [][]float64, side int) (m Mesh) {
	n := len(codebook)
	if n == 0 || side <= 0 || len(codebook[0]) == 0 {
		return
	}

	xs, ys := project2d(codebook)
	toCanvas := func(vals []float64) []float64 {
		lo, hi := floats.Min(vals), floats.Max(vals)
		out := make([]float64, len(vals))
		for i, v := range vals {
			out[i] = float64(meshDim) / 2
			if hi > lo {
				out[i] = meshMargin + (v-lo)/(hi-lo)*float64(meshDim-2*meshMargin)
			}
		}
		return out
	}
	xs, ys = toCanvas(xs), toCanvas(ys)

	m.Nodes = make([]Point, n)
	for i := range m.Nodes {
		m.Nodes[i] = Point{X: xs[i], Y: ys[i]}
		if x := i % side; x+1 < side && i+1 < n {
			m.Edges = append(m.Edges, Edge{From: i, To: i + 1})
		}
		if i+side < n {
			m.Edges = append(m.Edges, Edge{From: i, To: i + side})
		}
	}
	return
}

// project2d returns the prototype coordinates along the first two principal components.
// It falls back to the raw leading coordinates when the codebook is too small or degenerate.
func project2d(codebook [][]float64) (xs, ys []float64) {
	n, d := len(codebook), len(codebook[0])
	xs, ys = make([]float64, n), make([]float64, n)

	data := mat.NewDense(n, d, nil)
	for i, row := range codebook {
		data.SetRow(i, row)
	}

	var pc stat.PC
	if n >= 2 && d >= 2 && pc.PrincipalComponents(data, nil) {
		var vecs mat.Dense
		pc.VectorsTo(&vecs)
		if _, k := vecs.Dims(); k >= 2 {
			basis := mat.DenseCopyOf(vecs.Slice(0, d, 0, 2))
			// Fix the component signs so the layout doesn't flip between snapshots.
			for j := 0; j < 2; j++ {
				col := mat.Col(nil, j, basis)
				if col[floats.MaxIdx(absAll(col))] < 0 {
					floats.Scale(-1, col)
					basis.SetCol(j, col)
				}
			}
			var proj mat.Dense
			proj.Mul(data, basis)
			mat.Col(xs, 0, &proj)
			mat.Col(ys, 1, &proj)
			return
		}
	}

	for i, row := range codebook {
		xs[i] = row[0]
		if d > 1 {
			ys[i] = row[1]
		}
	}
	return
}

func absAll(vals []float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = math.Abs(v)
	}
	return out
}
