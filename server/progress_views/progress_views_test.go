package progress_views

import (
	"bytes"
	"html/template"
	"math"
	"strings"
	"testing"

	"sdmrl/models"

	. "github.com/smartystreets/goconvey/convey"
)

func testSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Step:    1200,
		Episode: 30,
		Epsilon: 0.25,
		Loss:    0.5,
		QMean:   2,
		SPS:     800,
		Returns: []float64{10, 20, 30},
		// A 2x2 grid of prototypes in 3 dimensions.
		Codebook: [][]float64{
			{0, 0, 0},
			{1, 0, 0.1},
			{0, 2, 0},
			{1, 2, 0.1},
		},
		GridSide: 2,
	}
}

func TestFromSnapshot(t *testing.T) {
	Convey("Given a snapshot", t, func() {
		prog := FromSnapshot(testSnapshot())

		Convey("Readouts are formatted", func() {
			values := map[string]string{}
			for _, readout := range prog.Readouts {
				values[readout.Id] = readout.Value
			}
			So(values["readout-step"], ShouldEqual, "1200")
			So(values["readout-episode"], ShouldEqual, "30")
			So(values["readout-epsilon"], ShouldEqual, "0.250")
			So(values["readout-return"], ShouldEqual, "20.00")
		})

		Convey("The curve spans the canvas, with the max return at the top", func() {
			So(prog.MinReturn, ShouldEqual, 10)
			So(prog.MaxReturn, ShouldEqual, 30)
			So(prog.Curve, ShouldEqual, "0.0,150.0 250.0,75.0 500.0,0.0")
		})

		Convey("The mesh joins grid neighbours", func() {
			So(prog.Mesh.Nodes, ShouldHaveLength, 4)
			So(prog.Mesh.Edges, ShouldResemble, []Edge{
				{From: 0, To: 1},
				{From: 0, To: 2},
				{From: 1, To: 3},
				{From: 2, To: 3},
			})
			for _, node := range prog.Mesh.Nodes {
				So(node.X, ShouldBeBetweenOrEqual, meshMargin-1e-9, meshDim-meshMargin+1e-9)
				So(node.Y, ShouldBeBetweenOrEqual, meshMargin-1e-9, meshDim-meshMargin+1e-9)
			}
		})
	})

	Convey("Empty snapshots produce an empty view-model", t, func() {
		prog := FromSnapshot(nil)
		So(prog.Curve, ShouldBeEmpty)
		So(prog.Mesh.Nodes, ShouldBeEmpty)
		So(prog.Readouts, ShouldHaveLength, 7)
	})

	Convey("A flat curve sits mid-canvas", t, func() {
		points, _, _ := curve([]float64{5})
		So(points, ShouldEqual, "0.0,75.0")
	})
}

func TestProject2d(t *testing.T) {
	Convey("Principal axes recover the spread of the codebook", t, func() {
		// Points along a line have no spread on the second axis.
		xs, ys := project2d([][]float64{{0, 0}, {1, 1}, {2, 2}, {3, 3}})
		So(math.Abs(xs[3]-xs[0]), ShouldAlmostEqual, 3*math.Sqrt2, 1e-9)
		So(math.Abs(ys[3]-ys[0]), ShouldAlmostEqual, 0, 1e-9)
	})

	Convey("One-dimensional codebooks fall back to raw coordinates", t, func() {
		xs, ys := project2d([][]float64{{1}, {4}})
		So(xs, ShouldResemble, []float64{1, 4})
		So(ys, ShouldResemble, []float64{0, 0})
	})
}

func TestViews(t *testing.T) {
	Convey("Given the progress views", t, func() {
		prog := FromSnapshot(testSnapshot())
		lc := NewLearningCurve(nil, make(chan Progress))
		cm := NewCodebookMesh(nil, make(chan Progress))

		Convey("The learning curve updates readouts and the line", func() {
			ops := lc.onUpdate(prog)
			So(ops, ShouldHaveLength, len(prog.Readouts)+3)
			So(ops[len(prog.Readouts)].EleId, ShouldEqual, "learningcurve-line")
			So(ops[len(prog.Readouts)].Ops[0].Value, ShouldEqual, prog.Curve)
		})

		Convey("The mesh updates every node and edge", func() {
			ops := cm.onUpdate(prog)
			So(ops, ShouldHaveLength, 8)
			So(ops[0].EleId, ShouldEqual, "codebook-node-0")
			So(ops[4].EleId, ShouldEqual, "codebook-edge-0-1")
		})

		Convey("Both parse and render", func() {
			root := template.New("root")
			var names []string
			for _, view := range []interface {
				Parse(*template.Template) (string, error)
			}{lc, cm} {
				name, err := view.Parse(root)
				So(err, ShouldBeNil)
				names = append(names, name)
			}

			var buf bytes.Buffer
			for _, name := range names {
				So(root.ExecuteTemplate(&buf, name, prog), ShouldBeNil)
			}
			page := buf.String()
			So(page, ShouldContainSubstring, `id="readout-sps"`)
			So(page, ShouldContainSubstring, `id="codebook-edge-2-3"`)
			So(strings.Count(page, "<circle"), ShouldEqual, 4)

			buf.Reset()
			So(root.ExecuteTemplate(&buf, names[1], FromSnapshot(nil)), ShouldBeNil)
			So(buf.String(), ShouldNotContainSubstring, "<svg")
		})
	})
}
