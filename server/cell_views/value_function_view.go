package cell_views

import (
	"fmt"
	"html/template"
	"math"

	"sdmrl/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

const cellDim float64 = 40 // Cell height/width size in pixels

// ang could easily be a dynamic parameter for a fixed set of view angles (30, 45, etc.)
var (
	ang            = math.Pi / 6 // angle of x, y axes (e.g. =30°)
	sinAng, cosAng = math.Sin(ang), math.Cos(ang)
)

// ValueFunction provides a view of the current greedy value function as a 2d
// projection of the 3d function (x,y,value).
type ValueFunction struct {
	id      string
	proj    projection
	updates <-chan []fastview.EleUpdate
}

// NewValueFunction sizes the view by the initial cells, which must have the dimensions of all later updates.
func NewValueFunction(
	done <-chan struct{},
	initial [][]Cell,
	cells <-chan [][]Cell,
) (vf *ValueFunction) {
	vf = &ValueFunction{
		id:   "valuefunction",
		proj: newProjection(initial),
	}
	vf.updates = channerics.Convert(done, cells, vf.onUpdate)
	return
}

func (vf *ValueFunction) Updates() <-chan []fastview.EleUpdate {
	return vf.updates
}

// projection holds the canvas parameters, set per the cell grid dimensions.
type projection struct {
	width, height float64 // canvas size in pixels
	xyscale       float64 // pixels per x or y unit
	zscale        float64 // pixels per z unit
}

func newProjection(cells [][]Cell) projection {
	proj := projection{xyscale: cellDim, zscale: cellDim * 0.3}
	if len(cells) > 0 {
		proj.width = float64(len(cells)) * cellDim
		proj.height = float64(len(cells[0])) * cellDim
	}
	return proj
}

// project applies an isometric projection to the passed point.
func (proj projection) project(x, y, z float64) (float64, float64) {
	sx := (x - y) * cosAng * proj.xyscale
	sy := (x+y)*sinAng*proj.xyscale - z*proj.zscale
	return sx, sy
}

// surface maps the cells to heights; walls sit at the floor of the live values.
type surface struct {
	proj  projection
	floor float64
}

func (s surface) height(cell Cell) float64 {
	if cell.Wall {
		return s.floor
	}
	return cell.Max
}

// Returns an svg polygon describing these four, adjacent cells.
// Cell-A is bottom left, Cell-B is top left, Cell-C is top right, and Cell-D is bottom right.
func (s surface) polygon(
	id string,
	cellA Cell,
	cellB Cell,
	cellC Cell,
	cellD Cell,
) (fp *funcPolygon) {
	fp = &funcPolygon{Id: id}
	fp.ax, fp.ay = s.proj.project(float64(cellA.X), float64(cellA.Y), s.height(cellA))
	fp.bx, fp.by = s.proj.project(float64(cellB.X), float64(cellB.Y), s.height(cellB))
	fp.cx, fp.cy = s.proj.project(float64(cellC.X), float64(cellC.Y), s.height(cellC))
	fp.dx, fp.dy = s.proj.project(float64(cellD.X), float64(cellD.Y), s.height(cellD))
	return
}

type funcPolygon struct {
	Id     string
	ax, ay float64
	bx, by float64
	cx, cy float64
	dx, dy float64
}

// String returns a string suitable for the svg-polygon 'points' attribute.
// The values are truncated to ints, which is a bit of premature svg-optimization.
func (fp *funcPolygon) String() string {
	return fmt.Sprintf("%d,%d %d,%d %d,%d %d,%d",
		int(fp.ax), int(fp.ay),
		int(fp.bx), int(fp.by),
		int(fp.cx), int(fp.cy),
		int(fp.dx), int(fp.dy),
	)
}

func (fp *funcPolygon) MinX() float64 {
	return math.Min(math.Min(fp.ax, fp.bx), math.Min(fp.cx, fp.dx))
}

func (fp *funcPolygon) MinY() float64 {
	return math.Min(math.Min(fp.ay, fp.by), math.Min(fp.cy, fp.dy))
}

func (fp *funcPolygon) MaxX() float64 {
	return math.Max(math.Max(fp.ax, fp.bx), math.Max(fp.cx, fp.dx))
}

func (fp *funcPolygon) MaxY() float64 {
	return math.Max(math.Max(fp.ay, fp.by), math.Max(fp.cy, fp.dy))
}

func avg(f ...float64) float64 {
	sum := 0.0
	for _, fn := range f {
		sum += fn
	}
	return sum / float64(len(f))
}

func polygonId(cell Cell) string {
	return fmt.Sprintf("%d-%d-value-polygon", cell.X, cell.Y)
}

// Returns the set of view updates needed for the view to reflect current values.
func (vf *ValueFunction) onUpdate(
	cells [][]Cell,
) (ops []fastview.EleUpdate) {
	if len(cells) < 2 || len(cells[0]) < 2 {
		return nil
	}

	// Each polygon is shaded with the average of its four heights, relative to the
	// min and max live values.
	minVal, maxVal := valueRange(cells)
	surf := surface{proj: vf.proj, floor: minVal}

	// First build up the polygons, so we can later center their svg coordinates within the view axe.
	xmin, ymin := math.MaxFloat64, math.MaxFloat64
	xmax, ymax := -math.MaxFloat64, -math.MaxFloat64
	for ri, col := range cells[:len(cells)-1] {
		for ci, cell := range col[:len(col)-1] {
			cellA := cells[ri+1][ci]
			cellB := cells[ri][ci]
			cellC := cells[ri][ci+1]
			cellD := cells[ri+1][ci+1]
			polygon := surf.polygon(polygonId(cell), cellA, cellB, cellC, cellD)

			xmin = math.Min(xmin, polygon.MinX())
			xmax = math.Max(xmax, polygon.MaxX())
			ymin = math.Min(ymin, polygon.MinY())
			ymax = math.Max(ymax, polygon.MaxY())

			avgVal := avg(surf.height(cellA), surf.height(cellB), surf.height(cellC), surf.height(cellD))
			ops = append(ops, fastview.EleUpdate{
				EleId: polygon.Id,
				Ops: []fastview.Op{
					{Key: "points", Value: polygon.String()},
					{Key: "fill", Value: getRGBFill(avgVal, minVal, maxVal)},
				},
			})
		}
	}

	// Shift all values by the min x and y to center the view, and scale it down
	// by the maximum required to fit the full plot in view, but only if needed.
	scaler := 1.0
	if xmax > xmin {
		scaler = math.Min(scaler, vf.proj.width/(xmax-xmin))
	}
	if ymax > ymin {
		scaler = math.Min(scaler, vf.proj.height/(ymax-ymin))
	}

	ops = append(ops, fastview.EleUpdate{
		EleId: vf.id + "-group",
		Ops: []fastview.Op{
			{
				Key:   "transform",
				Value: fmt.Sprintf("scale(%f) translate(%d %d)", scaler, int(-xmin), int(-ymin)),
			},
		},
	})

	return
}

// Returns an RGB value defined by where avgVal lies along the number line between minVal and maxVal:
// red for the max, blue for the min.
func getRGBFill(avgVal, minVal, maxVal float64) string {
	redPct := 50
	if maxVal > minVal {
		pct := (avgVal - minVal) / (maxVal - minVal)
		redPct = int(100.0 * math.Max(0, math.Min(1, pct)))
	}
	return fmt.Sprintf("rgb(%d%%,0%%,%d%%)", redPct, 100-redPct)
}

// Parse returns an svg of polygons plotting the values function surface as a 2D projection.
// The initial polygons are drawn flat; the first update positions them.
func (vf *ValueFunction) Parse(
	t *template.Template,
) (name string, err error) {
	name = vf.id
	// Note: the order of polygon creation forms a nice visual surface by obscuring prior polygons. Order matters.
	_, err = t.New(name).Parse(
		`<div style="padding:20px;">
			{{ $x_cells := len . }}
			{{ $y_cells := len (index . 0) }}
			{{ $num_x_polys := sub $x_cells 1 }}
			{{ $num_y_polys := sub $y_cells 1 }}
			{{ $cell_width := ` + fmt.Sprintf("%d", int(cellDim)) + ` }}
			{{ $width := mult $cell_width $x_cells }}
			{{ $height := mult $cell_width $y_cells }}
			<svg id="` + vf.id + `" xmlns='http://www.w3.org/2000/svg'
				width="{{ mult $width 2 }}px"
				height="{{ mult $height 2 }}px"
				style="shape-rendering: crispEdges; stroke: lightgrey; stroke-opacity: 1.0; stroke-width: 1;">
				<g id="` + vf.id + "-group" + `" transform="translate(0 0)">
				{{ range $ri, $col := . }}
					{{ if lt $ri $num_x_polys }}
						{{ range $j, $unused := $col }}
							{{ $ci := sub (sub (len $col) $j) 1 }}
							{{ $cell := index $col $ci }}
							{{ if lt $ci $num_y_polys }}
								<polygon id="{{$cell.X}}-{{$cell.Y}}-value-polygon"
									fill="black" fill-opacity="1.0" points="0,0 0,0 0,0 0,0" />
							{{ end }}
						{{ end }}
					{{ end }}
				{{ end }}
				</g>
			</svg>
		</div>`)
	return
}
