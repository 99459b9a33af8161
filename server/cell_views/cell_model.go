// cell_views contains views derived from the Cell view-model.
package cell_views

import (
	"math"

	"sdmrl/grid_world"
	"sdmrl/models"
)

// Cell is for converting the probed grid world values to a simple x/y set of cells,
// oriented in svg coordinate system such that y=0 is the row that would be printed
// in the console at top. [][]Cell is indexed [x][y] for convenient traversal in templates.
// As a rule of thumb, Cell fields should be immediately usable as view parameters.
type Cell struct {
	X, Y                int
	Max                 float64
	PolicyArrowRotation int
	PolicyArrowScale    int
	Fill                string
	// Wall cells have no values; Max is meaningless for them.
	Wall bool
}

// FromSnapshot returns the snapshot's probed cells, or nil when the environment is not a grid world.
func FromSnapshot(snapshot *models.Snapshot) [][]Cell {
	if snapshot == nil || len(snapshot.Cells) == 0 || len(snapshot.Cells[0]) == 0 {
		return nil
	}
	return Convert(snapshot.Cells)
}

// Convert transforms probed rows into Cells for consumption by values-views.
// The rows are already in svg orientation, where row 0 is the top of the coordinate system.
func Convert(rows [][]models.CellValue) (cells [][]Cell) {
	height, width := len(rows), len(rows[0])
	cells = make([][]Cell, width)
	for x := range cells {
		cells[x] = make([]Cell, height)
	}

	for y, row := range rows {
		for x := range row {
			cv := &row[x]
			cell := Cell{
				X:    x,
				Y:    y,
				Fill: getFill(cv.CellType),
				Wall: len(cv.Q) == 0,
			}
			if !cell.Wall {
				greedy, value := cv.Greedy()
				action := grid_world.ActionFromIndex(greedy)
				cell.Max = value
				cell.PolicyArrowRotation = getDegrees(action)
				cell.PolicyArrowScale = getScale(action)
			}
			cells[x][y] = cell
		}
	}
	return
}

func getScale(action grid_world.Action) int {
	return int(math.Hypot(float64(action.Dvx), float64(action.Dvy)))
}

// getDegrees converts the acceleration components in cartesian space into the degrees passed
// to svg's rotate() transform function for an upward arrow rune. Degrees are wrt vertical.
func getDegrees(action grid_world.Action) int {
	if action.Dvx == 0 && action.Dvy == 0 {
		return 0
	}
	rad := math.Atan2(float64(action.Dvy), float64(action.Dvx))
	deg := rad * 180 / math.Pi
	// deg is correct in cartesian space, but must be subtracted from 90 for rotation in svg coors
	return int(math.Round(90 - deg))
}

func getFill(cellType rune) (fill string) {
	switch cellType {
	case grid_world.WALL:
		fill = "lightgreen"
	case grid_world.TRACK:
		fill = "lightgray"
	case grid_world.START:
		fill = "lightblue"
	case grid_world.FINISH:
		fill = "lightyellow"
	}
	return
}

// valueRange returns the min and max values over the non-wall cells, or zeros if there are none.
func valueRange(cells [][]Cell) (minVal, maxVal float64) {
	minVal, maxVal = math.Inf(1), math.Inf(-1)
	for _, col := range cells {
		for _, cell := range col {
			if cell.Wall {
				continue
			}
			minVal = math.Min(minVal, cell.Max)
			maxVal = math.Max(maxVal, cell.Max)
		}
	}
	if math.IsInf(minVal, 1) {
		return 0, 0
	}
	return
}
