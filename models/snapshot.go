package models

// Snapshot is a copy of the trainer's progress at some step, published to the views.
// Snapshots own their slices; receivers may hold on to them.
type Snapshot struct {
	Step     int
	Episode  int
	Epsilon  float64
	Loss     float64
	QMean    float64
	SPS      float64
	Returns  []float64 // Most recent episodic returns, oldest first.
	Codebook [][]float64
	// GridSide is the side of the DSOM address grid; prototype i sits at (i%side, i/side).
	GridSide int
	// Cells holds greedy values over a grid world's positions, when the environment is one.
	Cells [][]CellValue
}

// CellValue is the agent's action-value estimate at rest in a single grid world position.
type CellValue struct {
	X, Y     int
	CellType rune
	// Q holds one value per action.
	Q []float64
}

// Greedy returns the index and value of the maximum action value.
func (cv *CellValue) Greedy() (action int, value float64) {
	for i, q := range cv.Q {
		if i == 0 || q > value {
			action, value = i, q
		}
	}
	return
}
