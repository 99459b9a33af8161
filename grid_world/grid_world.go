package grid_world

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"sdmrl/models"

	"gonum.org/v1/gonum/mat"
)

// Action consists of a velocity increment/decrement and horizontal or vertical direction.
// In this problem, three actions (+1, -1, 0) yields 9 actions per step, e.g. |(+1, -1, 0)|**2.
type Action struct {
	Dvx, Dvy int
}

const (
	// Track cell types
	WALL   = 'W'
	TRACK  = 'o'
	START  = '-'
	FINISH = '+'

	// Kinematic actions in the x and y direction. A velocity of 1 means traveling one grid cell per time step.
	MAX_VELOCITY      = 4
	MIN_VELOCITY      = -MAX_VELOCITY
	NUM_VELOCITIES    = MAX_VELOCITY - MIN_VELOCITY + 1
	MAX_ACCELERATION  = 1
	MIN_ACCELERATION  = -1
	NUM_ACCELERATIONS = MAX_ACCELERATION - MIN_ACCELERATION + 1
	NUM_ACTIONS       = NUM_ACCELERATIONS * NUM_ACCELERATIONS

	// Rewards
	COLLISION_REWARD = -5
	STEP_REWARD      = -1
	FINISH_REWARD    = 0

	// DEFAULT_MAX_STEPS truncates episodes of agents that never finish nor crash.
	DEFAULT_MAX_STEPS = 200
)

// The classical track and a smaller debug track for development.
var (
	DebugTrack []string = []string{
		"WWWWWW",
		"Woooo+",
		"Woooo+",
		"WooWWW",
		"WooWWW",
		"WooWWW",
		"WooWWW",
		"W--WWW",
	}

	FullTrack []string = []string{
		"WWWWWWWWWWWWWWWWWW",
		"WWWWooooooooooooo+",
		"WWWoooooooooooooo+",
		"WWWoooooooooooooo+",
		"WWooooooooooooooo+",
		"Woooooooooooooooo+",
		"Woooooooooooooooo+",
		"WooooooooooWWWWWWW",
		"WoooooooooWWWWWWWW",
		"WoooooooooWWWWWWWW",
		"WoooooooooWWWWWWWW",
		"WoooooooooWWWWWWWW",
		"WoooooooooWWWWWWWW",
		"WoooooooooWWWWWWWW",
		"WoooooooooWWWWWWWW",
		"WWooooooooWWWWWWWW",
		"WWooooooooWWWWWWWW",
		"WWooooooooWWWWWWWW",
		"WWooooooooWWWWWWWW",
		"WWooooooooWWWWWWWW",
		"WWooooooooWWWWWWWW",
		"WWooooooooWWWWWWWW",
		"WWooooooooWWWWWWWW",
		"WWWoooooooWWWWWWWW",
		"WWWoooooooWWWWWWWW",
		"WWWoooooooWWWWWWWW",
		"WWWoooooooWWWWWWWW",
		"WWWoooooooWWWWWWWW",
		"WWWoooooooWWWWWWWW",
		"WWWoooooooWWWWWWWW",
		"WWWWooooooWWWWWWWW",
		"WWWWooooooWWWWWWWW",
		"WWWW------WWWWWWWW",
	}
)

var (
	ErrInvalidTrack = errors.New("invalid track")
	ErrNeedsReset   = errors.New("racetrack episode is over; call Reset")
)

// ActionFromIndex maps an action index in [0, NUM_ACTIONS) to its accelerations.
func ActionFromIndex(index int) Action {
	return Action{
		Dvx: index/NUM_ACCELERATIONS + MIN_ACCELERATION,
		Dvy: index%NUM_ACCELERATIONS + MIN_ACCELERATION,
	}
}

// Index is the inverse of ActionFromIndex.
func (a Action) Index() int {
	return (a.Dvx-MIN_ACCELERATION)*NUM_ACCELERATIONS + (a.Dvy - MIN_ACCELERATION)
}

// Racetrack is the race track problem as an environment: the car starts at rest on a
// START cell and accelerates until it crosses a FINISH cell or crashes into a wall.
// Observations are (x, y, vx, vy) scaled to [0,1] for positions and [-1,1] for velocities.
type Racetrack struct {
	// cells is indexed [x][y] such that the bottom/left most position of the track
	// (when printed in a console) is (0,0), and +1 velocity yields +1 position.
	cells    [][]rune
	starts   [][2]int
	maxSteps int

	x, y, vx, vy int
	steps        int
	done         bool
	started      bool
	rng          *rand.Rand
}

// NewRacetrack converts a track's rows, printed top to bottom, into an environment.
// The track must be rectangular and hold at least one START and one FINISH cell.
func NewRacetrack(track []string, seed int64) (*Racetrack, error) {
	if len(track) == 0 || len(track[0]) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTrack)
	}
	width, height := len(track[0]), len(track)

	rt := &Racetrack{
		cells:    make([][]rune, width),
		maxSteps: DEFAULT_MAX_STEPS,
		rng:      rand.New(rand.NewSource(seed)),
	}
	finishes := 0
	for x := 0; x < width; x++ {
		rt.cells[x] = make([]rune, height)
	}
	for row, line := range track {
		if len(line) != width {
			return nil, fmt.Errorf("%w: row %d has width %d, expected %d", ErrInvalidTrack, row, len(line), width)
		}
		y := height - row - 1
		for x, cellType := range line {
			switch cellType {
			case START:
				rt.starts = append(rt.starts, [2]int{x, y})
			case FINISH:
				finishes++
			case WALL, TRACK:
			default:
				return nil, fmt.Errorf("%w: unknown cell type %q at row %d", ErrInvalidTrack, cellType, row)
			}
			rt.cells[x][y] = cellType
		}
	}
	if len(rt.starts) == 0 || finishes == 0 {
		return nil, fmt.Errorf("%w: needs START and FINISH cells", ErrInvalidTrack)
	}
	return rt, nil
}

// SetMaxSteps sets the step count at which episodes are truncated.
func (rt *Racetrack) SetMaxSteps(maxSteps int) {
	rt.maxSteps = maxSteps
}

func (rt *Racetrack) Width() int  { return len(rt.cells) }
func (rt *Racetrack) Height() int { return len(rt.cells[0]) }

// CellType returns the type of the cell at (x, y); positions off the grid are walls.
func (rt *Racetrack) CellType(x, y int) rune {
	if x < 0 || x >= rt.Width() || y < 0 || y >= rt.Height() {
		return WALL
	}
	return rt.cells[x][y]
}

func (rt *Racetrack) NumActions() int      { return NUM_ACTIONS }
func (rt *Racetrack) ObservationSize() int { return 4 }

// Reset places the car at rest on a random START cell. A negative seed keeps the current rng.
func (rt *Racetrack) Reset(seed int64) ([]float64, models.Info, error) {
	if seed >= 0 {
		rt.rng.Seed(seed)
	}
	start := rt.starts[rt.rng.Intn(len(rt.starts))]
	rt.x, rt.y = start[0], start[1]
	rt.vx, rt.vy = 0, 0
	rt.steps = 0
	rt.done = false
	rt.started = true
	return rt.observation(), models.Info{}, nil
}

// Step accelerates the car and moves it by its new velocity. If the path crosses a wall
// or leaves the grid the car crashes there; if it crosses a FINISH cell first, the car finishes.
func (rt *Racetrack) Step(action int) (result models.StepResult, err error) {
	if err = models.CheckAction(rt, action); err != nil {
		return
	}
	if rt.done || !rt.started {
		err = ErrNeedsReset
		return
	}

	a := ActionFromIndex(action)
	rt.vx = clamp(rt.vx+a.Dvx, MIN_VELOCITY, MAX_VELOCITY)
	rt.vy = clamp(rt.vy+a.Dvy, MIN_VELOCITY, MAX_VELOCITY)
	rt.steps++

	var cellType rune
	rt.x, rt.y, cellType = rt.traverse(rt.x, rt.y, rt.vx, rt.vy)

	switch cellType {
	case WALL:
		result.Reward = COLLISION_REWARD
		result.Terminated = true
	case FINISH:
		result.Reward = FINISH_REWARD
		result.Terminated = true
	default:
		result.Reward = STEP_REWARD
	}
	result.Truncated = !result.Terminated && rt.steps >= rt.maxSteps
	result.Observation = rt.observation()
	rt.done = result.Done()
	return
}

// traverse walks the line of sight from (x, y) along (vx, vy) in unit increments and returns
// the position where the move ends: the first WALL or FINISH crossed, or the destination.
// Leaving the grid counts as crashing at the last on-grid cell.
func (rt *Racetrack) traverse(x, y, vx, vy int) (int, int, rune) {
	norm := math.Sqrt(float64(vx*vx + vy*vy))
	if norm == 0 {
		return x, y, rt.cells[x][y]
	}

	numIter := int(math.Ceil(norm))
	dx, dy := float64(vx)/float64(numIter), float64(vy)/float64(numIter)
	xf, yf := float64(x), float64(y)
	for i := 0; i < numIter; i++ {
		xf += dx
		yf += dy
		nx, ny := int(math.Round(xf)), int(math.Round(yf))
		if nx < 0 || nx >= rt.Width() || ny < 0 || ny >= rt.Height() {
			return x, y, WALL
		}
		x, y = nx, ny
		if cellType := rt.cells[x][y]; cellType == WALL || cellType == FINISH {
			return x, y, cellType
		}
	}
	return x, y, rt.cells[x][y]
}

// Observe returns the scaled observation of the car at (x, y) with velocity (vx, vy).
func (rt *Racetrack) Observe(x, y, vx, vy int) []float64 {
	return []float64{
		scale(x, rt.Width()),
		scale(y, rt.Height()),
		float64(vx) / MAX_VELOCITY,
		float64(vy) / MAX_VELOCITY,
	}
}

func (rt *Racetrack) observation() []float64 {
	return rt.Observe(rt.x, rt.y, rt.vx, rt.vy)
}

// Probe evaluates the action values of a car at rest on every non-wall cell, in one batch.
// Cells are returned as rows in console/svg orientation: Cells[0] is the top row of the track.
// Wall cells carry no values.
func (rt *Racetrack) Probe(qvalues func(obs *mat.Dense) *mat.Dense) [][]models.CellValue {
	width, height := rt.Width(), rt.Height()
	cells := make([][]models.CellValue, height)
	var live [][2]int
	var data []float64
	for row := range cells {
		cells[row] = make([]models.CellValue, width)
		y := height - row - 1
		for x := 0; x < width; x++ {
			cells[row][x] = models.CellValue{X: x, Y: row, CellType: rt.cells[x][y]}
			if rt.cells[x][y] != WALL {
				live = append(live, [2]int{row, x})
				data = append(data, rt.Observe(x, y, 0, 0)...)
			}
		}
	}
	if len(live) == 0 {
		return cells
	}

	q := qvalues(mat.NewDense(len(live), rt.ObservationSize(), data))
	for i, rc := range live {
		cells[rc[0]][rc[1]].Q = mat.Row(nil, i, q)
	}
	return cells
}

// String shows the track, for visual reference, with the car's position marked 'C'.
func (rt *Racetrack) String() string {
	var sb strings.Builder
	for _, y := range Rev(rt.Height()) {
		for x := 0; x < rt.Width(); x++ {
			cellType := rt.cells[x][y]
			if rt.started && x == rt.x && y == rt.y {
				cellType = 'C'
			}
			sb.WriteString(fmt.Sprintf("%c ", cellType))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// ShowPolicy renders the greedy acceleration at each probed cell as one of ^, >, v, <, or '='
// for no acceleration. The velocity dimensions are projected out: cells are probed at rest.
func ShowPolicy(cells [][]models.CellValue) string {
	var sb strings.Builder
	for _, row := range cells {
		sb.WriteString(" ")
		for i := range row {
			if row[i].CellType == WALL || len(row[i].Q) == 0 {
				sb.WriteString("-       ")
				continue
			}
			action, value := row[i].Greedy()
			sb.WriteString(fmt.Sprintf("%c %6.2f ", putMaxDir(ActionFromIndex(action)), value))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Returns a rune representing the dominant direction of the acceleration.
func putMaxDir(a Action) rune {
	if math.Abs(float64(a.Dvx)) > math.Abs(float64(a.Dvy)) {
		if a.Dvx > 0 {
			return '>'
		}
		return '<'
	}
	if a.Dvy > 0 {
		return '^'
	}
	if a.Dvy < 0 {
		return 'v'
	}
	return '='
}

// Returns reversed indices of a slice, e.g. for ranging over.
func Rev(length int) []int {
	indices := make([]int, length)
	for i := 0; i < length; i++ {
		indices[i] = length - i - 1
	}
	return indices
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func scale(pos, size int) float64 {
	if size <= 1 {
		return 0
	}
	return float64(pos) / float64(size-1)
}
