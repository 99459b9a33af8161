package grid_world

import (
	"errors"
	"math"
	"strings"
	"testing"

	"sdmrl/models"

	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestActions(t *testing.T) {
	Convey("Action indices and accelerations are inverses", t, func() {
		seen := map[Action]bool{}
		for i := 0; i < NUM_ACTIONS; i++ {
			a := ActionFromIndex(i)
			So(a.Index(), ShouldEqual, i)
			So(a.Dvx, ShouldBeBetweenOrEqual, MIN_ACCELERATION, MAX_ACCELERATION)
			So(a.Dvy, ShouldBeBetweenOrEqual, MIN_ACCELERATION, MAX_ACCELERATION)
			seen[a] = true
		}
		So(len(seen), ShouldEqual, NUM_ACTIONS)
	})
}

func TestNewRacetrack(t *testing.T) {
	Convey("When converting tracks", t, func() {
		Convey("The full track converts with the bottom left cell at (0,0)", func() {
			rt, err := NewRacetrack(FullTrack, 1)
			So(err, ShouldBeNil)
			So(rt.Width(), ShouldEqual, 18)
			So(rt.Height(), ShouldEqual, 33)
			So(rt.CellType(4, 0), ShouldEqual, START)
			So(rt.CellType(17, 32), ShouldEqual, WALL)
			So(rt.CellType(17, 31), ShouldEqual, FINISH)
			So(rt.CellType(-1, 0), ShouldEqual, WALL)
		})

		Convey("Ragged, unknown or goal-less tracks are rejected", func() {
			for _, track := range [][]string{
				{},
				{"W-+", "Wo"},
				{"W-+", "WxW"},
				{"Wo+", "WoW"},
			} {
				_, err := NewRacetrack(track, 1)
				So(errors.Is(err, ErrInvalidTrack), ShouldBeTrue)
			}
		})
	})
}

func TestRacetrackStep(t *testing.T) {
	Convey("Given the debug track", t, func() {
		rt, _ := NewRacetrack(DebugTrack, 3)
		obs, _, err := rt.Reset(3)
		So(err, ShouldBeNil)

		Convey("The car starts at rest on a start cell", func() {
			So(rt.CellType(rt.x, rt.y), ShouldEqual, START)
			So(obs[1], ShouldEqual, 0)
			So(obs[2], ShouldEqual, 0)
			So(obs[3], ShouldEqual, 0)
		})

		Convey("Accelerating up moves along the track at a step cost", func() {
			result, err := rt.Step(Action{Dvx: 0, Dvy: 1}.Index())
			So(err, ShouldBeNil)
			So(result.Reward, ShouldEqual, STEP_REWARD)
			So(result.Done(), ShouldBeFalse)
			So(rt.y, ShouldEqual, 1)
			So(result.Observation[3], ShouldEqual, 1.0/MAX_VELOCITY)
		})

		Convey("Driving into a wall crashes and terminates", func() {
			rt.x, rt.y = 1, 0
			result, _ := rt.Step(Action{Dvx: -1, Dvy: 0}.Index())
			So(result.Reward, ShouldEqual, COLLISION_REWARD)
			So(result.Terminated, ShouldBeTrue)
			So(rt.CellType(rt.x, rt.y), ShouldEqual, WALL)

			Convey("Stepping again requires a reset", func() {
				_, err := rt.Step(0)
				So(errors.Is(err, ErrNeedsReset), ShouldBeTrue)
			})
		})

		Convey("Crossing the finish line ends the episode before leaving the grid", func() {
			rt.x, rt.y, rt.vx, rt.vy = 2, 6, 3, 0
			result, _ := rt.Step(Action{Dvx: 1, Dvy: 0}.Index())
			So(result.Reward, ShouldEqual, FINISH_REWARD)
			So(result.Terminated, ShouldBeTrue)
			So(rt.x, ShouldEqual, 5)
		})

		Convey("Episodes are truncated at the step cap", func() {
			rt.SetMaxSteps(1)
			result, _ := rt.Step(Action{}.Index())
			So(result.Terminated, ShouldBeFalse)
			So(result.Truncated, ShouldBeTrue)
		})

		Convey("Out of range actions are rejected", func() {
			_, err := rt.Step(NUM_ACTIONS)
			So(errors.Is(err, models.ErrInvalidAction), ShouldBeTrue)
		})

		Convey("The car is drawn on the track", func() {
			So(strings.Count(rt.String(), "C"), ShouldEqual, 1)
		})
	})
}

func TestProbe(t *testing.T) {
	Convey("Given a probe valuing each observation's sum, highest for accelerating right", t, func() {
		rt, _ := NewRacetrack(DebugTrack, 1)
		right := Action{Dvx: 1, Dvy: 0}.Index()
		calls := 0
		cells := rt.Probe(func(obs *mat.Dense) *mat.Dense {
			calls++
			rows, _ := obs.Dims()
			q := mat.NewDense(rows, NUM_ACTIONS, nil)
			for i := 0; i < rows; i++ {
				sum := floats.Sum(obs.RawRowView(i))
				for a := 0; a < NUM_ACTIONS; a++ {
					q.Set(i, a, sum-math.Abs(float64(a-right)))
				}
			}
			return q
		})

		Convey("All cells are probed in a single batch, rows top to bottom", func() {
			So(calls, ShouldEqual, 1)
			So(len(cells), ShouldEqual, rt.Height())
			So(len(cells[0]), ShouldEqual, rt.Width())
			So(cells[0][0].CellType, ShouldEqual, WALL)
			So(cells[7][1].CellType, ShouldEqual, START)
		})

		Convey("Walls carry no values and live cells carry one per action", func() {
			So(cells[0][0].Q, ShouldBeNil)
			So(len(cells[1][5].Q), ShouldEqual, NUM_ACTIONS)
			action, value := cells[1][5].Greedy()
			So(action, ShouldEqual, right)
			// (x, y) = (5, 6) scaled on a 6x8 grid, at rest.
			So(value, ShouldAlmostEqual, 1+6.0/7, 1e-12)
		})

		Convey("The policy renders one arrow per live cell", func() {
			policy := ShowPolicy(cells)
			So(strings.Count(policy, "\n"), ShouldEqual, rt.Height())
			So(strings.Count(policy, "^"), ShouldEqual, 0)
			So(strings.Count(policy, ">"), ShouldBeGreaterThan, 0)
		})
	})
}
