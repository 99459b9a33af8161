package cart_pole

import (
	"errors"
	"testing"

	"sdmrl/models"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCartPole(t *testing.T) {
	Convey("Given a reset cart pole", t, func() {
		cp := NewCartPole(0)
		obs, _, err := cp.Reset(7)
		So(err, ShouldBeNil)

		Convey("The initial state is within the reset bounds", func() {
			So(len(obs), ShouldEqual, 4)
			for _, v := range obs {
				So(v, ShouldBeBetweenOrEqual, -0.05, 0.05)
			}
		})

		Convey("Resetting with the same seed reproduces the state", func() {
			again, _, _ := NewCartPole(99).Reset(7)
			So(again, ShouldResemble, obs)
		})

		Convey("Always pushing right ends the episode by termination with reward 1 per step", func() {
			total := 0.0
			var result models.StepResult
			for !result.Done() {
				result, err = cp.Step(1)
				So(err, ShouldBeNil)
				total += result.Reward
			}
			So(result.Terminated, ShouldBeTrue)
			So(result.Truncated, ShouldBeFalse)
			So(total, ShouldBeLessThan, MaxEpisodeSteps)

			Convey("Stepping again requires a reset", func() {
				_, err = cp.Step(0)
				So(errors.Is(err, ErrNeedsReset), ShouldBeTrue)
			})
		})

		Convey("Out of range actions are rejected", func() {
			_, err = cp.Step(2)
			So(errors.Is(err, models.ErrInvalidAction), ShouldBeTrue)
		})

		Convey("An upright pole is truncated at the step limit", func() {
			cp.state = [4]float64{}
			cp.steps = MaxEpisodeSteps - 1
			result, err := cp.Step(0)
			So(err, ShouldBeNil)
			So(result.Terminated, ShouldBeFalse)
			So(result.Truncated, ShouldBeTrue)
		})
	})
}
