package replay

import (
	"errors"
	"testing"

	"sdmrl/models"

	. "github.com/smartystreets/goconvey/convey"
)

func transition(i int) models.Transition {
	return models.Transition{
		Observation:     []float64{float64(i)},
		Action:          i % 2,
		Reward:          float64(i),
		NextObservation: []float64{float64(i + 1)},
		Done:            i%3 == 0,
	}
}

func TestBuffer(t *testing.T) {
	Convey("When a buffer is created", t, func() {
		buf, err := NewBuffer(4, 7)
		So(err, ShouldBeNil)

		Convey("Sampling before adding fails", func() {
			_, err := buf.Sample(2)
			So(errors.Is(err, ErrEmptyBuffer), ShouldBeTrue)
		})

		Convey("Sampling more than stored draws with replacement", func() {
			buf.Add(transition(1))
			batch, err := buf.Sample(5)
			So(err, ShouldBeNil)
			So(batch.Size(), ShouldEqual, 5)
			for i := 0; i < 5; i++ {
				So(batch.Observations.At(i, 0), ShouldEqual, 1.0)
				So(batch.NextObservations.At(i, 0), ShouldEqual, 2.0)
			}
		})

		Convey("Once full, the oldest transitions are overwritten", func() {
			for i := 0; i < 10; i++ {
				buf.Add(transition(i))
			}
			So(buf.Len(), ShouldEqual, 4)
			So(buf.Added(), ShouldEqual, 10)

			batch, err := buf.Sample(64)
			So(err, ShouldBeNil)
			for i := 0; i < batch.Size(); i++ {
				So(batch.Observations.At(i, 0), ShouldBeGreaterThanOrEqualTo, 6.0)
				So(batch.Rewards[i], ShouldEqual, batch.Observations.At(i, 0))
			}
		})

		Convey("Stored transitions do not alias the caller's slices", func() {
			tr := transition(2)
			buf.Add(tr)
			tr.Observation[0] = 100
			batch, _ := buf.Sample(1)
			So(batch.Observations.At(0, 0), ShouldEqual, 2.0)
		})
	})

	Convey("A non-positive capacity is rejected", t, func() {
		_, err := NewBuffer(0, 1)
		So(err, ShouldNotBeNil)
	})
}
