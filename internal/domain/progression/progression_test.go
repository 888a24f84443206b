package progression_test

import (
	"errors"
	"testing"

	"github.com/okian/helpquest/internal/domain/model"
	"github.com/okian/helpquest/internal/domain/progression"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNextLevelThreshold(t *testing.T) {
	Convey("Given the default curve", t, func() {
		Convey("It should follow floor(100 * 1.5^(level-1))", func() {
			So(progression.NextLevelThreshold(1), ShouldEqual, 100)
			So(progression.NextLevelThreshold(2), ShouldEqual, 150)
			So(progression.NextLevelThreshold(3), ShouldEqual, 225)
			So(progression.NextLevelThreshold(4), ShouldEqual, 337)
			So(progression.NextLevelThreshold(5), ShouldEqual, 506)
		})

		Convey("It should be strictly increasing", func() {
			for level := 1; level < 90; level++ {
				So(progression.NextLevelThreshold(level+1), ShouldBeGreaterThan, progression.NextLevelThreshold(level))
			}
		})

		Convey("Levels below 1 should be treated as level 1", func() {
			So(progression.NextLevelThreshold(0), ShouldEqual, 100)
			So(progression.NextLevelThreshold(-3), ShouldEqual, 100)
		})

		Convey("Huge levels should saturate instead of overflowing", func() {
			So(progression.NextLevelThreshold(5000), ShouldBeGreaterThan, 0)
		})
	})
}

func TestAddExperience(t *testing.T) {
	Convey("Given a fresh player", t, func() {
		p := model.NewPlayer("u")

		Convey("Granting 100 should reach level 2 with 0 experience", func() {
			res, err := progression.AddExperience(p, 100)
			So(err, ShouldBeNil)
			So(res.Player.Level, ShouldEqual, 2)
			So(res.Player.Experience, ShouldEqual, 0)
			So(res.LevelsGained, ShouldEqual, 1)
			So(res.LevelsReached, ShouldResemble, []int{2})
		})

		Convey("Granting 1000 should roll over several levels", func() {
			res, err := progression.AddExperience(p, 1000)
			So(err, ShouldBeNil)
			// 1000 - 100 - 150 - 225 - 337 = 188 < 506
			So(res.Player.Level, ShouldEqual, 5)
			So(res.Player.Experience, ShouldEqual, 188)
			So(res.LevelsReached, ShouldResemble, []int{2, 3, 4, 5})
		})

		Convey("Granting 0 should change nothing", func() {
			res, err := progression.AddExperience(p, 0)
			So(err, ShouldBeNil)
			So(res.Player, ShouldResemble, p)
			So(res.LevelsGained, ShouldEqual, 0)
		})

		Convey("A negative grant should be rejected, not clamped", func() {
			res, err := progression.AddExperience(p, -5)
			So(errors.Is(err, progression.ErrInvalidAmount), ShouldBeTrue)
			So(res.Player, ShouldResemble, p)
		})

		Convey("The rollover invariant should hold for many amounts", func() {
			for _, amount := range []int{1, 99, 100, 101, 250, 777, 5000, 123456} {
				res, err := progression.AddExperience(p, amount)
				So(err, ShouldBeNil)
				So(res.Player.Experience, ShouldBeLessThan, progression.NextLevelThreshold(res.Player.Level))
				So(progression.TotalExperience(res.Player.Level, res.Player.Experience), ShouldEqual, amount)
			}
		})
	})

	Convey("Given a player with an out-of-range record", t, func() {
		p := model.Player{ID: "u", Level: 0, Experience: 130}

		Convey("Normalize should clamp the level and roll over", func() {
			n := progression.Normalize(p)
			So(n.Level, ShouldEqual, 2)
			So(n.Experience, ShouldEqual, 30)
		})
	})
}

func TestCustomCurve(t *testing.T) {
	Convey("Given a curve with base 10 and growth 2", t, func() {
		c := progression.NewCurve(progression.WithBase(10), progression.WithGrowth(2))

		Convey("Thresholds should double each level", func() {
			So(c.Threshold(1), ShouldEqual, 10)
			So(c.Threshold(2), ShouldEqual, 20)
			So(c.Threshold(3), ShouldEqual, 40)
		})

		Convey("Invalid options should be ignored", func() {
			d := progression.NewCurve(progression.WithBase(-1), progression.WithGrowth(0.5))
			So(d.Threshold(1), ShouldEqual, 100)
			So(d.Threshold(2), ShouldEqual, 150)
		})
	})
}
