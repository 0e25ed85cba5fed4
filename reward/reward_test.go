package reward

import (
	"math/rand"
	"testing"

	. "gnneval/grid_world"

	. "github.com/smartystreets/goconvey/convey"
)

func newConfig(size, fov, robots int) *Config {
	return &Config{GridSize: size, FOV: fov, NumRobots: robots, Directions: DefaultDirections}
}

func allStay(n int) []Direction {
	actions := make([]Direction, n)
	for i := range actions {
		actions[i] = STAY
	}
	return actions
}

func randomScenario(rng *rand.Rand, cfg *Config) (Grid, []Pos, []Direction) {
	grid := NewGrid(cfg.GridSize)
	Visit(grid, func(r, c int) { grid[r][c] = float64(rng.Intn(10)) })
	robots := make([]Pos, cfg.NumRobots)
	actions := make([]Direction, cfg.NumRobots)
	for i := range robots {
		robots[i] = Pos{R: rng.Intn(cfg.GridSize), C: rng.Intn(cfg.GridSize)}
		actions[i] = Direction(rng.Intn(len(cfg.Directions)))
	}
	return grid, robots, actions
}

// stationaryUnion builds the expected mask for all-STAY actions: each robot's
// (2*fov+1)^2 box, clipped.
func stationaryUnion(cfg *Config, robots []Pos) Mask {
	mask := NewMask(cfg.GridSize)
	Visit(mask, func(r, c int) {
		for _, pos := range robots {
			dr, dc := r-pos.R, c-pos.C
			if dr >= -cfg.FOV && dr <= cfg.FOV && dc >= -cfg.FOV && dc <= cfg.FOV {
				mask[r][c] = 1
			}
		}
	})
	return mask
}

func TestEvaluate(t *testing.T) {
	Convey("Given a 4x4 grid of ones", t, func() {
		grid := Fill(4, 1)

		Convey("When one robot at (1,1) stays with fov 1", func() {
			cfg := newConfig(4, 1, 1)
			total, mask := Evaluate(cfg, grid, []Pos{{R: 1, C: 1}}, []Direction{STAY})

			Convey("The mask covers rows [0,3) x cols [0,3) and the reward is 9", func() {
				So(total, ShouldEqual, 9)
				So(mask.Count(), ShouldEqual, 9)
				for r := 0; r < 4; r++ {
					for c := 0; c < 4; c++ {
						want := uint8(0)
						if r < 3 && c < 3 {
							want = 1
						}
						So(mask[r][c], ShouldEqual, want)
					}
				}
			})
		})

		Convey("When a robot moves down from (0,0) with fov 0", func() {
			cfg := newConfig(4, 0, 1)
			total, mask := Evaluate(cfg, grid, []Pos{{R: 0, C: 0}}, []Direction{DOWN})

			Convey("Exactly (0,0) and (1,0) are covered", func() {
				So(total, ShouldEqual, 2)
				So(mask.Count(), ShouldEqual, 2)
				So(mask[0][0], ShouldEqual, 1)
				So(mask[1][0], ShouldEqual, 1)
			})
		})

		Convey("When a corner robot moves further into the corner", func() {
			cfg := newConfig(4, 1, 1)
			_, upMask := Evaluate(cfg, grid, []Pos{{R: 0, C: 0}}, []Direction{UP})
			_, leftMask := Evaluate(cfg, grid, []Pos{{R: 0, C: 0}}, []Direction{LEFT})

			Convey("The mask is clipped to rows/cols [0, fov+1)", func() {
				for _, mask := range []Mask{upMask, leftMask} {
					So(mask.Count(), ShouldEqual, 4)
					So(mask[0][0]+mask[0][1]+mask[1][0]+mask[1][1], ShouldEqual, 4)
				}
			})
		})

		Convey("When a robot at the far corner moves off the grid", func() {
			cfg := newConfig(4, 0, 1)
			next := NextPositions(cfg, []Pos{{R: 3, C: 3}}, []Direction{RIGHT})
			So(next[0], ShouldResemble, Pos{R: 3, C: 3})
		})

		Convey("When two robots share the same box", func() {
			cfg := newConfig(4, 1, 2)
			both, bothMask := Evaluate(cfg, grid, []Pos{{R: 1, C: 1}, {R: 1, C: 1}}, []Direction{STAY, STAY})
			single, singleMask := Evaluate(newConfig(4, 1, 1), grid, []Pos{{R: 1, C: 1}}, []Direction{STAY})

			Convey("Overlapping coverage is counted once", func() {
				So(both, ShouldEqual, single)
				So(bothMask.Equal(singleMask), ShouldBeTrue)
			})
		})
	})

	Convey("Given random scenarios", t, func() {
		rng := rand.New(rand.NewSource(7))
		cfg := newConfig(12, 2, 5)

		Convey("All-stay actions produce the union of centered boxes", func() {
			for trial := 0; trial < 50; trial++ {
				grid, robots, _ := randomScenario(rng, cfg)
				_, mask := Evaluate(cfg, grid, robots, allStay(cfg.NumRobots))
				So(mask.Equal(stationaryUnion(cfg, robots)), ShouldBeTrue)
			}
		})

		Convey("Re-evaluation is bit-identical", func() {
			for trial := 0; trial < 50; trial++ {
				grid, robots, actions := randomScenario(rng, cfg)
				t1, m1 := Evaluate(cfg, grid, robots, actions)
				t2, m2 := Evaluate(cfg, grid, robots, actions)
				So(t1, ShouldEqual, t2)
				So(m1.Equal(m2), ShouldBeTrue)
			}
		})

		Convey("Reward responds only to cells inside the mask", func() {
			for trial := 0; trial < 50; trial++ {
				grid, robots, actions := randomScenario(rng, cfg)
				total, mask := Evaluate(cfg, grid, robots, actions)
				r, c := rng.Intn(cfg.GridSize), rng.Intn(cfg.GridSize)

				bumped := grid.Copy()
				bumped[r][c] += 3
				bumpedTotal, _ := Evaluate(cfg, bumped, robots, actions)
				if mask[r][c] == 1 {
					So(bumpedTotal, ShouldEqual, total+3)
				} else {
					So(bumpedTotal, ShouldEqual, total)
				}
			}
		})

		Convey("The reward equals the masked sum and the mask matches the grid shape", func() {
			grid, robots, actions := randomScenario(rng, cfg)
			total, mask := Evaluate(cfg, grid, robots, actions)
			sum := 0.0
			Visit(grid, func(r, c int) {
				if mask[r][c] == 1 {
					sum += grid[r][c]
				}
			})
			So(total, ShouldEqual, sum)
			So(len(mask), ShouldEqual, cfg.GridSize)
			So(len(mask[0]), ShouldEqual, cfg.GridSize)
		})
	})
}

func TestSweptBox(t *testing.T) {
	Convey("A diagonal move spans both endpoints padded by fov", t, func() {
		cfg := newConfig(10, 1, 1)
		box := SweptBox(cfg, Pos{R: 4, C: 4}, Pos{R: 5, C: 3})
		So(box, ShouldResemble, Box{Row0: 3, Col0: 2, Row1: 7, Col1: 6})
	})
}
