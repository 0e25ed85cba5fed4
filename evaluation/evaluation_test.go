package evaluation

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"gnneval/dataset"
	. "gnneval/grid_world"
	"gnneval/policy"

	. "github.com/smartystreets/goconvey/convey"
	"gorgonia.org/tensor"
)

func testEvalConfig() *EvalConfig {
	cfg := DefaultEvalConfig()
	cfg.GridSize = 6
	cfg.NumRobots = 2
	cfg.FOV = 1
	cfg.TargetFeatures = 3
	cfg.RobotFeatures = 1
	cfg.Generator = dataset.GenConfig{RewardThresh: 0.5, CommRange: 4, TargetFeatures: 3, RobotFeatures: 1}
	cfg.Workers = 3
	cfg.Seed = 7
	return cfg
}

// labeled generates scenarios and gives them deterministic ground-truth labels.
func labeled(cfg *EvalConfig, count int) []dataset.Scenario {
	scenarios, err := dataset.Generate(rand.New(rand.NewSource(3)), &cfg.Config, cfg.Generator, count)
	if err != nil {
		panic(err)
	}
	for i := range scenarios {
		actions := make([]Direction, cfg.NumRobots)
		for r := range actions {
			actions[r] = Direction((i + r) % len(cfg.Directions))
		}
		scenarios[i].Labels = dataset.OneHot(actions, len(cfg.Directions))
	}
	return scenarios
}

func groundTruth(scenarios []dataset.Scenario) [][]Direction {
	gt := make([][]Direction, len(scenarios))
	for i := range scenarios {
		gt[i] = scenarios[i].Actions()
	}
	return gt
}

func TestAccuracy(t *testing.T) {
	Convey("Accuracy tests", t, func() {
		gt := [][]Direction{{UP, DOWN}, {LEFT, STAY}}

		Convey("When every prediction matches, accuracy is one", func() {
			acc, err := Accuracy(gt, [][]Direction{{UP, DOWN}, {LEFT, STAY}})
			So(err, ShouldBeNil)
			So(acc, ShouldEqual, 1.0)
		})

		Convey("When every prediction misses, accuracy is zero", func() {
			acc, err := Accuracy(gt, [][]Direction{{DOWN, UP}, {RIGHT, LEFT}})
			So(err, ShouldBeNil)
			So(acc, ShouldEqual, 0.0)
		})

		Convey("Accuracy counts individual robot actions", func() {
			acc, err := Accuracy(gt, [][]Direction{{UP, UP}, {UP, UP}})
			So(err, ShouldBeNil)
			So(acc, ShouldEqual, 0.25)
		})

		Convey("Mismatched shapes and empty input are rejected", func() {
			_, err := Accuracy(gt, [][]Direction{{UP, DOWN}})
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
			_, err = Accuracy(gt, [][]Direction{{UP}, {LEFT, STAY}})
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
			_, err = Accuracy(nil, nil)
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestCompare(t *testing.T) {
	Convey("Given a 4x4 grid of ones and one robot", t, func() {
		cfg := &Config{GridSize: 4, FOV: 1, NumRobots: 1, Directions: DefaultDirections}
		grid := Fill(4, 1)
		robots := []Pos{{R: 1, C: 1}}

		Convey("Each producer is scored independently", func() {
			cmp, err := Compare(cfg, grid, robots, []Direction{STAY}, []Direction{DOWN}, []Direction{UP})
			So(err, ShouldBeNil)
			So(cmp.GT.Reward, ShouldEqual, 9.0)
			So(cmp.Pred.Reward, ShouldEqual, 12.0)
			So(cmp.Random.Reward, ShouldEqual, 9.0)
			So(cmp.GT.Mask.Count(), ShouldEqual, 9)
		})

		Convey("An invalid action in any producer is rejected", func() {
			_, err := Compare(cfg, grid, robots, []Direction{STAY}, []Direction{Direction(9)}, []Direction{UP})
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
		})

		Convey("A robot off the grid is rejected", func() {
			_, err := Compare(cfg, grid, []Pos{{R: 4, C: 0}}, []Direction{STAY}, []Direction{STAY}, []Direction{STAY})
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestRandomActions(t *testing.T) {
	Convey("Random actions are valid codes and reproducible by seed", t, func() {
		first := RandomActions(rand.New(rand.NewSource(5)), 20, 4, 5)
		second := RandomActions(rand.New(rand.NewSource(5)), 20, 4, 5)
		So(first, ShouldResemble, second)
		for _, actions := range first {
			So(len(actions), ShouldEqual, 4)
			for _, dir := range actions {
				So(DefaultDirections.Valid(dir), ShouldBeTrue)
			}
		}
	})
}

func TestRun(t *testing.T) {
	Convey("Given labeled scenarios", t, func() {
		cfg := testEvalConfig()
		scenarios := labeled(cfg, 8)
		gt := groundTruth(scenarios)
		ctx := context.Background()

		Convey("When the policy reproduces the labels", func() {
			pol := &policy.Replay{Actions: gt, NumDirs: len(cfg.Directions)}
			var calls atomic.Int32
			report, err := Run(ctx, cfg, scenarios, pol, func(_ context.Context, _ Comparison) {
				calls.Add(1)
			})
			So(err, ShouldBeNil)

			Convey("Accuracy is one and prediction earns what ground truth earns", func() {
				So(report.Accuracy, ShouldEqual, 1.0)
				So(report.MeanReward.Pred, ShouldAlmostEqual, report.MeanReward.GT)
				for _, cmp := range report.Comparisons {
					So(cmp.Pred.Mask.Equal(cmp.GT.Mask), ShouldBeTrue)
				}
			})

			Convey("Every scenario is compared in its own slot and reported once", func() {
				So(calls.Load(), ShouldEqual, 8)
				So(len(report.Comparisons), ShouldEqual, 8)
				for i, cmp := range report.Comparisons {
					So(cmp.Index, ShouldEqual, i)
					So(cmp.GT.Actions, ShouldResemble, gt[i])
				}
				So(report.RunID, ShouldNotBeEmpty)
			})

			Convey("The report prints a line per scenario", func() {
				buf := &bytes.Buffer{}
				report.Show(buf)
				So(buf.String(), ShouldContainSubstring, "accuracy: 1.0000")
				So(bytes.Count(buf.Bytes(), []byte("\n")), ShouldEqual, 4+8)
			})
		})

		Convey("When the policy never agrees, accuracy is zero", func() {
			wrong := make([][]Direction, len(gt))
			for i := range gt {
				wrong[i] = make([]Direction, len(gt[i]))
				for r, dir := range gt[i] {
					wrong[i][r] = (dir + 1) % Direction(len(cfg.Directions))
				}
			}
			report, err := Run(ctx, cfg, scenarios, &policy.Replay{Actions: wrong, NumDirs: len(cfg.Directions)}, nil)
			So(err, ShouldBeNil)
			So(report.Accuracy, ShouldEqual, 0.0)
		})

		Convey("The random baseline is reproducible for a fixed seed and worker count independent", func() {
			pol := &policy.Replay{Actions: gt, NumDirs: len(cfg.Directions)}
			first, err := Run(ctx, cfg, scenarios, pol, nil)
			So(err, ShouldBeNil)
			cfg.Workers = 1
			second, err := Run(ctx, cfg, scenarios, pol, nil)
			So(err, ShouldBeNil)
			for i := range first.Comparisons {
				So(second.Comparisons[i].Random.Actions, ShouldResemble, first.Comparisons[i].Random.Actions)
				So(second.Comparisons[i].Random.Reward, ShouldEqual, first.Comparisons[i].Random.Reward)
			}
			So(second.MeanReward, ShouldResemble, first.MeanReward)
		})

		Convey("Policy errors are returned", func() {
			boom := errors.New("boom")
			pol := policy.PolicyFunc(func(context.Context, tensor.Tensor, tensor.Tensor) ([][][]float32, error) {
				return nil, boom
			})
			_, err := Run(ctx, cfg, scenarios, pol, nil)
			So(errors.Is(err, boom), ShouldBeTrue)
		})

		Convey("Scores of the wrong shape are rejected", func() {
			pol := policy.PolicyFunc(func(context.Context, tensor.Tensor, tensor.Tensor) ([][][]float32, error) {
				return make([][][]float32, 1), nil
			})
			_, err := Run(ctx, cfg, scenarios, pol, nil)
			So(errors.Is(err, policy.ErrShape), ShouldBeTrue)
		})

		Convey("A config with a negative feature count is rejected before prediction", func() {
			cfg.TargetFeatures = -1
			var report *Report
			var err error
			So(func() {
				report, err = Run(ctx, cfg, scenarios, &policy.Replay{Actions: gt, NumDirs: len(cfg.Directions)}, nil)
			}, ShouldNotPanic)
			So(report, ShouldBeNil)
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
		})

		Convey("A malformed scenario is rejected before prediction", func() {
			scenarios[2].Robots = scenarios[2].Robots[:1]
			_, err := Run(ctx, cfg, scenarios, &policy.Replay{Actions: gt, NumDirs: len(cfg.Directions)}, nil)
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
		})

		Convey("A cancelled context stops the run", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := Run(cancelled, cfg, scenarios, &policy.Replay{Actions: gt, NumDirs: len(cfg.Directions)}, nil)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})

		Convey("Stored predictions can be replayed", func() {
			for i := range scenarios {
				scenarios[i].Predicted = gt[i]
			}
			pol, err := ReplayPolicy(&cfg.Config, scenarios)
			So(err, ShouldBeNil)
			report, err := Run(ctx, cfg, scenarios, pol, nil)
			So(err, ShouldBeNil)
			So(report.Accuracy, ShouldEqual, 1.0)

			scenarios[0].Predicted = nil
			_, err = ReplayPolicy(&cfg.Config, scenarios)
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestRunMeansAreExact(t *testing.T) {
	Convey("Given many scenarios with fractional rewards", t, func() {
		cfg := testEvalConfig()
		cfg.GridSize = 12
		cfg.NumRobots = 4
		cfg.Generator.RewardThresh = 0.3
		scenarios := labeled(cfg, 300)
		gt := groundTruth(scenarios)
		pol := &policy.Replay{Actions: gt, NumDirs: len(cfg.Directions)}

		Convey("Mean rewards are bit-identical across worker counts and repeated runs", func() {
			cfg.Workers = 1
			serial, err := Run(context.Background(), cfg, scenarios, pol, nil)
			So(err, ShouldBeNil)

			cfg.Workers = 16
			for run := 0; run < 10; run++ {
				parallel, err := Run(context.Background(), cfg, scenarios, pol, nil)
				So(err, ShouldBeNil)
				So(math.Float64bits(parallel.MeanReward.GT), ShouldEqual, math.Float64bits(serial.MeanReward.GT))
				So(math.Float64bits(parallel.MeanReward.Pred), ShouldEqual, math.Float64bits(serial.MeanReward.Pred))
				So(math.Float64bits(parallel.MeanReward.Random), ShouldEqual, math.Float64bits(serial.MeanReward.Random))
			}
		})

		Convey("Means are taken in scenario order", func() {
			report, err := Run(context.Background(), cfg, scenarios, pol, nil)
			So(err, ShouldBeNil)
			sum := 0.0
			for _, cmp := range report.Comparisons {
				sum += cmp.Random.Reward
			}
			So(report.MeanReward.Random, ShouldEqual, sum/float64(len(scenarios)))
		})
	})
}

func TestFromYaml(t *testing.T) {
	Convey("Config tests", t, func() {
		dir := t.TempDir()
		write := func(body string) string {
			path := filepath.Join(dir, "config.yaml")
			So(os.WriteFile(path, []byte(body), 0o644), ShouldBeNil)
			return path
		}

		Convey("A config document overrides the defaults it names", func() {
			path := write(`kind: evaluation
def:
  gridSize: 12
  fov: 2
  numRobots: 4
  targetFeatures: 5
  robotFeatures: 2
  seed: 99
  workers: 0
  deadline:
    duration: 5s
  generator:
    rewardThresh: 0.8
    commRange: 3
  model:
    featureInput: x
    adjacencyInput: s
    robotMajor: true
`)
			cfg, err := FromYaml(path)
			So(err, ShouldBeNil)
			So(cfg.GridSize, ShouldEqual, 12)
			So(cfg.FOV, ShouldEqual, 2)
			So(cfg.NumRobots, ShouldEqual, 4)
			So(cfg.NumFeature(), ShouldEqual, 7)
			So(cfg.Seed, ShouldEqual, 99)
			So(cfg.Workers, ShouldEqual, 1)
			So(cfg.Generator.RewardThresh, ShouldEqual, 0.8)
			So(cfg.Generator.CommRange, ShouldEqual, 3)
			So(cfg.Model.FeatureInput, ShouldEqual, "x")
			So(cfg.Model.AdjacencyInput, ShouldEqual, "s")
			So(cfg.Model.RobotMajor, ShouldBeTrue)
			So(cfg.Directions, ShouldResemble, DefaultDirections)

			ctx, cancel, err := cfg.WithDeadline(context.Background())
			So(err, ShouldBeNil)
			defer cancel()
			_, hasDeadline := ctx.Deadline()
			So(hasDeadline, ShouldBeTrue)
		})

		Convey("Omitted fields keep their defaults", func() {
			cfg, err := FromYaml(write("kind: evaluation\ndef:\n  fov: 0\n"))
			So(err, ShouldBeNil)
			So(cfg.FOV, ShouldEqual, 0)
			So(cfg.GridSize, ShouldEqual, DefaultConfig().GridSize)
			So(cfg.Model.FeatureInput, ShouldEqual, "features")
		})

		Convey("The wrong kind is rejected", func() {
			_, err := FromYaml(write("kind: training\ndef:\n  fov: 1\n"))
			So(err, ShouldNotBeNil)
		})

		Convey("An invalid config is rejected", func() {
			_, err := FromYaml(write("kind: evaluation\ndef:\n  gridSize: 0\n"))
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
		})

		Convey("More robots than grid cells is rejected", func() {
			_, err := FromYaml(write("kind: evaluation\ndef:\n  gridSize: 2\n  numRobots: 5\n"))
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
		})

		Convey("Negative feature counts are rejected", func() {
			_, err := FromYaml(write("kind: evaluation\ndef:\n  targetFeatures: -1\n"))
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)

			_, err = FromYaml(write("kind: evaluation\ndef:\n  robotFeatures: -2\n"))
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)

			_, err = FromYaml(write("kind: evaluation\ndef:\n  generator:\n    targetFeatures: -4\n"))
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
		})

		Convey("A model with no features at all is rejected", func() {
			_, err := FromYaml(write("kind: evaluation\ndef:\n  targetFeatures: 0\n  robotFeatures: 0\n"))
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
		})

		Convey("A bad deadline is reported", func() {
			cfg := DefaultEvalConfig()
			cfg.Deadline = map[string]string{"duration": "soon"}
			_, _, err := cfg.WithDeadline(context.Background())
			So(err, ShouldNotBeNil)
		})
	})
}
