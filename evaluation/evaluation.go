// evaluation compares the actions of a trained policy against ground truth and
// a uniform random baseline. Each producer's actions are scored by the reward
// evaluator on the same grid, and the policy's per-robot accuracy is reported.
package evaluation

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"gnneval/dataset"
	. "gnneval/grid_world"
	"gnneval/policy"
	"gnneval/reward"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Outcome is one producer's actions on a scenario and what they earned.
type Outcome struct {
	Actions []Direction
	Reward  float64
	Mask    Mask
}

// Comparison holds the three producers' outcomes on one scenario.
type Comparison struct {
	Index  int
	Grid   Grid
	Robots []Pos
	GT     Outcome
	Pred   Outcome
	Random Outcome
}

// Compare validates a scenario and its three action vectors, then scores each
// with the reward evaluator.
func Compare(
	cfg *Config,
	grid Grid,
	robots []Pos,
	gt, pred, rnd []Direction,
) (cmp Comparison, err error) {
	for _, actions := range [][]Direction{gt, pred, rnd} {
		if err = cfg.CheckInputs(grid, robots, actions); err != nil {
			return
		}
	}

	score := func(actions []Direction) Outcome {
		total, mask := reward.Evaluate(cfg, grid, robots, actions)
		return Outcome{Actions: actions, Reward: total, Mask: mask}
	}
	cmp = Comparison{
		Grid:   grid,
		Robots: robots,
		GT:     score(gt),
		Pred:   score(pred),
		Random: score(rnd),
	}
	return
}

// Accuracy is the fraction of individual robot actions in pred that match gt.
func Accuracy(gt, pred [][]Direction) (float64, error) {
	if len(gt) != len(pred) {
		return 0, fmt.Errorf("%w: %d ground-truth scenarios but %d predictions", ErrInvalidInput, len(gt), len(pred))
	}
	matched, total := 0, 0
	for i := range gt {
		if len(gt[i]) != len(pred[i]) {
			return 0, fmt.Errorf("%w: scenario %d has %d ground-truth actions but %d predictions",
				ErrInvalidInput, i, len(gt[i]), len(pred[i]))
		}
		for r := range gt[i] {
			if gt[i][r] == pred[i][r] {
				matched++
			}
			total++
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("%w: no actions to score", ErrInvalidInput)
	}
	return float64(matched) / float64(total), nil
}

// RandomActions draws a uniform random direction code per robot per scenario.
func RandomActions(rng *rand.Rand, numScenarios, numRobots, numDirs int) [][]Direction {
	actions := make([][]Direction, numScenarios)
	for i := range actions {
		actions[i] = make([]Direction, numRobots)
		for r := range actions[i] {
			actions[i][r] = Direction(rng.Intn(numDirs))
		}
	}
	return actions
}

// MeanReward is the average reward of each producer over a run.
type MeanReward struct {
	GT     float64
	Pred   float64
	Random float64
}

// Report is the result of one evaluation run.
type Report struct {
	RunID       string
	CreatedAt   time.Time
	Config      Config
	Accuracy    float64
	MeanReward  MeanReward
	Comparisons []Comparison
}

// ProgressFunc is called once per compared scenario, from the worker that
// compared it. It should complete quickly and respect ctx cancellation.
type ProgressFunc func(context.Context, Comparison)

// Run evaluates a policy over a batch of scenarios: the policy predicts actions
// from the scenarios' features and adjacency, a seeded random baseline is drawn,
// and every scenario is compared. Scenarios are independent, so they are spread
// over cfg.Workers goroutines; each writes only its own slot of the report, and
// the means are taken over the slots once all workers are done.
func Run(
	ctx context.Context,
	cfg *EvalConfig,
	scenarios []dataset.Scenario,
	pol policy.Policy,
	progressFn ProgressFunc,
) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("%w: no scenarios", ErrInvalidInput)
	}
	for i := range scenarios {
		if err := scenarios[i].Check(&cfg.Config); err != nil {
			return nil, fmt.Errorf("scenario %d: %w", i, err)
		}
	}

	predicted, err := predict(ctx, cfg, scenarios, pol)
	if err != nil {
		return nil, err
	}

	gt := make([][]Direction, len(scenarios))
	for i := range scenarios {
		gt[i] = scenarios[i].Actions()
	}

	accuracy, err := Accuracy(gt, predicted)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	random := RandomActions(rng, len(scenarios), cfg.NumRobots, len(cfg.Directions))

	comparisons := make([]Comparison, len(scenarios))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(1, cfg.Workers))
	for i := range scenarios {
		if groupCtx.Err() != nil {
			break
		}
		i := i
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			s := &scenarios[i]
			cmp, err := Compare(&cfg.Config, s.Grid, s.Robots, gt[i], predicted[i], random[i])
			if err != nil {
				return fmt.Errorf("scenario %d: %w", i, err)
			}
			cmp.Index = i
			comparisons[i] = cmp

			if progressFn != nil {
				progressFn(groupCtx, cmp)
			}
			return nil
		})
	}
	if err = group.Wait(); err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	return &Report{
		RunID:       uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		Config:      cfg.Config,
		Accuracy:    accuracy,
		MeanReward:  meanRewards(comparisons),
		Comparisons: comparisons,
	}, nil
}

// meanRewards sums in scenario order, so the means are bit-identical whatever
// order the workers finished in.
func meanRewards(comparisons []Comparison) (mean MeanReward) {
	if len(comparisons) == 0 {
		return
	}
	for i := range comparisons {
		mean.GT += comparisons[i].GT.Reward
		mean.Pred += comparisons[i].Pred.Reward
		mean.Random += comparisons[i].Random.Reward
	}
	n := float64(len(comparisons))
	mean.GT /= n
	mean.Pred /= n
	mean.Random /= n
	return
}

// predict builds the model inputs for the whole batch and decodes the policy's
// scores to one direction per robot.
func predict(
	ctx context.Context,
	cfg *EvalConfig,
	scenarios []dataset.Scenario,
	pol policy.Policy,
) ([][]Direction, error) {
	featureBatch := make([][][][2]float32, len(scenarios))
	adjBatch := make([][][]float32, len(scenarios))
	for i := range scenarios {
		featureBatch[i] = scenarios[i].Features
		adjBatch[i] = scenarios[i].Adjacency
	}

	features, err := policy.FeatureTensor(featureBatch, cfg.NumFeature())
	if err != nil {
		return nil, err
	}
	adjacency, err := policy.AdjacencyTensor(adjBatch)
	if err != nil {
		return nil, err
	}

	scores, err := pol.Predict(ctx, features, adjacency)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	if len(scores) != len(scenarios) {
		return nil, fmt.Errorf("%w: policy scored %d scenarios, want %d", policy.ErrShape, len(scores), len(scenarios))
	}
	for i := range scores {
		if len(scores[i]) != cfg.NumRobots {
			return nil, fmt.Errorf("%w: policy scored %d robots in scenario %d, want %d",
				policy.ErrShape, len(scores[i]), i, cfg.NumRobots)
		}
		for r := range scores[i] {
			if len(scores[i][r]) != len(cfg.Directions) {
				return nil, fmt.Errorf("%w: policy scored %d directions, want %d",
					policy.ErrShape, len(scores[i][r]), len(cfg.Directions))
			}
		}
	}
	return policy.ArgMax(scores), nil
}

// ReplayPolicy returns a policy that reproduces the predictions stored in the
// scenarios, for datasets evaluated without a model file.
func ReplayPolicy(cfg *Config, scenarios []dataset.Scenario) (policy.Policy, error) {
	actions := make([][]Direction, len(scenarios))
	for i := range scenarios {
		if scenarios[i].Predicted == nil {
			return nil, fmt.Errorf("%w: scenario %d has no stored prediction", ErrInvalidInput, i)
		}
		actions[i] = scenarios[i].Predicted
	}
	return &policy.Replay{Actions: actions, NumDirs: len(cfg.Directions)}, nil
}
