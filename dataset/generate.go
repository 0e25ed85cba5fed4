package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	. "gnneval/grid_world"
)

// GenConfig holds the scenario generator's parameters.
type GenConfig struct {
	// RewardThresh zeroes every uniform [0,1) cell value below it, leaving sparse rewards.
	RewardThresh float64
	// CommRange is the euclidean distance within which two robots are linked in the adjacency.
	CommRange float64
	// TargetFeatures and RobotFeatures size the per-robot feature pairs.
	TargetFeatures int
	RobotFeatures  int
}

// Validate rejects negative feature counts and comm range.
func (gen *GenConfig) Validate() error {
	if gen.TargetFeatures < 0 || gen.RobotFeatures < 0 {
		return fmt.Errorf("%w: generator feature counts must be non-negative, got %d target and %d robot",
			ErrInvalidInput, gen.TargetFeatures, gen.RobotFeatures)
	}
	if gen.CommRange < 0 {
		return fmt.Errorf("%w: comm range must be non-negative, got %v", ErrInvalidInput, gen.CommRange)
	}
	return nil
}

func DefaultGenConfig() GenConfig {
	return GenConfig{
		RewardThresh:   0.9,
		CommRange:      8,
		TargetFeatures: 10,
		RobotFeatures:  3,
	}
}

// Generate synthesizes count scenarios: sparse reward grids, distinct robot
// placements, range-limited communication graphs and relative-offset features.
// Ground-truth labels come from an external planner; generated scenarios carry
// all-STAY placeholders until one fills them in.
func Generate(rng *rand.Rand, cfg *Config, gen GenConfig, count int) ([]Scenario, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := gen.Validate(); err != nil {
		return nil, err
	}
	scenarios := make([]Scenario, 0, count)
	for i := 0; i < count; i++ {
		grid := RewardGrid(rng, cfg.GridSize, gen.RewardThresh)
		robots := InitialPose(rng, cfg.GridSize, cfg.NumRobots)
		placeholder := make([]Direction, cfg.NumRobots)
		for r := range placeholder {
			placeholder[r] = STAY
		}
		scenarios = append(scenarios, Scenario{
			Grid:      grid,
			Robots:    robots,
			Features:  Features(grid, robots, gen.TargetFeatures, gen.RobotFeatures),
			Adjacency: Adjacency(robots, gen.CommRange),
			Labels:    OneHot(placeholder, len(cfg.Directions)),
		})
	}
	return scenarios, nil
}

// RewardGrid returns a size x size grid of uniform values with everything below thresh zeroed.
func RewardGrid(rng *rand.Rand, size int, thresh float64) Grid {
	grid := NewGrid(size)
	Visit(grid, func(r, c int) {
		if val := rng.Float64(); val >= thresh {
			grid[r][c] = val
		}
	})
	return grid
}

// InitialPose places n robots on distinct random cells. n must not exceed size*size.
func InitialPose(rng *rand.Rand, size, n int) []Pos {
	used := make(map[Pos]struct{})
	robots := make([]Pos, 0, n)
	for len(robots) < n {
		pos := Pos{R: rng.Intn(size), C: rng.Intn(size)}
		if _, isUsed := used[pos]; isUsed {
			continue
		}
		used[pos] = struct{}{}
		robots = append(robots, pos)
	}
	return robots
}

func distance(a, b Pos) float64 {
	return math.Hypot(float64(a.R-b.R), float64(a.C-b.C))
}

// Adjacency links every pair of distinct robots within commRange of each other.
func Adjacency(robots []Pos, commRange float64) [][]float32 {
	adj := make([][]float32, len(robots))
	for i := range robots {
		adj[i] = make([]float32, len(robots))
		for j := range robots {
			if i != j && distance(robots[i], robots[j]) <= commRange {
				adj[i][j] = 1
			}
		}
	}
	return adj
}

type cell struct {
	pos Pos
	val float64
}

// Features returns, per robot, the (row, col) offsets to the numTargets highest
// valued cells nearest to it, followed by the offsets to its numRobots nearest
// teammates. Missing entries (too few rewards or teammates) are zero pairs.
func Features(grid Grid, robots []Pos, numTargets, numRobots int) [][][2]float32 {
	var targets []cell
	Visit(grid, func(r, c int) {
		if grid[r][c] > 0 {
			targets = append(targets, cell{pos: Pos{R: r, C: c}, val: grid[r][c]})
		}
	})

	features := make([][][2]float32, len(robots))
	for i, self := range robots {
		offset := func(p Pos) [2]float32 {
			return [2]float32{float32(p.R - self.R), float32(p.C - self.C)}
		}
		feat := make([][2]float32, 0, numTargets+numRobots)

		// Rank targets by value discounted by distance so near rewards lead.
		ranked := append([]cell(nil), targets...)
		sort.SliceStable(ranked, func(a, b int) bool {
			return ranked[a].val/(1+distance(self, ranked[a].pos)) > ranked[b].val/(1+distance(self, ranked[b].pos))
		})
		for k := 0; k < numTargets; k++ {
			if k < len(ranked) {
				feat = append(feat, offset(ranked[k].pos))
			} else {
				feat = append(feat, [2]float32{})
			}
		}

		var mates []Pos
		for j, other := range robots {
			if j != i {
				mates = append(mates, other)
			}
		}
		sort.SliceStable(mates, func(a, b int) bool {
			return distance(self, mates[a]) < distance(self, mates[b])
		})
		for k := 0; k < numRobots; k++ {
			if k < len(mates) {
				feat = append(feat, offset(mates[k]))
			} else {
				feat = append(feat, [2]float32{})
			}
		}
		features[i] = feat
	}
	return features
}
