// dataset reads and writes evaluation scenarios. A scenario is everything the
// evaluator and the policy need for one reward grid: the grid, the robots, the
// per-robot feature pairs and communication adjacency fed to the model, and the
// ground-truth action labels.
package dataset

import (
	"fmt"
	"os"

	. "gnneval/grid_world"

	"gopkg.in/yaml.v3"
)

// Scenario is one evaluation example.
type Scenario struct {
	Grid   Grid  `yaml:"grid"`
	Robots []Pos `yaml:"robots"`
	// Features holds, per robot, (row, col) offset pairs: target features first,
	// then robot features. The policy consumes a prefix of them.
	Features [][][2]float32 `yaml:"features"`
	// Adjacency is the NumRobots x NumRobots communication graph (the GSO).
	Adjacency [][]float32 `yaml:"adjacency"`
	// Labels are one-hot ground-truth actions, one row per robot.
	Labels [][]int `yaml:"labels"`
	// Predicted optionally holds model actions computed elsewhere, used when no
	// model is available to the evaluator.
	Predicted []Direction `yaml:"predicted,omitempty"`
}

// Actions decodes the one-hot labels to direction codes.
func (s *Scenario) Actions() []Direction {
	actions := make([]Direction, len(s.Labels))
	for i, row := range s.Labels {
		best := 0
		for j := range row {
			if row[j] > row[best] {
				best = j
			}
		}
		actions[i] = Direction(best)
	}
	return actions
}

// OneHot encodes direction codes as one row per robot of width numDirs.
func OneHot(actions []Direction, numDirs int) [][]int {
	labels := make([][]int, len(actions))
	for i, dir := range actions {
		labels[i] = make([]int, numDirs)
		labels[i][dir] = 1
	}
	return labels
}

// Check validates a scenario's shapes against the config: the grid and robots,
// one-hot label rows, the adjacency matrix and the feature rows.
func (s *Scenario) Check(cfg *Config) error {
	if err := cfg.CheckScenario(s.Grid, s.Robots); err != nil {
		return err
	}
	if len(s.Labels) != cfg.NumRobots {
		return fmt.Errorf("%w: expected %d label rows, got %d", ErrInvalidInput, cfg.NumRobots, len(s.Labels))
	}
	for i, row := range s.Labels {
		if len(row) != len(cfg.Directions) {
			return fmt.Errorf("%w: label row %d has width %d, want %d", ErrInvalidInput, i, len(row), len(cfg.Directions))
		}
		if !isOneHot(row) {
			return fmt.Errorf("%w: label row %d is not one-hot: %v", ErrInvalidInput, i, row)
		}
	}
	if len(s.Adjacency) != cfg.NumRobots {
		return fmt.Errorf("%w: expected %d adjacency rows, got %d", ErrInvalidInput, cfg.NumRobots, len(s.Adjacency))
	}
	for i, row := range s.Adjacency {
		if len(row) != cfg.NumRobots {
			return fmt.Errorf("%w: adjacency row %d has width %d", ErrInvalidInput, i, len(row))
		}
	}
	if len(s.Features) != cfg.NumRobots {
		return fmt.Errorf("%w: expected %d feature rows, got %d", ErrInvalidInput, cfg.NumRobots, len(s.Features))
	}
	if s.Predicted != nil {
		return cfg.CheckInputs(s.Grid, s.Robots, s.Predicted)
	}
	return nil
}

// isOneHot reports whether row holds a single 1 and is 0 everywhere else.
func isOneHot(row []int) bool {
	hot := 0
	for _, v := range row {
		switch v {
		case 0:
		case 1:
			hot++
		default:
			return false
		}
	}
	return hot == 1
}

type document struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Load reads a scenario file.
func Load(path string) ([]Scenario, error) {
	spec, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc := &document{}
	if err = yaml.Unmarshal(spec, doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc.Scenarios, nil
}

// Save writes scenarios in the format read by Load.
func Save(path string, scenarios []Scenario) error {
	spec, err := yaml.Marshal(&document{Scenarios: scenarios})
	if err != nil {
		return err
	}
	return os.WriteFile(path, spec, 0o644)
}
