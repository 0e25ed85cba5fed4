// grid_world holds the coverage problem's data model: reward grids, robot
// positions, direction codes and coverage masks, plus the Config that
// parameterizes all of them.
package grid_world

import (
	"errors"
	"fmt"
)

// Pos is a robot coordinate. R indexes grid rows, C indexes columns.
type Pos struct {
	R, C int
}

// Add returns the component-wise sum of two positions.
func (p Pos) Add(d Pos) Pos {
	return Pos{R: p.R + d.R, C: p.C + d.C}
}

// Clamp bounds each axis of the position independently to [0, size-1].
func (p Pos) Clamp(size int) Pos {
	return Pos{R: clamp(p.R, 0, size-1), C: clamp(p.C, 0, size-1)}
}

func (p Pos) InBounds(size int) bool {
	return p.R >= 0 && p.R < size && p.C >= 0 && p.C < size
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// Direction is a discrete robot action, an index into a DirTable.
type Direction int

const (
	UP Direction = iota
	DOWN
	LEFT
	RIGHT
	STAY
)

func (dir Direction) ToStr() string {
	switch dir {
	case UP:
		return "UP"
	case DOWN:
		return "DOWN"
	case LEFT:
		return "LEFT"
	case RIGHT:
		return "RIGHT"
	case STAY:
		return "STAY"
	}
	return "UNKNOWN"
}

// DirTable maps a direction code (its index) to a displacement.
// The same table must be used by whatever produced the actions and by the evaluator.
type DirTable []Pos

// DefaultDirections is the up/down/left/right/stay table; rows grow downward.
var DefaultDirections DirTable = DirTable{
	UP:    {R: -1, C: 0},
	DOWN:  {R: 1, C: 0},
	LEFT:  {R: 0, C: -1},
	RIGHT: {R: 0, C: 1},
	STAY:  {R: 0, C: 0},
}

// Displacement returns the displacement of the passed code. Callers are expected
// to have validated the code; see Config.CheckInputs.
func (table DirTable) Displacement(dir Direction) Pos {
	return table[dir]
}

func (table DirTable) Valid(dir Direction) bool {
	return dir >= 0 && int(dir) < len(table)
}

// Grid is a square matrix of non-negative rewards, indexed [row][col].
type Grid [][]float64

// NewGrid returns a zeroed size x size grid.
func NewGrid(size int) Grid {
	grid := make(Grid, size)
	for r := range grid {
		grid[r] = make([]float64, size)
	}
	return grid
}

// Fill returns a size x size grid with every cell set to val.
func Fill(size int, val float64) Grid {
	grid := NewGrid(size)
	Visit(grid, func(r, c int) { grid[r][c] = val })
	return grid
}

func (grid Grid) Size() int {
	return len(grid)
}

// Copy returns a deep copy, since grids are shared between producers and views.
func (grid Grid) Copy() Grid {
	dup := make(Grid, len(grid))
	for r := range grid {
		dup[r] = append([]float64(nil), grid[r]...)
	}
	return dup
}

// Mask is a binary coverage matrix of the same shape as its Grid.
type Mask [][]uint8

func NewMask(size int) Mask {
	mask := make(Mask, size)
	for r := range mask {
		mask[r] = make([]uint8, size)
	}
	return mask
}

// Count returns the number of covered cells.
func (mask Mask) Count() (n int) {
	for r := range mask {
		for c := range mask[r] {
			n += int(mask[r][c])
		}
	}
	return
}

func (mask Mask) Equal(other Mask) bool {
	if len(mask) != len(other) {
		return false
	}
	for r := range mask {
		if len(mask[r]) != len(other[r]) {
			return false
		}
		for c := range mask[r] {
			if mask[r][c] != other[r][c] {
				return false
			}
		}
	}
	return true
}

// Visit calls fn with the row and column of every cell in a square matrix.
func Visit[T any](matrix [][]T, fn func(r, c int)) {
	for r := range matrix {
		for c := range matrix[r] {
			fn(r, c)
		}
	}
}

// Config replaces the evaluation globals (grid size, field of view, robot count
// and the direction table) so that independent evaluations can run side by side.
type Config struct {
	GridSize   int
	FOV        int
	NumRobots  int
	Directions DirTable `yaml:"-" json:"-"`
}

func DefaultConfig() Config {
	return Config{
		GridSize:   24,
		FOV:        1,
		NumRobots:  6,
		Directions: DefaultDirections,
	}
}

// ErrInvalidInput is wrapped by every precondition failure at the evaluation boundary.
var ErrInvalidInput error = errors.New("invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Validate checks the configuration itself.
func (cfg *Config) Validate() error {
	if cfg.GridSize <= 0 {
		return invalid("grid size must be positive, got %d", cfg.GridSize)
	}
	if cfg.FOV < 0 {
		return invalid("fov must be non-negative, got %d", cfg.FOV)
	}
	if cfg.NumRobots <= 0 {
		return invalid("robot count must be positive, got %d", cfg.NumRobots)
	}
	if cfg.NumRobots > cfg.GridSize*cfg.GridSize {
		return invalid("%d robots do not fit on distinct cells of a %dx%d grid", cfg.NumRobots, cfg.GridSize, cfg.GridSize)
	}
	if len(cfg.Directions) == 0 {
		return invalid("empty direction table")
	}
	return nil
}

// CheckInputs guards the reward evaluator: shapes must agree with the config,
// positions must lie on the grid, rewards must be non-negative and every action
// must be a key of the direction table.
func (cfg *Config) CheckInputs(grid Grid, robots []Pos, actions []Direction) error {
	if err := cfg.CheckScenario(grid, robots); err != nil {
		return err
	}
	if len(actions) != cfg.NumRobots {
		return invalid("expected %d actions, got %d", cfg.NumRobots, len(actions))
	}
	for i, dir := range actions {
		if !cfg.Directions.Valid(dir) {
			return invalid("robot %d: direction code %d not in table", i, dir)
		}
	}
	return nil
}

// CheckScenario validates a grid and robot placement independent of any actions.
func (cfg *Config) CheckScenario(grid Grid, robots []Pos) error {
	if grid.Size() != cfg.GridSize {
		return invalid("expected %d grid rows, got %d", cfg.GridSize, grid.Size())
	}
	for r, row := range grid {
		if len(row) != cfg.GridSize {
			return invalid("row %d: expected %d columns, got %d", r, cfg.GridSize, len(row))
		}
		for c, val := range row {
			if val < 0 {
				return invalid("negative reward %v at (%d,%d)", val, r, c)
			}
		}
	}
	if len(robots) != cfg.NumRobots {
		return invalid("expected %d robots, got %d", cfg.NumRobots, len(robots))
	}
	for i, pos := range robots {
		if !pos.InBounds(cfg.GridSize) {
			return invalid("robot %d at %v is off the grid", i, pos)
		}
	}
	return nil
}
