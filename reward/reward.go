// reward computes what a team of robots collects from a reward grid in one step.
package reward

import (
	. "gnneval/grid_world"
)

// NextPositions applies each robot's action and clamps the result to the grid,
// per axis. Positions and actions must already be validated.
func NextPositions(cfg *Config, robots []Pos, actions []Direction) []Pos {
	next := make([]Pos, len(robots))
	for i, pos := range robots {
		next[i] = pos.Add(cfg.Directions.Displacement(actions[i])).Clamp(cfg.GridSize)
	}
	return next
}

// Box is a half-open rectangle [Row0,Row1) x [Col0,Col1) of grid cells.
type Box struct {
	Row0, Col0, Row1, Col1 int
}

// SweptBox returns the rectangle covering a robot's move from cur to next,
// each edge padded outward by fov and clipped to the grid.
func SweptBox(cfg *Config, cur, next Pos) Box {
	return Box{
		Row0: max(0, min(cur.R, next.R)-cfg.FOV),
		Col0: max(0, min(cur.C, next.C)-cfg.FOV),
		Row1: min(cfg.GridSize, max(cur.R, next.R)+cfg.FOV+1),
		Col1: min(cfg.GridSize, max(cur.C, next.C)+cfg.FOV+1),
	}
}

// Evaluate moves every robot by its action and returns the reward collected
// within the union of the robots' swept fields of view, plus the binary mask of
// that union. A cell covered by several robots counts once. Evaluate is pure:
// identical inputs always yield identical outputs.
// Inputs must satisfy cfg.CheckInputs; the orchestration layer enforces that.
func Evaluate(cfg *Config, grid Grid, robots []Pos, actions []Direction) (total float64, mask Mask) {
	next := NextPositions(cfg, robots, actions)

	mask = NewMask(grid.Size())
	for i := range robots {
		box := SweptBox(cfg, robots[i], next[i])
		for r := box.Row0; r < box.Row1; r++ {
			for c := box.Col0; c < box.Col1; c++ {
				mask[r][c] = 1
			}
		}
	}

	for r := range grid {
		for c := range grid[r] {
			total += grid[r][c] * float64(mask[r][c])
		}
	}
	return
}
