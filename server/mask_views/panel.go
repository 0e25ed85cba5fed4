// mask_views contains views derived from the Panel view-model: one panel per
// action producer, showing the reward grid, the robots and the cells covered.
package mask_views

import (
	"fmt"

	"gnneval/evaluation"
	. "gnneval/grid_world"
)

// Cell fields are immediately usable as svg attributes.
type Cell struct {
	Row, Col int
	Fill     string
	Stroke   string
}

// Panel is one producer's view of a scenario. Id prefixes the ids of every
// element the panel renders, so it must be unique per page.
type Panel struct {
	Id     string
	Title  string
	Reward float64
	Cells  [][]Cell
}

// Producer ids, in panel order.
const (
	GT     = "gt"
	PRED   = "pred"
	RANDOM = "random"
)

var titles = map[string]string{
	GT:     "Ground truth",
	PRED:   "Prediction",
	RANDOM: "Random",
}

// Convert transforms a scenario comparison into the ground truth, prediction
// and random panels, in that order.
func Convert(cmp evaluation.Comparison) []Panel {
	maxVal := 0.0
	Visit(cmp.Grid, func(r, c int) {
		maxVal = max(maxVal, cmp.Grid[r][c])
	})
	robots := map[Pos]bool{}
	for _, pos := range cmp.Robots {
		robots[pos] = true
	}

	panel := func(id string, outcome *evaluation.Outcome) Panel {
		cells := make([][]Cell, len(cmp.Grid))
		for r := range cmp.Grid {
			cells[r] = make([]Cell, len(cmp.Grid[r]))
			for c, val := range cmp.Grid[r] {
				covered := r < len(outcome.Mask) && c < len(outcome.Mask[r]) && outcome.Mask[r][c] == 1
				cells[r][c] = Cell{
					Row:    r,
					Col:    c,
					Fill:   getFill(val, maxVal, covered),
					Stroke: getStroke(robots[Pos{R: r, C: c}]),
				}
			}
		}
		return Panel{
			Id:     id,
			Title:  title(id, cmp.Index, outcome.Reward),
			Reward: outcome.Reward,
			Cells:  cells,
		}
	}

	return []Panel{
		panel(GT, &cmp.GT),
		panel(PRED, &cmp.Pred),
		panel(RANDOM, &cmp.Random),
	}
}

// EmptyPanels returns blank panels of the given grid size, for rendering the
// page before any scenario has been compared.
func EmptyPanels(size int) []Panel {
	panels := make([]Panel, 0, 3)
	for _, id := range []string{GT, PRED, RANDOM} {
		cells := make([][]Cell, size)
		for r := range cells {
			cells[r] = make([]Cell, size)
			for c := range cells[r] {
				cells[r][c] = Cell{Row: r, Col: c, Fill: getFill(0, 0, false), Stroke: getStroke(false)}
			}
		}
		panels = append(panels, Panel{Id: id, Title: titles[id], Cells: cells})
	}
	return panels
}

func title(id string, index int, reward float64) string {
	return fmt.Sprintf("%s #%d: %.3f", titles[id], index, reward)
}

// getFill shades a cell by its share of the largest reward: covered cells in
// green, uncovered cells in grey.
func getFill(val, maxVal float64, covered bool) string {
	pct := 0
	if maxVal > 0 {
		pct = int(100 * val / maxVal)
	}
	if covered {
		return fmt.Sprintf("rgb(%d%%,%d%%,%d%%)", 80-pct*6/10, 100-pct/5, 80-pct*6/10)
	}
	shade := 100 - pct/2
	return fmt.Sprintf("rgb(%d%%,%d%%,%d%%)", shade, shade, shade)
}

func getStroke(isRobot bool) string {
	if isRobot {
		return "crimson"
	}
	return "lightgrey"
}
