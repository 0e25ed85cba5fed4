package grid_world

import (
	"fmt"
	"io"
)

// ShowGrid prints the reward grid with robots overlaid by their index,
// for visual reference in the console.
func ShowGrid(w io.Writer, grid Grid, robots []Pos) {
	ids := map[Pos]int{}
	for i, pos := range robots {
		ids[pos] = i
	}
	for r := range grid {
		for c := range grid[r] {
			if id, ok := ids[Pos{R: r, C: c}]; ok {
				fmt.Fprintf(w, "  R%-2d", id)
				continue
			}
			fmt.Fprintf(w, "%5.2f", grid[r][c])
		}
		fmt.Fprintln(w)
	}
}

// ShowMask prints covered cells as '#' and uncovered as '.'.
func ShowMask(w io.Writer, mask Mask) {
	for r := range mask {
		for c := range mask[r] {
			if mask[r][c] == 1 {
				fmt.Fprint(w, "# ")
			} else {
				fmt.Fprint(w, ". ")
			}
		}
		fmt.Fprintln(w)
	}
}

// ShowActions prints each robot's move, e.g. "0: (1,1) DOWN".
func ShowActions(w io.Writer, robots []Pos, actions []Direction) {
	for i := range robots {
		fmt.Fprintf(w, "%d: (%d,%d) %s\n", i, robots[i].R, robots[i].C, actions[i].ToStr())
	}
}
