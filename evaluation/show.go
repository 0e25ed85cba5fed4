package evaluation

import (
	"fmt"
	"io"

	. "gnneval/grid_world"
)

// Show prints the run summary followed by one line per scenario.
func (rep *Report) Show(w io.Writer) {
	fmt.Fprintf(w, "run %s  %s\n", rep.RunID, rep.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "grid=%d fov=%d robots=%d scenarios=%d\n",
		rep.Config.GridSize, rep.Config.FOV, rep.Config.NumRobots, len(rep.Comparisons))
	fmt.Fprintf(w, "accuracy: %.4f\n", rep.Accuracy)
	fmt.Fprintf(w, "mean reward  gt: %.4f  pred: %.4f  random: %.4f\n",
		rep.MeanReward.GT, rep.MeanReward.Pred, rep.MeanReward.Random)
	for _, cmp := range rep.Comparisons {
		fmt.Fprintf(w, "  [%d] gt=%.4f pred=%.4f random=%.4f\n",
			cmp.Index, cmp.GT.Reward, cmp.Pred.Reward, cmp.Random.Reward)
	}
}

// ShowComparison dumps one scenario: the grid, then each producer's actions and mask.
func ShowComparison(w io.Writer, cmp *Comparison) {
	ShowGrid(w, cmp.Grid, cmp.Robots)
	for _, producer := range []struct {
		name    string
		outcome *Outcome
	}{
		{"ground truth", &cmp.GT},
		{"prediction", &cmp.Pred},
		{"random", &cmp.Random},
	} {
		fmt.Fprintf(w, "%s: reward %.4f\n", producer.name, producer.outcome.Reward)
		ShowActions(w, cmp.Robots, producer.outcome.Actions)
		ShowMask(w, producer.outcome.Mask)
	}
}
