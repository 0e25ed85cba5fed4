// policy wraps the trained multi-robot model. A Policy maps a batch of robot
// features plus the communication graph of each scenario to per-robot action
// scores. Both tensors are explicit arguments of every call; there is no
// adjacency state held between calls.
package policy

import (
	"context"
	"errors"
	"fmt"

	. "gnneval/grid_world"

	"gorgonia.org/tensor"
)

// Policy scores actions. features is [batch, robots, featureSize] and adjacency
// is [batch, robots, robots]; the result is indexed [batch][robot][direction].
type Policy interface {
	Predict(ctx context.Context, features, adjacency tensor.Tensor) ([][][]float32, error)
}

// PolicyFunc adapts a plain function to a Policy.
type PolicyFunc func(ctx context.Context, features, adjacency tensor.Tensor) ([][][]float32, error)

func (fn PolicyFunc) Predict(ctx context.Context, features, adjacency tensor.Tensor) ([][][]float32, error) {
	return fn(ctx, features, adjacency)
}

// ErrShape is returned when a tensor does not have the expected dimensions.
var ErrShape error = errors.New("unexpected tensor shape")

// FeatureTensor truncates each robot's feature pairs to the first numFeature
// and flattens them, producing a float32 tensor of shape [batch, robots, numFeature*2].
func FeatureTensor(batch [][][][2]float32, numFeature int) (*tensor.Dense, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidInput)
	}
	if numFeature <= 0 {
		return nil, fmt.Errorf("%w: feature count must be positive, got %d", ErrInvalidInput, numFeature)
	}
	numRobots := len(batch[0])
	width := numFeature * 2
	backing := make([]float32, 0, len(batch)*numRobots*width)
	for b, robots := range batch {
		if len(robots) != numRobots {
			return nil, fmt.Errorf("%w: scenario %d has %d robots, want %d", ErrInvalidInput, b, len(robots), numRobots)
		}
		for i, pairs := range robots {
			if len(pairs) < numFeature {
				return nil, fmt.Errorf("%w: scenario %d robot %d has %d features, want at least %d",
					ErrInvalidInput, b, i, len(pairs), numFeature)
			}
			for _, pair := range pairs[:numFeature] {
				backing = append(backing, pair[0], pair[1])
			}
		}
	}
	return tensor.New(
		tensor.WithShape(len(batch), numRobots, width),
		tensor.Of(tensor.Float32),
		tensor.WithBacking(backing),
	), nil
}

// AdjacencyTensor stacks square adjacency matrices into [batch, robots, robots].
func AdjacencyTensor(batch [][][]float32) (*tensor.Dense, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidInput)
	}
	n := len(batch[0])
	backing := make([]float32, 0, len(batch)*n*n)
	for b, adj := range batch {
		if len(adj) != n {
			return nil, fmt.Errorf("%w: scenario %d adjacency has %d rows, want %d", ErrInvalidInput, b, len(adj), n)
		}
		for _, row := range adj {
			if len(row) != n {
				return nil, fmt.Errorf("%w: scenario %d adjacency is not square", ErrInvalidInput, b)
			}
			backing = append(backing, row...)
		}
	}
	return tensor.New(
		tensor.WithShape(len(batch), n, n),
		tensor.Of(tensor.Float32),
		tensor.WithBacking(backing),
	), nil
}

// Unstack converts a rank-3 float32 tensor to nested slices. When robotMajor is
// set the tensor is laid out [robot, batch, direction], as models that emit one
// output per robot do, and it is transposed to [batch, robot, direction].
func Unstack(t tensor.Tensor, robotMajor bool) ([][][]float32, error) {
	shape := t.Shape()
	if shape.Dims() != 3 {
		return nil, fmt.Errorf("%w: want rank 3, got %v", ErrShape, shape)
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("%w: want float32 data, got %T", ErrShape, t.Data())
	}
	d0, d1, d2 := shape[0], shape[1], shape[2]
	nb, nr := d0, d1
	if robotMajor {
		nb, nr = d1, d0
	}
	out := make([][][]float32, nb)
	for b := range out {
		out[b] = make([][]float32, nr)
		for r := range out[b] {
			i, j := b, r
			if robotMajor {
				i, j = r, b
			}
			start := (i*d1 + j) * d2
			out[b][r] = append([]float32(nil), data[start:start+d2]...)
		}
	}
	return out, nil
}

// ArgMax picks the highest scoring direction per robot. Ties go to the lowest code.
func ArgMax(scores [][][]float32) [][]Direction {
	actions := make([][]Direction, len(scores))
	for b := range scores {
		actions[b] = make([]Direction, len(scores[b]))
		for r, row := range scores[b] {
			best := 0
			for d := range row {
				if row[d] > row[best] {
					best = d
				}
			}
			actions[b][r] = Direction(best)
		}
	}
	return actions
}

// Replay is a Policy that returns fixed actions as one-hot scores, for datasets
// that already carry model predictions.
type Replay struct {
	Actions [][]Direction
	NumDirs int
}

func (rp *Replay) Predict(ctx context.Context, features, _ tensor.Tensor) ([][][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if batch := features.Shape()[0]; batch != len(rp.Actions) {
		return nil, fmt.Errorf("%w: replay holds %d scenarios, batch has %d", ErrShape, len(rp.Actions), batch)
	}
	scores := make([][][]float32, len(rp.Actions))
	for b, actions := range rp.Actions {
		scores[b] = make([][]float32, len(actions))
		for r, dir := range actions {
			scores[b][r] = make([]float32, rp.NumDirs)
			scores[b][r][dir] = 1
		}
	}
	return scores, nil
}
