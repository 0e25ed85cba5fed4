package policy

import (
	"context"
	"fmt"

	gonnx "github.com/advancedclimatesystems/gonnx"
	"gorgonia.org/tensor"
)

// OnnxConfig names the graph inputs and output of an exported policy model.
type OnnxConfig struct {
	FeatureInput   string
	AdjacencyInput string
	// Output is the name of the action-score output; empty selects the model's first output.
	Output string
	// RobotMajor marks outputs laid out [robot, batch, direction].
	RobotMajor bool
}

func DefaultOnnxConfig() OnnxConfig {
	return OnnxConfig{
		FeatureInput:   "features",
		AdjacencyInput: "gso",
	}
}

// OnnxPolicy runs an exported graph neural network policy.
type OnnxPolicy struct {
	model *gonnx.Model
	cfg   OnnxConfig
}

// LoadOnnx reads a model file and checks it exposes the configured inputs.
func LoadOnnx(path string, cfg OnnxConfig) (*OnnxPolicy, error) {
	model, err := gonnx.NewModelFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}

	inputs := map[string]bool{}
	for _, name := range model.InputNames() {
		inputs[name] = true
	}
	for _, want := range []string{cfg.FeatureInput, cfg.AdjacencyInput} {
		if !inputs[want] {
			return nil, fmt.Errorf("model %s has no input %q (inputs: %v)", path, want, model.InputNames())
		}
	}
	if cfg.Output == "" {
		outputs := model.OutputNames()
		if len(outputs) == 0 {
			return nil, fmt.Errorf("model %s has no outputs", path)
		}
		cfg.Output = outputs[0]
	}

	return &OnnxPolicy{model: model, cfg: cfg}, nil
}

func (op *OnnxPolicy) Predict(ctx context.Context, features, adjacency tensor.Tensor) ([][][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outputs, err := op.model.Run(gonnx.Tensors{
		op.cfg.FeatureInput:   features,
		op.cfg.AdjacencyInput: adjacency,
	})
	if err != nil {
		return nil, fmt.Errorf("run model: %w", err)
	}

	out, ok := outputs[op.cfg.Output]
	if !ok || out == nil {
		return nil, fmt.Errorf("model produced no %q output", op.cfg.Output)
	}
	return Unstack(out, op.cfg.RobotMajor)
}
