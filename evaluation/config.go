package evaluation

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"gnneval/dataset"
	. "gnneval/grid_world"
	"gnneval/policy"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// EvalConfig gathers everything a run needs outside of the scenarios themselves:
// the problem dimensions, feature sizes for the model input, seeds and limits.
// Keys are matched lowercased, since viper folds the case of every key it reads.
type EvalConfig struct {
	Config `yaml:",inline"`
	// TargetFeatures and RobotFeatures are how many feature pairs of each kind the
	// model consumes; their sum is the prefix kept from each robot's features.
	TargetFeatures int
	RobotFeatures  int
	// Seed drives the random baseline, and the generator when scenarios are synthesized.
	Seed int64
	// Workers bounds how many scenarios are compared at once.
	Workers int
	// Deadline is a fixed duration after which a run is abandoned, e.g. {duration: 30s}.
	Deadline  map[string]string
	Generator dataset.GenConfig
	Model     policy.OnnxConfig
}

func DefaultEvalConfig() *EvalConfig {
	gen := dataset.DefaultGenConfig()
	return &EvalConfig{
		Config:         DefaultConfig(),
		TargetFeatures: gen.TargetFeatures,
		RobotFeatures:  gen.RobotFeatures,
		Seed:           1,
		Workers:        runtime.NumCPU(),
		Generator:      gen,
		Model:          policy.DefaultOnnxConfig(),
	}
}

// NumFeature is the number of feature pairs per robot fed to the model.
func (cfg *EvalConfig) NumFeature() int {
	return cfg.TargetFeatures + cfg.RobotFeatures
}

// Validate checks the problem dimensions, the model's feature sizes and the
// generator's parameters.
func (cfg *EvalConfig) Validate() error {
	if err := cfg.Config.Validate(); err != nil {
		return err
	}
	if cfg.TargetFeatures < 0 || cfg.RobotFeatures < 0 {
		return fmt.Errorf("%w: feature counts must be non-negative, got %d target and %d robot",
			ErrInvalidInput, cfg.TargetFeatures, cfg.RobotFeatures)
	}
	if cfg.NumFeature() <= 0 {
		return fmt.Errorf("%w: the model needs at least one feature pair", ErrInvalidInput)
	}
	return cfg.Generator.Validate()
}

// WithDeadline returns a context extended by the run deadline, if one is specified.
func (cfg *EvalConfig) WithDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.Deadline["duration"]; ok {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return nil, nil, err
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// FromYaml reads a config document of the form {kind: evaluation, def: {...}}.
// Fields missing from def keep their DefaultEvalConfig values.
func FromYaml(path string) (*EvalConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, err
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, err
	}
	if outerConfig.Kind != "evaluation" {
		return nil, fmt.Errorf("%s: expected kind 'evaluation', got %q", path, outerConfig.Kind)
	}

	var spec []byte
	if spec, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, err
	}

	innerConfig := DefaultEvalConfig()
	if err = yaml.Unmarshal(spec, innerConfig); err != nil {
		return nil, err
	}
	innerConfig.Directions = DefaultDirections
	if err = innerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if innerConfig.Workers <= 0 {
		innerConfig.Workers = 1
	}

	return innerConfig, nil
}
