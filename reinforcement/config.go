package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"sdmrl/memory"
	"sdmrl/q_network"
	"sdmrl/schedule"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// OuterConfig is the yaml envelope: a kind selector and its definition.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// TrainingConfig is the untyped training definition as written in yaml.
// Viper lowercases every key, so selector and hyperparameter names are snake_case.
type TrainingConfig struct {
	// Kind is copied from the envelope.
	Kind string `yaml:"-"`
	// HyperParams is a key-val pair of param names and their value.
	HyperParams []HyperParameter `yaml:"hyperparams"`
	// Algorithm holds the string selectors: architecture, eps_scheduler, environment, etc.
	Algorithm map[string]string `yaml:"algorithm"`
	// TrainingDeadline is a fixed duration describing when to terminate training.
	TrainingDeadline map[string]string `yaml:"trainingdeadline"`
}

type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

func (cfg *TrainingConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

func (cfg *TrainingConfig) getIntOrDefault(param string, defaultVal int) int {
	return int(cfg.GetHyperParamOrDefault(param, float64(defaultVal)))
}

func (cfg *TrainingConfig) getAlgorithmOrDefault(key, defaultVal string) string {
	if val, ok := cfg.Algorithm[key]; ok && val != "" {
		return val
	}
	return defaultVal
}

// WithTrainingDeadline returns a context extended by the training deadline, if one is specified.
func (cfg *TrainingConfig) WithTrainingDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.TrainingDeadline["duration"]; ok {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return nil, nil, fmt.Errorf("training deadline: %w", err)
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// FromYaml reads the training config at path.
func FromYaml(path string) (*TrainingConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, err
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, err
	}

	var spec []byte
	if spec, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, err
	}

	innerConfig := &TrainingConfig{}
	if err = yaml.Unmarshal(spec, innerConfig); err != nil {
		return nil, err
	}
	innerConfig.Kind = outerConfig.Kind

	return innerConfig, nil
}

// BellmanUpdate selects the bootstrapped target.
type BellmanUpdate string

const (
	QLEARNING BellmanUpdate = "QLEARNING"
	SARSA     BellmanUpdate = "SARSA"
)

// Environment selects the environment to train on.
type Environment string

const (
	CARTPOLE        Environment = "CARTPOLE"
	RACETRACK       Environment = "RACETRACK"
	RACETRACK_DEBUG Environment = "RACETRACK_DEBUG"
)

const ADAM = "ADAM"

var (
	ErrUnknownKind          error = errors.New("unknown config kind")
	ErrUnknownBellman       error = errors.New("unknown bellman update")
	ErrSarsaUnsupported     error = errors.New("SARSA bellman update is not supported")
	ErrUnsupportedOptimizer error = errors.New("unsupported optimizer")
	ErrUnknownEnvironment   error = errors.New("unknown environment")
	ErrVectorizedEnvs       error = errors.New("only a single environment is supported")
	ErrInvalidHyperParam    error = errors.New("invalid hyperparameter")
)

// DQNConfig is the resolved, validated training configuration.
type DQNConfig struct {
	ExpName string
	RunName string
	Seed    int64

	TotalTimesteps         int
	LearningRate           float64
	NumEnvs                int
	BufferSize             int
	Gamma                  float64
	Tau                    float64
	TargetNetworkFrequency int
	BatchSize              int
	LearningStarts         int
	TrainFrequency         int

	Scheduler           schedule.Kind
	StartE              float64
	EndE                float64
	ExplorationFraction float64
	EpsDecay            float64

	Architecture  q_network.Architecture
	BellmanUpdate BellmanUpdate
	Optimizer     string
	Environment   Environment
	Net           q_network.HyperParams
	// GateSmoothing fixes the DSOM gate's distance scale; 0 couples it to epsilon.
	GateSmoothing float64

	SaveModel     bool
	CheckpointDir string
	EvalEpisodes  int
	EvalEpsilon   float64
}

// SchedulerParams returns the parameters of the epsilon schedule.
func (cfg *DQNConfig) SchedulerParams() schedule.Params {
	return schedule.Params{
		StartE:              cfg.StartE,
		EndE:                cfg.EndE,
		ExplorationFraction: cfg.ExplorationFraction,
		TotalTimesteps:      cfg.TotalTimesteps,
		Decay:               cfg.EpsDecay,
	}
}

// String lists the hyperparameters in a single log-friendly line.
func (cfg *DQNConfig) String() string {
	return fmt.Sprintf(
		"exp=%s run=%s seed=%d env=%s arch=%s bellman=%s scheduler=%s optimizer=%s "+
			"total_timesteps=%d learning_rate=%v buffer_size=%d gamma=%v tau=%v "+
			"target_network_frequency=%d batch_size=%d start_e=%v end_e=%v exploration_fraction=%v "+
			"eps_decay=%v learning_starts=%d train_frequency=%d hidden_size=%d sparse_dim=%d "+
			"sdm_k=%v dsom_lr=%v elasticity=%v dsom_update_mode=%s dsom_gate_smoothing=%v",
		cfg.ExpName, cfg.RunName, cfg.Seed, cfg.Environment, cfg.Architecture, cfg.BellmanUpdate,
		cfg.Scheduler, cfg.Optimizer, cfg.TotalTimesteps, cfg.LearningRate, cfg.BufferSize,
		cfg.Gamma, cfg.Tau, cfg.TargetNetworkFrequency, cfg.BatchSize, cfg.StartE, cfg.EndE,
		cfg.ExplorationFraction, cfg.EpsDecay, cfg.LearningStarts, cfg.TrainFrequency,
		cfg.Net.HiddenSize, cfg.Net.SparseDim, cfg.Net.SDMKFraction, cfg.Net.DSOMLearningRate,
		cfg.Net.Elasticity, cfg.Net.DSOMUpdateMode, cfg.GateSmoothing)
}

// Resolve applies defaults and validates every selector and size.
// The envelope's kind is required and must be dqn.
func (cfg *TrainingConfig) Resolve() (*DQNConfig, error) {
	if !strings.EqualFold(cfg.Kind, "dqn") {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}

	dqn := &DQNConfig{
		ExpName: cfg.getAlgorithmOrDefault("exp_name", "dqn"),
		Seed:    int64(cfg.GetHyperParamOrDefault("seed", 1)),

		TotalTimesteps:         cfg.getIntOrDefault("total_timesteps", 500000),
		LearningRate:           cfg.GetHyperParamOrDefault("learning_rate", 2.5e-4),
		NumEnvs:                cfg.getIntOrDefault("num_envs", 1),
		BufferSize:             cfg.getIntOrDefault("buffer_size", 10000),
		Gamma:                  cfg.GetHyperParamOrDefault("gamma", 0.99),
		Tau:                    cfg.GetHyperParamOrDefault("tau", 1.0),
		TargetNetworkFrequency: cfg.getIntOrDefault("target_network_frequency", 500),
		BatchSize:              cfg.getIntOrDefault("batch_size", 128),
		LearningStarts:         cfg.getIntOrDefault("learning_starts", 10000),
		TrainFrequency:         cfg.getIntOrDefault("train_frequency", 10),

		StartE:              cfg.GetHyperParamOrDefault("start_e", 1),
		EndE:                cfg.GetHyperParamOrDefault("end_e", 0.05),
		ExplorationFraction: cfg.GetHyperParamOrDefault("exploration_fraction", 0.5),
		EpsDecay:            cfg.GetHyperParamOrDefault("eps_decay", 0.995),

		Net: q_network.HyperParams{
			HiddenSize:       cfg.getIntOrDefault("hidden_size", 800),
			SparseDim:        cfg.getIntOrDefault("sparse_dim", 128),
			SDMKFraction:     cfg.GetHyperParamOrDefault("sdm_k", 0.995),
			DSOMLearningRate: cfg.GetHyperParamOrDefault("dsom_lr", 0.05),
			Elasticity:       cfg.GetHyperParamOrDefault("elasticity", 0.05),
		},
		GateSmoothing: cfg.GetHyperParamOrDefault("dsom_gate_smoothing", 0),

		SaveModel:     cfg.GetHyperParamOrDefault("save_model", 0) != 0,
		CheckpointDir: cfg.getAlgorithmOrDefault("checkpoint_dir", "runs"),
		EvalEpisodes:  cfg.getIntOrDefault("eval_episodes", 10),
		EvalEpsilon:   cfg.GetHyperParamOrDefault("eval_epsilon", 0.05),
	}

	var err error
	if dqn.Architecture, err = q_network.ParseArchitecture(cfg.getAlgorithmOrDefault("architecture", "BASELINE")); err != nil {
		return nil, err
	}
	if dqn.Scheduler, err = schedule.ParseKind(cfg.getAlgorithmOrDefault("eps_scheduler", "LINEAR")); err != nil {
		return nil, err
	}
	if dqn.Net.DSOMUpdateMode, err = memory.ParseUpdateMode(cfg.getAlgorithmOrDefault("dsom_update_mode", "AVG")); err != nil {
		return nil, err
	}

	switch bellman := BellmanUpdate(strings.ToUpper(cfg.getAlgorithmOrDefault("bellman_update", "QLEARNING"))); bellman {
	case QLEARNING:
		dqn.BellmanUpdate = bellman
	case SARSA:
		return nil, ErrSarsaUnsupported
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBellman, bellman)
	}

	if dqn.Optimizer = strings.ToUpper(cfg.getAlgorithmOrDefault("optimizer", ADAM)); dqn.Optimizer != ADAM {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOptimizer, dqn.Optimizer)
	}

	switch env := Environment(strings.ToUpper(cfg.getAlgorithmOrDefault("environment", string(CARTPOLE)))); env {
	case CARTPOLE, RACETRACK, RACETRACK_DEBUG:
		dqn.Environment = env
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnvironment, env)
	}

	if dqn.NumEnvs != 1 {
		return nil, fmt.Errorf("%w: num_envs=%d", ErrVectorizedEnvs, dqn.NumEnvs)
	}
	if err = dqn.validate(); err != nil {
		return nil, err
	}

	dqn.RunName = cfg.getAlgorithmOrDefault("run_name",
		fmt.Sprintf("%s__%s__%s__%d__%d",
			dqn.Environment, dqn.ExpName, dqn.Architecture, dqn.Seed, time.Now().Unix()))
	return dqn, nil
}

func (dqn *DQNConfig) validate() error {
	positive := []struct {
		name string
		val  int
	}{
		{"total_timesteps", dqn.TotalTimesteps},
		{"buffer_size", dqn.BufferSize},
		{"batch_size", dqn.BatchSize},
		{"train_frequency", dqn.TrainFrequency},
		{"target_network_frequency", dqn.TargetNetworkFrequency},
		{"hidden_size", dqn.Net.HiddenSize},
		{"sparse_dim", dqn.Net.SparseDim},
	}
	for _, p := range positive {
		if p.val <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidHyperParam, p.name, p.val)
		}
	}

	if dqn.LearningStarts < 0 {
		return fmt.Errorf("%w: learning_starts must be non-negative, got %d", ErrInvalidHyperParam, dqn.LearningStarts)
	}
	if dqn.Tau < 0 || dqn.Tau > 1 || math.IsNaN(dqn.Tau) {
		return fmt.Errorf("%w: tau must be in [0,1], got %v", ErrInvalidHyperParam, dqn.Tau)
	}
	if dqn.GateSmoothing < 0 {
		return fmt.Errorf("%w: dsom_gate_smoothing must be non-negative, got %v", ErrInvalidHyperParam, dqn.GateSmoothing)
	}
	return nil
}
