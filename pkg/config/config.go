package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/XiaoConstantine/ale-go/pkg/core"
	"github.com/XiaoConstantine/ale-go/pkg/errors"
)

// OptimizationConfig is the recognized configuration surface for one
// optimization session. Zero values are filled from defaults by Normalize.
type OptimizationConfig struct {
	Task        string        `yaml:"task" validate:"required"`
	Objective   string        `yaml:"objective"`
	Constraints []string      `yaml:"constraints"`
	MaxTrials   int           `yaml:"max_trials" validate:"gte=0"`
	MaxDuration time.Duration `yaml:"max_duration" validate:"gte=0"`
	TargetScore float64       `yaml:"target_score" validate:"gte=0,lte=1"`
	Strategy    core.Strategy `yaml:"strategy"`

	// Explorer tunables
	InitialTemperature float64 `yaml:"initial_temperature" validate:"gte=0"`
	CoolingRate        float64 `yaml:"cooling_rate" validate:"gte=0,lte=1"`
	MinTemperature     float64 `yaml:"min_temperature" validate:"gte=0"`
	ReheatingThreshold int     `yaml:"reheating_threshold" validate:"gte=0"`
	ReheatingFactor    float64 `yaml:"reheating_factor" validate:"gte=0"`
	BeamWidth          int     `yaml:"beam_width" validate:"gte=0"`
	PopulationSize     int     `yaml:"population_size" validate:"gte=0"`

	// Scoring tunables
	VirtualPowerWeight float64 `yaml:"virtual_power_weight" validate:"gte=0,lte=1"`
	LookAheadDepth     int     `yaml:"look_ahead_depth" validate:"gte=0"`

	// Convergence detection
	ConvergenceWindow    int     `yaml:"convergence_window" validate:"gte=0"`
	ConvergenceThreshold float64 `yaml:"convergence_threshold" validate:"gte=0"`

	// Memory and reflection
	UseWorkingMemory bool `yaml:"use_working_memory"`
	StoreInsights    bool `yaml:"store_insights"`

	// Caller metadata
	AgentType string   `yaml:"agent_type"`
	Tools     []string `yaml:"tools"`
}

// Default returns the engine's baseline configuration. The task is left
// empty and must be supplied by the caller.
func Default() OptimizationConfig {
	return OptimizationConfig{
		MaxTrials:            10,
		MaxDuration:          5 * time.Minute,
		TargetScore:          0.95,
		Strategy:             core.StrategyHybrid,
		InitialTemperature:   1.0,
		CoolingRate:          0.95,
		MinTemperature:       0.01,
		ReheatingThreshold:   5,
		ReheatingFactor:      1.5,
		BeamWidth:            3,
		PopulationSize:       8,
		VirtualPowerWeight:   0.3,
		LookAheadDepth:       3,
		ConvergenceWindow:    5,
		ConvergenceThreshold: 0.001,
		UseWorkingMemory:     true,
		StoreInsights:        true,
	}
}

// Normalize fills zero-valued tunables from defaults and maps an unknown
// strategy tag to greedy so sessions always make progress.
func (c *OptimizationConfig) Normalize() {
	d := Default()
	if c.MaxTrials <= 0 {
		c.MaxTrials = d.MaxTrials
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = d.MaxDuration
	}
	if c.TargetScore <= 0 {
		c.TargetScore = d.TargetScore
	}
	if c.InitialTemperature <= 0 {
		c.InitialTemperature = d.InitialTemperature
	}
	if c.CoolingRate <= 0 || c.CoolingRate >= 1 {
		c.CoolingRate = d.CoolingRate
	}
	if c.MinTemperature <= 0 {
		c.MinTemperature = d.MinTemperature
	}
	if c.ReheatingThreshold <= 0 {
		c.ReheatingThreshold = d.ReheatingThreshold
	}
	if c.ReheatingFactor <= 1 {
		c.ReheatingFactor = d.ReheatingFactor
	}
	if c.BeamWidth <= 0 {
		c.BeamWidth = d.BeamWidth
	}
	if c.PopulationSize <= 0 {
		c.PopulationSize = d.PopulationSize
	}
	if c.VirtualPowerWeight <= 0 {
		c.VirtualPowerWeight = d.VirtualPowerWeight
	}
	if c.LookAheadDepth <= 0 {
		c.LookAheadDepth = d.LookAheadDepth
	}
	if c.ConvergenceWindow <= 0 {
		c.ConvergenceWindow = d.ConvergenceWindow
	}
	if c.ConvergenceThreshold <= 0 {
		c.ConvergenceThreshold = d.ConvergenceThreshold
	}

	switch c.Strategy {
	case core.StrategyGreedy, core.StrategyAnnealing, core.StrategyHybrid,
		core.StrategyBeam, core.StrategyEvolutionary:
	default:
		c.Strategy = core.StrategyGreedy
	}
}

var validate = validator.New()

// Validate checks field ranges. Call after Normalize.
func (c *OptimizationConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, errors.ValidationFailed, "invalid optimization config")
	}
	return nil
}

// LoadFile reads an OptimizationConfig from a YAML file, normalizes it and
// validates it.
func LoadFile(path string) (OptimizationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return OptimizationConfig{}, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to read config file"),
			errors.Fields{"path": path},
		)
	}

	var cfg OptimizationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return OptimizationConfig{}, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to parse config file"),
			errors.Fields{"path": path},
		)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return OptimizationConfig{}, err
	}
	return cfg, nil
}
