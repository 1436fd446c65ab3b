package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flexalloc/flexalloc-sim/sim"
	"github.com/flexalloc/flexalloc-sim/sim/collector"
	"github.com/flexalloc/flexalloc-sim/sim/policy"
	"github.com/flexalloc/flexalloc-sim/sim/training"
	"gopkg.in/yaml.v3"
)

// RunConfig is the YAML run configuration shared by train and eval.
// Sections omitted from the file keep the values from defaultRunConfig.
type RunConfig struct {
	Seed          int64    `yaml:"seed"`
	Episodes      int      `yaml:"episodes"`
	EvalFrequency int      `yaml:"eval_frequency"` // 0 disables periodic evaluation
	EvalEnvDir    string   `yaml:"eval_env_dir"`
	EvalEnvCount  int      `yaml:"eval_env_count"` // environments generated when eval_env_dir is empty
	Settings      []string `yaml:"settings"`       // env settings files, relative to the config file

	Rewards   collector.RewardParams `yaml:"rewards"`
	Epsilon   policy.EpsilonSchedule `yaml:"epsilon"`
	Pricing   []training.AgentConfig `yaml:"pricing_agents"`
	Weighting []training.AgentConfig `yaml:"weighting_agents"`

	dir string // directory of the loaded file; relative paths resolve against it
}

func defaultRunConfig() RunConfig {
	return RunConfig{
		Seed:          42,
		Episodes:      100,
		EvalFrequency: 10,
		EvalEnvCount:  20,
		Rewards:       collector.DefaultRewardParams(),
		Epsilon:       policy.DefaultEpsilonSchedule(),
	}
}

// LoadRunConfig reads and validates a run configuration.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run config: %w", err)
	}
	cfg := defaultRunConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing run config %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the run parameters. Agent configs are validated when the pools are built.
func (c *RunConfig) Validate() error {
	if c.Episodes < 0 {
		return fmt.Errorf("episodes must be >= 0, got %d", c.Episodes)
	}
	if c.EvalFrequency < 0 {
		return fmt.Errorf("eval_frequency must be >= 0, got %d", c.EvalFrequency)
	}
	if c.EvalEnvCount < 0 {
		return fmt.Errorf("eval_env_count must be >= 0, got %d", c.EvalEnvCount)
	}
	if len(c.Settings) == 0 {
		return fmt.Errorf("at least one settings file is required")
	}
	if len(c.Pricing) == 0 || len(c.Weighting) == 0 {
		return fmt.Errorf("pricing_agents and weighting_agents must both be non-empty")
	}
	if err := c.Rewards.Validate(); err != nil {
		return fmt.Errorf("rewards: %w", err)
	}
	if err := c.Epsilon.Validate(); err != nil {
		return fmt.Errorf("epsilon: %w", err)
	}
	return nil
}

// resolve returns path unchanged when absolute, otherwise joined to the config directory.
func (c *RunConfig) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.dir, path)
}

// LoadSettings loads every settings file named by the config.
func (c *RunConfig) LoadSettings() ([]*sim.EnvSettings, error) {
	settings := make([]*sim.EnvSettings, 0, len(c.Settings))
	for _, p := range c.Settings {
		s, err := sim.LoadEnvSettings(c.resolve(p))
		if err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, nil
}

// AgentPools builds fresh pricing and weighting pools from the config.
func (c *RunConfig) AgentPools(metrics *training.Metrics) ([]*training.Agent, []*training.Agent, error) {
	return training.NewAgentPools(c.Pricing, c.Weighting, c.Seed, metrics)
}
