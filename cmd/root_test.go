package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/flexalloc/flexalloc-sim/sim"
	"github.com/flexalloc/flexalloc-sim/sim/evaluation"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

const testSettings = `
name: tiny
time_steps: {min: 3, max: 5}
num_servers: {min: 2, max: 3}
servers:
  storage: {min: 20, max: 30}
  computation: {min: 20, max: 30}
  bandwidth: {min: 20, max: 30}
tasks:
  arrival_rate: 1
  storage: {min: 5, max: 15}
  computation: {min: 5, max: 15}
  results_data: {min: 5, max: 15}
  deadline: {min: 2, max: 5}
`

const testRunConfig = `
seed: 7
episodes: 3
eval_frequency: 2
eval_env_count: 2
settings: [tiny.yaml]
rewards:
  failed_auction_reward: -0.1
pricing_agents:
  - {name: bandit_pricing, policy: bandit, levels: 5, warm_up: 5, batch_size: 4}
  - {name: fixed_pricing, policy: fixed, price: 2}
weighting_agents:
  - {name: bandit_weighting, policy: bandit, levels: 4, warm_up: 5, batch_size: 4}
`

// writeFiles writes name → content into a fresh temp directory and returns it.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func loadTestConfig(t *testing.T) *RunConfig {
	t.Helper()
	dir := writeFiles(t, map[string]string{"tiny.yaml": testSettings, "run.yaml": testRunConfig})
	cfg, err := LoadRunConfig(filepath.Join(dir, "run.yaml"))
	require.NoError(t, err)
	return cfg
}

func TestLoadRunConfig_KeepsDefaultsForOmittedFields(t *testing.T) {
	// GIVEN a config that overrides one reward and omits the epsilon schedule
	cfg := loadTestConfig(t)

	// THEN overridden values are read and omitted ones keep their defaults
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, -0.1, cfg.Rewards.FailedAuctionReward)
	assert.Equal(t, -1.5, cfg.Rewards.FailureMultiplier)
	assert.Equal(t, 0.4, cfg.Rewards.OtherTaskDiscount)
	assert.Equal(t, 1.0, cfg.Epsilon.Initial)
	require.Len(t, cfg.Pricing, 2)
	assert.Equal(t, "bandit", cfg.Pricing[0].Policy)
	assert.Equal(t, int64(5), cfg.Pricing[0].WarmUp)
	assert.Equal(t, 2.0, cfg.Pricing[1].Price)
}

func TestLoadRunConfig_ResolvesSettingsAgainstConfigDir(t *testing.T) {
	cfg := loadTestConfig(t)

	settings, err := cfg.LoadSettings()

	require.NoError(t, err)
	require.Len(t, settings, 1)
	assert.Equal(t, "tiny", settings[0].Name)
}

func TestLoadRunConfig_UnknownKey_Rejected(t *testing.T) {
	dir := writeFiles(t, map[string]string{"run.yaml": testRunConfig + "epsiode: 3\n"})
	_, err := LoadRunConfig(filepath.Join(dir, "run.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing run config")
}

func TestRunConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *RunConfig)
		errMsg string
	}{
		{name: "negative episodes", mutate: func(c *RunConfig) { c.Episodes = -1 }, errMsg: "episodes"},
		{name: "no settings", mutate: func(c *RunConfig) { c.Settings = nil }, errMsg: "settings"},
		{name: "no weighting agents", mutate: func(c *RunConfig) { c.Weighting = nil }, errMsg: "weighting_agents"},
		{name: "positive failure multiplier", mutate: func(c *RunConfig) { c.Rewards.FailureMultiplier = 2 }, errMsg: "rewards"},
		{name: "rising epsilon", mutate: func(c *RunConfig) { c.Epsilon.Final = 1.5 }, errMsg: "epsilon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadTestConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestGenerateEnvs_WritesLoadableFiles(t *testing.T) {
	// GIVEN tiny settings
	cfg := loadTestConfig(t)
	settings, err := cfg.LoadSettings()
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "envs")

	// WHEN three environments are generated
	files, err := generateEnvs(settings, 1, 3, out, false)

	// THEN each file loads back and the directory listing matches
	require.NoError(t, err)
	require.Len(t, files, 3)
	for _, f := range files {
		_, state, err := sim.LoadEnv(f)
		require.NoError(t, err, f)
		assert.Equal(t, 0, state.TimeStep)
	}
	listed, err := listEnvs(out)
	require.NoError(t, err)
	assert.Equal(t, files, listed)
}

func TestGenerateEnvs_RefusesToOverwrite(t *testing.T) {
	cfg := loadTestConfig(t)
	settings, err := cfg.LoadSettings()
	require.NoError(t, err)
	out := t.TempDir()
	_, err = generateEnvs(settings, 1, 1, out, false)
	require.NoError(t, err)

	_, err = generateEnvs(settings, 1, 1, out, false)
	assert.ErrorContains(t, err, "already exists")

	_, err = generateEnvs(settings, 1, 1, out, true)
	assert.NoError(t, err)
}

func TestRunTraining_WritesPeriodicReports(t *testing.T) {
	// GIVEN a three-episode run evaluating every second episode
	cfg := loadTestConfig(t)
	reports := filepath.Join(t.TempDir(), "reports")

	// WHEN training runs
	history, err := runTraining(context.Background(), cfg, "", reports)

	// THEN every episode ran and episodes 0 and 2 were evaluated
	require.NoError(t, err)
	assert.Len(t, history, 3)
	for _, name := range []string{"eval_00000.yaml", "eval_00002.yaml"} {
		data, err := os.ReadFile(filepath.Join(reports, name))
		require.NoError(t, err, name)
		var report evaluation.Report
		require.NoError(t, yaml.Unmarshal(data, &report))
		assert.Len(t, report.Environments, 2)
	}
	assert.NoFileExists(t, filepath.Join(reports, "eval_00001.yaml"))
}

func TestRunEvaluation_RequiresEnvironments(t *testing.T) {
	cfg := loadTestConfig(t)
	_, err := runEvaluation(context.Background(), cfg)
	assert.ErrorContains(t, err, "no evaluation environments")
}

func TestCLI_GenEnvsThenEval(t *testing.T) {
	t.Cleanup(func() { logrus.SetLevel(logrus.WarnLevel) })
	dir := writeFiles(t, map[string]string{"tiny.yaml": testSettings, "run.yaml": testRunConfig})
	envs := filepath.Join(dir, "envs")
	report := filepath.Join(dir, "report.yaml")

	// WHEN environments are generated and evaluated through the CLI
	rootCmd.SetArgs([]string{"gen-envs", "--log", "warn", "--settings", filepath.Join(dir, "tiny.yaml"),
		"--count", "2", "--out", envs})
	require.NoError(t, rootCmd.Execute())

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"eval", "--log", "warn", "--config", filepath.Join(dir, "run.yaml"),
		"--envs", envs, "--report", report})
	require.NoError(t, rootCmd.Execute())

	// THEN the report covers both environments
	data, err := os.ReadFile(report)
	require.NoError(t, err)
	var r evaluation.Report
	require.NoError(t, yaml.Unmarshal(data, &r))
	assert.Equal(t, 2, r.Aggregate.Environments)
	assert.Empty(t, r.Skipped)
	assert.NotEmpty(t, r.RunID)
}

func TestCLI_InvalidLogLevel(t *testing.T) {
	rootCmd.SetArgs([]string{"gen-envs", "--log", "loud"})
	err := rootCmd.Execute()
	assert.ErrorContains(t, err, "invalid log level")
}
