package evaluation

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// EnvResult holds the outcome of one evaluated environment.
// Rates are fractions of the tasks auctioned in that environment.
type EnvResult struct {
	File           string  `yaml:"file"`
	Name           string  `yaml:"name"`
	Tasks          int     `yaml:"tasks"`
	Sold           int     `yaml:"sold"`
	Unsold         int     `yaml:"unsold"`
	Completed      int     `yaml:"completed"`
	Failed         int     `yaml:"failed"`
	TotalReward    float64 `yaml:"total_reward"`
	MeanPrice      float64 `yaml:"mean_price"`
	CompletionRate float64 `yaml:"completion_rate"`
	FailureRate    float64 `yaml:"failure_rate"`
	UnsoldRate     float64 `yaml:"unsold_rate"`
}

// SkippedEnv records an environment that could not be evaluated.
type SkippedEnv struct {
	File  string `yaml:"file"`
	Error string `yaml:"error"`
}

// Aggregate summarizes results across environments.
type Aggregate struct {
	Environments       int     `yaml:"environments"`
	MeanTotalReward    float64 `yaml:"mean_total_reward"`
	StdDevTotalReward  float64 `yaml:"stddev_total_reward"`
	MeanCompletionRate float64 `yaml:"mean_completion_rate"`
	MeanFailureRate    float64 `yaml:"mean_failure_rate"`
	MeanUnsoldRate     float64 `yaml:"mean_unsold_rate"`
}

// Report is the result of one evaluation pass.
type Report struct {
	RunID        string       `yaml:"run_id"`
	Episode      int          `yaml:"episode"`
	Environments []EnvResult  `yaml:"environments"`
	Skipped      []SkippedEnv `yaml:"skipped,omitempty"`
	Aggregate    Aggregate    `yaml:"aggregate"`
}

func aggregate(results []EnvResult) Aggregate {
	agg := Aggregate{Environments: len(results)}
	if len(results) == 0 {
		return agg
	}
	rewards := make([]float64, len(results))
	completion := make([]float64, len(results))
	failure := make([]float64, len(results))
	unsold := make([]float64, len(results))
	for i, r := range results {
		rewards[i] = r.TotalReward
		completion[i] = r.CompletionRate
		failure[i] = r.FailureRate
		unsold[i] = r.UnsoldRate
	}
	agg.MeanTotalReward = stat.Mean(rewards, nil)
	if len(results) > 1 {
		agg.StdDevTotalReward = stat.StdDev(rewards, nil)
	}
	agg.MeanCompletionRate = stat.Mean(completion, nil)
	agg.MeanFailureRate = stat.Mean(failure, nil)
	agg.MeanUnsoldRate = stat.Mean(unsold, nil)
	return agg
}

// Save writes the report as YAML to path, replacing any existing file atomically.
func (r *Report) Save(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal evaluation report: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write evaluation report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename evaluation report: %w", err)
	}
	return nil
}
