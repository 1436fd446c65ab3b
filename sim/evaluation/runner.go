// Package evaluation runs fixed policies over saved environments and reports
// per-environment and aggregate outcome statistics.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/flexalloc/flexalloc-sim/sim"
	"github.com/flexalloc/flexalloc-sim/sim/policy"
	"github.com/flexalloc/flexalloc-sim/sim/trace"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Runner evaluates policy pools over a fixed list of environment files.
// It never records experiences or triggers training.
type Runner struct {
	files             []string
	failureMultiplier float64
}

// NewRunner creates a runner over files. failureMultiplier scales the price of failed
// tasks in the reported total reward.
func NewRunner(files []string, failureMultiplier float64) *Runner {
	return &Runner{files: append([]string(nil), files...), failureMultiplier: failureMultiplier}
}

// Files returns the environment files evaluated, in order.
func (r *Runner) Files() []string { return r.files }

// Evaluate loads every environment, assigns one pricing and one weighting policy per
// server, and runs it to completion without exploration. Environments that fail to load
// or run are skipped and reported. Returns an error only when ctx is cancelled.
func (r *Runner) Evaluate(ctx context.Context, episode int, pricing []policy.PricingPolicy, weighting []policy.WeightingPolicy) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), Episode: episode}
	for _, file := range r.files {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("evaluation aborted before %s: %w", file, err)
		}
		result, err := r.runFile(ctx, file, pricing, weighting)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, fmt.Errorf("evaluation aborted in %s: %w", file, err)
			}
			logrus.Warnf("evaluation: skipping %s: %v", file, err)
			report.Skipped = append(report.Skipped, SkippedEnv{File: file, Error: err.Error()})
			continue
		}
		report.Environments = append(report.Environments, result)
	}
	report.Aggregate = aggregate(report.Environments)
	logrus.Infof("evaluation %s (episode %d): %d environments, %d skipped, mean total reward %.3f",
		report.RunID, episode, len(report.Environments), len(report.Skipped), report.Aggregate.MeanTotalReward)
	return report, nil
}

func (r *Runner) runFile(ctx context.Context, file string, pricing []policy.PricingPolicy, weighting []policy.WeightingPolicy) (EnvResult, error) {
	eng, state, err := sim.LoadEnv(file)
	if err != nil {
		return EnvResult{}, err
	}
	et := trace.NewEpisodeTrace(trace.TraceLevelDecisions)
	eng.SetTrace(et)
	eng.SetFailureMultiplier(r.failureMultiplier)

	assignRNG := eng.RNG(sim.SubsystemAssignment)
	pa := policy.Assign(state.Servers(), pricing, assignRNG)
	wa := policy.Assign(state.Servers(), weighting, assignRNG)
	contextFor := func(id sim.ServerID) policy.DecisionContext {
		return policy.DecisionContext{RNG: eng.RNG(sim.SubsystemExploration(id))}
	}

	for !eng.Done() {
		var action sim.Action
		if state.IsAuction() {
			action, err = policy.CollectBids(ctx, state, pa, contextFor)
		} else {
			action, err = policy.CollectWeights(ctx, state, wa, contextFor)
		}
		if err != nil {
			return EnvResult{}, err
		}
		res, err := eng.Step(action)
		if err != nil {
			return EnvResult{}, err
		}
		state = res.State
	}

	summary := trace.Summarize(et)
	result := EnvResult{
		File:        filepath.Base(file),
		Name:        eng.World().Name,
		Tasks:       summary.Auctions,
		Sold:        summary.Sold,
		Unsold:      summary.Unsold,
		Completed:   summary.Completed,
		Failed:      summary.Failed,
		TotalReward: summary.TotalReward,
		MeanPrice:   summary.MeanPrice,
	}
	if summary.Auctions > 0 {
		n := float64(summary.Auctions)
		result.CompletionRate = float64(summary.Completed) / n
		result.FailureRate = float64(summary.Failed) / n
		result.UnsoldRate = float64(summary.Unsold) / n
	}
	return result, nil
}
