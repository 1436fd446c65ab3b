// Package training runs learning episodes: it assigns policies to servers, drives the
// engine, routes collector output into each agent's replay buffer and evaluates the
// pools periodically.
package training

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/flexalloc/flexalloc-sim/sim"
	"github.com/flexalloc/flexalloc-sim/sim/collector"
	"github.com/flexalloc/flexalloc-sim/sim/evaluation"
	"github.com/flexalloc/flexalloc-sim/sim/policy"
	"github.com/sirupsen/logrus"
)

// EpisodeStats summarizes one training episode.
type EpisodeStats struct {
	Episode     int
	Steps       int
	Auctions    int
	Sold        int
	Completed   int
	Failed      int
	TotalReward float64 // completed prices plus failed prices times the failure multiplier
	Experiences int
	Anomalies   int
}

// Orchestrator owns the training engine, the agent pools and the exploration counter.
// Not safe for concurrent use.
type Orchestrator struct {
	engine    *sim.Engine
	pricing   []*Agent
	weighting []*Agent
	rewards   collector.RewardParams
	epsilon   policy.EpsilonSchedule
	metrics   *Metrics

	actionCount int64
	episodes    int
}

// NewOrchestrator creates an orchestrator. Panics if either pool is empty.
func NewOrchestrator(engine *sim.Engine, pricing, weighting []*Agent, rewards collector.RewardParams,
	epsilon policy.EpsilonSchedule, metrics *Metrics) *Orchestrator {
	if len(pricing) == 0 || len(weighting) == 0 {
		panic("NewOrchestrator: pricing and weighting pools must be non-empty")
	}
	engine.SetFailureMultiplier(rewards.FailureMultiplier)
	return &Orchestrator{
		engine:    engine,
		pricing:   pricing,
		weighting: weighting,
		rewards:   rewards,
		epsilon:   epsilon,
		metrics:   metrics,
	}
}

// ActionCount returns the number of training decisions taken so far.
func (o *Orchestrator) ActionCount() int64 { return o.actionCount }

// PricingPolicies returns the policies of the pricing pool, in pool order.
func (o *Orchestrator) PricingPolicies() []policy.PricingPolicy {
	out := make([]policy.PricingPolicy, len(o.pricing))
	for i, a := range o.pricing {
		out[i] = a.Pricing()
	}
	return out
}

// WeightingPolicies returns the policies of the weighting pool, in pool order.
func (o *Orchestrator) WeightingPolicies() []policy.WeightingPolicy {
	out := make([]policy.WeightingPolicy, len(o.weighting))
	for i, a := range o.weighting {
		out[i] = a.Weighting()
	}
	return out
}

// RunEpisode resets the engine and trains through one episode until it is done.
// ctx is checked between steps only; on cancellation the episode is abandoned and
// every record already in a buffer is complete.
func (o *Orchestrator) RunEpisode(ctx context.Context) (EpisodeStats, error) {
	state := o.engine.Reset()
	stats := EpisodeStats{Episode: o.episodes}

	assignRNG := o.engine.RNG(sim.SubsystemAssignment)
	pricingAgents := policy.Assign(state.Servers(), o.pricing, assignRNG)
	weightingAgents := policy.Assign(state.Servers(), o.weighting, assignRNG)

	pa := make(map[sim.ServerID]policy.PricingPolicy, len(pricingAgents))
	psinks := make(map[sim.ServerID]collector.Sink, len(pricingAgents))
	for id, a := range pricingAgents {
		pa[id] = a.Pricing()
		psinks[id] = a
	}
	wa := make(map[sim.ServerID]policy.WeightingPolicy, len(weightingAgents))
	wsinks := make(map[sim.ServerID]collector.Sink, len(weightingAgents))
	for id, a := range weightingAgents {
		wa[id] = a.Weighting()
		wsinks[id] = a
	}
	pc := collector.NewPricingCollector(o.rewards, psinks)
	wc := collector.NewWeightingCollector(o.rewards, wsinks)

	for !o.engine.Done() {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("episode %d aborted at time step %d: %w", o.episodes, state.TimeStep, err)
		}
		epsilon := o.epsilon.At(o.actionCount)
		contextFor := func(id sim.ServerID) policy.DecisionContext {
			return policy.DecisionContext{
				Training:    true,
				ActionCount: o.actionCount,
				Epsilon:     epsilon,
				RNG:         o.engine.RNG(sim.SubsystemExploration(id)),
			}
		}

		if state.IsAuction() {
			bids, err := policy.CollectBids(ctx, state, pa, contextFor)
			if err != nil {
				return stats, err
			}
			res, err := o.engine.Step(bids)
			if err != nil {
				return stats, err
			}
			pc.OnAuction(state, bids, res)
			stats.Auctions++
			if res.Info.Sold {
				stats.Sold++
			}
			o.metrics.RecordAuction(res.Info.Sold)
			state = res.State
		} else {
			weights, err := policy.CollectWeights(ctx, state, wa, contextFor)
			if err != nil {
				return stats, err
			}
			res, err := o.engine.Step(weights)
			if err != nil {
				return stats, err
			}
			pc.OnAllocation(res.State, res)
			wc.OnAllocation(state, res.State, weights, res)
			o.recordFinished(&stats, res)
			state = res.State
		}
		o.actionCount += int64(len(state.ServerTasks))
		stats.Steps++
	}

	pc.Finish(state)
	stats.Experiences = pc.Emitted() + wc.Emitted()
	stats.Anomalies = len(pc.Anomalies())
	o.metrics.RecordAnomalies(stats.Anomalies)
	o.metrics.RecordEpisode()
	o.episodes++
	logrus.Infof("episode %d: %d steps, %d/%d auctions sold, %d completed, %d failed, reward %.3f, %d experiences",
		stats.Episode, stats.Steps, stats.Sold, stats.Auctions, stats.Completed, stats.Failed, stats.TotalReward, stats.Experiences)
	return stats, nil
}

func (o *Orchestrator) recordFinished(stats *EpisodeStats, res sim.StepResult) {
	completed, failed := 0, 0
	for _, tasks := range res.Finished {
		for _, t := range tasks {
			if t.Stage == sim.StageCompleted {
				completed++
				stats.TotalReward += t.Price
			} else {
				failed++
				stats.TotalReward += t.Price * o.rewards.FailureMultiplier
			}
		}
	}
	stats.Completed += completed
	stats.Failed += failed
	o.metrics.RecordFinished(completed, failed)
}

// RunOptions configures a training run.
type RunOptions struct {
	Episodes      int
	EvalFrequency int                // evaluate when episode % EvalFrequency == 0; 0 disables
	Evaluator     *evaluation.Runner // nil disables evaluation
	ReportDir     string             // evaluation reports are written here when set
}

// Run trains for opts.Episodes episodes, evaluating the pools periodically.
// Returns the stats of every completed episode.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) ([]EpisodeStats, error) {
	history := make([]EpisodeStats, 0, opts.Episodes)
	for ep := 0; ep < opts.Episodes; ep++ {
		stats, err := o.RunEpisode(ctx)
		if err != nil {
			return history, err
		}
		history = append(history, stats)

		if opts.Evaluator == nil || opts.EvalFrequency <= 0 || ep%opts.EvalFrequency != 0 {
			continue
		}
		report, err := opts.Evaluator.Evaluate(ctx, ep, o.PricingPolicies(), o.WeightingPolicies())
		if err != nil {
			return history, err
		}
		o.metrics.SetEvalReward(report.Aggregate.MeanTotalReward)
		if opts.ReportDir != "" {
			path := filepath.Join(opts.ReportDir, fmt.Sprintf("eval_%05d.yaml", ep))
			if err := report.Save(path); err != nil {
				return history, err
			}
		}
	}
	return history, nil
}
