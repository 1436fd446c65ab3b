package training

import (
	"fmt"
	"math/rand/v2"

	"github.com/flexalloc/flexalloc-sim/sim"
	"github.com/flexalloc/flexalloc-sim/sim/policy"
	"github.com/flexalloc/flexalloc-sim/sim/replay"
	"github.com/sirupsen/logrus"
)

// AgentConfig is one entry of the pricing or weighting agent pool.
// Zero-valued training parameters take the DefaultAgentConfig values.
type AgentConfig struct {
	policy.Config `yaml:",inline"`

	ReplayCapacity int     `yaml:"replay_capacity"`
	BatchSize      int     `yaml:"batch_size"`
	WarmUp         int64   `yaml:"warm_up"`       // insertions before the first update
	TrainingFreq   int64   `yaml:"training_freq"` // insertions between updates
	RewardScaling  float64 `yaml:"reward_scaling"`
}

// DefaultAgentConfig returns the training parameters used when a config omits them.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		ReplayCapacity: 10000,
		BatchSize:      32,
		WarmUp:         1000,
		TrainingFreq:   2,
		RewardScaling:  1,
	}
}

// withDefaults fills zero-valued training parameters.
func (c AgentConfig) withDefaults() AgentConfig {
	d := DefaultAgentConfig()
	if c.ReplayCapacity == 0 {
		c.ReplayCapacity = d.ReplayCapacity
	}
	if c.BatchSize == 0 {
		c.BatchSize = d.BatchSize
	}
	if c.WarmUp == 0 {
		c.WarmUp = d.WarmUp
	}
	if c.TrainingFreq == 0 {
		c.TrainingFreq = d.TrainingFreq
	}
	if c.RewardScaling == 0 {
		c.RewardScaling = d.RewardScaling
	}
	return c
}

// Validate checks the training parameters. Policy names are checked by the pool.
func (c AgentConfig) Validate() error {
	if c.ReplayCapacity < 0 || c.BatchSize < 0 || c.WarmUp < 0 || c.TrainingFreq < 0 {
		return fmt.Errorf("agent %q: replay_capacity, batch_size, warm_up and training_freq must be >= 0", c.Name)
	}
	if c.RewardScaling < 0 {
		return fmt.Errorf("agent %q: reward_scaling must be >= 0, got %v", c.Name, c.RewardScaling)
	}
	return nil
}

// Agent owns one policy together with its replay buffer and update cadence.
// Exactly one of its pricing or weighting policy is set.
//
// AddExperience is the only writer of the buffer and must be called from a single goroutine.
type Agent struct {
	name      string
	pricing   policy.PricingPolicy
	weighting policy.WeightingPolicy
	learner   policy.Learner // nil for policies that do not learn

	buffer        *replay.Buffer
	rng           *rand.Rand
	batchSize     int
	warmUp        int64
	trainingFreq  int64
	rewardScaling float64

	sinceUpdate int64
	updates     int64
	metrics     *Metrics
}

func newAgent(cfg AgentConfig, rng *rand.Rand, metrics *Metrics) *Agent {
	cfg = cfg.withDefaults()
	return &Agent{
		buffer:        replay.NewBuffer(cfg.ReplayCapacity),
		rng:           rng,
		batchSize:     cfg.BatchSize,
		warmUp:        cfg.WarmUp,
		trainingFreq:  cfg.TrainingFreq,
		rewardScaling: cfg.RewardScaling,
		metrics:       metrics,
	}
}

// NewPricingAgent creates an agent around the pricing policy cfg names.
// Panics on unrecognized policy names.
func NewPricingAgent(cfg AgentConfig, rng *rand.Rand, metrics *Metrics) *Agent {
	a := newAgent(cfg, rng, metrics)
	a.pricing = policy.NewPricingPolicy(cfg.Config)
	a.name = a.pricing.Name()
	a.learner, _ = a.pricing.(policy.Learner)
	return a
}

// NewWeightingAgent creates an agent around the weighting policy cfg names.
// Panics on unrecognized policy names.
func NewWeightingAgent(cfg AgentConfig, rng *rand.Rand, metrics *Metrics) *Agent {
	a := newAgent(cfg, rng, metrics)
	a.weighting = policy.NewWeightingPolicy(cfg.Config)
	a.name = a.weighting.Name()
	a.learner, _ = a.weighting.(policy.Learner)
	return a
}

func (a *Agent) Name() string                      { return a.name }
func (a *Agent) Pricing() policy.PricingPolicy     { return a.pricing }
func (a *Agent) Weighting() policy.WeightingPolicy { return a.weighting }
func (a *Agent) Buffer() *replay.Buffer            { return a.buffer }
func (a *Agent) Updates() int64                    { return a.updates }

// AddExperience scales the reward, stores the record and triggers at most one policy
// update once total insertions exceed the warm-up and insertions since the last
// update reach the training frequency.
func (a *Agent) AddExperience(obs sim.Observation, action float64, next sim.Observation, reward float64, terminal bool) {
	a.buffer.Add(replay.Experience{
		Observation:     obs,
		Action:          action,
		NextObservation: next,
		Reward:          reward * a.rewardScaling,
		Terminal:        terminal,
	})
	a.sinceUpdate++
	a.metrics.RecordExperience(a.name, a.buffer.Len())

	if a.buffer.Inserted() > a.warmUp && a.sinceUpdate >= a.trainingFreq {
		a.update()
	}
}

func (a *Agent) update() {
	a.sinceUpdate = 0
	a.updates++
	a.metrics.RecordUpdate(a.name)
	if a.learner == nil {
		return
	}
	batch, err := a.buffer.Sample(a.rng, min(a.batchSize, a.buffer.Len()))
	if err != nil {
		logrus.Warnf("agent %s: skipping update: %v", a.name, err)
		return
	}
	a.learner.Train(batch)
	logrus.Debugf("agent %s: update %d on %d records", a.name, a.updates, len(batch))
}
