package training

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/flexalloc/flexalloc-sim/sim"
	"github.com/flexalloc/flexalloc-sim/sim/collector"
	"github.com/flexalloc/flexalloc-sim/sim/evaluation"
	"github.com/flexalloc/flexalloc-sim/sim/internal/testutil"
	"github.com/flexalloc/flexalloc-sim/sim/policy"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.ErrorLevel)
	}
	os.Exit(m.Run())
}

func testSettings() *sim.EnvSettings {
	return &sim.EnvSettings{
		Name:       "training",
		TimeSteps:  sim.IntRange{Min: 8, Max: 12},
		NumServers: sim.IntRange{Min: 2, Max: 4},
		Servers: sim.ServerRanges{
			Storage:     sim.FloatRange{Min: 10, Max: 20},
			Computation: sim.FloatRange{Min: 10, Max: 20},
			Bandwidth:   sim.FloatRange{Min: 10, Max: 20},
		},
		Tasks: sim.TaskRanges{
			ArrivalRate: 1.2,
			Storage:     sim.FloatRange{Min: 5, Max: 20},
			Computation: sim.FloatRange{Min: 5, Max: 20},
			ResultsData: sim.FloatRange{Min: 5, Max: 20},
			Deadline:    sim.IntRange{Min: 3, Max: 8},
		},
	}
}

func banditConfig(name string, warmUp, freq int64) AgentConfig {
	return AgentConfig{
		Config:         policy.Config{Name: name, Policy: "bandit", Levels: 5},
		ReplayCapacity: 64,
		BatchSize:      4,
		WarmUp:         warmUp,
		TrainingFreq:   freq,
		RewardScaling:  0.5,
	}
}

func TestAgent_TrainingCadence(t *testing.T) {
	// GIVEN an agent with warm-up 3 and training frequency 2
	m := NewMetrics()
	a := NewPricingAgent(banditConfig("p0", 3, 2), rand.New(rand.NewPCG(1, 1)), m)

	// WHEN six records are inserted
	updatesAfter := make([]int64, 0, 6)
	for i := 0; i < 6; i++ {
		a.AddExperience(nil, 1, nil, 2, false)
		updatesAfter = append(updatesAfter, a.Updates())
	}

	// THEN updates fire on the 4th and 6th insertion only
	assert.Equal(t, []int64{0, 0, 0, 1, 1, 2}, updatesAfter)
	assert.Equal(t, 2.0, promtestutil.ToFloat64(m.policyUpdates.WithLabelValues("p0")))
	assert.Equal(t, 6.0, promtestutil.ToFloat64(m.experiences.WithLabelValues("p0")))

	// AND rewards are scaled at insertion, and the learner saw them
	assert.Equal(t, 1.0, a.Buffer().At(0).Reward)
	values, counts := a.Pricing().(*policy.BanditPricing).Values()
	assert.Positive(t, counts[1])
	assert.Equal(t, 1.0, values[1])
}

func TestAgent_NonLearningPolicyStillBuffers(t *testing.T) {
	cfg := AgentConfig{Config: policy.Config{Policy: "uniform"}, ReplayCapacity: 2, WarmUp: 1, TrainingFreq: 1}
	a := NewWeightingAgent(cfg, rand.New(rand.NewPCG(1, 1)), nil)
	for i := 0; i < 5; i++ {
		a.AddExperience(nil, 1, nil, 0, false)
	}
	assert.Equal(t, 2, a.Buffer().Len())
	assert.Equal(t, int64(5), a.Buffer().Inserted())
	assert.Equal(t, "uniform", a.Name())
}

func newOrchestrator(t *testing.T, m *Metrics) *Orchestrator {
	t.Helper()
	pricing, weighting, err := NewAgentPools(
		[]AgentConfig{banditConfig("bandit-price", 10, 2), {Config: policy.Config{Name: "fixed-3", Policy: "fixed", Price: 3}}},
		[]AgentConfig{banditConfig("bandit-weight", 10, 2), {Config: policy.Config{Policy: "deadline"}}},
		7, m)
	require.NoError(t, err)
	eng := sim.NewEngine([]*sim.EnvSettings{testSettings()}, 7)
	return NewOrchestrator(eng, pricing, weighting, collector.DefaultRewardParams(), policy.DefaultEpsilonSchedule(), m)
}

func TestOrchestrator_RunEpisode_FillsBuffersWithoutAnomalies(t *testing.T) {
	// GIVEN mixed learning and fixed pools
	m := NewMetrics()
	o := newOrchestrator(t, m)

	// WHEN three episodes run
	var total EpisodeStats
	for i := 0; i < 3; i++ {
		stats, err := o.RunEpisode(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, stats.Episode)
		assert.Zero(t, stats.Anomalies)
		assert.Equal(t, stats.Sold, stats.Completed+stats.Failed, "every sold task finishes by the end of the episode")
		total.Experiences += stats.Experiences
		total.Auctions += stats.Auctions
	}

	// THEN every emitted record reached a buffer and the metrics agree
	inserted := int64(0)
	for _, a := range append(append([]*Agent(nil), o.pricing...), o.weighting...) {
		inserted += a.Buffer().Inserted()
	}
	assert.Equal(t, int64(total.Experiences), inserted)
	assert.Positive(t, total.Auctions)
	assert.Positive(t, o.ActionCount())
	assert.Equal(t, 3.0, promtestutil.ToFloat64(m.episodes))
	assert.Equal(t, float64(total.Auctions),
		promtestutil.ToFloat64(m.auctionsSold)+promtestutil.ToFloat64(m.auctionsUnsold))
}

func TestOrchestrator_RunEpisode_SameSeedSameStats(t *testing.T) {
	first, err := newOrchestrator(t, nil).RunEpisode(context.Background())
	require.NoError(t, err)
	second, err := newOrchestrator(t, nil).RunEpisode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestOrchestrator_RunEpisode_CancelledContext(t *testing.T) {
	o := newOrchestrator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.RunEpisode(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	for _, a := range o.pricing {
		assert.Zero(t, a.Buffer().Len())
	}
}

func TestOrchestrator_Run_EvaluatesPeriodically(t *testing.T) {
	// GIVEN two saved evaluation environments
	gen := sim.NewEngine([]*sim.EnvSettings{testSettings()}, 99)
	files := []string{testutil.SaveEnv(t, gen, "eval_0.env"), testutil.SaveEnv(t, gen, "eval_1.env")}
	reportDir := t.TempDir()
	m := NewMetrics()
	o := newOrchestrator(t, m)

	// WHEN four episodes run with evaluation every two
	history, err := o.Run(context.Background(), RunOptions{
		Episodes:      4,
		EvalFrequency: 2,
		Evaluator:     evaluation.NewRunner(files, -1.5),
		ReportDir:     reportDir,
	})

	// THEN episodes 0 and 2 are evaluated
	require.NoError(t, err)
	assert.Len(t, history, 4)
	reports, err := filepath.Glob(filepath.Join(reportDir, "eval_*.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(reportDir, "eval_00000.yaml"),
		filepath.Join(reportDir, "eval_00002.yaml"),
	}, reports)
}

func TestNewAgentPools_RejectsUnknownPolicy(t *testing.T) {
	_, _, err := NewAgentPools(
		[]AgentConfig{{Config: policy.Config{Policy: "oracle"}}},
		[]AgentConfig{{Config: policy.Config{Policy: "uniform"}}},
		1, nil)
	assert.Error(t, err)
}

func TestMetrics_Handler_ServesRegistry(t *testing.T) {
	m := NewMetrics()
	m.RecordEpisode()
	count, err := promtestutil.GatherAndCount(m.Registry(), "flexalloc_episodes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NotNil(t, m.Handler())
}
