package policy

import (
	"math/rand/v2"
	"testing"

	"github.com/flexalloc/flexalloc-sim/sim"
	"github.com/flexalloc/flexalloc-sim/sim/replay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resident(n int) []sim.Task {
	tasks := make([]sim.Task, n)
	for i := range tasks {
		tasks[i] = *sim.NewTask(sim.TaskID(i), 5, 5, 5, 0, 10+i)
		tasks[i].Stage = sim.StageLoading
	}
	return tasks
}

func TestEpsilonSchedule_LinearDecayThenHold(t *testing.T) {
	s := EpsilonSchedule{Initial: 1, Final: 0.1, Steps: 100}
	assert.Equal(t, 1.0, s.At(0))
	assert.InDelta(t, 0.55, s.At(50), 1e-12)
	assert.Equal(t, 0.1, s.At(100))
	assert.Equal(t, 0.1, s.At(1_000_000))
}

func TestEpsilonSchedule_Validate(t *testing.T) {
	assert.NoError(t, DefaultEpsilonSchedule().Validate())
	assert.Error(t, EpsilonSchedule{Initial: 0.1, Final: 0.5, Steps: 10}.Validate())
	assert.Error(t, EpsilonSchedule{Initial: 1.5, Final: 0.1, Steps: 10}.Validate())
}

func TestFixedPricing_RespectsParallelLimit(t *testing.T) {
	// GIVEN a fixed policy limited to 2 parallel tasks
	p := NewFixedPricing("fixed", 4, 2)
	auction := *sim.NewTask(9, 1, 1, 1, 0, 5)
	server := sim.NewServer(0, 10, 10, 10)

	// THEN it bids its price below the limit and abstains at it
	assert.Equal(t, 4.0, p.Bid(auction, resident(1), server, 0, DecisionContext{}))
	assert.Equal(t, 0.0, p.Bid(auction, resident(2), server, 0, DecisionContext{}))
}

func TestBanditPricing_GreedyAfterTraining(t *testing.T) {
	// GIVEN a bandit where level 3 earned the most
	p := NewBanditPricing("bandit", 5, 0)
	p.Train([]replay.Experience{
		{Action: 1, Reward: -0.05},
		{Action: 3, Reward: 3},
		{Action: 4, Reward: 4 * -1.5},
	})
	auction := *sim.NewTask(0, 1, 1, 1, 0, 5)
	server := sim.NewServer(0, 10, 10, 10)

	// WHEN bidding outside training
	bid := p.Bid(auction, nil, server, 0, DecisionContext{Training: false, Epsilon: 1, RNG: rand.New(rand.NewPCG(1, 1))})

	// THEN the best level is bid and exploration is ignored
	assert.Equal(t, 3.0, bid)
	values, counts := p.Values()
	assert.Equal(t, int64(1), counts[3])
	assert.Equal(t, 3.0, values[3])
}

func TestBanditPricing_UntrainedBidsMiddleLevel(t *testing.T) {
	p := NewBanditPricing("bandit", 11, 0)
	bid := p.Bid(*sim.NewTask(0, 1, 1, 1, 0, 5), nil, sim.NewServer(0, 1, 1, 1), 0, DecisionContext{})
	assert.Equal(t, 5.0, bid)
}

func TestBanditPricing_FullExplorationStaysInRange(t *testing.T) {
	p := NewBanditPricing("bandit", 4, 0)
	dc := DecisionContext{Training: true, Epsilon: 1, RNG: rand.New(rand.NewPCG(3, 4))}
	for i := 0; i < 200; i++ {
		bid := p.Bid(*sim.NewTask(0, 1, 1, 1, 0, 5), nil, sim.NewServer(0, 1, 1, 1), 0, dc)
		require.GreaterOrEqual(t, bid, 0.0)
		require.Less(t, bid, 4.0)
	}
}

func TestDeadlineWeighting_FavoursUrgentTasks(t *testing.T) {
	tasks := resident(3) // deadlines 10, 11, 12
	w := NewDeadlineWeighting("deadline").Weight(tasks, sim.NewServer(0, 1, 1, 1), 10, DecisionContext{})
	assert.Equal(t, 1.0, w[0])
	assert.Equal(t, 0.5, w[1])
	assert.InDelta(t, 1.0/3, w[2], 1e-12)
}

func TestBanditWeighting_WeightsArePositive(t *testing.T) {
	// GIVEN an untrained bandit and one exploring
	w := NewBanditWeighting("bandit", 3)
	tasks := resident(4)
	server := sim.NewServer(0, 1, 1, 1)

	for _, dc := range []DecisionContext{{}, {Training: true, Epsilon: 1, RNG: rand.New(rand.NewPCG(5, 5))}} {
		weights := w.Weight(tasks, server, 0, dc)
		require.Len(t, weights, len(tasks))
		for _, v := range weights {
			assert.GreaterOrEqual(t, v, 1.0)
			assert.LessOrEqual(t, v, 3.0)
		}
	}
}

func TestNewPricingPolicy_UnknownName_Panics(t *testing.T) {
	assert.Panics(t, func() { NewPricingPolicy(Config{Policy: "oracle"}) })
	assert.Panics(t, func() { NewWeightingPolicy(Config{Policy: "fixed"}) })
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		weighting bool
		wantErr   bool
	}{
		{name: "fixed pricing", cfg: Config{Policy: "fixed", Price: 2}},
		{name: "negative price", cfg: Config{Policy: "fixed", Price: -1}, wantErr: true},
		{name: "unknown pricing", cfg: Config{Policy: "uniform"}, wantErr: true},
		{name: "bandit one level", cfg: Config{Policy: "bandit", Levels: 1}, wantErr: true},
		{name: "deadline weighting", cfg: Config{Policy: "deadline"}, weighting: true},
		{name: "weighting with parallel limit", cfg: Config{Policy: "uniform", ParallelLimit: 2}, weighting: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.weighting {
				err = tt.cfg.ValidateWeighting()
			} else {
				err = tt.cfg.ValidatePricing()
			}
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestNewPricingPolicy_NameDefaultsToPolicy(t *testing.T) {
	assert.Equal(t, "random", NewPricingPolicy(Config{Policy: "random"}).Name())
	assert.Equal(t, "greedy-0", NewWeightingPolicy(Config{Name: "greedy-0", Policy: "bandit"}).Name())
}
