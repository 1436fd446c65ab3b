package training

import (
	"fmt"

	"github.com/flexalloc/flexalloc-sim/sim"
)

// NewAgentPools validates the agent configs and builds both pools. Each agent samples
// its replay batches from its own stream derived from seed.
func NewAgentPools(pricing, weighting []AgentConfig, seed int64, metrics *Metrics) ([]*Agent, []*Agent, error) {
	if len(pricing) == 0 || len(weighting) == 0 {
		return nil, nil, fmt.Errorf("at least one pricing and one weighting agent is required")
	}
	for _, c := range pricing {
		if err := c.ValidatePricing(); err != nil {
			return nil, nil, err
		}
		if err := c.Validate(); err != nil {
			return nil, nil, err
		}
	}
	for _, c := range weighting {
		if err := c.ValidateWeighting(); err != nil {
			return nil, nil, err
		}
		if err := c.Validate(); err != nil {
			return nil, nil, err
		}
	}

	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(seed))
	pricingAgents := make([]*Agent, len(pricing))
	for i, c := range pricing {
		stream := rng.ForSubsystem(fmt.Sprintf("%s_pricing_%d", sim.SubsystemReplay, i))
		pricingAgents[i] = NewPricingAgent(c, stream, metrics)
	}
	weightingAgents := make([]*Agent, len(weighting))
	for i, c := range weighting {
		stream := rng.ForSubsystem(fmt.Sprintf("%s_weighting_%d", sim.SubsystemReplay, i))
		weightingAgents[i] = NewWeightingAgent(c, stream, metrics)
	}
	return pricingAgents, weightingAgents, nil
}
