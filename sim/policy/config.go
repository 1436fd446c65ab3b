package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Config names a policy implementation and its parameters, loadable from YAML.
// Zero-valued parameters fall back to per-policy defaults.
type Config struct {
	Name          string  `yaml:"name"`
	Policy        string  `yaml:"policy"`
	Price         float64 `yaml:"price"`          // fixed pricing
	Levels        int     `yaml:"levels"`         // random and bandit policies
	ParallelLimit int     `yaml:"parallel_limit"` // pricing only; 0 is unlimited
}

const defaultLevels = 21

// ValidPricingPolicies is the set of recognized pricing policy names.
// Shared by Validate and NewPricingPolicy.
var ValidPricingPolicies = map[string]bool{"fixed": true, "random": true, "bandit": true}

// ValidWeightingPolicies is the set of recognized weighting policy names.
var ValidWeightingPolicies = map[string]bool{"uniform": true, "deadline": true, "bandit": true}

// IsValidPricingPolicy returns true if name is a recognized pricing policy.
func IsValidPricingPolicy(name string) bool { return ValidPricingPolicies[name] }

// IsValidWeightingPolicy returns true if name is a recognized weighting policy.
func IsValidWeightingPolicy(name string) bool { return ValidWeightingPolicies[name] }

func validNames(m map[string]bool) string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func (c Config) validateParams() error {
	if c.Price < 0 {
		return fmt.Errorf("policy %q: price must be >= 0, got %v", c.Name, c.Price)
	}
	if c.Levels < 0 {
		return fmt.Errorf("policy %q: levels must be >= 0, got %d", c.Name, c.Levels)
	}
	if c.ParallelLimit < 0 {
		return fmt.Errorf("policy %q: parallel_limit must be >= 0, got %d", c.Name, c.ParallelLimit)
	}
	return nil
}

// ValidatePricing checks the config names a known pricing policy with sane parameters.
func (c Config) ValidatePricing() error {
	if !IsValidPricingPolicy(c.Policy) {
		return fmt.Errorf("unknown pricing policy %q; valid policies: [%s]", c.Policy, validNames(ValidPricingPolicies))
	}
	if c.Policy == "bandit" && c.Levels == 1 {
		return fmt.Errorf("policy %q: bandit needs at least 2 levels", c.Name)
	}
	return c.validateParams()
}

// ValidateWeighting checks the config names a known weighting policy with sane parameters.
func (c Config) ValidateWeighting() error {
	if !IsValidWeightingPolicy(c.Policy) {
		return fmt.Errorf("unknown weighting policy %q; valid policies: [%s]", c.Policy, validNames(ValidWeightingPolicies))
	}
	if c.ParallelLimit != 0 {
		return fmt.Errorf("policy %q: parallel_limit applies to pricing policies only", c.Name)
	}
	if c.Policy == "bandit" && c.Levels == 1 {
		return fmt.Errorf("policy %q: bandit needs at least 2 levels", c.Name)
	}
	return c.validateParams()
}

func (c Config) displayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Policy
}

func (c Config) levels() int {
	if c.Levels == 0 {
		return defaultLevels
	}
	return c.Levels
}

// NewPricingPolicy creates a pricing policy by name.
// Panics on unrecognized names.
func NewPricingPolicy(c Config) PricingPolicy {
	switch c.Policy {
	case "fixed":
		return NewFixedPricing(c.displayName(), c.Price, c.ParallelLimit)
	case "random":
		return NewRandomPricing(c.displayName(), c.levels(), c.ParallelLimit)
	case "bandit":
		return NewBanditPricing(c.displayName(), c.levels(), c.ParallelLimit)
	default:
		panic(fmt.Sprintf("unknown pricing policy %q", c.Policy))
	}
}

// NewWeightingPolicy creates a weighting policy by name.
// Panics on unrecognized names.
func NewWeightingPolicy(c Config) WeightingPolicy {
	switch c.Policy {
	case "uniform":
		return NewUniformWeighting(c.displayName())
	case "deadline":
		return NewDeadlineWeighting(c.displayName())
	case "bandit":
		return NewBanditWeighting(c.displayName(), c.levels())
	default:
		panic(fmt.Sprintf("unknown weighting policy %q", c.Policy))
	}
}
