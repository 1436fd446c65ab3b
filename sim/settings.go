package sim

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvSettings describes the distributions an environment is drawn from on reset.
// Loaded from YAML via LoadEnvSettings(path).
type EnvSettings struct {
	Name       string       `yaml:"name"`
	TimeSteps  IntRange     `yaml:"time_steps"`
	NumServers IntRange     `yaml:"num_servers"`
	Servers    ServerRanges `yaml:"servers"`
	Tasks      TaskRanges   `yaml:"tasks"`
}

// IntRange is an inclusive integer range.
type IntRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// FloatRange is a half-open float range [Min, Max).
type FloatRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ServerRanges parameterizes server capacities.
type ServerRanges struct {
	Storage     FloatRange `yaml:"storage"`
	Computation FloatRange `yaml:"computation"`
	Bandwidth   FloatRange `yaml:"bandwidth"`
}

// TaskRanges parameterizes task arrivals and demand.
type TaskRanges struct {
	ArrivalRate float64    `yaml:"arrival_rate"` // mean new tasks per time step (Poisson)
	Storage     FloatRange `yaml:"storage"`
	Computation FloatRange `yaml:"computation"`
	ResultsData FloatRange `yaml:"results_data"`
	Deadline    IntRange   `yaml:"deadline"` // time steps after the auction time
}

// LoadEnvSettings reads and parses a YAML settings file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadEnvSettings(path string) (*EnvSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading env settings: %w", err)
	}
	var settings EnvSettings
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&settings); err != nil {
		return nil, fmt.Errorf("parsing env settings %s: %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid env settings %s: %w", path, err)
	}
	return &settings, nil
}

// Validate checks that all ranges in the settings are usable.
func (s *EnvSettings) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name must be set")
	}
	if err := s.TimeSteps.validate("time_steps", 1); err != nil {
		return err
	}
	if err := s.NumServers.validate("num_servers", 1); err != nil {
		return err
	}
	ranges := []struct {
		name string
		r    FloatRange
	}{
		{"servers.storage", s.Servers.Storage},
		{"servers.computation", s.Servers.Computation},
		{"servers.bandwidth", s.Servers.Bandwidth},
		{"tasks.storage", s.Tasks.Storage},
		{"tasks.computation", s.Tasks.Computation},
		{"tasks.results_data", s.Tasks.ResultsData},
	}
	for _, fr := range ranges {
		if err := fr.r.validate(fr.name); err != nil {
			return err
		}
	}
	if math.IsNaN(s.Tasks.ArrivalRate) || math.IsInf(s.Tasks.ArrivalRate, 0) || s.Tasks.ArrivalRate <= 0 {
		return fmt.Errorf("tasks.arrival_rate must be a positive finite number, got %f", s.Tasks.ArrivalRate)
	}
	return s.Tasks.Deadline.validate("tasks.deadline", 0)
}

func (r IntRange) validate(name string, lowest int) error {
	if r.Min < lowest {
		return fmt.Errorf("%s.min must be >= %d, got %d", name, lowest, r.Min)
	}
	if r.Max < r.Min {
		return fmt.Errorf("%s.max (%d) must be >= min (%d)", name, r.Max, r.Min)
	}
	return nil
}

func (r FloatRange) validate(name string) error {
	for _, v := range []float64{r.Min, r.Max} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite, got [%f, %f]", name, r.Min, r.Max)
		}
	}
	if r.Min <= 0 {
		return fmt.Errorf("%s.min must be positive, got %f", name, r.Min)
	}
	if r.Max < r.Min {
		return fmt.Errorf("%s.max (%f) must be >= min (%f)", name, r.Max, r.Min)
	}
	return nil
}
