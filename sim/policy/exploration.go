package policy

import "fmt"

// EpsilonSchedule decays the exploration probability linearly from Initial to Final
// over Steps decisions and holds it at Final afterwards.
type EpsilonSchedule struct {
	Initial float64 `yaml:"initial"`
	Final   float64 `yaml:"final"`
	Steps   int64   `yaml:"steps"`
}

// DefaultEpsilonSchedule returns the schedule used when a run config omits one.
func DefaultEpsilonSchedule() EpsilonSchedule {
	return EpsilonSchedule{Initial: 1, Final: 0.1, Steps: 10000}
}

// At returns epsilon after count decisions.
func (s EpsilonSchedule) At(count int64) float64 {
	if s.Steps <= 0 || count >= s.Steps {
		return s.Final
	}
	if count <= 0 {
		return s.Initial
	}
	return s.Initial + (s.Final-s.Initial)*float64(count)/float64(s.Steps)
}

// Validate checks that both endpoints are probabilities and the decay does not increase.
func (s EpsilonSchedule) Validate() error {
	if s.Initial < 0 || s.Initial > 1 || s.Final < 0 || s.Final > 1 {
		return fmt.Errorf("epsilon must be in [0, 1], got initial=%v final=%v", s.Initial, s.Final)
	}
	if s.Final > s.Initial {
		return fmt.Errorf("final epsilon %v exceeds initial %v", s.Final, s.Initial)
	}
	if s.Steps < 0 {
		return fmt.Errorf("epsilon steps must be >= 0, got %d", s.Steps)
	}
	return nil
}
