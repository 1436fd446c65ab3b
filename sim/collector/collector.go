// Package collector turns engine steps into experience records for learning policies.
//
// Pricing rewards are deferred: a won auction is only scored once its task reaches
// COMPLETED or FAILED, possibly many steps later. Wins are kept in a map keyed by
// task identity so that every won task yields exactly one completion record.
// Weighting rewards are immediate and emitted every allocation step.
package collector

import (
	"errors"
	"fmt"

	"github.com/flexalloc/flexalloc-sim/sim"
)

var (
	// ErrUnmatchedCompletion marks a finished task with no pending auction win.
	ErrUnmatchedCompletion = errors.New("finished task has no pending auction record")

	// ErrDuplicateWin marks an auction won for a task that already has a pending win.
	ErrDuplicateWin = errors.New("task already has a pending auction record")

	// ErrUnresolvedWin marks a won task still pending when the episode finished.
	ErrUnresolvedWin = errors.New("won task never finished")
)

// Sink receives experience records. Training agents implement it.
type Sink interface {
	AddExperience(obs sim.Observation, action float64, next sim.Observation, reward float64, terminal bool)
}

// MatchError is a data-consistency anomaly in deferred matching. It is reported
// and retained; the affected record is skipped and the episode continues.
type MatchError struct {
	Err         error
	TaskID      sim.TaskID
	Server      sim.ServerID
	Stage       sim.TaskStage
	TimeStep    int
	PendingSize int
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("%v: task %d on server %d (stage %s, time step %d, %d pending)",
		e.Err, e.TaskID, e.Server, e.Stage, e.TimeStep, e.PendingSize)
}

func (e *MatchError) Unwrap() error { return e.Err }

// RewardParams shapes the rewards emitted by both collectors.
type RewardParams struct {
	FailedAuctionReward float64 `yaml:"failed_auction_reward"` // lost non-zero bid
	FailureMultiplier   float64 `yaml:"failure_multiplier"`    // applied to the price of a failed task
	OtherTaskDiscount   float64 `yaml:"other_task_discount"`   // weighting credit from other tasks finishing
	SuccessReward       float64 `yaml:"success_reward"`
	FailedReward        float64 `yaml:"failed_reward"`
}

// DefaultRewardParams returns the reward shaping used when a run config omits it.
func DefaultRewardParams() RewardParams {
	return RewardParams{
		FailedAuctionReward: -0.05,
		FailureMultiplier:   -1.5,
		OtherTaskDiscount:   0.4,
		SuccessReward:       1,
		FailedReward:        -1.5,
	}
}

// Validate checks the sign constraints on every parameter.
func (p RewardParams) Validate() error {
	if p.FailedAuctionReward > 0 {
		return fmt.Errorf("failed_auction_reward must be <= 0, got %v", p.FailedAuctionReward)
	}
	if p.FailureMultiplier > 0 {
		return fmt.Errorf("failure_multiplier must be <= 0, got %v", p.FailureMultiplier)
	}
	if p.OtherTaskDiscount <= 0 {
		return fmt.Errorf("other_task_discount must be > 0, got %v", p.OtherTaskDiscount)
	}
	if p.SuccessReward <= 0 || p.FailedReward >= 0 {
		return fmt.Errorf("need failed_reward < 0 < success_reward, got %v and %v", p.FailedReward, p.SuccessReward)
	}
	return nil
}

// lostBidReward is 0 for a non-participating bid and FailedAuctionReward otherwise.
func (p RewardParams) lostBidReward(bid float64) float64 {
	if bid == 0 {
		return 0
	}
	return p.FailedAuctionReward
}

// completionReward is the price for a completed task and price x FailureMultiplier for a failed one.
func (p RewardParams) completionReward(t sim.Task) float64 {
	if t.Stage == sim.StageCompleted {
		return t.Price
	}
	return t.Price * p.FailureMultiplier
}

func (p RewardParams) outcomeReward(t sim.Task) float64 {
	if t.Stage == sim.StageCompleted {
		return p.SuccessReward
	}
	return p.FailedReward
}
