package collector

import (
	"maps"
	"slices"

	"github.com/flexalloc/flexalloc-sim/sim"
	"github.com/sirupsen/logrus"
)

// lastBid is a server's most recent auction decision awaiting its next observation.
type lastBid struct {
	obs    sim.Observation
	bid    float64
	won    bool
	taskID sim.TaskID
}

// pendingWin is a won auction awaiting its task's completion.
type pendingWin struct {
	server sim.ServerID
	obs    sim.Observation
	bid    float64
	next   sim.Observation // filled at the server's next auction, nil until then
}

// PricingCollector performs deferred credit assignment for pricing decisions.
// Not safe for concurrent use; one collector serves one episode.
type PricingCollector struct {
	params  RewardParams
	sinks   map[sim.ServerID]Sink
	last    map[sim.ServerID]lastBid
	pending map[sim.TaskID]*pendingWin

	anomalies []*MatchError
	emitted   int
}

// NewPricingCollector creates a collector routing each server's records to its sink.
// Servers without a sink are observed but emit nothing.
func NewPricingCollector(params RewardParams, sinks map[sim.ServerID]Sink) *PricingCollector {
	return &PricingCollector{
		params:  params,
		sinks:   sinks,
		last:    make(map[sim.ServerID]lastBid),
		pending: make(map[sim.TaskID]*pendingWin),
	}
}

// OnAuction records an auction step. state is the state the bids were made in.
func (c *PricingCollector) OnAuction(state sim.EnvState, bids sim.Bids, result sim.StepResult) {
	if state.AuctionTask == nil {
		return
	}
	task := *state.AuctionTask
	for _, st := range state.ServerTasks {
		id := st.Server.ID
		obs := sim.PricingObservation(task, st.Tasks, st.Server, state.TimeStep)

		if prev, ok := c.last[id]; ok {
			if !prev.won {
				c.emit(id, prev.obs, prev.bid, obs, c.params.lostBidReward(prev.bid), false)
			} else if w, ok := c.pending[prev.taskID]; ok && w.next == nil {
				w.next = obs
			}
		}

		won := result.Info.Sold && result.Info.Winner == id
		c.last[id] = lastBid{obs: obs, bid: bids[id], won: won, taskID: task.ID}
		if !won {
			continue
		}
		if _, dup := c.pending[task.ID]; dup {
			c.report(&MatchError{Err: ErrDuplicateWin, TaskID: task.ID, Server: id,
				Stage: task.Stage, TimeStep: state.TimeStep, PendingSize: len(c.pending)})
			continue
		}
		c.pending[task.ID] = &pendingWin{server: id, obs: obs, bid: bids[id]}
	}
}

// OnAllocation scores every won task that finished during an allocation step.
// next is the state the step produced.
func (c *PricingCollector) OnAllocation(next sim.EnvState, result sim.StepResult) {
	for _, st := range next.ServerTasks {
		id := st.Server.ID
		for _, t := range result.Finished[id] {
			w, ok := c.pending[t.ID]
			if !ok || w.server != id {
				c.report(&MatchError{Err: ErrUnmatchedCompletion, TaskID: t.ID, Server: id,
					Stage: t.Stage, TimeStep: next.TimeStep, PendingSize: len(c.pending)})
				continue
			}
			delete(c.pending, t.ID)
			nextObs := w.next
			if nextObs == nil {
				nextObs = residentObservation(st, next.TimeStep)
			}
			c.emit(id, w.obs, w.bid, nextObs, c.params.completionReward(t), false)
		}
	}
}

// Finish closes the episode: outstanding losing bids are emitted against the final
// state and wins whose task never finished are reported.
func (c *PricingCollector) Finish(final sim.EnvState) {
	for _, st := range final.ServerTasks {
		prev, ok := c.last[st.Server.ID]
		if !ok || prev.won {
			continue
		}
		c.emit(st.Server.ID, prev.obs, prev.bid, residentObservation(st, final.TimeStep), c.params.lostBidReward(prev.bid), true)
	}
	for _, id := range slices.Sorted(maps.Keys(c.pending)) {
		c.report(&MatchError{Err: ErrUnresolvedWin, TaskID: id, Server: c.pending[id].server,
			TimeStep: final.TimeStep, PendingSize: len(c.pending)})
	}
	clear(c.last)
	clear(c.pending)
}

// Pending returns the number of won tasks awaiting completion.
func (c *PricingCollector) Pending() int { return len(c.pending) }

// Emitted returns the number of records handed to sinks.
func (c *PricingCollector) Emitted() int { return c.emitted }

// Anomalies returns every matching anomaly reported so far.
func (c *PricingCollector) Anomalies() []*MatchError { return c.anomalies }

func (c *PricingCollector) emit(id sim.ServerID, obs sim.Observation, action float64, next sim.Observation, reward float64, terminal bool) {
	sink, ok := c.sinks[id]
	if !ok {
		return
	}
	sink.AddExperience(obs, action, next, reward, terminal)
	c.emitted++
}

func (c *PricingCollector) report(err *MatchError) {
	c.anomalies = append(c.anomalies, err)
	logrus.WithFields(logrus.Fields{
		"task":     err.TaskID,
		"server":   err.Server,
		"stage":    err.Stage,
		"timeStep": err.TimeStep,
		"pending":  err.PendingSize,
	}).Warnf("pricing collector: %v", err.Err)
}

// residentObservation describes a server with no task up for auction.
func residentObservation(st sim.ServerTasks, timeStep int) sim.Observation {
	obs := make(sim.Observation, len(st.Tasks))
	for i, t := range st.Tasks {
		obs[i] = append(sim.NormaliseTask(t, st.Server, timeStep), 0)
	}
	return obs
}
