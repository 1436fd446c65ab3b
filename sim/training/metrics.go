package training

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes training progress as Prometheus metrics on a private registry.
// All methods are safe for concurrent use and a nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	episodes        prometheus.Counter
	auctionsSold    prometheus.Counter
	auctionsUnsold  prometheus.Counter
	tasksCompleted  prometheus.Counter
	tasksFailed     prometheus.Counter
	matchAnomalies  prometheus.Counter
	experiences     *prometheus.CounterVec
	policyUpdates   *prometheus.CounterVec
	bufferSize      *prometheus.GaugeVec
	evalTotalReward prometheus.Gauge
}

// NewMetrics creates and registers the training metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		episodes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flexalloc_episodes_total",
			Help: "Total number of training episodes run to completion",
		}),
		auctionsSold: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flexalloc_auctions_sold_total",
			Help: "Total number of auctions won by a server",
		}),
		auctionsUnsold: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flexalloc_auctions_unsold_total",
			Help: "Total number of auctions with no positive bid",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flexalloc_tasks_completed_total",
			Help: "Total number of tasks that completed before their deadline",
		}),
		tasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flexalloc_tasks_failed_total",
			Help: "Total number of tasks that missed their deadline",
		}),
		matchAnomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flexalloc_match_anomalies_total",
			Help: "Total number of pricing records that could not be matched exactly once",
		}),
		experiences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flexalloc_experiences_total",
			Help: "Experience records added per agent",
		}, []string{"agent"}),
		policyUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flexalloc_policy_updates_total",
			Help: "Policy updates per agent",
		}, []string{"agent"}),
		bufferSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flexalloc_replay_buffer_size",
			Help: "Records currently held in each agent's replay buffer",
		}, []string{"agent"}),
		evalTotalReward: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flexalloc_eval_mean_total_reward",
			Help: "Mean per-environment total reward of the latest evaluation",
		}),
	}
	m.registry.MustRegister(
		m.episodes, m.auctionsSold, m.auctionsUnsold, m.tasksCompleted, m.tasksFailed,
		m.matchAnomalies, m.experiences, m.policyUpdates, m.bufferSize, m.evalTotalReward,
	)
	return m
}

// Registry returns the registry holding the training metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordEpisode() {
	if m == nil {
		return
	}
	m.episodes.Inc()
}

func (m *Metrics) RecordAuction(sold bool) {
	if m == nil {
		return
	}
	if sold {
		m.auctionsSold.Inc()
	} else {
		m.auctionsUnsold.Inc()
	}
}

func (m *Metrics) RecordFinished(completed, failed int) {
	if m == nil {
		return
	}
	m.tasksCompleted.Add(float64(completed))
	m.tasksFailed.Add(float64(failed))
}

func (m *Metrics) RecordAnomalies(n int) {
	if m == nil {
		return
	}
	m.matchAnomalies.Add(float64(n))
}

func (m *Metrics) RecordExperience(agent string, bufferLen int) {
	if m == nil {
		return
	}
	m.experiences.WithLabelValues(agent).Inc()
	m.bufferSize.WithLabelValues(agent).Set(float64(bufferLen))
}

func (m *Metrics) RecordUpdate(agent string) {
	if m == nil {
		return
	}
	m.policyUpdates.WithLabelValues(agent).Inc()
}

func (m *Metrics) SetEvalReward(mean float64) {
	if m == nil {
		return
	}
	m.evalTotalReward.Set(mean)
}
