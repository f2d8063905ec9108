// Package meta implements the Meta-Health Monitor (MHM, spec §4.7): a fixed
// cadence watcher over agent liveness, consensus success rate, dependency
// breaker health, and event backlog depth, surfacing observable gauges
// through a caller-supplied prometheus.Registerer (the teacher's own metrics
// idiom — a registry passed in, never the global default, so tests never
// collide on re-registration) and generating meta-incidents when the system
// itself is degraded.
package meta

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Thresholds configures the degraded/critical boundaries (spec §4.7:
// "degraded at 20% agent failure or 40% consensus failure rate; critical at
// 40%/60%", spec §6: mhm.degraded_threshold, mhm.critical_threshold).
type Thresholds struct {
	DegradedAgentFailureRate     float64
	CriticalAgentFailureRate     float64
	DegradedConsensusFailureRate float64
	CriticalConsensusFailureRate float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		DegradedAgentFailureRate:     0.20,
		CriticalAgentFailureRate:     0.40,
		DegradedConsensusFailureRate: 0.40,
		CriticalConsensusFailureRate: 0.60,
	}
}

// Severity is the MHM's assessment of overall system health.
type Severity string

const (
	SeverityHealthy  Severity = "HEALTHY"
	SeverityDegraded Severity = "DEGRADED"
	SeverityCritical Severity = "CRITICAL"
)

// Sample is one cadence tick's observed health data (spec §4.7: "per-agent
// liveness, per-dependency breaker state, consensus success rate over
// sliding window, pending event backlog depth").
type Sample struct {
	AgentFailureRate     float64
	ConsensusFailureRate float64
	OpenBreakers         int
	BacklogDepth         int64
}

// Monitor evaluates Samples against Thresholds and exposes them as
// prometheus gauges.
type Monitor struct {
	thresholds Thresholds

	agentFailureRate     prometheus.Gauge
	consensusFailureRate prometheus.Gauge
	openBreakers         prometheus.Gauge
	backlogDepth         prometheus.Gauge
	severity             *prometheus.GaugeVec
}

func NewMonitor(reg prometheus.Registerer, thresholds Thresholds) *Monitor {
	m := &Monitor{
		thresholds: thresholds,
		agentFailureRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentinel", Subsystem: "mhm", Name: "agent_failure_rate",
			Help: "Fraction of registered agents currently unhealthy.",
		}),
		consensusFailureRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentinel", Subsystem: "mhm", Name: "consensus_failure_rate",
			Help: "Fraction of consensus rounds ending in INSUFFICIENT_QUORUM over the sliding window.",
		}),
		openBreakers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentinel", Subsystem: "mhm", Name: "open_breakers",
			Help: "Count of dependencies whose circuit breaker is currently OPEN.",
		}),
		backlogDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentinel", Subsystem: "mhm", Name: "event_backlog_depth",
			Help: "Pending event backlog depth across all incident streams.",
		}),
		severity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sentinel", Subsystem: "mhm", Name: "severity",
			Help: "1 if the MHM's current assessed severity matches this label, else 0.",
		}, []string{"level"}),
	}
	reg.MustRegister(m.agentFailureRate, m.consensusFailureRate, m.openBreakers, m.backlogDepth, m.severity)
	return m
}

// Evaluate scores sample against Thresholds, records it to the gauges, and
// returns the assessed Severity (spec §4.7).
func (m *Monitor) Evaluate(sample Sample) Severity {
	m.agentFailureRate.Set(sample.AgentFailureRate)
	m.consensusFailureRate.Set(sample.ConsensusFailureRate)
	m.openBreakers.Set(float64(sample.OpenBreakers))
	m.backlogDepth.Set(float64(sample.BacklogDepth))

	sev := SeverityHealthy
	switch {
	case sample.AgentFailureRate >= m.thresholds.CriticalAgentFailureRate ||
		sample.ConsensusFailureRate >= m.thresholds.CriticalConsensusFailureRate:
		sev = SeverityCritical
	case sample.AgentFailureRate >= m.thresholds.DegradedAgentFailureRate ||
		sample.ConsensusFailureRate >= m.thresholds.DegradedConsensusFailureRate:
		sev = SeverityDegraded
	}

	for _, level := range []Severity{SeverityHealthy, SeverityDegraded, SeverityCritical} {
		v := 0.0
		if level == sev {
			v = 1.0
		}
		m.severity.WithLabelValues(string(level)).Set(v)
	}
	return sev
}
