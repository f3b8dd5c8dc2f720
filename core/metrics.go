package core

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sgrchat/parser"
)

// Turn outcomes used as metric labels.
const (
	OutcomeCompleted  = "completed"
	OutcomeIncomplete = "incomplete"
	OutcomeFailed     = "failed"
	OutcomeStopped    = "stopped"
)

// maxAgentLabels bounds the distinct agent label values; later agents share
// the "other" label.
const maxAgentLabels = 16

// Metrics bundles Prometheus collectors for bot turns.
type Metrics struct {
	agentsMu sync.Mutex
	agents   map[string]struct{}

	registry       *prometheus.Registry
	Turns          *prometheus.CounterVec
	TurnDuration   *prometheus.HistogramVec
	ActiveStreams  *prometheus.GaugeVec
	DecodeFallback *prometheus.CounterVec
	FrozenAnswers  *prometheus.CounterVec
	DroppedFrames  *prometheus.CounterVec
	BackendErrors  *prometheus.CounterVec
}

// NewMetrics constructs a registry with the turn collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	turns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sgrchat_turns_total",
		Help: "Bot turns by transport and outcome",
	}, []string{"transport", "outcome"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sgrchat_turn_duration_seconds",
		Help:    "Bot turn duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"transport", "outcome"})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sgrchat_active_streams",
		Help: "Agent streams currently being consumed",
	}, []string{"transport"})

	fallback := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sgrchat_decode_fallbacks_total",
		Help: "Turns whose final payload was kept as raw trace",
	}, []string{"agent"})

	frozen := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sgrchat_frozen_answers_total",
		Help: "Turns whose answer was frozen by the terminal marker",
	}, []string{"agent"})

	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sgrchat_dropped_frames_total",
		Help: "SSE data lines that failed to decode",
	}, []string{"agent"})

	backendErrs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sgrchat_backend_errors_total",
		Help: "Agent backend errors by reason",
	}, []string{"reason"})

	reg.MustRegister(turns, durs, active, fallback, frozen, dropped, backendErrs)

	return &Metrics{
		agents:         make(map[string]struct{}),
		registry:       reg,
		Turns:          turns,
		TurnDuration:   durs,
		ActiveStreams:  active,
		DecodeFallback: fallback,
		FrozenAnswers:  frozen,
		DroppedFrames:  dropped,
		BackendErrors:  backendErrs,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordTurn records the outcome and duration of a turn.
func (m *Metrics) RecordTurn(transport, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if transport == "" {
		transport = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.Turns.WithLabelValues(transport, outcome).Inc()
	m.TurnDuration.WithLabelValues(transport, outcome).Observe(duration.Seconds())
}

// RecordSession records what the parser saw during a turn.
func (m *Metrics) RecordSession(agentID string, stats parser.SessionStats) {
	if m == nil {
		return
	}
	agentID = m.agentLabel(agentID)
	if stats.Fallback {
		m.DecodeFallback.WithLabelValues(agentID).Inc()
	}
	if stats.Frozen {
		m.FrozenAnswers.WithLabelValues(agentID).Inc()
	}
	if stats.DroppedFrames > 0 {
		m.DroppedFrames.WithLabelValues(agentID).Add(float64(stats.DroppedFrames))
	}
}

// agentLabel keeps the agent label set bounded.
func (m *Metrics) agentLabel(agentID string) string {
	if agentID == "" {
		return "unknown"
	}
	m.agentsMu.Lock()
	defer m.agentsMu.Unlock()
	if _, ok := m.agents[agentID]; ok {
		return agentID
	}
	if len(m.agents) >= maxAgentLabels {
		return "other"
	}
	m.agents[agentID] = struct{}{}
	return agentID
}

// RecordBackendError records a failed backend call.
func (m *Metrics) RecordBackendError(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.BackendErrors.WithLabelValues(reason).Inc()
}

// IncActiveStreams increments the active stream gauge.
func (m *Metrics) IncActiveStreams(transport string) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(transport).Inc()
}

// DecActiveStreams decrements the active stream gauge.
func (m *Metrics) DecActiveStreams(transport string) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(transport).Dec()
}
