package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/venikman/ui-morn/pkg/approval"
	"github.com/venikman/ui-morn/pkg/domain"
	"github.com/venikman/ui-morn/pkg/eventlog"
	"github.com/venikman/ui-morn/pkg/supervisor"
)

const namespace = "uimorn"

// Owner types used as label values.
const (
	OwnerTask    = "task"
	OwnerSession = "session"
)

// Metrics holds the engine's collectors.
type Metrics struct {
	eventsAppended  *prometheus.CounterVec
	subscribers     *prometheus.GaugeVec
	overflows       *prometheus.CounterVec
	ownersCompleted *prometheus.CounterVec
	approvals       *prometheus.CounterVec
	workersActive   prometheus.Gauge
	workersFinished *prometheus.CounterVec
	toolCalls       *prometheus.CounterVec
}

// MustNewMetrics creates the collectors and registers them with reg.
// Registration errors panic. A nil reg uses the default registerer.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		eventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_appended_total",
			Help:      "Events appended to owner logs.",
		}, []string{"owner_type", "kind"}),
		subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers_active",
			Help:      "Live subscribers attached to owner logs.",
		}, []string{"owner_type"}),
		overflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_overflows_total",
			Help:      "Subscribers disconnected because their queue was full.",
		}, []string{"owner_type"}),
		ownersCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "owners_completed_total",
			Help:      "Owner logs that reached completion.",
		}, []string{"owner_type"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Approval barrier transitions by outcome.",
		}, []string{"outcome"}),
		workersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_active",
			Help:      "Supervised workers currently running.",
		}),
		workersFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_finished_total",
			Help:      "Supervised workers that finished, by outcome.",
		}, []string{"outcome"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations through the JSON-RPC endpoint.",
		}, []string{"tool", "is_error"}),
	}
	reg.MustRegister(
		m.eventsAppended, m.subscribers, m.overflows, m.ownersCompleted,
		m.approvals, m.workersActive, m.workersFinished, m.toolCalls,
	)
	return m
}

// LogHooks returns event log hooks that record metrics for ownerType.
func (m *Metrics) LogHooks(ownerType string) eventlog.Hooks {
	if m == nil {
		return eventlog.Hooks{}
	}
	return eventlog.Hooks{
		OnAppend: func(ev domain.Event) {
			m.eventsAppended.WithLabelValues(ownerType, ev.Kind).Inc()
		},
		OnSubscribe: func(string, int64) {
			m.subscribers.WithLabelValues(ownerType).Inc()
		},
		OnUnsubscribe: func(string) {
			m.subscribers.WithLabelValues(ownerType).Dec()
		},
		OnOverflow: func(string) {
			m.overflows.WithLabelValues(ownerType).Inc()
		},
		OnComplete: func(string) {
			m.ownersCompleted.WithLabelValues(ownerType).Inc()
		},
	}
}

// ApprovalHooks returns barrier hooks that count approval outcomes.
func (m *Metrics) ApprovalHooks() approval.Hooks {
	if m == nil {
		return approval.Hooks{}
	}
	return approval.Hooks{
		OnRequest:  func(string) { m.approvals.WithLabelValues("requested").Inc() },
		OnConflict: func(string) { m.approvals.WithLabelValues("conflict").Inc() },
		OnResolve: func(d domain.Decision) {
			if d.Approved {
				m.approvals.WithLabelValues("approved").Inc()
				return
			}
			m.approvals.WithLabelValues("denied").Inc()
		},
		OnCancel: func() { m.approvals.WithLabelValues("cancelled").Inc() },
	}
}

// SupervisorHooks returns hooks that track running workers.
func (m *Metrics) SupervisorHooks() supervisor.Hooks {
	if m == nil {
		return supervisor.Hooks{}
	}
	return supervisor.Hooks{
		OnStart: func(string) { m.workersActive.Inc() },
		OnFinish: func(_, outcome string) {
			m.workersActive.Dec()
			m.workersFinished.WithLabelValues(outcome).Inc()
		},
	}
}

// ObserveToolCall counts one tool invocation.
func (m *Metrics) ObserveToolCall(tool string, isError bool) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, strconv.FormatBool(isError)).Inc()
}
