package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every browserrelay metric. A nil *Collectors is valid and records nothing.
type Collectors struct {
	activeRelays        prometheus.Gauge
	relayConnections    *prometheus.CounterVec
	relayBytes          *prometheus.CounterVec
	upstreamAuthFailure *prometheus.CounterVec
	handshakeErrors     *prometheus.CounterVec
	cdpCommands         *prometheus.CounterVec
	cdpSessions         prometheus.Gauge
	tasks               *prometheus.CounterVec
	steps               *prometheus.CounterVec
	runningTasks        prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Collectors {
	m := &Collectors{
		activeRelays: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "browserrelay_active_relays",
			Help: "Number of local proxy relays currently listening",
		}),
		relayConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browserrelay_relay_connections_total",
			Help: "Client connections accepted by local relays",
		}, []string{"kind"}),
		relayBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browserrelay_relay_bytes_total",
			Help: "Bytes relayed between browser and upstream proxy",
		}, []string{"direction"}),
		upstreamAuthFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browserrelay_upstream_auth_failures_total",
			Help: "Upstream proxies that rejected the injected credentials",
		}, []string{"kind"}),
		handshakeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browserrelay_handshake_errors_total",
			Help: "Failed upstream handshakes",
		}, []string{"kind"}),
		cdpCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browserrelay_cdp_commands_total",
			Help: "DevTools protocol commands issued",
		}, []string{"outcome"}),
		cdpSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "browserrelay_cdp_sessions",
			Help: "Open DevTools protocol sessions",
		}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browserrelay_tasks_total",
			Help: "Automation tasks by terminal status",
		}, []string{"status"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browserrelay_steps_total",
			Help: "Automation steps executed",
		}, []string{"action", "outcome"}),
		runningTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "browserrelay_running_tasks",
			Help: "Automation tasks currently running",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.activeRelays,
			m.relayConnections,
			m.relayBytes,
			m.upstreamAuthFailure,
			m.handshakeErrors,
			m.cdpCommands,
			m.cdpSessions,
			m.tasks,
			m.steps,
			m.runningTasks,
		)
	}
	return m
}

func (m *Collectors) RelayStarted() {
	if m != nil {
		m.activeRelays.Inc()
	}
}

func (m *Collectors) RelayStopped() {
	if m != nil {
		m.activeRelays.Dec()
	}
}

func (m *Collectors) ConnectionAccepted(kind string) {
	if m != nil {
		m.relayConnections.WithLabelValues(kind).Inc()
	}
}

// BytesRelayed records n bytes flowing in direction ("sent" or "received").
func (m *Collectors) BytesRelayed(direction string, n int) {
	if m != nil && n > 0 {
		m.relayBytes.WithLabelValues(direction).Add(float64(n))
	}
}

func (m *Collectors) UpstreamAuthFailed(kind string) {
	if m != nil {
		m.upstreamAuthFailure.WithLabelValues(kind).Inc()
	}
}

func (m *Collectors) HandshakeFailed(kind string) {
	if m != nil {
		m.handshakeErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Collectors) CDPCommand(outcome string) {
	if m != nil {
		m.cdpCommands.WithLabelValues(outcome).Inc()
	}
}

func (m *Collectors) CDPSessionOpened() {
	if m != nil {
		m.cdpSessions.Inc()
	}
}

func (m *Collectors) CDPSessionClosed() {
	if m != nil {
		m.cdpSessions.Dec()
	}
}

func (m *Collectors) TaskStarted() {
	if m != nil {
		m.runningTasks.Inc()
	}
}

// TaskFinished records the terminal status of a task.
func (m *Collectors) TaskFinished(status string) {
	if m != nil {
		m.runningTasks.Dec()
		m.tasks.WithLabelValues(status).Inc()
	}
}

func (m *Collectors) StepExecuted(action, outcome string) {
	if m != nil {
		m.steps.WithLabelValues(action, outcome).Inc()
	}
}
