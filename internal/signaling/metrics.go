package signaling

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is nil safe; a nil *Metrics records nothing.
type Metrics struct {
	connections  prometheus.Gauge
	messages     *prometheus.CounterVec
	errors       *prometheus.CounterVec
	callsStarted prometheus.Counter
	callsEnded   *prometheus.CounterVec
	callDuration prometheus.Histogram
	limited      prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consult",
			Subsystem: "signaling",
			Name:      "connections",
			Help:      "open signaling sockets on this instance",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "signaling",
			Name:      "messages_total",
			Help:      "inbound signaling messages by type",
		}, []string{"type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "signaling",
			Name:      "errors_total",
			Help:      "error envelopes sent by code",
		}, []string{"code"}),
		callsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "signaling",
			Name:      "calls_started_total",
			Help:      "calls that started ringing",
		}),
		callsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "signaling",
			Name:      "calls_ended_total",
			Help:      "ended calls by reason",
		}, []string{"reason"}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "consult",
			Subsystem: "signaling",
			Name:      "call_duration_seconds",
			Help:      "connected time of answered calls",
			Buckets:   []float64{30, 60, 300, 600, 1200, 1800, 3600, 7200},
		}),
		limited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "signaling",
			Name:      "rate_limited_total",
			Help:      "inbound frames dropped by the per-socket limiter",
		}),
	}

	reg.MustRegister(
		m.connections,
		m.messages,
		m.errors,
		m.callsStarted,
		m.callsEnded,
		m.callDuration,
		m.limited,
	)
	return m
}

func (m *Metrics) connOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) message(t EventType) {
	if m != nil {
		m.messages.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) errorSent(code string) {
	if m != nil {
		m.errors.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) callStarted() {
	if m != nil {
		m.callsStarted.Inc()
	}
}

func (m *Metrics) callEnded(call *Call) {
	if m == nil {
		return
	}
	m.callsEnded.WithLabelValues(call.EndReason).Inc()
	if call.AnsweredAt != nil && call.EndedAt != nil {
		m.callDuration.Observe(call.EndedAt.Sub(*call.AnsweredAt).Seconds())
	}
}

func (m *Metrics) rateLimited() {
	if m != nil {
		m.limited.Inc()
	}
}
