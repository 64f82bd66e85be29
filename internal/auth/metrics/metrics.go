// Package metrics holds the Prometheus instruments for the auth service.
// All increment helpers are nil-receiver safe so services can be wired
// without a registry in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	loginAttempts   *prometheus.CounterVec
	lockouts        prometheus.Counter
	tokensIssued    *prometheus.CounterVec
	sessionsEvicted prometheus.Counter
	sessionsCleaned prometheus.Counter
	activeSessions  prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transitra",
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "transitra",
			Subsystem: "auth",
			Name:      "lockouts_total",
			Help:      "Login attempts rejected by an engaged lockout.",
		}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transitra",
			Subsystem: "auth",
			Name:      "tokens_issued_total",
			Help:      "JWTs issued by type.",
		}, []string{"type"}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "transitra",
			Subsystem: "auth",
			Name:      "sessions_evicted_total",
			Help:      "Sessions evicted to enforce the per-user cap.",
		}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "transitra",
			Subsystem: "auth",
			Name:      "sessions_cleaned_total",
			Help:      "Defunct sessions removed by housekeeping.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "transitra",
			Subsystem: "auth",
			Name:      "active_sessions",
			Help:      "Active sessions at last housekeeping pass.",
		}),
	}
	reg.MustRegister(
		m.loginAttempts,
		m.lockouts,
		m.tokensIssued,
		m.sessionsEvicted,
		m.sessionsCleaned,
		m.activeSessions,
	)
	return m
}

func (m *Metrics) LoginSuccess() {
	if m != nil {
		m.loginAttempts.WithLabelValues("success").Inc()
	}
}

func (m *Metrics) LoginFailure() {
	if m != nil {
		m.loginAttempts.WithLabelValues("failure").Inc()
	}
}

func (m *Metrics) LoginLocked() {
	if m != nil {
		m.lockouts.Inc()
	}
}

func (m *Metrics) TokenIssued(kind string) {
	if m != nil {
		m.tokensIssued.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) SessionsEvicted(n int) {
	if m != nil && n > 0 {
		m.sessionsEvicted.Add(float64(n))
	}
}

func (m *Metrics) SessionsCleaned(n int64) {
	if m != nil && n > 0 {
		m.sessionsCleaned.Add(float64(n))
	}
}

func (m *Metrics) ActiveSessions(n int64) {
	if m != nil {
		m.activeSessions.Set(float64(n))
	}
}
