package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the auth counters.
const (
	OutcomeSuccess            = "success"
	OutcomeConflict           = "conflict"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeLocked             = "locked"
	OutcomeInvalid            = "invalid"
	OutcomeReuseDetected      = "reuse_detected"
	OutcomeError              = "error"
)

// AuthMetrics holds the Prometheus counters for the session lifecycle.
// All methods are no-ops on a nil receiver.
type AuthMetrics struct {
	RegisterTotal *prometheus.CounterVec
	LoginTotal    *prometheus.CounterVec
	RefreshTotal  *prometheus.CounterVec
	LogoutTotal   prometheus.Counter
	LockoutsTotal prometheus.Counter
}

// NewAuthMetrics creates and registers the auth counters on registry.
func NewAuthMetrics(registry prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		RegisterTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_register_total",
				Help: "Total number of registration attempts",
			},
			[]string{"outcome"},
		),
		LoginTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_login_total",
				Help: "Total number of login attempts",
			},
			[]string{"outcome"},
		),
		RefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_refresh_total",
				Help: "Total number of refresh attempts",
			},
			[]string{"outcome"},
		),
		LogoutTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "auth_logout_total",
				Help: "Total number of logout requests",
			},
		),
		LockoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "auth_lockouts_total",
				Help: "Total number of account locks engaged",
			},
		),
	}

	registry.MustRegister(
		m.RegisterTotal,
		m.LoginTotal,
		m.RefreshTotal,
		m.LogoutTotal,
		m.LockoutsTotal,
	)

	return m
}

func (m *AuthMetrics) ObserveRegister(outcome string) {
	if m == nil {
		return
	}
	m.RegisterTotal.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginTotal.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) ObserveRefresh(outcome string) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) ObserveLogout() {
	if m == nil {
		return
	}
	m.LogoutTotal.Inc()
}

func (m *AuthMetrics) ObserveLockout() {
	if m == nil {
		return
	}
	m.LockoutsTotal.Inc()
}
