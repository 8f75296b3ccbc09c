package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAuthMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewAuthMetrics(registry)

	m.ObserveLogin(OutcomeSuccess)
	m.ObserveLogin(OutcomeSuccess)
	m.ObserveLogin(OutcomeLocked)
	m.ObserveRefresh(OutcomeReuseDetected)
	m.ObserveRegister(OutcomeConflict)
	m.ObserveLogout()
	m.ObserveLockout()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoginTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginTotal.WithLabelValues(OutcomeLocked)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshTotal.WithLabelValues(OutcomeReuseDetected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegisterTotal.WithLabelValues(OutcomeConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LogoutTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockoutsTotal))

	count, err := testutil.GatherAndCount(registry)
	assert.NoError(t, err)
	assert.Equal(t, 6, count)
}

func TestAuthMetrics_NilIsNoop(t *testing.T) {
	var m *AuthMetrics
	assert.NotPanics(t, func() {
		m.ObserveLogin(OutcomeSuccess)
		m.ObserveRefresh(OutcomeInvalid)
		m.ObserveRegister(OutcomeSuccess)
		m.ObserveLogout()
		m.ObserveLockout()
	})
}
