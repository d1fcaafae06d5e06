package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Confirmation("push", "completed")
	m.Confirmation("push", "completed")
	m.Validation("admitted")
	m.ObserveCommit("approval", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.confirmations.WithLabelValues("push", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues("admitted")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Confirmation("poll", "pending")
		m.Validation("not_found")
		m.ProviderRequest("mercadopago", "ok")
		m.Notification("log", "ok")
		m.SweptOrder("still_pending")
		m.ObserveCommit("failure", time.Now())
	})
}
