package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCallMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCallMetrics(reg)

	m.ObserveTurn("qna")
	m.ObserveTurn("qna")
	m.ObserveCommit("booking", "ok")
	m.ObserveInterrupt()
	m.ObserveLLM("ok", 0.25)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turnsTotal.WithLabelValues("qna")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commitsTotal.WithLabelValues("booking", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.interruptsTotal))
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *CallMetrics
	assert.NotPanics(t, func() {
		m.ObserveTurn("qna")
		m.ObserveCommit("optout", "error")
		m.ObserveLLM("error", 1)
		m.ObserveInterrupt()
	})
}
