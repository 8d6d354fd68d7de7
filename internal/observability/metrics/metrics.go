package metrics

import "github.com/prometheus/client_golang/prometheus"

// CallMetrics exposes counters/histograms for the dialogue flow.
type CallMetrics struct {
	turnsTotal      *prometheus.CounterVec
	commitsTotal    *prometheus.CounterVec
	llmLatency      *prometheus.HistogramVec
	interruptsTotal prometheus.Counter
}

func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chloe",
			Subsystem: "dialog",
			Name:      "turns_total",
			Help:      "Total processed caller turns by phase",
		}, []string{"phase"}),
		commitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chloe",
			Subsystem: "dialog",
			Name:      "commits_total",
			Help:      "Total record commits by kind and status",
		}, []string{"kind", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chloe",
			Subsystem: "dialog",
			Name:      "llm_latency_seconds",
			Help:      "Latency of LLM fallback calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		interruptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chloe",
			Subsystem: "dialog",
			Name:      "interrupts_total",
			Help:      "Total caller barge-in events",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.commitsTotal, m.llmLatency, m.interruptsTotal)
	return m
}

func (m *CallMetrics) ObserveTurn(phase string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(phase).Inc()
}

func (m *CallMetrics) ObserveCommit(kind, status string) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(kind, status).Inc()
}

func (m *CallMetrics) ObserveLLM(status string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(status).Observe(seconds)
}

func (m *CallMetrics) ObserveInterrupt() {
	if m == nil {
		return
	}
	m.interruptsTotal.Inc()
}
