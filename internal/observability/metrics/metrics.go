package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the post-session
// analysis pipeline.
type PipelineMetrics struct {
	analysisTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	costUSD          *prometheus.CounterVec
	budgetRejections *prometheus.CounterVec
	updatesTotal     *prometheus.CounterVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		analysisTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutoring",
			Subsystem: "analysis",
			Name:      "requests_total",
			Help:      "Total provider analysis calls",
		}, []string{"provider", "status"}),
		analysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tutoring",
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Latency of provider analysis calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		costUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutoring",
			Subsystem: "analysis",
			Name:      "cost_usd_total",
			Help:      "Realized provider spend in USD",
		}, []string{"provider"}),
		budgetRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutoring",
			Subsystem: "analysis",
			Name:      "budget_rejections_total",
			Help:      "Calls rejected by the daily cost ceiling",
		}, []string{"provider"}),
		updatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutoring",
			Subsystem: "postsession",
			Name:      "updates_total",
			Help:      "Post-session update outcomes",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.analysisTotal, m.analysisDuration, m.costUSD, m.budgetRejections, m.updatesTotal)
	return m
}

func (m *PipelineMetrics) ObserveAnalysis(provider, status string, seconds float64) {
	if m == nil {
		return
	}
	m.analysisTotal.WithLabelValues(provider, status).Inc()
	m.analysisDuration.WithLabelValues(provider).Observe(seconds)
}

func (m *PipelineMetrics) AddCost(provider string, usd float64) {
	if m == nil {
		return
	}
	m.costUSD.WithLabelValues(provider).Add(usd)
}

func (m *PipelineMetrics) ObserveBudgetRejection(provider string) {
	if m == nil {
		return
	}
	m.budgetRejections.WithLabelValues(provider).Inc()
}

func (m *PipelineMetrics) ObserveUpdate(outcome string) {
	if m == nil {
		return
	}
	m.updatesTotal.WithLabelValues(outcome).Inc()
}
