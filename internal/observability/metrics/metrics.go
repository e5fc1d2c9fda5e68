package metrics

import "github.com/prometheus/client_golang/prometheus"

// TurnMetrics exposes counters/histograms for the voice turn pipeline.
type TurnMetrics struct {
	turnsTotal    *prometheus.CounterVec
	intentsTotal  *prometheus.CounterVec
	bookingsTotal *prometheus.CounterVec
	handoffsTotal *prometheus.CounterVec
	guardTotal    *prometheus.CounterVec
	turnLatency   *prometheus.HistogramVec
	llmLatency    *prometheus.HistogramVec
}

func NewTurnMetrics(reg prometheus.Registerer) *TurnMetrics {
	m := &TurnMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicvoice",
			Subsystem: "turn",
			Name:      "processed_total",
			Help:      "Total voice turns processed",
		}, []string{"stage", "action"}),
		intentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicvoice",
			Subsystem: "intent",
			Name:      "classified_total",
			Help:      "Total intent classifications",
		}, []string{"intent", "source"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicvoice",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Total booking attempts by outcome",
		}, []string{"outcome", "mode"}),
		handoffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicvoice",
			Subsystem: "handoff",
			Name:      "triggered_total",
			Help:      "Total human handoffs by trigger",
		}, []string{"trigger"}),
		guardTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicvoice",
			Subsystem: "safety",
			Name:      "reply_guard_total",
			Help:      "Total outbound replies blocked or rewritten by the reply guard",
		}, []string{"reason"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicvoice",
			Subsystem: "turn",
			Name:      "latency_seconds",
			Help:      "End-to-end latency of turn processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicvoice",
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "Latency of model completions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"model"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.intentsTotal, m.bookingsTotal, m.handoffsTotal, m.guardTotal, m.turnLatency, m.llmLatency)
	return m
}

func (m *TurnMetrics) ObserveTurn(stage, action string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(stage, action).Inc()
	m.turnLatency.WithLabelValues(stage).Observe(seconds)
}

func (m *TurnMetrics) ObserveIntent(intent, source string) {
	if m == nil {
		return
	}
	m.intentsTotal.WithLabelValues(intent, source).Inc()
}

func (m *TurnMetrics) ObserveBooking(outcome, mode string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome, mode).Inc()
}

func (m *TurnMetrics) ObserveHandoff(trigger string) {
	if m == nil {
		return
	}
	m.handoffsTotal.WithLabelValues(trigger).Inc()
}

func (m *TurnMetrics) ObserveGuard(reason string) {
	if m == nil {
		return
	}
	m.guardTotal.WithLabelValues(reason).Inc()
}

func (m *TurnMetrics) ObserveLLMLatency(model string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(model).Observe(seconds)
}
