package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestTurnMetricsObserve(t *testing.T) {
	m := NewTurnMetrics(prometheus.NewRegistry())
	m.ObserveTurn("offer-slots", "speak", 0.4)
	m.ObserveIntent("booking", "llm")
	m.ObserveBooking("confirmed", "primary")
	m.ObserveHandoff("explicit_request")
	m.ObserveGuard("guard:unverified_success_claim")
	m.ObserveLLMLatency("claude-3-haiku", 0.8)
}

func TestTurnMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTurnMetrics(reg)
	m.ObserveBooking("failed", "group")
}

func TestTurnMetricsNilSafe(t *testing.T) {
	var m *TurnMetrics
	m.ObserveTurn("greeting", "speak", 0.1)
	m.ObserveIntent("other", "rules")
	m.ObserveBooking("confirmed", "primary")
	m.ObserveHandoff("profanity")
	m.ObserveGuard("reason")
	m.ObserveLLMLatency("model", 0.1)
}
