package metrics

import "github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/resilience"

// BreakerObserver returns a state-change hook that mirrors breaker state
// into CircuitBreakerState. A nil Metrics yields a nil hook.
func (m *Metrics) BreakerObserver() func(name string, from, to resilience.State) {
	if m == nil {
		return nil
	}
	return func(name string, _, to resilience.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
}
