package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/resilience"
)

func TestRunWorstStatusWins(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{"all up", map[string]Check{"a": PingCheck(func(context.Context) error { return nil })}, StatusUp},
		{"optional down", map[string]Check{
			"a":     PingCheck(func(context.Context) error { return nil }),
			"redis": OptionalPingCheck(func(context.Context) error { return errors.New("refused") }),
		}, StatusDegraded},
		{"required down", map[string]Check{
			"pg":    PingCheck(func(context.Context) error { return errors.New("refused") }),
			"redis": OptionalPingCheck(func(context.Context) error { return errors.New("refused") }),
		}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for n, ch := range tt.checks {
				c.Register(n, ch)
			}
			if got := c.Run(context.Background()).Status; got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReadyStaysOKWhenBreakerOpen(t *testing.T) {
	cb := resilience.NewCircuitBreaker("rss", resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	_ = cb.Execute(func() error { return errors.New("down") })

	c := NewChecker()
	c.Register("upstream:rss", BreakerCheck(cb))
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready code = %d, want 200 while degraded", rec.Code)
	}
}
