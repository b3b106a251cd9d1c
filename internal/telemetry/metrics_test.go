package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/custportal/portal/internal/access"
)

func TestRecordDecision(t *testing.T) {
	m := NewMetrics()

	m.RecordDecision(access.ModuleOrders, nil)
	m.RecordDecision(access.ModuleOrders, access.Require(&access.Principal{Role: access.RoleCustomer}, access.ModuleOrders, access.OpView))
	m.RecordDecision(access.ModuleOrders, errors.New("db down"))

	if got := testutil.ToFloat64(m.AccessDecisionsTotal.WithLabelValues("allowed", "orders")); got != 1 {
		t.Errorf("allowed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AccessDecisionsTotal.WithLabelValues("permission_denied", "orders")); got != 1 {
		t.Errorf("permission_denied = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AccessDecisionsTotal.WithLabelValues("error", "orders")); got != 1 {
		t.Errorf("error = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordDecision(access.ModuleUsers, nil)
	m.RecordLogin("success")
	m.ObserveRequest("GET", "/", "200", 0.1)
	if NewSampler(m, func(context.Context) (Stats, error) { return Stats{}, nil }, 0, nil) != nil {
		t.Error("expected nil sampler without metrics")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordLogin("success")
	m.ObserveRequest("GET", "/api/orders", "200", 0.02)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)

	for _, want := range []string{
		`portal_logins_total{result="success"} 1`,
		`portal_http_requests_total{method="GET",route="/api/orders",status="200"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestSamplerSetsGauges(t *testing.T) {
	m := NewMetrics()
	var calls atomic.Int32
	s := NewSampler(m, func(context.Context) (Stats, error) {
		calls.Add(1)
		return Stats{ActiveUsers: 5, InactiveUsers: 2, ActiveRoles: 3}, nil
	}, time.Hour, nil)

	s.Start()
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Shutdown()

	if got := testutil.ToFloat64(m.Users.WithLabelValues("active")); got != 5 {
		t.Errorf("active users = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.ActiveRoles); got != 3 {
		t.Errorf("active roles = %v, want 3", got)
	}
}
