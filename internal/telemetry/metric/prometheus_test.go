package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, r *Registry) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.registry == nil {
		t.Error("registry field is nil")
	}
	if r.TokenValidateCalls == nil {
		t.Error("TokenValidateCalls is nil")
	}
	if r.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if r.StoreOpDuration == nil {
		t.Error("StoreOpDuration is nil")
	}
}

func TestGlobal(t *testing.T) {
	if Global() != Global() {
		t.Error("Global() should return the same instance")
	}
}

func TestHandler(t *testing.T) {
	body := scrape(t, Global())

	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected go_goroutines metric")
	}
	if !strings.Contains(body, "process_") {
		t.Error("expected process metrics")
	}
}

func TestTokenMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordTokenValidation("write", "ok")
	r.RecordTokenValidation("write", "ok")
	r.RecordTokenValidation("read", "expired")
	r.RecordConsumption("ok")
	r.RecordConsumption("already_consumed")

	body := scrape(t, r)

	want := []string{
		`relaygate_token_validate_calls_total{class="write",result="ok"} 2`,
		`relaygate_token_validate_calls_total{class="read",result="expired"} 1`,
		`relaygate_token_consumptions_total{result="already_consumed"} 1`,
	}
	for _, w := range want {
		if !strings.Contains(body, w) {
			t.Errorf("expected %s", w)
		}
	}
}

func TestIdentityAndRoomMetrics(t *testing.T) {
	r := NewRegistry()

	r.IncIdentityBound()
	r.IncImpersonation()
	r.IncImpersonation()
	r.RecordRoomOp("upsert", "ok")
	r.SetRoomsListed(3)
	r.AddRoomsPruned(2)
	r.AddRoomsPruned(0)

	body := scrape(t, r)

	want := []string{
		"relaygate_identities_bound_total 1",
		"relaygate_impersonation_attempts_total 2",
		`relaygate_room_ops_total{op="upsert",result="ok"} 1`,
		"relaygate_rooms_listed 3",
		"relaygate_rooms_pruned_total 2",
	}
	for _, w := range want {
		if !strings.Contains(body, w) {
			t.Errorf("expected %s", w)
		}
	}
}

func TestRequestAndStoreMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordRequest("POST", "/internal/v1/tokens/verify", "200")
	r.ObserveRequestDuration("POST", "/internal/v1/tokens/verify", 0.002)
	r.RecordAuthFailure("bad_secret")
	r.ObserveStoreOp("hconsume", "ok", 3*time.Millisecond)

	body := scrape(t, r)

	want := []string{
		`relaygate_requests_total{method="POST",route="/internal/v1/tokens/verify",status="200"} 1`,
		"relaygate_request_duration_seconds_bucket",
		`relaygate_auth_failures_total{reason="bad_secret"} 1`,
		`relaygate_store_ops_total{op="hconsume",result="ok"} 1`,
		`relaygate_store_op_duration_seconds_count{op="hconsume"} 1`,
	}
	for _, w := range want {
		if !strings.Contains(body, w) {
			t.Errorf("expected %s", w)
		}
	}
}

func TestNilRegistry(t *testing.T) {
	var r *Registry

	// None of these may panic.
	r.RecordTokenValidation("read", "ok")
	r.RecordConsumption("ok")
	r.IncIdentityBound()
	r.IncImpersonation()
	r.RecordRoomOp("list", "ok")
	r.SetRoomsListed(1)
	r.AddRoomsPruned(1)
	r.RecordAssertionRejection("replay")
	r.RecordRequest("GET", "/health", "200")
	r.ObserveRequestDuration("GET", "/health", 0.1)
	r.RecordAuthFailure("missing_secret")
	r.ObserveStoreOp("get", "miss", time.Millisecond)
	if err := r.Register(); err != nil {
		t.Fatalf("Register on nil: %v", err)
	}
}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "relaygate_test_gauge", Help: "test"})
	g.Set(7)

	if err := r.Register(g); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(g); err == nil {
		t.Fatal("duplicate Register should fail")
	}
	if !strings.Contains(scrape(t, r), "relaygate_test_gauge 7") {
		t.Error("expected relaygate_test_gauge 7")
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.RecordTokenValidation("read", "ok")
				r.RecordRequest("GET", "/health", "200")
				r.ObserveStoreOp("get", "ok", time.Microsecond)
			}
		}()
	}
	wg.Wait()

	if !strings.Contains(scrape(t, r), `relaygate_token_validate_calls_total{class="read",result="ok"} 1000`) {
		t.Error("expected 1000 read validations")
	}
}
