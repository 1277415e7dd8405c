package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yndnr/relaygate/internal/telemetry/logger"
	"github.com/yndnr/relaygate/internal/telemetry/metric"
	"github.com/yndnr/relaygate/pkg/secret"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body.Code
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler, mark("a"), mark("b"), mark("c"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(order, "") != "abc" {
		t.Errorf("order = %v, want a b c", order)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	tests := []struct {
		name     string
		supplied string
		keep     bool
	}{
		{"generated", "", false},
		{"kept", "trace-abc-123", true},
		{"too long", strings.Repeat("x", 65), false},
		{"unprintable", "bad id", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.supplied != "" {
				req.Header.Set(RequestIDHeader, tt.supplied)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if got != seen {
				t.Errorf("header %q != context %q", got, seen)
			}
			if tt.keep && got != tt.supplied {
				t.Errorf("id = %q, want %q", got, tt.supplied)
			}
			if !tt.keep && !strings.HasPrefix(got, "req-") {
				t.Errorf("id = %q, want generated req- id", got)
			}
		})
	}
}

func TestRecover(t *testing.T) {
	h := Recover(logger.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "RG-SYS-5000" {
		t.Errorf("code = %q", code)
	}
}

func TestRecover_AbortHandlerPropagates(t *testing.T) {
	h := Recover(logger.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("recovered %v, want ErrAbortHandler", r)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestSecretGuard(t *testing.T) {
	const plain = "a-long-internal-secret"
	hash, err := secret.Hash(plain)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	tests := []struct {
		name       string
		configured string
		presented  string
		want       bool
	}{
		{"plain match", plain, plain, true},
		{"plain mismatch", plain, "a-long-internal-secreT", false},
		{"plain empty presented", plain, "", false},
		{"nothing configured", "", "anything", false},
		{"hash match", hash, plain, true},
		{"hash mismatch", hash, "wrong", false},
		{"hash presented verbatim", hash, hash, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewSecretGuard(tt.configured).Check(tt.presented); got != tt.want {
				t.Errorf("Check() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSecretGuard_HashRemembersAccepted(t *testing.T) {
	const plain = "a-long-internal-secret"
	hash, _ := secret.Hash(plain)
	g := NewSecretGuard(hash)

	if g.accepted.Load() != nil {
		t.Fatal("digest set before any check")
	}
	if !g.Check(plain) {
		t.Fatal("first check failed")
	}
	if g.accepted.Load() == nil {
		t.Fatal("digest not remembered")
	}
	if !g.Check(plain) || g.Check("wrong") {
		t.Error("remembered digest gives wrong answers")
	}
}

func TestInternalAuth(t *testing.T) {
	metrics := metric.NewRegistry()
	h := InternalAuth(NewSecretGuard("a-long-internal-secret"), logger.Discard(), metrics)(okHandler)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"right", "a-long-internal-secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(SecretHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusUnauthorized {
				if code := errorCode(t, rec); code != "RG-AUTH-4011" {
					t.Errorf("code = %q", code)
				}
				if rec.Header().Get("X-Error-Code") != "RG-AUTH-4011" {
					t.Error("X-Error-Code header missing")
				}
			}
		})
	}

	body := scrape(t, metrics)
	for _, want := range []string{
		`relaygate_auth_failures_total{reason="missing"} 1`,
		`relaygate_auth_failures_total{reason="invalid"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	reg := NewRateLimiterRegistry(0.001, 2)
	h := RateLimit(reg, false, nil)(okHandler)

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "1" {
			t.Error("Retry-After missing")
		}
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("10.0.0.1:1000"); code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, code)
		}
	}
	if code := send("10.0.0.1:2000"); code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", code)
	}
	if code := send("10.0.0.2:1000"); code != http.StatusOK {
		t.Errorf("other client status = %d", code)
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		xff        string
		realIP     string
		trustProxy bool
		want       string
	}{
		{"remote addr", "192.0.2.1:5555", "", "", false, "192.0.2.1"},
		{"xff ignored untrusted", "192.0.2.1:5555", "203.0.113.9", "", false, "192.0.2.1"},
		{"xff first hop", "192.0.2.1:5555", "203.0.113.9, 10.0.0.1", "", true, "203.0.113.9"},
		{"real ip", "192.0.2.1:5555", "", "203.0.113.7", true, "203.0.113.7"},
		{"no port", "192.0.2.1", "", "", false, "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := clientIP(req, tt.trustProxy); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func scrape(t *testing.T, m *metric.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}
