package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/relaygate/internal/core/service"
	"github.com/yndnr/relaygate/internal/infra/keyring"
	"github.com/yndnr/relaygate/internal/storage/memory"
	"github.com/yndnr/relaygate/internal/telemetry/logger"
	"github.com/yndnr/relaygate/internal/telemetry/metric"
)

const testSecret = "a-long-internal-secret"

func newTestRouter(t *testing.T, rateLimit float64, burst int) (http.Handler, *metric.Registry) {
	t.Helper()
	key, err := keyring.NewHMACKey("k1", "HS256", []byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewHMACKey: %v", err)
	}
	set, err := keyring.NewSet("k1", key)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	metrics := metric.NewRegistry()
	opts := []service.Option{service.WithLogger(logger.Discard()), service.WithMetrics(metrics)}
	gw := service.NewGateway(
		service.NewTokenValidator(keyring.New(set), store, service.DefaultValidatorConfig(), opts...),
		service.NewBinder(opts...),
		service.NewRoomRegistry(store, time.Minute, opts...),
	)

	return NewRouter(&RouterConfig{
		Gateway:   gw,
		Ready:     store,
		Secret:    testSecret,
		RateLimit: rateLimit,
		RateBurst: burst,
		Metrics:   metrics,
		Logger:    logger.Discard(),
	}), metrics
}

func call(h http.Handler, method, path, body, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.10:4000"
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_PublicEndpoints(t *testing.T) {
	h, _ := newTestRouter(t, 0, 0)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			rec := call(h, http.MethodGet, path, "", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			if rec.Header().Get(RequestIDHeader) == "" {
				t.Error("request id header missing")
			}
		})
	}
}

func TestRouter_InternalRoutesRequireSecret(t *testing.T) {
	h, _ := newTestRouter(t, 0, 0)

	for _, rt := range internalRoutes {
		method, path, _ := strings.Cut(rt.pattern, " ")
		t.Run(rt.route, func(t *testing.T) {
			rec := call(h, method, path, "{}", "")
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status without secret = %d", rec.Code)
			}
			rec = call(h, method, path, "{}", "wrong-secret")
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status with wrong secret = %d", rec.Code)
			}
		})
	}
}

func TestRouter_RoomRoundTrip(t *testing.T) {
	h, metrics := newTestRouter(t, 0, 0)

	rec := call(h, http.MethodPost, "/internal/v1/rooms/upsert",
		`{"room_name":"arena","node_id":"node-a","url":"wss://a.example/sfu","max":8}`, testSecret)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = call(h, http.MethodGet, "/internal/v1/rooms/resolve?room=arena", "", testSecret)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d: %s", rec.Code, rec.Body.String())
	}
	var env struct {
		Data struct {
			NodeID string `json:"node_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil || env.Data.NodeID != "node-a" {
		t.Fatalf("resolve body = %s (%v)", rec.Body.String(), err)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `relaygate_requests_total{method="GET",route="rooms_resolve",status="200"} 1`) {
		t.Errorf("route metric missing:\n%s", body)
	}
}

func TestRouter_RateLimitBeforeAuth(t *testing.T) {
	h, _ := newTestRouter(t, 0.001, 1)

	if rec := call(h, http.MethodGet, "/internal/v1/rooms/list", "", testSecret); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}
	if rec := call(h, http.MethodGet, "/internal/v1/rooms/list", "", "wrong"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if rec := call(h, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("health must not be rate limited, status = %d", rec.Code)
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	h, _ := newTestRouter(t, 0, 0)
	srv, err := New(Config{Addr: "127.0.0.1:0", ReadTimeout: time.Second, WriteTimeout: time.Second}, h, logger.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ln, err := srv.Listen()
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + srv.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Serve returned %v after shutdown", err)
	}
}

func TestServer_BadTLSFiles(t *testing.T) {
	_, err := New(Config{Addr: "127.0.0.1:0", TLSCertFile: "/nonexistent.crt", TLSKeyFile: "/nonexistent.key"}, http.NotFoundHandler(), logger.Discard())
	if err == nil {
		t.Fatal("New() with missing TLS files should fail")
	}
}
