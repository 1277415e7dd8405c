package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/relaygate/internal/core/service"
	"github.com/yndnr/relaygate/internal/server/httpserver/handler"
	"github.com/yndnr/relaygate/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Gateway supplies the token validator and room registry.
	Gateway *service.Gateway

	// Ready is checked by GET /ready, usually the shared store.
	Ready handler.Pinger

	// Secret is the internal API secret, plaintext or argon2id hash.
	Secret string

	// RateLimit is requests per second per client IP; zero disables it.
	RateLimit float64
	RateBurst int

	// TrustProxy honors X-Forwarded-For for rate limiting.
	TrustProxy bool

	Metrics *metric.Registry
	Logger  *slog.Logger
}

// internalRoutes are the secret-guarded endpoints and their metric labels.
var internalRoutes = []struct {
	pattern string
	route   string
}{
	{"POST /internal/v1/tokens/verify", "tokens_verify"},
	{"POST /internal/v1/rooms/upsert", "rooms_upsert"},
	{"GET /internal/v1/rooms/resolve", "rooms_resolve"},
	{"GET /internal/v1/rooms/list", "rooms_list"},
	{"POST /internal/v1/rooms/delete", "rooms_delete"},
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	h := handler.New(cfg.Gateway, cfg.Ready, log)

	base := []Middleware{Recover(log), RequestID()}

	var limiter Middleware
	if cfg.RateLimit > 0 {
		limiter = RateLimit(NewRateLimiterRegistry(cfg.RateLimit, cfg.RateBurst), cfg.TrustProxy, cfg.Metrics)
	}
	guard := NewSecretGuard(cfg.Secret)

	mux := http.NewServeMux()

	mux.Handle("GET /health", Chain(h, append(base, Observe("health", log, cfg.Metrics))...))
	mux.Handle("GET /ready", Chain(h, append(base, Observe("ready", log, cfg.Metrics))...))
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics.Handler(), base...))
	}

	for _, rt := range internalRoutes {
		chain := append([]Middleware{}, base...)
		chain = append(chain, Observe(rt.route, log, cfg.Metrics))
		if limiter != nil {
			chain = append(chain, limiter)
		}
		chain = append(chain, InternalAuth(guard, log, cfg.Metrics))
		mux.Handle(rt.pattern, Chain(h, chain...))
	}

	return mux
}
