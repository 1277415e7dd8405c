package httpserver

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/relaygate/internal/core/domain"
	"github.com/yndnr/relaygate/internal/telemetry/logger"
	"github.com/yndnr/relaygate/internal/telemetry/metric"
	"github.com/yndnr/relaygate/pkg/secret"
)

// SecretHeader carries the internal API secret.
const SecretHeader = "X-Relaygate-Secret"

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so the first one listed runs first.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestID adds a request id to the context and response. A caller-supplied
// id is kept when it is short and printable.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if !validRequestID(requestID) {
				requestID = "req-" + ulid.Make().String()
			}
			w.Header().Set(RequestIDHeader, requestID)

			ctx := logger.WithRequestID(r.Context(), requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

// Recover recovers from panics and returns 500 error.
func Recover(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					log.ErrorContext(r.Context(), "panic recovered",
						"error", err,
						"path", r.URL.Path,
					)
					writeError(w, http.StatusInternalServerError, domain.ErrInternalServer)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Observe records request metrics under a fixed route label and writes an
// audit line per request.
func Observe(route string, log *slog.Logger, metrics *metric.Registry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			elapsed := time.Since(start)
			metrics.RecordRequest(r.Method, route, strconv.Itoa(wrapped.statusCode))
			metrics.ObserveRequestDuration(r.Method, route, elapsed.Seconds())

			attrs := []any{
				"method", r.Method,
				"route", route,
				"status", wrapped.statusCode,
				"duration_ms", elapsed.Milliseconds(),
				"client_ip", clientIP(r, false),
			}
			switch {
			case wrapped.statusCode >= 500:
				log.ErrorContext(r.Context(), "request completed with error", attrs...)
			case wrapped.statusCode >= 400:
				log.WarnContext(r.Context(), "request completed with client error", attrs...)
			default:
				log.DebugContext(r.Context(), "request completed", attrs...)
			}
		})
	}
}

// SecretGuard checks the internal API secret. The configured value is either
// plaintext or an argon2id hash. After the first successful argon2id check the
// SHA-256 digest of the accepted secret is remembered so later requests skip
// the key derivation.
type SecretGuard struct {
	plain    string
	hash     string
	accepted atomic.Pointer[[sha256.Size]byte]
}

// NewSecretGuard creates a guard for the configured secret.
func NewSecretGuard(configured string) *SecretGuard {
	if secret.IsHash(configured) {
		return &SecretGuard{hash: configured}
	}
	return &SecretGuard{plain: configured}
}

// Check reports whether presented matches the configured secret.
func (g *SecretGuard) Check(presented string) bool {
	if presented == "" {
		return false
	}
	if g.hash == "" {
		return g.plain != "" && secret.Equal(presented, g.plain)
	}

	digest := sha256.Sum256([]byte(presented))
	if known := g.accepted.Load(); known != nil {
		return subtle.ConstantTimeCompare(digest[:], known[:]) == 1
	}
	if !secret.Verify(presented, g.hash) {
		return false
	}
	g.accepted.Store(&digest)
	return true
}

// InternalAuth rejects requests without a valid SecretHeader.
func InternalAuth(guard *SecretGuard, log *slog.Logger, metrics *metric.Registry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(SecretHeader)
			if !guard.Check(presented) {
				reason := "invalid"
				if presented == "" {
					reason = "missing"
				}
				metrics.RecordAuthFailure(reason)
				log.WarnContext(r.Context(), "internal secret rejected",
					"reason", reason,
					"client_ip", clientIP(r, false),
				)
				writeError(w, http.StatusUnauthorized, domain.ErrInternalSecretInvalid)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Rate limiter registry defaults.
const (
	DefaultLimiterCapacity = 10000
	DefaultLimiterIdle     = 10 * time.Minute
)

// RateLimiterRegistry manages per-client token buckets. Idle clients are
// evicted after DefaultLimiterIdle.
type RateLimiterRegistry struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewRateLimiterRegistry creates a registry allowing perSecond sustained
// requests with the given burst per client.
func NewRateLimiterRegistry(perSecond float64, burst int) *RateLimiterRegistry {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiterRegistry{
		limiters: expirable.NewLRU[string, *rate.Limiter](DefaultLimiterCapacity, nil, DefaultLimiterIdle),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow reports whether the client may proceed now.
func (r *RateLimiterRegistry) Allow(client string) bool {
	return r.getOrCreate(client).Allow()
}

func (r *RateLimiterRegistry) getOrCreate(client string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters.Get(client); ok {
		return l
	}
	l := rate.NewLimiter(r.limit, r.burst)
	r.limiters.Add(client, l)
	return l
}

// Len returns the number of tracked clients.
func (r *RateLimiterRegistry) Len() int {
	return r.limiters.Len()
}

// RateLimit applies per-client rate limiting.
func RateLimit(reg *RateLimiterRegistry, trustProxy bool, metrics *metric.Registry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !reg.Allow(clientIP(r, trustProxy)) {
				metrics.RecordAuthFailure("rate_limited")
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, domain.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// writeError writes a middleware-level error in the handler envelope shape.
func writeError(w http.ResponseWriter, status int, de *domain.DomainError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", de.Code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":      de.Code,
		"message":   de.Message,
		"timestamp": time.Now().UnixMilli(),
	})
}

// clientIP extracts the client IP. Forwarding headers are only honored when
// the server sits behind a trusted proxy.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
