// Package metric provides Prometheus metrics for relaygate.
package metric

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relaygate"

// Registry holds all application metrics on a private Prometheus registry.
// All recording methods are safe on a nil *Registry, which records nothing.
type Registry struct {
	registry *prometheus.Registry

	// Token metrics
	TokenValidateCalls *prometheus.CounterVec
	TokenConsumptions  *prometheus.CounterVec

	// Identity metrics
	IdentitiesBound       prometheus.Counter
	ImpersonationAttempts prometheus.Counter

	// Room registry metrics
	RoomOps     *prometheus.CounterVec
	RoomsListed prometheus.Gauge
	RoomsPruned prometheus.Counter

	// Federation metrics
	AssertionRejections *prometheus.CounterVec

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	AuthFailures    *prometheus.CounterVec

	// Store metrics
	StoreOps        *prometheus.CounterVec
	StoreOpDuration *prometheus.HistogramVec
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Handler serves the process-wide registry.
func Handler() http.Handler {
	return Global().Handler()
}

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,

		TokenValidateCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_validate_calls_total",
			Help:      "Token validations by token class and result",
		}, []string{"class", "result"}),
		TokenConsumptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_consumptions_total",
			Help:      "One-time write token consumptions by result",
		}, []string{"result"}),

		IdentitiesBound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identities_bound_total",
			Help:      "Connections bound to a verified identity",
		}),
		ImpersonationAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "impersonation_attempts_total",
			Help:      "Client-supplied identity fields that disagreed with the bound identity",
		}),

		RoomOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_ops_total",
			Help:      "Room registry operations by operation and result",
		}, []string{"op", "result"}),
		RoomsListed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_listed",
			Help:      "Live rooms returned by the most recent list",
		}),
		RoomsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_pruned_total",
			Help:      "Expired rooms removed from the room index",
		}),

		AssertionRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assertion_rejections_total",
			Help:      "Rejected federated assertions by reason",
		}, []string{"reason"}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Internal API requests by method, route and status",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Internal API request latency",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "route"}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected internal API callers by reason",
		}, []string{"reason"}),

		StoreOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_ops_total",
			Help:      "Shared store operations by operation and result",
		}, []string{"op", "result"}),
		StoreOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_op_duration_seconds",
			Help:      "Shared store operation latency",
			Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"op"}),
	}

	reg.MustRegister(
		r.TokenValidateCalls,
		r.TokenConsumptions,
		r.IdentitiesBound,
		r.ImpersonationAttempts,
		r.RoomOps,
		r.RoomsListed,
		r.RoomsPruned,
		r.AssertionRejections,
		r.RequestsTotal,
		r.RequestDuration,
		r.AuthFailures,
		r.StoreOps,
		r.StoreOpDuration,
	)

	return r
}

// Register adds extra collectors, e.g. backend size gauges.
func (r *Registry) Register(cs ...prometheus.Collector) error {
	if r == nil {
		return nil
	}
	for _, c := range cs {
		if err := r.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns an HTTP handler exposing this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordTokenValidation counts a validation outcome.
func (r *Registry) RecordTokenValidation(class, result string) {
	if r == nil {
		return
	}
	r.TokenValidateCalls.WithLabelValues(class, result).Inc()
}

// RecordConsumption counts a write token consumption attempt.
func (r *Registry) RecordConsumption(result string) {
	if r == nil {
		return
	}
	r.TokenConsumptions.WithLabelValues(result).Inc()
}

// IncIdentityBound counts a successful bind.
func (r *Registry) IncIdentityBound() {
	if r == nil {
		return
	}
	r.IdentitiesBound.Inc()
}

// IncImpersonation counts a rejected client identity claim.
func (r *Registry) IncImpersonation() {
	if r == nil {
		return
	}
	r.ImpersonationAttempts.Inc()
}

// RecordRoomOp counts a registry operation outcome.
func (r *Registry) RecordRoomOp(op, result string) {
	if r == nil {
		return
	}
	r.RoomOps.WithLabelValues(op, result).Inc()
}

// SetRoomsListed records the size of the latest room listing.
func (r *Registry) SetRoomsListed(n int) {
	if r == nil {
		return
	}
	r.RoomsListed.Set(float64(n))
}

// AddRoomsPruned counts index entries removed during a listing.
func (r *Registry) AddRoomsPruned(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.RoomsPruned.Add(float64(n))
}

// RecordAssertionRejection counts a rejected federated assertion.
func (r *Registry) RecordAssertionRejection(reason string) {
	if r == nil {
		return
	}
	r.AssertionRejections.WithLabelValues(reason).Inc()
}

// RecordRequest counts an internal API request.
func (r *Registry) RecordRequest(method, route, status string) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// ObserveRequestDuration records internal API latency in seconds.
func (r *Registry) ObserveRequestDuration(method, route string, seconds float64) {
	if r == nil {
		return
	}
	r.RequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// RecordAuthFailure counts a rejected internal caller.
func (r *Registry) RecordAuthFailure(reason string) {
	if r == nil {
		return
	}
	r.AuthFailures.WithLabelValues(reason).Inc()
}

// ObserveStoreOp records a store operation. Its signature matches
// storage.Observer.
func (r *Registry) ObserveStoreOp(op, result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.StoreOps.WithLabelValues(op, result).Inc()
	r.StoreOpDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}
