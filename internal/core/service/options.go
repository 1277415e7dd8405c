package service

import (
	"log/slog"
	"time"

	"github.com/yndnr/relaygate/internal/core/domain"
	"github.com/yndnr/relaygate/internal/telemetry/metric"
)

// Option configures a service.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	metrics    *metric.Registry
	now        func() time.Time
	maxRoomTTL time.Duration
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics registry. Without it nothing is recorded.
func WithMetrics(m *metric.Registry) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMaxRoomTTL caps the TTL accepted by RoomRegistry.Upsert.
// Defaults to domain.DefaultMaxRoomTTL.
func WithMaxRoomTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxRoomTTL = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:     slog.Default(),
		now:        time.Now,
		maxRoomTTL: domain.DefaultMaxRoomTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
