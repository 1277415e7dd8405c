package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/yndnr/relaygate/internal/core/domain"
)

// RefresherConfig holds configuration for RoomRefresher.
type RefresherConfig struct {
	// Interval is the refresh cadence. It must be shorter than TTL.
	Interval time.Duration

	// TTL is the lifetime written on every refresh.
	TTL time.Duration

	// OnLost is called when a tracked room turns out to be owned by another
	// node. The room is no longer tracked when it runs.
	OnLost func(room string)
}

// DefaultRefresherConfig returns default configuration.
func DefaultRefresherConfig() *RefresherConfig {
	return &RefresherConfig{
		Interval: domain.DefaultRoomRefreshInterval,
		TTL:      domain.DefaultRoomTTL,
	}
}

// RoomRefresher keeps the rooms hosted by this node alive in the registry.
//
// Each tick refreshes every tracked room. A record that expired in the
// meantime is published again; a room taken over by another node is dropped
// and reported through OnLost.
type RoomRefresher struct {
	registry *RoomRegistry
	cfg      RefresherConfig
	opts     options

	mu    sync.Mutex
	rooms map[string]RoomUpsert
}

// NewRoomRefresher creates a new RoomRefresher.
func NewRoomRefresher(registry *RoomRegistry, cfg *RefresherConfig, opts ...Option) (*RoomRefresher, error) {
	if cfg == nil {
		cfg = DefaultRefresherConfig()
	}
	if cfg.Interval <= 0 || cfg.TTL <= 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("refresh interval and ttl must be positive")
	}
	if cfg.Interval >= cfg.TTL {
		return nil, domain.ErrInvalidArgument.WithDetails("refresh interval must be shorter than room ttl")
	}

	return &RoomRefresher{
		registry: registry,
		cfg:      *cfg,
		opts:     buildOptions(opts),
		rooms:    make(map[string]RoomUpsert),
	}, nil
}

// Track adds or updates a room to refresh. The latest state is published on
// the next tick or when the record needs to be recreated.
func (f *RoomRefresher) Track(up RoomUpsert) error {
	if err := up.validate(); err != nil {
		return err
	}
	f.mu.Lock()
	f.rooms[up.Name] = up
	f.mu.Unlock()
	return nil
}

// Untrack stops refreshing a room.
func (f *RoomRefresher) Untrack(name string) {
	f.mu.Lock()
	delete(f.rooms, name)
	f.mu.Unlock()
}

// Tracked returns the names of tracked rooms in sorted order.
func (f *RoomRefresher) Tracked() []string {
	f.mu.Lock()
	names := make([]string, 0, len(f.rooms))
	for name := range f.rooms {
		names = append(names, name)
	}
	f.mu.Unlock()
	sort.Strings(names)
	return names
}

// Run refreshes tracked rooms every Interval until ctx is done.
func (f *RoomRefresher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.RefreshOnce(ctx)
		}
	}
}

// RefreshOnce refreshes every tracked room once and returns the number of
// rooms that failed for reasons other than lost ownership.
func (f *RoomRefresher) RefreshOnce(ctx context.Context) int {
	f.mu.Lock()
	rooms := make([]RoomUpsert, 0, len(f.rooms))
	for _, up := range f.rooms {
		rooms = append(rooms, up)
	}
	f.mu.Unlock()

	failed := 0
	for _, up := range rooms {
		if ctx.Err() != nil {
			return failed
		}
		if err := f.refresh(ctx, up); err != nil {
			failed++
			f.opts.logger.Warn("room refresh failed", "room", up.Name, "error", err)
		}
	}
	return failed
}

func (f *RoomRefresher) refresh(ctx context.Context, up RoomUpsert) error {
	_, err := f.registry.Refresh(ctx, up.Name, up.NodeID, f.cfg.TTL)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrRoomNotFound):
		_, err = f.registry.Upsert(ctx, up, f.cfg.TTL)
		if err == nil {
			f.opts.logger.Info("room record recreated", "room", up.Name)
		}
		return err
	case errors.Is(err, domain.ErrRoomOwnershipLost):
		f.mu.Lock()
		if cur, ok := f.rooms[up.Name]; ok && cur.NodeID == up.NodeID {
			delete(f.rooms, up.Name)
		}
		f.mu.Unlock()
		f.opts.logger.Warn("room ownership lost", "room", up.Name, "node", up.NodeID)
		if f.cfg.OnLost != nil {
			f.cfg.OnLost(up.Name)
		}
		return nil
	default:
		return err
	}
}
