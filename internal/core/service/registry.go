package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/yndnr/relaygate/internal/core/domain"
	"github.com/yndnr/relaygate/internal/storage"
)

// RoomUpsert describes the room state a node publishes.
type RoomUpsert struct {
	Name        string
	NodeID      string
	URL         string
	Current     int
	Max         int
	HasPassword bool
}

func (u RoomUpsert) validate() error {
	if err := domain.ValidateRoomName(u.Name); err != nil {
		return err
	}
	if u.NodeID == "" {
		return domain.ErrMissingArgument.WithDetails("node_id is required")
	}
	if u.Current < 0 || u.Max < 0 {
		return domain.ErrInvalidArgument.WithDetails("occupancy must not be negative")
	}
	return nil
}

// RoomRegistry maps room names to the node hosting them.
//
// The registry is soft-consistent: writes are last-writer-wins, records
// expire unless refreshed, and readers on other nodes may see a record up to
// one refresh interval stale. Discovery goes through an index set that is
// pruned lazily when List finds members whose record has expired.
type RoomRegistry struct {
	store      storage.Store
	defaultTTL time.Duration
	opts       options
}

// NewRoomRegistry creates a new RoomRegistry. defaultTTL applies when a call
// passes a non-positive ttl.
func NewRoomRegistry(store storage.Store, defaultTTL time.Duration, opts ...Option) *RoomRegistry {
	if defaultTTL <= 0 {
		defaultTTL = domain.DefaultRoomTTL
	}
	return &RoomRegistry{
		store:      store,
		defaultTTL: defaultTTL,
		opts:       buildOptions(opts),
	}
}

// DefaultTTL returns the TTL used when none is given.
func (r *RoomRegistry) DefaultTTL() time.Duration {
	return r.defaultTTL
}

// MaxTTL returns the largest TTL Upsert accepts.
func (r *RoomRegistry) MaxTTL() time.Duration {
	return max(r.opts.maxRoomTTL, r.defaultTTL)
}

// Upsert creates or refreshes a room record. The record expires ttl after
// this call unless refreshed again. created_at survives refreshes by the
// same node and resets when another node takes the room over.
func (r *RoomRegistry) Upsert(ctx context.Context, up RoomUpsert, ttl time.Duration) (*domain.RoomRecord, error) {
	rec, err := r.upsert(ctx, up, ttl)
	r.opts.metrics.RecordRoomOp("upsert", roomResult(err))
	return rec, err
}

func (r *RoomRegistry) upsert(ctx context.Context, up RoomUpsert, ttl time.Duration) (*domain.RoomRecord, error) {
	if err := up.validate(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	if ttl > r.MaxTTL() {
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("ttl %s exceeds the maximum of %s", ttl, r.MaxTTL()))
	}

	now := r.opts.now()
	created := now
	existing, err := r.read(ctx, up.Name)
	switch {
	case err == nil:
		if existing.NodeID == up.NodeID && !existing.CreatedAt.IsZero() {
			created = existing.CreatedAt
		} else if existing.NodeID != up.NodeID {
			r.opts.logger.Info("room ownership changed",
				"room", up.Name,
				"from", existing.NodeID,
				"to", up.NodeID,
			)
		}
	case errors.Is(err, domain.ErrRoomNotFound):
	default:
		return nil, err
	}

	rec := &domain.RoomRecord{
		Name:        up.Name,
		NodeID:      up.NodeID,
		URL:         up.URL,
		Current:     up.Current,
		Max:         up.Max,
		HasPassword: up.HasPassword,
		CreatedAt:   created,
		RefreshedAt: now,
		TTL:         ttl,
	}
	if err := r.store.HSetEX(ctx, storage.RoomKey(up.Name), rec.Fields(), ttl); err != nil {
		return nil, storeError(err)
	}
	if err := r.store.SAdd(ctx, storage.RoomIndexKey(), up.Name); err != nil {
		return nil, storeError(err)
	}
	return rec, nil
}

// Resolve returns the current record for name. Never-created and expired
// rooms both yield ErrRoomNotFound.
func (r *RoomRegistry) Resolve(ctx context.Context, name string) (*domain.RoomRecord, error) {
	rec, err := r.resolve(ctx, name)
	r.opts.metrics.RecordRoomOp("resolve", roomResult(err))
	return rec, err
}

func (r *RoomRegistry) resolve(ctx context.Context, name string) (*domain.RoomRecord, error) {
	if err := domain.ValidateRoomName(name); err != nil {
		return nil, err
	}
	return r.read(ctx, name)
}

// Refresh extends the lifetime of a room owned by nodeID, keeping its other
// fields. It fails with ErrRoomNotFound when the record expired and with
// ErrRoomOwnershipLost when another node owns the room now.
func (r *RoomRegistry) Refresh(ctx context.Context, name, nodeID string, ttl time.Duration) (*domain.RoomRecord, error) {
	rec, err := r.refresh(ctx, name, nodeID, ttl)
	r.opts.metrics.RecordRoomOp("refresh", roomResult(err))
	return rec, err
}

func (r *RoomRegistry) refresh(ctx context.Context, name, nodeID string, ttl time.Duration) (*domain.RoomRecord, error) {
	if err := domain.ValidateRoomName(name); err != nil {
		return nil, err
	}
	if nodeID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("node_id is required")
	}

	existing, err := r.read(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing.NodeID != nodeID {
		return nil, domain.ErrRoomOwnershipLost.WithDetails("owned by " + existing.NodeID)
	}

	return r.upsert(ctx, RoomUpsert{
		Name:        name,
		NodeID:      nodeID,
		URL:         existing.URL,
		Current:     existing.Current,
		Max:         existing.Max,
		HasPassword: existing.HasPassword,
	}, ttl)
}

// List returns every live room sorted by name. Index members whose record
// has expired are removed from the index on the way.
func (r *RoomRegistry) List(ctx context.Context) ([]domain.RoomRecord, error) {
	rooms, err := r.list(ctx)
	r.opts.metrics.RecordRoomOp("list", roomResult(err))
	return rooms, err
}

func (r *RoomRegistry) list(ctx context.Context) ([]domain.RoomRecord, error) {
	names, err := r.store.SMembers(ctx, storage.RoomIndexKey())
	if err != nil {
		return nil, storeError(err)
	}

	rooms := make([]domain.RoomRecord, 0, len(names))
	var stale []string
	for _, name := range names {
		rec, err := r.read(ctx, name)
		switch {
		case err == nil:
			rooms = append(rooms, *rec)
		case errors.Is(err, domain.ErrRoomNotFound):
			stale = append(stale, name)
		default:
			return nil, err
		}
	}

	if len(stale) > 0 {
		// Best effort: a failed prune is retried by the next List.
		if err := r.store.SRem(ctx, storage.RoomIndexKey(), stale...); err != nil {
			r.opts.logger.Warn("prune room index failed", "rooms", len(stale), "error", err)
		} else {
			r.opts.metrics.AddRoomsPruned(len(stale))
			r.opts.logger.Debug("pruned room index", "rooms", stale)
		}
	}

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	r.opts.metrics.SetRoomsListed(len(rooms))
	return rooms, nil
}

// Delete removes a room. With a non-empty nodeID the room is only removed
// while that node still owns it. Deleting a missing room is not an error.
func (r *RoomRegistry) Delete(ctx context.Context, name, nodeID string) error {
	err := r.delete(ctx, name, nodeID)
	r.opts.metrics.RecordRoomOp("delete", roomResult(err))
	return err
}

func (r *RoomRegistry) delete(ctx context.Context, name, nodeID string) error {
	if err := domain.ValidateRoomName(name); err != nil {
		return err
	}

	if nodeID != "" {
		existing, err := r.read(ctx, name)
		switch {
		case err == nil:
			if existing.NodeID != nodeID {
				return domain.ErrRoomOwnershipLost.WithDetails("owned by " + existing.NodeID)
			}
		case errors.Is(err, domain.ErrRoomNotFound):
		default:
			return err
		}
	}

	if _, err := r.store.Del(ctx, storage.RoomKey(name)); err != nil {
		return storeError(err)
	}
	if err := r.store.SRem(ctx, storage.RoomIndexKey(), name); err != nil {
		return storeError(err)
	}
	r.opts.logger.Info("room deleted", "room", name, "node", nodeID)
	return nil
}

// read loads a room record. Records that fail to decode count as missing.
func (r *RoomRegistry) read(ctx context.Context, name string) (*domain.RoomRecord, error) {
	fields, err := r.store.HGetAll(ctx, storage.RoomKey(name))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, storeError(err)
	}
	rec, ok := domain.RoomFromFields(name, fields)
	if !ok {
		r.opts.logger.Warn("ignoring malformed room record", "room", name)
		return nil, domain.ErrRoomNotFound
	}
	return rec, nil
}

// storeError maps a storage failure to a domain error.
func storeError(err error) error {
	if storage.IsUnavailable(err) {
		return domain.ErrStoreUnavailable.WithCause(err)
	}
	return domain.ErrInternalServer.WithCause(err)
}

func roomResult(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, domain.ErrRoomNotFound):
		return resultNotFound
	case errors.Is(err, domain.ErrRoomOwnershipLost):
		return "ownership_lost"
	case errors.Is(err, domain.ErrRoomNameInvalid),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrMissingArgument):
		return "invalid"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return resultStoreUnavailable
	default:
		return resultError
	}
}
