package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/relaygate/internal/core/domain"
	"github.com/yndnr/relaygate/internal/telemetry/logger"
)

func TestNewRoomRefresher_Config(t *testing.T) {
	reg, _, _, _ := newTestRegistry(t)

	tests := []struct {
		name    string
		cfg     *RefresherConfig
		wantErr bool
	}{
		{"default", nil, false},
		{"shorter interval", &RefresherConfig{Interval: time.Second, TTL: time.Minute}, false},
		{"equal", &RefresherConfig{Interval: time.Minute, TTL: time.Minute}, true},
		{"longer interval", &RefresherConfig{Interval: 2 * time.Minute, TTL: time.Minute}, true},
		{"zero interval", &RefresherConfig{TTL: time.Minute}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRoomRefresher(reg, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRoomRefresher() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestRoomRefresher_KeepsRoomAlive(t *testing.T) {
	reg, _, clock, _ := newTestRegistry(t)
	ctx := context.Background()

	f, err := NewRoomRefresher(reg, &RefresherConfig{Interval: 20 * time.Second, TTL: time.Minute},
		WithLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("NewRoomRefresher: %v", err)
	}

	up := RoomUpsert{Name: "arena", NodeID: "node-a", Max: 4}
	if _, err := reg.Upsert(ctx, up, time.Minute); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := f.Track(up); err != nil {
		t.Fatalf("Track: %v", err)
	}

	for i := 0; i < 6; i++ {
		clock.Advance(20 * time.Second)
		if failed := f.RefreshOnce(ctx); failed != 0 {
			t.Fatalf("tick %d: %d rooms failed", i, failed)
		}
	}

	if _, err := reg.Resolve(ctx, "arena"); err != nil {
		t.Fatalf("room expired despite refreshes: %v", err)
	}
}

func TestRoomRefresher_RecreatesExpiredRoom(t *testing.T) {
	reg, _, clock, _ := newTestRegistry(t)
	ctx := context.Background()

	f, _ := NewRoomRefresher(reg, &RefresherConfig{Interval: 20 * time.Second, TTL: time.Minute},
		WithLogger(logger.Discard()))
	if err := f.Track(RoomUpsert{Name: "arena", NodeID: "node-a", Current: 1, Max: 4}); err != nil {
		t.Fatalf("Track: %v", err)
	}

	clock.Advance(2 * time.Minute)
	if failed := f.RefreshOnce(ctx); failed != 0 {
		t.Fatalf("%d rooms failed", failed)
	}

	rec, err := reg.Resolve(ctx, "arena")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rec.NodeID != "node-a" || rec.Current != 1 {
		t.Errorf("record = %+v", rec)
	}
}

func TestRoomRefresher_OwnershipLost(t *testing.T) {
	reg, _, _, _ := newTestRegistry(t)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		lost []string
	)
	f, _ := NewRoomRefresher(reg, &RefresherConfig{
		Interval: 20 * time.Second,
		TTL:      time.Minute,
		OnLost: func(room string) {
			mu.Lock()
			lost = append(lost, room)
			mu.Unlock()
		},
	}, WithLogger(logger.Discard()))

	up := RoomUpsert{Name: "arena", NodeID: "node-a"}
	if _, err := reg.Upsert(ctx, up, time.Minute); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	_ = f.Track(up)

	if _, err := reg.Upsert(ctx, RoomUpsert{Name: "arena", NodeID: "node-b"}, time.Minute); err != nil {
		t.Fatalf("takeover Upsert: %v", err)
	}

	if failed := f.RefreshOnce(ctx); failed != 0 {
		t.Fatalf("%d rooms failed", failed)
	}
	if len(lost) != 1 || lost[0] != "arena" {
		t.Errorf("OnLost calls = %v", lost)
	}
	if tracked := f.Tracked(); len(tracked) != 0 {
		t.Errorf("tracked after loss = %v", tracked)
	}

	rec, _ := reg.Resolve(ctx, "arena")
	if rec == nil || rec.NodeID != "node-b" {
		t.Errorf("refresher must not take the room back: %+v", rec)
	}
}

func TestRoomRefresher_TrackUntrack(t *testing.T) {
	reg, _, _, _ := newTestRegistry(t)
	f, _ := NewRoomRefresher(reg, nil)

	if err := f.Track(RoomUpsert{Name: "b", NodeID: "n"}); err != nil {
		t.Fatalf("Track: %v", err)
	}
	_ = f.Track(RoomUpsert{Name: "a", NodeID: "n"})
	if err := f.Track(RoomUpsert{Name: "bad name", NodeID: "n"}); !errors.Is(err, domain.ErrRoomNameInvalid) {
		t.Errorf("Track invalid err = %v", err)
	}

	if got := f.Tracked(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Tracked = %v", got)
	}
	f.Untrack("a")
	if got := f.Tracked(); len(got) != 1 || got[0] != "b" {
		t.Errorf("Tracked after Untrack = %v", got)
	}
}

func TestRoomRefresher_StoreUnavailableCountsFailures(t *testing.T) {
	reg := NewRoomRegistry(unavailableStore(), time.Minute, WithLogger(logger.Discard()))
	f, _ := NewRoomRefresher(reg, &RefresherConfig{Interval: time.Second, TTL: time.Minute},
		WithLogger(logger.Discard()))
	_ = f.Track(RoomUpsert{Name: "arena", NodeID: "a"})

	if failed := f.RefreshOnce(context.Background()); failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
	if len(f.Tracked()) != 1 {
		t.Error("an unreachable store must not drop tracked rooms")
	}
}

func TestRoomRefresher_RunStopsOnCancel(t *testing.T) {
	reg, _, _, _ := newTestRegistry(t)
	f, _ := NewRoomRefresher(reg, &RefresherConfig{Interval: time.Millisecond, TTL: time.Minute},
		WithLogger(logger.Discard()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
