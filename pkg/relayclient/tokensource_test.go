package relayclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingFetch issues numbered tokens valid for ttl.
type countingFetch struct {
	clock *fakeClock
	ttl   time.Duration
	calls atomic.Int32
	gate  chan struct{}
	err   error
}

func (f *countingFetch) fetch(_ context.Context, purpose string) (Token, error) {
	n := f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return Token{}, f.err
	}
	return Token{Value: fmt.Sprintf("%s-%d", purpose, n), ExpiresAt: f.clock.Now().Add(f.ttl)}, nil
}

func newSource(f *countingFetch) *TokenSource {
	return NewTokenSource(f.fetch, WithTokenClock(f.clock.Now), WithRefreshSkew(5*time.Second))
}

func TestTokenSource_CachesUntilNearExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	f := &countingFetch{clock: clock, ttl: 30 * time.Second}
	s := newSource(f)
	ctx := context.Background()

	first, err := s.Token(ctx, "write")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	clock.Advance(20 * time.Second)
	if again, _ := s.Token(ctx, "write"); again != first {
		t.Errorf("token refetched early: %q then %q", first, again)
	}

	clock.Advance(5 * time.Second)
	fresh, _ := s.Token(ctx, "write")
	if fresh == first {
		t.Error("token inside the refresh skew was reused")
	}
	if f.calls.Load() != 2 {
		t.Errorf("fetches = %d, want 2", f.calls.Load())
	}
}

func TestTokenSource_PurposesAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	f := &countingFetch{clock: clock, ttl: time.Minute}
	s := newSource(f)

	r, _ := s.Token(context.Background(), "read")
	w, _ := s.Token(context.Background(), "write")
	if r == w {
		t.Errorf("read and write share %q", r)
	}
}

func TestTokenSource_Invalidate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	f := &countingFetch{clock: clock, ttl: time.Hour}
	s := newSource(f)
	ctx := context.Background()

	first, _ := s.Token(ctx, "read")
	s.Invalidate("read")
	second, _ := s.Token(ctx, "read")
	if first == second {
		t.Fatal("Invalidate did not force a refetch")
	}
}

func TestTokenSource_SingleFlight(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	f := &countingFetch{clock: clock, ttl: time.Minute, gate: make(chan struct{})}
	s := newSource(f)

	const callers = 16
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = s.Token(context.Background(), "write")
		}(i)
	}

	for f.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	if f.calls.Load() != 1 {
		t.Fatalf("fetches = %d, want 1", f.calls.Load())
	}
	for i, r := range results {
		if r != results[0] || r == "" {
			t.Fatalf("caller %d got %q, want %q", i, r, results[0])
		}
	}
}

func TestTokenSource_Errors(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	boom := errors.New("authority down")

	s := newSource(&countingFetch{clock: clock, err: boom})
	if _, err := s.Token(context.Background(), "write"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped fetch error", err)
	}

	empty := NewTokenSource(func(context.Context, string) (Token, error) { return Token{}, nil })
	if _, err := empty.Token(context.Background(), "write"); err == nil {
		t.Error("empty token should be an error")
	}
}

func TestTokenSource_CallerCancellation(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	f := &countingFetch{clock: clock, ttl: time.Minute, gate: make(chan struct{})}
	s := newSource(f)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Token(ctx, "write")
		errCh <- err
	}()
	for f.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	close(f.gate)
	// The detached fetch still lands in the cache.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := s.cached("write"); ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("fetch finished after cancellation was not cached")
}

func TestTokenSource_InvalidateDuringFetch(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	f := &countingFetch{clock: clock, ttl: time.Hour, gate: make(chan struct{})}
	s := newSource(f)
	ctx := context.Background()

	results := make(chan string, 2)
	go func() {
		tok, _ := s.Token(ctx, "write")
		results <- tok
	}()
	for f.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	s.Invalidate("write")
	go func() {
		tok, _ := s.Token(ctx, "write")
		results <- tok
	}()
	time.Sleep(20 * time.Millisecond)
	if n := f.calls.Load(); n != 1 {
		t.Fatalf("fetches while one is in flight = %d, want 1", n)
	}

	close(f.gate)
	a, b := <-results, <-results
	if a != "write-1" || b != "write-1" {
		t.Fatalf("callers got %q and %q, want both to share write-1", a, b)
	}
	if f.calls.Load() != 1 {
		t.Fatalf("fetches = %d, want 1", f.calls.Load())
	}

	// The fetch began before Invalidate, so its token is not cached.
	if _, ok := s.cached("write"); ok {
		t.Fatal("token fetched before Invalidate was cached")
	}
	next, err := s.Token(ctx, "write")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if next != "write-2" {
		t.Errorf("token after the stale fetch = %q, want write-2", next)
	}
}
