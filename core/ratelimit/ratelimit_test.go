package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestAllowUpToMax(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(clock.Now)

	for i := 0; i < 3; i++ {
		d := limiter.Allow("client", 3, time.Minute)
		if !d.Allowed {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
		if d.Remaining != 2-i {
			t.Errorf("request %d remaining = %d, want %d", i+1, d.Remaining, 2-i)
		}
	}
}

func TestDenyPastMaxKeepsReset(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(clock.Now)

	first := limiter.Allow("client", 2, time.Minute)
	limiter.Allow("client", 2, time.Minute)

	d := limiter.Allow("client", 2, time.Minute)
	if d.Allowed {
		t.Fatal("third request allowed, want denied")
	}
	if d.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", d.Remaining)
	}
	if !d.ResetAt.Equal(first.ResetAt) {
		t.Errorf("reset moved from %v to %v on denial", first.ResetAt, d.ResetAt)
	}
}

func TestWindowResetsLazily(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(clock.Now)

	limiter.Allow("client", 1, time.Minute)
	if d := limiter.Allow("client", 1, time.Minute); d.Allowed {
		t.Fatal("second request in window allowed")
	}

	clock.Advance(time.Minute)

	d := limiter.Allow("client", 1, time.Minute)
	if !d.Allowed {
		t.Fatal("request after window expiry denied")
	}
	if want := clock.Now().Add(time.Minute); !d.ResetAt.Equal(want) {
		t.Errorf("reset = %v, want %v", d.ResetAt, want)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	limiter := New()

	limiter.Allow("a", 1, time.Minute)
	if d := limiter.Allow("a", 1, time.Minute); d.Allowed {
		t.Fatal("key a over budget but allowed")
	}
	if d := limiter.Allow("b", 1, time.Minute); !d.Allowed {
		t.Fatal("key b denied by key a's budget")
	}
}

func TestConcurrentAllowRespectsBudget(t *testing.T) {
	limiter := New()

	const max = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow("shared", max, time.Minute).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != max {
		t.Errorf("allowed %d requests, want exactly %d", allowed, max)
	}
}
