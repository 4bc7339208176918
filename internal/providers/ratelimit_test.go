package providers

import (
	"testing"
	"time"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) now() time.Time          { return f.t }
func (f *fakeNow) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestWindowLimiter(t *testing.T) {
	t.Run("admits up to limit within window", func(t *testing.T) {
		clock := &fakeNow{t: time.Unix(1000, 0)}
		rl := NewWindowLimiter(3, time.Minute, clock.now)

		for i := 0; i < 3; i++ {
			if !rl.TryAcquire() {
				t.Fatalf("acquire %d should succeed", i)
			}
		}
		if rl.TryAcquire() {
			t.Error("fourth acquire should fail")
		}
		if rl.Available() {
			t.Error("limiter should report no capacity")
		}
	})

	t.Run("frees slots as events expire", func(t *testing.T) {
		clock := &fakeNow{t: time.Unix(1000, 0)}
		rl := NewWindowLimiter(2, time.Minute, clock.now)

		rl.TryAcquire()
		clock.advance(30 * time.Second)
		rl.TryAcquire()

		status := rl.Status()
		if status.TimeUntilSlot != 30*time.Second {
			t.Errorf("expected 30s until slot, got %s", status.TimeUntilSlot)
		}

		clock.advance(30 * time.Second)
		if !rl.Available() {
			t.Error("oldest event should have expired")
		}
		if got := rl.Status().InWindow; got != 1 {
			t.Errorf("expected 1 event in window, got %d", got)
		}
	})

	t.Run("no burst after idle", func(t *testing.T) {
		clock := &fakeNow{t: time.Unix(1000, 0)}
		rl := NewWindowLimiter(2, time.Minute, clock.now)

		clock.advance(10 * time.Minute)
		admitted := 0
		for i := 0; i < 5; i++ {
			if rl.TryAcquire() {
				admitted++
			}
		}
		if admitted != 2 {
			t.Errorf("expected 2 admitted, got %d", admitted)
		}
		if got := rl.Status().TotalConsumed; got != 2 {
			t.Errorf("expected 2 consumed, got %d", got)
		}
	})

	t.Run("record 429 fills window until retry after", func(t *testing.T) {
		clock := &fakeNow{t: time.Unix(1000, 0)}
		rl := NewWindowLimiter(5, time.Minute, clock.now)

		rl.TryAcquire()
		rl.Record429(10 * time.Second)
		if rl.Available() {
			t.Fatal("window should be full after 429")
		}

		clock.advance(10 * time.Second)
		if got := rl.Status().InWindow; got != 1 {
			t.Errorf("expected only the real event left, got %d", got)
		}
		if rl.Status().Last429Time.IsZero() {
			t.Error("expected last 429 time recorded")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		rl := NewWindowLimiter(0, 0, nil)
		if rl.Limit() != 10 {
			t.Errorf("expected default limit 10, got %d", rl.Limit())
		}
		if rl.Status().Window != time.Minute {
			t.Errorf("expected default window 1m, got %s", rl.Status().Window)
		}
	})
}
