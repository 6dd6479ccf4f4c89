package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestLRU(size int, ttl time.Duration) (*LRU[int64, string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRU[int64, string](size, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestLRU(2, time.Minute)
	c.Set(1, "one")
	c.Set(2, "two")
	if _, ok := c.Get(1); !ok {
		t.Fatal("expected hit for 1")
	}
	c.Set(3, "three")

	if _, ok := c.Get(2); ok {
		t.Fatal("2 should have been evicted")
	}
	for _, k := range []int64{1, 3} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("expected %d to survive", k)
		}
	}
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	c, clock := newTestLRU(10, time.Minute)
	c.Set(1, "one")
	c.Set(2, "two")

	clock.t = clock.t.Add(30 * time.Second)
	c.Set(2, "two again")
	clock.t = clock.t.Add(45 * time.Second)

	if _, ok := c.Get(1); ok {
		t.Fatal("1 should have expired")
	}
	if v, ok := c.Get(2); !ok || v != "two again" {
		t.Fatalf("expected refreshed entry, got %q %v", v, ok)
	}

	clock.t = clock.t.Add(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("expected 1 cleaned, got %d", n)
	}
	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("unexpected stats hits=%d misses=%d", hits, misses)
	}
}

func TestLRUNoTTL(t *testing.T) {
	c, clock := newTestLRU(1, 0)
	c.Set(1, "one")
	clock.t = clock.t.Add(24 * 365 * time.Hour)
	if _, ok := c.Get(1); !ok {
		t.Fatal("entries without ttl never expire")
	}
	c.Delete(1)
	if c.Size() != 0 {
		t.Fatal("delete did not remove entry")
	}
}

func TestManagerStopsWithContext(t *testing.T) {
	c, clock := newTestLRU(10, time.Second)
	c.Set(1, "one")
	clock.t = clock.t.Add(time.Minute)

	m := NewManager(nil)
	m.Register(c)
	if n := m.CleanAll(); n != 1 {
		t.Fatalf("expected 1 cleaned, got %d", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx, time.Millisecond)
	cancel()
	m.Wait()
}
