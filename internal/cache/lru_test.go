package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLRU_BasicOperations(t *testing.T) {
	c, err := New[string, int](3, 0)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	c.Set("v1", 42)
	if val, ok := c.Get("v1"); !ok || val != 42 {
		t.Errorf("Get(v1) = (%v, %v), want (42, true)", val, ok)
	}
	if _, ok := c.Get("nonexistent"); ok {
		t.Error("Get(nonexistent) should return false")
	}

	c.Set("v2", 100)
	c.Set("v3", 200)
	c.Set("v4", 300) // evicts v1

	if _, ok := c.Get("v1"); ok {
		t.Error("v1 should have been evicted")
	}
	if val, ok := c.Get("v4"); !ok || val != 300 {
		t.Errorf("Get(v4) = (%v, %v), want (300, true)", val, ok)
	}
	if got := c.Stats().Evicted; got != 1 {
		t.Errorf("Stats.Evicted = %d, want 1", got)
	}
}

func TestLRU_InvalidSize(t *testing.T) {
	if _, err := New[string, int](0, 0); err == nil {
		t.Error("New(0) should fail")
	}
}

func TestLRU_Expiration(t *testing.T) {
	c, err := New[string, string](10, time.Minute)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("v1", "bundle")
	if _, ok := c.Get("v1"); !ok {
		t.Error("v1 should be present before expiration")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("v1"); ok {
		t.Error("v1 should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be dropped on access, Len() = %d", c.Len())
	}
}

func TestLRU_CleanupExpired(t *testing.T) {
	c, err := New[string, int](10, time.Minute)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	c.Set("b", 2)
	now = now.Add(30 * time.Second)
	c.Set("c", 3)
	now = now.Add(45 * time.Second)

	if removed := c.CleanupExpired(); removed != 2 {
		t.Errorf("CleanupExpired() = %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d after cleanup, want 1", c.Len())
	}
}

func TestLRU_Stats(t *testing.T) {
	c, err := New[string, int](5, 0)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	c.Set("v1", 1)
	c.Set("v2", 2)
	c.Get("v1")
	c.Get("v1")
	c.Get("missing")

	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 || stats.Size != 2 {
		t.Errorf("Stats = %+v, want 2 hits, 1 miss, size 2", stats)
	}
	want := 2.0 / 3.0
	if stats.HitRate < want-0.01 || stats.HitRate > want+0.01 {
		t.Errorf("Stats.HitRate = %f, want ~%f", stats.HitRate, want)
	}
}

func TestLRU_DeleteAndPurge(t *testing.T) {
	c, err := New[string, int](5, 0)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	c.Set("v1", 42)
	c.Delete("v1")
	if _, ok := c.Get("v1"); ok {
		t.Error("v1 should have been deleted")
	}

	c.Set("v2", 2)
	c.Set("v3", 3)
	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Purge(), want 0", c.Len())
	}
}

func TestLRU_GetOrLoad(t *testing.T) {
	c, err := New[string, int](5, 0)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	var calls atomic.Int32
	load := func(_ context.Context, key string) (int, error) {
		calls.Add(1)
		return len(key), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "gbt-v1", load)
			if err != nil || v != 6 {
				t.Errorf("GetOrLoad = (%d, %v), want (6, nil)", v, err)
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("loader called %d times, want 1", got)
	}
}

func TestLRU_GetOrLoadDoesNotCacheErrors(t *testing.T) {
	c, err := New[string, int](5, 0)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	boom := errors.New("boom")
	_, err = c.GetOrLoad(context.Background(), "k", func(context.Context, string) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("GetOrLoad error = %v, want boom", err)
	}
	if c.Len() != 0 {
		t.Error("failed load should not be cached")
	}
}
