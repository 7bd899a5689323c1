package report

import (
	"sync"
	"testing"
	"time"
)

func TestCacheGetPut(t *testing.T) {
	c := NewCache(5 * time.Minute)
	if c.Get("k") != nil {
		t.Fatal("expected miss on empty cache")
	}
	snap := &Snapshot{Kind: KindAttendance}
	c.Put("k", snap)
	if got := c.Get("k"); got != snap {
		t.Fatal("expected the stored snapshot back")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(5 * time.Minute)
	current := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.Put("k", &Snapshot{Kind: KindAttendance})
	current = current.Add(4 * time.Minute)
	if c.Get("k") == nil {
		t.Fatal("entry expired before TTL")
	}
	current = current.Add(2 * time.Minute)
	if c.Get("k") != nil {
		t.Fatal("entry served past TTL")
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache(5 * time.Minute)
	c.Put("k", &Snapshot{})
	c.Clear()
	if c.Get("k") != nil {
		t.Fatal("expected empty cache after Clear")
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache(5 * time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put("k", &Snapshot{})
				c.Get("k")
			}
		}()
	}
	wg.Wait()
}
