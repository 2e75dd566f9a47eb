package resolver

import (
	"testing"
	"time"

	"github.com/streampanel/resolvd/internal/model"
)

func TestCacheHitWithinTTL(t *testing.T) {
	c := NewCache()
	res := model.ResolveResult{ResolvedURL: "http://cdn.example.com/live?token=abc"}

	c.Put("fp1", res)

	got, ok := c.Get("fp1")
	if !ok {
		t.Fatal("expected cache hit immediately after Put")
	}
	if got.ResolvedURL != res.ResolvedURL {
		t.Errorf("ResolvedURL = %q, want %q", got.ResolvedURL, res.ResolvedURL)
	}
}

func TestCacheMissAfterTTL(t *testing.T) {
	c := NewCache()
	current := time.Now()
	c.now = func() time.Time { return current }

	c.Put("fp1", model.ResolveResult{ResolvedURL: "http://cdn.example.com/live"})

	// Just under the TTL: still a hit.
	current = current.Add(resultTTL - time.Second)
	if _, ok := c.Get("fp1"); !ok {
		t.Error("entry expired before TTL elapsed")
	}

	// At the TTL boundary: miss, and the entry is dropped.
	current = current.Add(time.Second)
	if _, ok := c.Get("fp1"); ok {
		t.Error("entry still valid after TTL elapsed")
	}
	if c.Size() != 0 {
		t.Errorf("Size = %d, want 0 after stale entry dropped on lookup", c.Size())
	}
}

func TestCachePutOverwrites(t *testing.T) {
	c := NewCache()
	c.Put("fp1", model.ResolveResult{ResolvedURL: "http://old"})
	c.Put("fp1", model.ResolveResult{ResolvedURL: "http://new"})

	got, ok := c.Get("fp1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.ResolvedURL != "http://new" {
		t.Errorf("ResolvedURL = %q, want overwritten value", got.ResolvedURL)
	}
	if c.Size() != 1 {
		t.Errorf("Size = %d, want 1", c.Size())
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache()
	c.Put("fp1", model.ResolveResult{})
	c.Put("fp2", model.ResolveResult{})

	c.Clear()

	if c.Size() != 0 {
		t.Errorf("Size = %d, want 0 after Clear", c.Size())
	}
	if _, ok := c.Get("fp1"); ok {
		t.Error("entry survived Clear")
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache()
	done := make(chan struct{})

	for i := 0; i < 4; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 500; j++ {
				c.Put("fp", model.ResolveResult{ResolvedURL: "http://x"})
				c.Get("fp")
				c.Size()
				if j%100 == 0 {
					c.Clear()
				}
			}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
}
