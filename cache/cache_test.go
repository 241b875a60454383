package cache

import (
	"fmt"
	"testing"

	"github.com/Tutortoise/drowsiness-service/fingerprint"
	"github.com/Tutortoise/drowsiness-service/models"
)

func key(i int) fingerprint.Fingerprint {
	return fingerprint.Of(models.Encoded{Data: fmt.Sprintf("frame-%d", i)})
}

func TestPut_Bound(t *testing.T) {
	c := New(100)
	for i := 1; i <= 101; i++ {
		c.Put(key(i), models.Result{BufferSize: i})
	}

	if c.Len() != 100 {
		t.Fatalf("Expected size 100, got %d", c.Len())
	}
	if c.Contains(key(1)) {
		t.Error("First inserted entry should have been evicted")
	}
	for i := 2; i <= 101; i++ {
		if !c.Contains(key(i)) {
			t.Errorf("Entry %d should still be cached", i)
		}
	}
	if err := c.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestGet_DoesNotRefresh(t *testing.T) {
	c := New(3)
	c.Put(key(1), models.Result{})
	c.Put(key(2), models.Result{})
	c.Put(key(3), models.Result{})

	// Reading the oldest entry must not protect it from eviction.
	if _, ok := c.Get(key(1)); !ok {
		t.Fatal("Expected hit for key 1")
	}

	evicted, ok := c.Put(key(4), models.Result{})
	if !ok || evicted != key(1) {
		t.Errorf("Expected key 1 to be evicted, got %s (ok=%v)", evicted.Short(), ok)
	}
}

func TestPut_ExistingKeepsPosition(t *testing.T) {
	c := New(2)
	c.Put(key(1), models.Result{BufferSize: 1})
	c.Put(key(2), models.Result{BufferSize: 2})
	c.Put(key(1), models.Result{BufferSize: 10})

	if c.Len() != 2 {
		t.Fatalf("Expected size 2, got %d", c.Len())
	}
	got, _ := c.Get(key(1))
	if got.BufferSize != 10 {
		t.Errorf("Expected updated value, got %+v", got)
	}

	c.Put(key(3), models.Result{})
	if c.Contains(key(1)) {
		t.Error("Re-put key should still be the oldest")
	}
}

func TestStats(t *testing.T) {
	c := New(2)
	c.Put(key(1), models.Result{})
	c.Get(key(1))
	c.Get(key(2))
	c.Put(key(2), models.Result{})
	c.Put(key(3), models.Result{})

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %+v", s)
	}
	if s.HitRate != 0.5 {
		t.Errorf("Expected hit rate 0.5, got %v", s.HitRate)
	}
	if s.Evictions != 1 || s.Size != 2 || s.Capacity != 2 {
		t.Errorf("Unexpected stats %+v", s)
	}
}

func TestKeys_InsertionOrder(t *testing.T) {
	c := New(5)
	for i := 1; i <= 3; i++ {
		c.Put(key(i), models.Result{})
	}
	keys := c.Keys()
	for i, k := range keys {
		if k != key(i+1) {
			t.Errorf("key %d out of order", i)
		}
	}
}

func TestPeek_NoCounters(t *testing.T) {
	c := New(2)
	c.Put(key(1), models.Result{BufferSize: 3})

	if got, ok := c.Peek(key(1)); !ok || got.BufferSize != 3 {
		t.Errorf("Expected stored result, got %+v (ok=%v)", got, ok)
	}
	if _, ok := c.Peek(key(2)); ok {
		t.Error("Expected miss for key 2")
	}
	if s := c.Stats(); s.Hits != 0 || s.Misses != 0 {
		t.Errorf("Peek must not count, got %+v", s)
	}
}
