package cache

import (
	"testing"
	"time"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be present")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %v %v", v, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
}

func TestLRUExpiresEntries(t *testing.T) {
	c := NewLRU[string](4, time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected entry to expire")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be removed, len=%d", c.Len())
	}
}

func TestLRUUpdateRefreshesValue(t *testing.T) {
	c := NewLRU[string](2, time.Hour)
	c.Set("k", "old")
	c.Set("k", "new")
	if v, _ := c.Get("k"); v != "new" {
		t.Fatalf("expected updated value, got %q", v)
	}
}

func TestNilLRUNeverHits(t *testing.T) {
	c := NewLRU[string](0, time.Hour)
	c.Set("k", "v")
	if _, ok := c.Get("k"); ok {
		t.Fatal("disabled cache should never hit")
	}
}

func TestKeySeparatesParts(t *testing.T) {
	if Key("ab", "c") == Key("a", "bc") {
		t.Fatal("expected distinct keys for distinct part boundaries")
	}
	if Key("x") != Key("x") {
		t.Fatal("expected stable keys")
	}
}

func BenchmarkLRUConcurrentAccess(b *testing.B) {
	c := NewLRU[string](1000, 5*time.Minute)
	for i := 0; i < 100; i++ {
		c.Set(Key(string(rune(i))), "value")
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := Key(string(rune(i % 100)))
			if i%2 == 0 {
				c.Get(key)
			} else {
				c.Set(key, "value")
			}
			i++
		}
	})
}
