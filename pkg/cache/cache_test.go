package cache

import (
	"testing"
	"time"
)

func TestSetAndGet(t *testing.T) {
	c := New()
	c.Set("stats:tenant-1", []byte(`{"totalSeconds":140}`), 1*time.Second)
	val, ok := c.Get("stats:tenant-1")
	if !ok || string(val) != `{"totalSeconds":140}` {
		t.Fatalf("expected cached stats, got %q, exists=%v", val, ok)
	}
}

func TestExpiration(t *testing.T) {
	c := New()
	c.Set("stats:tenant-1", []byte("x"), 100*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	_, ok := c.Get("stats:tenant-1")
	if ok {
		t.Fatalf("expected expired key to return false")
	}
}

func TestDelete(t *testing.T) {
	c := New()
	c.Set("projects:tenant-1", []byte("x"), 1*time.Second)
	c.Delete("projects:tenant-1")
	_, ok := c.Get("projects:tenant-1")
	if ok {
		t.Fatalf("expected deleted key to return false")
	}
}

func TestInvalidatePrefix(t *testing.T) {
	c := New()
	c.Set("stats:tenant-1", []byte("a"), 1*time.Second)
	c.Set("stats:tenant-2", []byte("b"), 1*time.Second)
	c.Set("projects:tenant-1", []byte("c"), 1*time.Second)
	c.Invalidate("stats:")
	_, ok1 := c.Get("stats:tenant-1")
	_, ok2 := c.Get("stats:tenant-2")
	_, ok3 := c.Get("projects:tenant-1")
	if ok1 || ok2 {
		t.Fatalf("expected stats keys to be invalidated")
	}
	if !ok3 {
		t.Fatalf("expected projects:tenant-1 to still exist")
	}
}
