package lru

import (
	"fmt"
	"sync"
	"testing"
)

func TestEviction(t *testing.T) {
	c := New[string, int](2)
	c.Add("a", 1)
	c.Add("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("Get(a) missed")
	}
	if !c.Add("c", 3) {
		t.Error("Add(c) did not evict")
	}
	if _, ok := c.Get("b"); ok {
		t.Error("b survived although it was least recently used")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("Get(%s) missed", k)
		}
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestUpdate(t *testing.T) {
	c := New[int, string](2)
	c.Add(1, "one")
	c.Add(2, "two")
	if c.Add(1, "uno") {
		t.Error("replacing a key evicted")
	}
	c.Add(3, "three")
	if v, ok := c.Get(1); !ok || v != "uno" {
		t.Errorf("Get(1) = %q, %v, want uno", v, ok)
	}
	if _, ok := c.Get(2); ok {
		t.Error("2 should have been evicted")
	}
}

func TestRemoveAndPurge(t *testing.T) {
	c := New[int, int](0)
	for i := range 10 {
		c.Add(i, i*i)
	}
	c.Remove(0)
	c.Remove(9)
	c.Remove(42)
	if c.Len() != 8 {
		t.Errorf("Len() = %d, want 8", c.Len())
	}
	if v, _ := c.Get(3); v != 9 {
		t.Errorf("Get(3) = %d, want 9", v)
	}
	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len() after Purge = %d", c.Len())
	}
	c.Add(1, 1)
	if v, ok := c.Get(1); !ok || v != 1 {
		t.Error("cache unusable after Purge")
	}
}

func TestConcurrent(t *testing.T) {
	c := New[string, int](16)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				k := fmt.Sprintf("%d-%d", g, i%20)
				c.Add(k, i)
				c.Get(k)
			}
		}()
	}
	wg.Wait()
	if n := c.Len(); n > 16 {
		t.Errorf("Len() = %d exceeds capacity", n)
	}
}
