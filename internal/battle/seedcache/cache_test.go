package seedcache

import (
	"bytes"
	"testing"
)

func TestPutIsInsertOnly(t *testing.T) {
	cache := New(8)

	if !cache.Put(50, []byte("first")) {
		t.Fatal("expected first insert to succeed")
	}
	if cache.Put(50, []byte("second")) {
		t.Fatal("expected duplicate insert to be rejected")
	}

	seed, ok := cache.Get(50)
	if !ok {
		t.Fatal("expected cached seed")
	}
	if !bytes.Equal(seed, []byte("first")) {
		t.Fatalf("expected first write to win, got %q", seed)
	}
}

func TestPutRejectsEmptySeed(t *testing.T) {
	cache := New(8)
	if cache.Put(50, nil) {
		t.Fatal("expected empty seed to be rejected")
	}
	if _, ok := cache.Get(50); ok {
		t.Fatal("expected no entry for empty seed")
	}
}

func TestBoundEvictsLowestView(t *testing.T) {
	cache := New(3)
	for view := uint64(1); view <= 4; view++ {
		cache.Put(view, []byte{byte(view)})
	}

	if cache.Len() != 3 {
		t.Fatalf("expected bound of 3, got %d", cache.Len())
	}
	if _, ok := cache.Get(1); ok {
		t.Fatal("expected lowest view to be evicted")
	}
	if _, ok := cache.Get(4); !ok {
		t.Fatal("expected newest view to remain")
	}
}

func TestGetCopiesSeed(t *testing.T) {
	cache := New(8)
	cache.Put(50, []byte{1, 2, 3})

	seed, _ := cache.Get(50)
	seed[0] = 9

	again, _ := cache.Get(50)
	if again[0] != 1 {
		t.Fatal("expected cached seed to be immutable")
	}
}

func TestClear(t *testing.T) {
	cache := New(8)
	cache.Put(50, []byte("seed"))
	cache.Clear()

	if cache.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", cache.Len())
	}
	if _, ok := cache.Get(50); ok {
		t.Fatal("expected no entries after clear")
	}
}
