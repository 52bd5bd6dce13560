package tdoc

import (
	"context"
	"testing"

	"github.com/oriys/labthings/internal/cache"
)

func TestCacheGetIsAddressedByPathAndBaseURL(t *testing.T) {
	th := buildTestThing(t)
	c := NewCache(NewBuilder(), cache.NewInMemoryCache(), 0)

	first, err := c.Get(context.Background(), th, "http://localhost:7123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := c.Get(context.Background(), th, "http://localhost:7123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(first) != string(second) {
		t.Fatal("expected a cache hit to return the same bytes as the original build")
	}

	third, err := c.Get(context.Background(), th, "http://otherhost:9000")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(third) == string(first) {
		t.Fatal("expected a different base URL to produce a different cache entry")
	}
}
