package chain

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common/lru"
)

func TestBlockTimestampCacheIsBounded(t *testing.T) {
	c := &Client{tsCache: lru.NewCache[uint64, uint64](2)}
	c.tsCache.Add(1, 100)
	c.tsCache.Add(2, 200)
	c.tsCache.Add(3, 300)

	if c.tsCache.Len() != 2 {
		t.Fatalf("cache size mismatch: %d", c.tsCache.Len())
	}
	if c.tsCache.Contains(1) {
		t.Fatalf("oldest block not evicted")
	}

	// Served from the cache; the client has no RPC connection.
	ts, err := c.BlockTimestamp(context.Background(), 3)
	if err != nil {
		t.Fatalf("block timestamp: %v", err)
	}
	if ts != 300 {
		t.Fatalf("timestamp mismatch: %d", ts)
	}
}
