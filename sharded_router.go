package client

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-jump"

	"github.com/jsp-lqk/metapipe-grid/internal"
)

// shardedRouter spreads keys over several endpoints with jump consistent
// hashing, so a key always lands on the same endpoint.
type shardedRouter struct {
	shards []*internal.Manager
}

func shardFor(key string, n int) int {
	return int(jump.Hash(xxhash.Sum64String(key), n))
}

func (r *shardedRouter) route(key string) *internal.Manager {
	return r.shards[shardFor(key, len(r.shards))]
}

func (r *shardedRouter) managers() []*internal.Manager {
	return r.shards
}

func (r *shardedRouter) shutdown() {
	var wg sync.WaitGroup
	for _, m := range r.shards {
		wg.Add(1)
		go func(m *internal.Manager) {
			defer wg.Done()
			m.Close()
		}(m)
	}
	wg.Wait()
}
