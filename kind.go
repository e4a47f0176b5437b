package client

import "sync"

// Kind is the flavor of collection a handle exposes.
type Kind int

const (
	KindMap Kind = iota + 1
	KindMapCache
	KindBucket
	KindBucketCache
)

func (k Kind) String() string {
	switch k {
	case KindMap:
		return "map"
	case KindMapCache:
		return "map cache"
	case KindBucket:
		return "bucket"
	case KindBucketCache:
		return "bucket cache"
	default:
		return "unknown"
	}
}

// Hash reports whether the kind stores a field→value hash.
func (k Kind) Hash() bool {
	return k == KindMap || k == KindMapCache
}

// kindGuard remembers which shape each key was written with by this
// process. Map and MapCache share the hash shape, Bucket and BucketCache the
// value shape.
type kindGuard struct {
	mu   sync.Mutex
	held map[string]Kind
}

func newKindGuard() *kindGuard {
	return &kindGuard{held: make(map[string]Kind)}
}

// record remembers that key now holds the shape of k. It runs only after
// the store accepted a write, so a failed write leaves no trace.
func (g *kindGuard) record(key string, k Kind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if held, ok := g.held[key]; ok && held.Hash() == k.Hash() {
		return
	}
	g.held[key] = k
}

func (g *kindGuard) check(key string, k Kind) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if held, ok := g.held[key]; ok && held.Hash() != k.Hash() {
		return &TypeConflictError{Key: key, Held: held, Requested: k}
	}
	return nil
}

func (g *kindGuard) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, key)
}
