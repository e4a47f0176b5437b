package client

import (
	"context"
	"time"

	"github.com/jsp-lqk/metapipe-grid/codec"
)

// MapCache is a hash whose fields may carry their own time-to-live. A field
// reads as absent once its deadline passes, whether or not the store has
// evicted it yet.
type MapCache[V any] struct {
	h handle
}

func OpenMapCache[V any](c *Client, key string) (*MapCache[V], error) {
	h, err := c.open(key, KindMapCache)
	if err != nil {
		return nil, err
	}
	return &MapCache[V]{h: h}, nil
}

func (m *MapCache[V]) Key() string { return m.h.key }

func (m *MapCache[V]) WithCodec(c codec.Codec) *MapCache[V] {
	return &MapCache[V]{h: m.h.withCodec(c)}
}

// Put stores v under field. A ttl of zero or less stores it without expiry.
func (m *MapCache[V]) Put(ctx context.Context, field string, v V, ttl time.Duration) error {
	return m.h.put(ctx, field, v, ttl)
}

func (m *MapCache[V]) Get(ctx context.Context, field string) (V, bool, error) {
	return get[V](ctx, m.h, field)
}

func (m *MapCache[V]) Delete(ctx context.Context, field string) (bool, error) {
	return m.h.del(ctx, field)
}
