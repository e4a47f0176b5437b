package client

import (
	"context"

	"github.com/jsp-lqk/metapipe-grid/codec"
)

// Bucket holds a single value under one key.
type Bucket[V any] struct {
	h handle
}

func OpenBucket[V any](c *Client, key string) (*Bucket[V], error) {
	h, err := c.open(key, KindBucket)
	if err != nil {
		return nil, err
	}
	return &Bucket[V]{h: h}, nil
}

func (b *Bucket[V]) Key() string { return b.h.key }

func (b *Bucket[V]) WithCodec(c codec.Codec) *Bucket[V] {
	return &Bucket[V]{h: b.h.withCodec(c)}
}

func (b *Bucket[V]) Put(ctx context.Context, v V) error {
	return b.h.put(ctx, "", v, 0)
}

func (b *Bucket[V]) Get(ctx context.Context) (V, bool, error) {
	return get[V](ctx, b.h, "")
}

// Delete removes the value and frees the key for use as another kind.
func (b *Bucket[V]) Delete(ctx context.Context) (bool, error) {
	return b.h.del(ctx, "")
}
