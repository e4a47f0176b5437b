package client

import (
	"context"
	"time"

	"github.com/jsp-lqk/metapipe-grid/codec"
)

// BucketCache holds a single value with an optional time-to-live.
type BucketCache[V any] struct {
	h handle
}

func OpenBucketCache[V any](c *Client, key string) (*BucketCache[V], error) {
	h, err := c.open(key, KindBucketCache)
	if err != nil {
		return nil, err
	}
	return &BucketCache[V]{h: h}, nil
}

func (b *BucketCache[V]) Key() string { return b.h.key }

func (b *BucketCache[V]) WithCodec(c codec.Codec) *BucketCache[V] {
	return &BucketCache[V]{h: b.h.withCodec(c)}
}

// Put stores v. A ttl of zero or less stores it without expiry.
func (b *BucketCache[V]) Put(ctx context.Context, v V, ttl time.Duration) error {
	return b.h.put(ctx, "", v, ttl)
}

func (b *BucketCache[V]) Get(ctx context.Context) (V, bool, error) {
	return get[V](ctx, b.h, "")
}

func (b *BucketCache[V]) Delete(ctx context.Context) (bool, error) {
	return b.h.del(ctx, "")
}
