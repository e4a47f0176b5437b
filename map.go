package client

import (
	"context"

	"github.com/jsp-lqk/metapipe-grid/codec"
)

// Map is a field→value hash stored under one key. Entries never expire on
// their own.
type Map[V any] struct {
	h handle
}

// OpenMap returns a Map handle for key. Opening does not contact the store.
func OpenMap[V any](c *Client, key string) (*Map[V], error) {
	h, err := c.open(key, KindMap)
	if err != nil {
		return nil, err
	}
	return &Map[V]{h: h}, nil
}

func (m *Map[V]) Key() string { return m.h.key }

// WithCodec returns a view of the same map that encodes and decodes with c.
func (m *Map[V]) WithCodec(c codec.Codec) *Map[V] {
	return &Map[V]{h: m.h.withCodec(c)}
}

func (m *Map[V]) Put(ctx context.Context, field string, v V) error {
	return m.h.put(ctx, field, v, 0)
}

// Get returns the value of field and whether it was present.
func (m *Map[V]) Get(ctx context.Context, field string) (V, bool, error) {
	return get[V](ctx, m.h, field)
}

func (m *Map[V]) Delete(ctx context.Context, field string) (bool, error) {
	return m.h.del(ctx, field)
}

func get[V any](ctx context.Context, h handle, field string) (V, bool, error) {
	var v V
	ok, err := h.get(ctx, field, &v)
	if err != nil || !ok {
		var zero V
		return zero, false, err
	}
	return v, true, nil
}
