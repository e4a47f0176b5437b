package client

import (
	"context"
	"errors"
	"time"

	"github.com/jsp-lqk/metapipe-grid/codec"
	"github.com/jsp-lqk/metapipe-grid/internal"
)

// handle carries the protocol shared by all collection kinds. Bucket kinds
// always use the empty field.
type handle struct {
	client *Client
	key    string
	kind   Kind
	codec  codec.Codec
}

func (h handle) withCodec(c codec.Codec) handle {
	if c != nil {
		h.codec = c
	}
	return h
}

func (h handle) request(t internal.RequestType, field string) internal.Request {
	return internal.Request{Type: t, Key: h.key, Field: field, HasField: h.kind.Hash()}
}

func (h handle) checkField(field string) error {
	if h.kind.Hash() && field == "" {
		return ErrMissingField
	}
	return nil
}

func (h handle) put(ctx context.Context, field string, v any, ttl time.Duration) error {
	if err := h.checkField(field); err != nil {
		return err
	}
	if err := h.client.kinds.check(h.key, h.kind); err != nil {
		return err
	}
	data, err := h.codec.Encode(v)
	if err != nil {
		return &WriteError{Key: h.key, Field: field, Err: &SerializationError{Key: h.key, Field: field, Codec: h.codec.Name(), Err: err}}
	}

	req := h.request(internal.PUT, field)
	req.Value = data
	if ttl > 0 {
		req.Type = internal.PUT_WITH_TTL
		req.TTL = ttl
	}
	resp, err := h.client.send(ctx, req)
	if err != nil {
		return &WriteError{Key: h.key, Field: field, Err: err}
	}
	if resp.Status == internal.StatusError {
		if conflict := h.conflict(resp.Err); conflict != nil {
			return conflict
		}
		return &WriteError{Key: h.key, Field: field, Err: resp.Err}
	}

	h.client.kinds.record(h.key, h.kind)
	if ttl > 0 {
		h.client.expiry.Register(h.key, field, ttl)
	} else {
		h.client.expiry.Forget(h.key, field)
	}
	return nil
}

// get decodes the entry into out and reports whether it was present. Any
// kind consults the tracked deadline, since a map and a map cache may share
// a key.
func (h handle) get(ctx context.Context, field string, out any) (bool, error) {
	if err := h.checkField(field); err != nil {
		return false, err
	}
	if err := h.client.kinds.check(h.key, h.kind); err != nil {
		return false, err
	}
	deadline, tracked := h.client.expiry.Deadline(h.key, field)
	resp, err := h.client.send(ctx, h.request(internal.GET, field))
	if err != nil {
		return false, err
	}
	switch resp.Status {
	case internal.StatusNotFound:
		if tracked {
			h.client.expiry.ForgetIf(h.key, field, deadline)
		}
		return false, nil
	case internal.StatusError:
		if conflict := h.conflict(resp.Err); conflict != nil {
			return false, conflict
		}
		return false, resp.Err
	}

	if d, expired := h.client.expiry.PassedDeadline(h.key, field); expired {
		h.client.metrics.ExpiredRead()
		h.client.evict(h.key, field, d)
		return false, nil
	}
	if err := h.codec.Decode(resp.Value, out); err != nil {
		return false, &DeserializationError{Key: h.key, Field: field, Codec: h.codec.Name(), Err: err}
	}
	return true, nil
}

// del removes the entry and reports whether a live entry was removed. An
// entry past its tracked deadline is still deleted remotely but reported as
// absent.
func (h handle) del(ctx context.Context, field string) (bool, error) {
	if err := h.checkField(field); err != nil {
		return false, err
	}
	if err := h.client.kinds.check(h.key, h.kind); err != nil {
		return false, err
	}
	expired := h.client.expiry.Expired(h.key, field)
	resp, err := h.client.send(ctx, h.request(internal.DELETE, field))
	if err != nil {
		return false, &WriteError{Key: h.key, Field: field, Err: err}
	}
	if resp.Status == internal.StatusError {
		if conflict := h.conflict(resp.Err); conflict != nil {
			return false, conflict
		}
		return false, &WriteError{Key: h.key, Field: field, Err: resp.Err}
	}
	h.client.expiry.Forget(h.key, field)
	if !h.kind.Hash() {
		h.client.kinds.release(h.key)
	}
	return resp.Status == internal.StatusOK && !expired, nil
}

func (h handle) conflict(err error) error {
	var se *internal.StoreError
	if errors.As(err, &se) && se.WrongType() {
		return &TypeConflictError{Key: h.key, Requested: h.kind, Err: se}
	}
	return nil
}
