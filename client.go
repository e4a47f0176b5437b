// Package client is a key/value grid client for Redis-compatible stores. It
// exposes named remote collections (hash maps and single-value buckets, each
// with an optional time-to-live flavor) whose values pass through a
// pluggable codec.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jsp-lqk/metapipe-grid/codec"
	"github.com/jsp-lqk/metapipe-grid/config"
	"github.com/jsp-lqk/metapipe-grid/expiry"
	"github.com/jsp-lqk/metapipe-grid/internal"
)

// Endpoint is a store to connect to: host:port, liveness-check interval and
// optional credentials.
type Endpoint = internal.Endpoint

// Client owns the connections to one or more endpoints and hands out
// collection handles. It is safe for concurrent use.
type Client struct {
	router  router
	codec   codec.Codec
	expiry  *expiry.Coordinator
	kinds   *kindGuard
	logger  *slog.Logger
	metrics *internal.Metrics
	timeout time.Duration

	evicting sync.Map // evictKey -> struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	stopSweep context.CancelFunc
	sweepDone chan struct{}
}

// SingleTargetClient connects to one endpoint.
func SingleTargetClient(ctx context.Context, target Endpoint, opts ...Option) (*Client, error) {
	return newClient(ctx, []Endpoint{target}, opts)
}

// ShardedClient connects to every target and routes each key to one of
// them.
func ShardedClient(ctx context.Context, targets []Endpoint, opts ...Option) (*Client, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("sharded client needs at least one target")
	}
	return newClient(ctx, targets, opts)
}

// DefaultClient connects to address (host:port or redis:// URL) with default
// settings and no liveness check.
func DefaultClient(ctx context.Context, address string, opts ...Option) (*Client, error) {
	a, err := config.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	return SingleTargetClient(ctx, endpoint(a, 0), opts...)
}

// FromConfig connects as described by v. Options given here override the
// ones derived from v.
func FromConfig(ctx context.Context, v *config.Value, opts ...Option) (*Client, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	addrs, err := v.Addresses()
	if err != nil {
		return nil, err
	}
	targets := make([]Endpoint, 0, len(addrs))
	for _, a := range addrs {
		targets = append(targets, endpoint(a, v.PingInterval()))
	}
	return newClient(ctx, targets, append(configOptions(v), opts...))
}

// Use connects per v, runs fn and shuts the client down on every exit path,
// including a panic in fn.
func Use(ctx context.Context, v *config.Value, fn func(context.Context, *Client) error, opts ...Option) error {
	c, err := FromConfig(ctx, v, opts...)
	if err != nil {
		return err
	}
	defer c.Shutdown()
	return fn(ctx, c)
}

func endpoint(a config.Address, ping time.Duration) Endpoint {
	return Endpoint{
		Address:      a.HostPort,
		PingInterval: ping,
		Username:     a.Username,
		Password:     a.Password,
		Database:     a.Database,
	}
}

func newClient(ctx context.Context, targets []Endpoint, opts []Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	metrics := internal.NewMetrics(o.registerer)
	o.conn.Logger = o.logger
	o.conn.Metrics = metrics

	managers := make([]*internal.Manager, 0, len(targets))
	for _, t := range targets {
		m, err := internal.Connect(ctx, t, o.conn)
		if err != nil {
			for _, prev := range managers {
				prev.Close()
			}
			return nil, err
		}
		managers = append(managers, m)
	}

	var r router
	if len(managers) == 1 {
		r = &directRouter{manager: managers[0]}
	} else {
		r = &shardedRouter{shards: managers}
	}

	c := &Client{
		router:  r,
		codec:   o.codec,
		expiry:  expiry.New(o.now),
		kinds:   newKindGuard(),
		logger:  o.logger,
		metrics: metrics,
		timeout: o.conn.Timeout,
	}
	if c.timeout <= 0 {
		c.timeout = internal.DefaultTimeout
	}
	if o.sweepInterval > 0 {
		sweepCtx, cancel := context.WithCancel(context.Background())
		c.stopSweep = cancel
		c.sweepDone = make(chan struct{})
		go func() {
			defer close(c.sweepDone)
			c.expiry.Run(sweepCtx, o.sweepInterval, func(e expiry.Entry) {
				c.evict(e.Key, e.Field, e.Deadline)
			})
		}()
	}
	return c, nil
}

// Codec returns the codec handles use unless WithCodec overrides it.
func (c *Client) Codec() codec.Codec {
	return c.codec
}

// Healthy reports whether every endpoint currently has live connections.
func (c *Client) Healthy() bool {
	for _, m := range c.router.managers() {
		if !m.Healthy() {
			return false
		}
	}
	return true
}

// Shutdown releases every connection. It is idempotent; handles fail with
// ErrClosed afterwards.
func (c *Client) Shutdown() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.stopSweep != nil {
			c.stopSweep()
			<-c.sweepDone
		}
		c.router.shutdown()
	})
}

func (c *Client) open(key string, k Kind) (handle, error) {
	if c.closed.Load() {
		return handle{}, ErrClosed
	}
	if err := ValidateKey(key); err != nil {
		return handle{}, err
	}
	return handle{client: c, key: key, kind: k, codec: c.codec}, nil
}

func (c *Client) send(ctx context.Context, req internal.Request) (internal.Response, error) {
	if c.closed.Load() {
		return internal.Response{}, ErrClosed
	}
	return c.router.route(req.Key).Send(ctx, req)
}

type evictKey struct {
	key   string
	field string
}

// evict deletes an entry whose tracked deadline passed. The delete is
// written before evict returns, so later writes by the same caller are
// ordered after it; its reply is awaited in the background. The deadline is
// forgotten only once the store confirms the entry is gone, so a failed
// delete keeps the entry masked and is retried by the next read or sweep.
//
// The delete is skipped when a newer write replaced the deadline. A write by
// another caller that lands between that check and the delete is still
// removed; such a write has an unknown effect, like any write racing an
// eviction.
func (c *Client) evict(key, field string, deadline time.Time) {
	if c.closed.Load() {
		return
	}
	if d, ok := c.expiry.Deadline(key, field); !ok || !d.Equal(deadline) {
		return
	}
	ek := evictKey{key, field}
	if _, busy := c.evicting.LoadOrStore(ek, struct{}{}); busy {
		return
	}

	req := internal.Request{Type: internal.DELETE, Key: key, Field: field, HasField: field != ""}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	call, err := c.router.route(key).Dispatch(ctx, req)
	if err != nil {
		cancel()
		c.evicting.Delete(ek)
		c.logger.Debug("evict expired entry", "key", key, "field", field, "err", err)
		return
	}
	go func() {
		defer cancel()
		defer c.evicting.Delete(ek)
		resp, err := call.Wait(ctx)
		if err == nil && resp.Status == internal.StatusError {
			err = resp.Err
		}
		if err != nil {
			c.logger.Debug("evict expired entry", "key", key, "field", field, "err", err)
			return
		}
		c.expiry.ForgetIf(key, field, deadline)
	}()
}
