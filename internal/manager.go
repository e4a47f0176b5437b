package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

type lane struct {
	id     Lane
	mu     sync.Mutex
	client *BaseTCPClient
	dialed bool
}

func (l *lane) current() *BaseTCPClient {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.client
}

// Manager owns the read and mutation connections to one endpoint. It redials
// unhealthy connections before sending and probes them in the background.
type Manager struct {
	target  Endpoint
	opts    Options
	logger  *slog.Logger
	metrics *Metrics

	lanes [2]*lane
	group singleflight.Group

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Connect dials both lanes of target, retrying per opts, and starts the
// liveness check when target.PingInterval is positive.
func Connect(ctx context.Context, target Endpoint, opts Options) (*Manager, error) {
	opts = opts.withDefaults()
	m := &Manager{
		target:  target,
		opts:    opts,
		logger:  opts.Logger.With("addr", target.Address),
		metrics: opts.Metrics,
		lanes:   [2]*lane{{id: ReadLane}, {id: MutationLane}},
		done:    make(chan struct{}),
	}
	for _, l := range m.lanes {
		if _, err := m.redial(ctx, l); err != nil {
			m.Close()
			return nil, err
		}
	}
	if target.PingInterval > 0 {
		m.wg.Add(1)
		go m.keepalive()
	}
	m.logger.Info("connected", "ping_interval", target.PingInterval)
	return m, nil
}

func (m *Manager) Addr() string {
	return m.target.Address
}

// Healthy reports whether both lanes currently hold a live connection.
func (m *Manager) Healthy() bool {
	for _, l := range m.lanes {
		c := l.current()
		if c == nil || !c.Healthy() {
			return false
		}
	}
	return true
}

// Backoff exposes the redial policy.
func (m *Manager) Backoff() *Backoff {
	return m.opts.Backoff
}

// MaxReconnectElapsed bounds how long one redial of a lane can take before
// it gives up. Each attempt may spend DialTimeout connecting and, when the
// endpoint needs AUTH or SELECT, Timeout on the handshake.
func (m *Manager) MaxReconnectElapsed() time.Duration {
	perAttempt := m.opts.DialTimeout
	if m.target.Password != "" || m.target.Database != 0 {
		perAttempt += m.opts.Timeout
	}
	return m.opts.Backoff.MaxElapsed(m.opts.MaxRetries, perAttempt)
}

func (m *Manager) acquire(ctx context.Context, l *lane) (*BaseTCPClient, error) {
	if c := l.current(); c != nil && c.Healthy() {
		return c, nil
	}
	v, err, _ := m.group.Do(l.id.String(), func() (any, error) {
		return m.redial(ctx, l)
	})
	if err != nil {
		return nil, err
	}
	return v.(*BaseTCPClient), nil
}

func (m *Manager) redial(ctx context.Context, l *lane) (*BaseTCPClient, error) {
	l.mu.Lock()
	old := l.client
	if old != nil && old.Healthy() {
		l.mu.Unlock()
		return old, nil
	}
	l.client = nil
	reconnect := l.dialed
	l.mu.Unlock()
	if old != nil {
		old.Close()
	}

	var lastErr error
	for attempt := 0; attempt < m.opts.MaxRetries; attempt++ {
		if m.closed.Load() {
			return nil, ErrClosed
		}
		if attempt > 0 {
			wait := m.opts.Backoff.ForAttempt(attempt - 1)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, &ConnectionError{Addr: m.target.Address, Attempts: attempt, Err: ctx.Err()}
			case <-m.done:
				t.Stop()
				return nil, ErrClosed
			case <-t.C:
			}
		}
		c, err := NewBaseTCPClient(ctx, m.target, m.opts)
		if err != nil {
			lastErr = err
			m.logger.Warn("dial failed", "lane", l.id, "attempt", attempt+1, "err", err)
			continue
		}
		l.mu.Lock()
		if m.closed.Load() {
			l.mu.Unlock()
			c.Close()
			return nil, ErrClosed
		}
		l.client = c
		l.dialed = true
		l.mu.Unlock()
		if reconnect {
			m.metrics.Reconnect(m.target.Address)
			m.logger.Info("reconnected", "lane", l.id, "session", c.Session(), "attempt", attempt+1)
		}
		return c, nil
	}
	return nil, &ConnectionError{Addr: m.target.Address, Attempts: m.opts.MaxRetries, Err: lastErr}
}

// Call is a request that has been written to a connection and whose reply
// may still be pending.
type Call struct {
	m      *Manager
	req    Request
	client *BaseTCPClient
	rc     <-chan Result
}

// Dispatch writes req on its lane and returns without waiting for the
// reply. Requests dispatched before Dispatch returns are ordered before it.
func (m *Manager) Dispatch(ctx context.Context, req Request) (*Call, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	l := m.lanes[req.Lane()]
	c, err := m.acquire(ctx, l)
	if err != nil {
		m.metrics.Request(l.id, "unavailable")
		return nil, err
	}
	return &Call{m: m, req: req, client: c, rc: c.Dispatch(req.Commands()...)}, nil
}

// Wait blocks for the reply. A cancelled or timed out write has an unknown
// effect on the store.
func (c *Call) Wait(ctx context.Context) (Response, error) {
	lane := c.req.Lane()
	res := c.client.Await(ctx, c.rc, c.m.opts.Timeout)
	if res.Err != nil {
		c.m.metrics.Request(lane, "failed")
		if errors.Is(res.Err, ErrConnectionReset) || errors.Is(res.Err, ErrLivenessCheck) {
			return Response{}, &ConnectionError{Addr: c.m.target.Address, Err: res.Err}
		}
		return Response{}, res.Err
	}
	resp, err := c.req.Interpret(res.Replies)
	if err != nil {
		c.m.metrics.Request(lane, "failed")
		c.client.Fail(err)
		return Response{}, &ConnectionError{Addr: c.m.target.Address, Err: err}
	}
	c.m.metrics.Request(lane, resp.Status.String())
	return resp, nil
}

// Send dispatches req and waits for its reply.
func (m *Manager) Send(ctx context.Context, req Request) (Response, error) {
	call, err := m.Dispatch(ctx, req)
	if err != nil {
		return Response{}, err
	}
	return call.Wait(ctx)
}

func (m *Manager) keepalive() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.target.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			for _, l := range m.lanes {
				m.ping(l)
			}
		}
	}
}

var pong = []byte("PONG")

func (m *Manager) ping(l *lane) {
	l.mu.Lock()
	c := l.client
	l.mu.Unlock()
	if c == nil || !c.Healthy() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.PingTimeout)
	defer cancel()
	res := c.Await(ctx, c.Dispatch([][]byte{[]byte("PING")}), 0)
	err := res.Err
	if err == nil && (res.Replies[0].Kind != SimpleString || !bytes.Equal(res.Replies[0].Str, pong)) {
		err = fmt.Errorf("unexpected ping reply %q", res.Replies[0].Str)
	}
	if err != nil {
		m.metrics.PingFailure(m.target.Address)
		m.logger.Warn("liveness check failed", "lane", l.id, "session", c.Session(), "err", err)
		c.Fail(fmt.Errorf("%w: %v", ErrLivenessCheck, err))
	}
}

// Close stops the liveness check and closes both lanes. It is safe to call
// more than once and from several goroutines.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		close(m.done)
		m.wg.Wait()
		for _, l := range m.lanes {
			l.mu.Lock()
			c := l.client
			l.client = nil
			l.mu.Unlock()
			if c != nil {
				c.Close()
			}
		}
		m.logger.Info("closed")
	})
}
