package internal_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsp-lqk/metapipe-grid/internal"
	"github.com/jsp-lqk/metapipe-grid/internal/storetest"
)

func connect(t *testing.T, e internal.Endpoint, o internal.Options) *internal.Manager {
	t.Helper()
	m, err := internal.Connect(context.Background(), e, o)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func put(key, field, value string) internal.Request {
	return internal.Request{Type: internal.PUT, Key: key, Field: field, HasField: field != "", Value: []byte(value)}
}

func get(key, field string) internal.Request {
	return internal.Request{Type: internal.GET, Key: key, Field: field, HasField: field != ""}
}

func TestSendRoundTrip(t *testing.T) {
	srv := storetest.Start(t)
	m := connect(t, internal.Endpoint{Address: srv.Addr()}, internal.Options{})
	ctx := context.Background()

	resp, err := m.Send(ctx, get("users:1", "1"))
	require.NoError(t, err)
	assert.Equal(t, internal.StatusNotFound, resp.Status)

	resp, err = m.Send(ctx, put("users:1", "1", "v1"))
	require.NoError(t, err)
	assert.Equal(t, internal.StatusOK, resp.Status)

	resp, err = m.Send(ctx, get("users:1", "1"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(resp.Value))

	resp, err = m.Send(ctx, get("users:1", ""))
	require.NoError(t, err)
	assert.Equal(t, internal.StatusError, resp.Status)
}

func TestSameCallerWritesAreOrdered(t *testing.T) {
	srv := storetest.Start(t)
	m := connect(t, internal.Endpoint{Address: srv.Addr()}, internal.Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", w)
			for i := 0; i < 50; i++ {
				_, err := m.Send(ctx, put(key, "", fmt.Sprint(i)))
				if !assert.NoError(t, err) {
					return
				}
				resp, err := m.Send(ctx, get(key, ""))
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, fmt.Sprint(i), string(resp.Value))
			}
		}(w)
	}
	wg.Wait()
}

func TestReconnectAfterDrop(t *testing.T) {
	srv := storetest.Start(t)
	reg := prometheus.NewRegistry()
	metrics := internal.NewMetrics(reg)
	m := connect(t, internal.Endpoint{Address: srv.Addr()}, internal.Options{
		MaxRetries: 3,
		Backoff:    internal.NewBackoff(time.Millisecond, 5*time.Millisecond, 0),
		Metrics:    metrics,
	})
	ctx := context.Background()
	_, err := m.Send(ctx, put("k", "", "v"))
	require.NoError(t, err)

	srv.DropConnections()
	require.Eventually(t, func() bool { return !m.Healthy() }, time.Second, time.Millisecond)

	resp, err := m.Send(ctx, get("k", ""))
	require.NoError(t, err)
	assert.Equal(t, "v", string(resp.Value))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(reg, "metapipe_grid_reconnects_total"), 1)
}

func TestReconnectGivesUpWithinBound(t *testing.T) {
	srv := storetest.Start(t)
	backoff := internal.NewBackoff(10*time.Millisecond, 40*time.Millisecond, 0)
	dialTimeout := 200 * time.Millisecond
	m := connect(t, internal.Endpoint{Address: srv.Addr()}, internal.Options{
		MaxRetries:  4,
		Backoff:     backoff,
		DialTimeout: dialTimeout,
	})

	srv.Close()
	require.Eventually(t, func() bool { return !m.Healthy() }, time.Second, time.Millisecond)

	start := time.Now()
	_, err := m.Send(context.Background(), get("k", ""))
	elapsed := time.Since(start)

	var ce *internal.ConnectionError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, 4, ce.Attempts)
	assert.Equal(t, srv.Addr(), ce.Addr)
	// 10 + 20 + 40 ms of sleeps at least, and never more than the policy bound
	assert.GreaterOrEqual(t, elapsed, 70*time.Millisecond)
	assert.LessOrEqual(t, elapsed, m.MaxReconnectElapsed()+100*time.Millisecond)
	assert.Equal(t, backoff.MaxElapsed(4, dialTimeout), m.MaxReconnectElapsed())
}

// silentListener accepts connections and never answers, so a session
// handshake waits for its full timeout.
func silentListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return ln.Addr().String()
}

func TestReconnectBoundCoversHandshake(t *testing.T) {
	addr := silentListener(t)
	opts := internal.Options{
		MaxRetries:  2,
		Backoff:     internal.NewBackoff(5*time.Millisecond, 5*time.Millisecond, 0),
		DialTimeout: 20 * time.Millisecond,
		Timeout:     60 * time.Millisecond,
	}

	start := time.Now()
	_, err := internal.Connect(context.Background(), internal.Endpoint{Address: addr, Password: "secret"}, opts)
	elapsed := time.Since(start)

	var ce *internal.ConnectionError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, 2, ce.Attempts)
	assert.True(t, errors.Is(err, internal.ErrRequestTimeout))
	// each attempt waits out the handshake, well past the dial timeouts alone
	assert.GreaterOrEqual(t, elapsed, 120*time.Millisecond)
	assert.Greater(t, elapsed, opts.Backoff.MaxElapsed(2, opts.DialTimeout))

	srv := storetest.Start(t)
	srv.RequirePassword("secret")
	m := connect(t, internal.Endpoint{Address: srv.Addr(), Password: "secret"}, opts)
	assert.Equal(t, opts.Backoff.MaxElapsed(2, opts.DialTimeout+opts.Timeout), m.MaxReconnectElapsed())
	assert.LessOrEqual(t, elapsed, m.MaxReconnectElapsed()+100*time.Millisecond)
}

func TestConnectFailsWithConnectionError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = internal.Connect(context.Background(), internal.Endpoint{Address: addr}, internal.Options{
		MaxRetries: 2,
		Backoff:    internal.NewBackoff(time.Millisecond, time.Millisecond, 0),
	})
	var ce *internal.ConnectionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2, ce.Attempts)
}

func TestInFlightResetIsConnectionError(t *testing.T) {
	srv := storetest.Start(t)
	srv.MutePings(true)
	m := connect(t, internal.Endpoint{Address: srv.Addr()}, internal.Options{})

	call, err := m.Dispatch(context.Background(), get("k", ""))
	require.NoError(t, err)
	srv.DropConnections()
	_, err = call.Wait(context.Background())
	// the GET itself is answered before the drop or fails with a reset
	if err != nil {
		var ce *internal.ConnectionError
		assert.True(t, errors.As(err, &ce))
	}
}

func TestLivenessCheckMarksConnectionUnhealthy(t *testing.T) {
	srv := storetest.Start(t)
	reg := prometheus.NewRegistry()
	m := connect(t, internal.Endpoint{Address: srv.Addr(), PingInterval: 10 * time.Millisecond}, internal.Options{
		PingTimeout: 20 * time.Millisecond,
		Metrics:     internal.NewMetrics(reg),
	})
	require.Eventually(t, func() bool { return srv.Count("PING") >= 2 }, time.Second, time.Millisecond)
	assert.True(t, m.Healthy())

	srv.MutePings(true)
	require.Eventually(t, func() bool { return !m.Healthy() }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(reg, "metapipe_grid_ping_failures_total"), 1)

	// the next request redials
	srv.MutePings(false)
	_, err := m.Send(context.Background(), put("k", "", "v"))
	assert.NoError(t, err)
}

func TestCloseIsIdempotentUnderConcurrency(t *testing.T) {
	srv := storetest.Start(t)
	m, err := internal.Connect(context.Background(), internal.Endpoint{Address: srv.Addr(), PingInterval: time.Millisecond}, internal.Options{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Close()
		}()
	}
	wg.Wait()

	_, err = m.Send(context.Background(), get("k", ""))
	assert.True(t, errors.Is(err, internal.ErrClosed))
}
