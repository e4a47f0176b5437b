package client

import (
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jsp-lqk/metapipe-grid/codec"
	"github.com/jsp-lqk/metapipe-grid/config"
	"github.com/jsp-lqk/metapipe-grid/internal"
)

type options struct {
	codec         codec.Codec
	logger        *slog.Logger
	registerer    prometheus.Registerer
	now           func() time.Time
	sweepInterval time.Duration
	conn          internal.Options
}

// Option configures a Client.
type Option func(*options)

func defaultOptions() options {
	return options{
		codec:  codec.JSON,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
}

// WithDefaultCodec sets the codec handles use unless overridden per call.
func WithDefaultCodec(c codec.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegisterer registers the client's metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithClock sets the time source used for time-to-live deadlines.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSweepInterval starts a background sweep that deletes entries whose
// deadline passed from the store.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweepInterval = d }
}

// WithTimeout bounds how long a request waits for its reply.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.conn.Timeout = d }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.conn.DialTimeout = d }
}

func WithPingTimeout(d time.Duration) Option {
	return func(o *options) { o.conn.PingTimeout = d }
}

// WithMaxOutstandingRequests caps pipelined requests per connection.
func WithMaxOutstandingRequests(n int) Option {
	return func(o *options) { o.conn.MaxOutstandingRequests = n }
}

// WithRetry sets the redial policy: up to attempts dials, sleeping an
// exponentially growing delay between base and max, with jitter in [0, 1].
func WithRetry(attempts int, base, max time.Duration, jitter float64) Option {
	return func(o *options) {
		o.conn.MaxRetries = attempts
		o.conn.Backoff = internal.NewBackoff(base, max, jitter)
	}
}

func configOptions(v *config.Value) []Option {
	var opts []Option
	if v.TimeoutMs > 0 {
		opts = append(opts, WithTimeout(v.Timeout()))
	}
	if v.MaxOutstandingRequests > 0 {
		opts = append(opts, WithMaxOutstandingRequests(v.MaxOutstandingRequests))
	}
	if v.MaxRetries > 0 || v.BackoffBaseMs > 0 || v.BackoffMaxMs > 0 {
		opts = append(opts, WithRetry(v.MaxRetries, v.BackoffBase(), v.BackoffMax(), 0))
	}
	return opts
}
