package internal

import (
	"io"
	"log/slog"
	"time"
)

const (
	DefaultTimeout                = 5 * time.Second
	DefaultDialTimeout            = 3 * time.Second
	DefaultPingTimeout            = 2 * time.Second
	DefaultMaxOutstandingRequests = 1000
	DefaultMaxRetries             = 3
)

// Options tunes a Manager and the connections it owns.
type Options struct {
	Timeout                time.Duration
	DialTimeout            time.Duration
	PingTimeout            time.Duration
	MaxOutstandingRequests int
	// MaxRetries is the number of dial attempts made by one redial.
	MaxRetries int
	Backoff    *Backoff
	Logger     *slog.Logger
	Metrics    *Metrics
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = DefaultPingTimeout
	}
	if o.MaxOutstandingRequests <= 0 {
		o.MaxOutstandingRequests = DefaultMaxOutstandingRequests
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.Backoff == nil {
		o.Backoff = NewBackoff(50*time.Millisecond, time.Second, 0)
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}
