// Package config holds the startup configuration of a grid client: where
// the store lives and how often its connections are probed.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Value contains all config info
type Value struct {
	Address                string   `toml:"address"`
	PingConnectionInterval int      `toml:"ping_connection_interval"`
	Shards                 []string `toml:"shards"`
	Username               string   `toml:"username"`
	Password               string   `toml:"password"`
	Database               int      `toml:"database"`
	TimeoutMs              int      `toml:"timeout_ms"`
	MaxOutstandingRequests int      `toml:"max_outstanding_requests"`
	MaxRetries             int      `toml:"max_retries"`
	BackoffBaseMs          int      `toml:"backoff_base_ms"`
	BackoffMaxMs           int      `toml:"backoff_max_ms"`
}

// Address is a parsed store address.
type Address struct {
	HostPort string
	Username string
	Password string
	Database int
}

var ErrInvalid = errors.New("invalid config")

// Validate checks the value and reports the first problem found.
func (v *Value) Validate() error {
	if v.Address == "" && len(v.Shards) == 0 {
		return fmt.Errorf("%w: address is required", ErrInvalid)
	}
	if v.PingConnectionInterval < 0 {
		return fmt.Errorf("%w: ping_connection_interval must not be negative", ErrInvalid)
	}
	for _, n := range []struct {
		name string
		val  int
	}{
		{"database", v.Database},
		{"timeout_ms", v.TimeoutMs},
		{"max_outstanding_requests", v.MaxOutstandingRequests},
		{"max_retries", v.MaxRetries},
		{"backoff_base_ms", v.BackoffBaseMs},
		{"backoff_max_ms", v.BackoffMaxMs},
	} {
		if n.val < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalid, n.name)
		}
	}
	_, err := v.Addresses()
	return err
}

// Addresses returns the parsed shard addresses, or the single address when
// no shards are configured. Credentials and database from the URL win over
// the top-level fields.
func (v *Value) Addresses() ([]Address, error) {
	raw := v.Shards
	if len(raw) == 0 {
		raw = []string{v.Address}
	}
	out := make([]Address, 0, len(raw))
	for _, r := range raw {
		a, err := ParseAddress(r)
		if err != nil {
			return nil, err
		}
		if a.Username == "" {
			a.Username = v.Username
		}
		if a.Password == "" {
			a.Password = v.Password
		}
		if a.Database == 0 {
			a.Database = v.Database
		}
		out = append(out, a)
	}
	return out, nil
}

func (v *Value) PingInterval() time.Duration {
	return time.Duration(v.PingConnectionInterval) * time.Second
}

func (v *Value) Timeout() time.Duration {
	return time.Duration(v.TimeoutMs) * time.Millisecond
}

func (v *Value) BackoffBase() time.Duration {
	return time.Duration(v.BackoffBaseMs) * time.Millisecond
}

func (v *Value) BackoffMax() time.Duration {
	return time.Duration(v.BackoffMaxMs) * time.Millisecond
}

// ParseAddress accepts host:port or redis://[user:pass@]host:port[/db].
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, fmt.Errorf("%w: empty address", ErrInvalid)
	}
	if !strings.Contains(s, "://") {
		if _, _, err := net.SplitHostPort(s); err != nil {
			return Address{}, fmt.Errorf("%w: address %q: %v", ErrInvalid, s, err)
		}
		return Address{HostPort: s}, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: address %q: %v", ErrInvalid, s, err)
	}
	if u.Scheme != "redis" {
		return Address{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalid, u.Scheme)
	}
	a := Address{HostPort: u.Host}
	if u.Port() == "" {
		a.HostPort = net.JoinHostPort(u.Hostname(), "6379")
	}
	if u.User != nil {
		a.Username = u.User.Username()
		a.Password, _ = u.User.Password()
	}
	if db := strings.Trim(u.Path, "/"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil || n < 0 {
			return Address{}, fmt.Errorf("%w: bad database %q", ErrInvalid, db)
		}
		a.Database = n
	}
	return a, nil
}
