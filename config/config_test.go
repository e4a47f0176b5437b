package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTOML(t *testing.T) {
	v, err := Parse(`
address = "redis://127.0.0.1:6379"
ping_connection_interval = 5
timeout_ms = 250
`)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, v.PingInterval())
	assert.Equal(t, 250*time.Millisecond, v.Timeout())

	addrs, err := v.Addresses()
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, "127.0.0.1:6379", addrs[0].HostPort)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
shards = ["10.0.0.1:6379", "10.0.0.2:6379"]
password = "secret"
`), 0o600))

	v, err := Load(path)
	require.NoError(t, err)
	addrs, err := v.Addresses()
	require.NoError(t, err)
	require.Len(t, addrs, 2)
	assert.Equal(t, "10.0.0.2:6379", addrs[1].HostPort)
	assert.Equal(t, "secret", addrs[1].Password)
}

func TestValidate(t *testing.T) {
	_, err := Parse(`ping_connection_interval = 1`)
	assert.True(t, errors.Is(err, ErrInvalid))

	_, err = Parse(`
address = "localhost:6379"
ping_connection_interval = -1
`)
	assert.True(t, errors.Is(err, ErrInvalid))

	_, err = Parse(`address = "localhost"`)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in   string
		want Address
	}{
		{"localhost:6379", Address{HostPort: "localhost:6379"}},
		{"redis://127.0.0.1:6380", Address{HostPort: "127.0.0.1:6380"}},
		{"redis://cache.internal", Address{HostPort: "cache.internal:6379"}},
		{"redis://app:pw@10.0.0.1:6379/3", Address{HostPort: "10.0.0.1:6379", Username: "app", Password: "pw", Database: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "http://host:1", "redis://host:1/x", "nohostport"} {
		_, err := ParseAddress(bad)
		assert.Error(t, err, bad)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("GRID_ADDRESS", "redis://127.0.0.1:6379")
	t.Setenv("GRID_PING_CONNECTION_INTERVAL", "7")
	t.Setenv("GRID_MAX_RETRIES", "4")

	v, err := FromEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, v.PingInterval())
	assert.Equal(t, 4, v.MaxRetries)
}

func TestFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.env")
	require.NoError(t, os.WriteFile(path, []byte("GRID_ADDRESS=localhost:7000\nGRID_TIMEOUT_MS=100\n"), 0o600))
	t.Setenv("GRID_ADDRESS", "")
	os.Unsetenv("GRID_ADDRESS")
	t.Setenv("GRID_TIMEOUT_MS", "")
	os.Unsetenv("GRID_TIMEOUT_MS")

	v, err := FromEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:7000", v.Address)
	assert.Equal(t, 100*time.Millisecond, v.Timeout())
}

func TestFromEnvRejectsNonInteger(t *testing.T) {
	t.Setenv("GRID_ADDRESS", "localhost:6379")
	t.Setenv("GRID_DATABASE", "zero")
	_, err := FromEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.True(t, errors.Is(err, ErrInvalid))
}
