package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const EnvPrefix = "GRID_"

// FromEnv builds a Value from GRID_* environment variables after loading
// the given .env files (".env" when none are named). Missing files are not
// an error; variables already set in the environment win over the files.
func FromEnv(files ...string) (*Value, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	v := &Value{
		Address:  os.Getenv(EnvPrefix + "ADDRESS"),
		Username: os.Getenv(EnvPrefix + "USERNAME"),
		Password: os.Getenv(EnvPrefix + "PASSWORD"),
	}
	if shards := os.Getenv(EnvPrefix + "SHARDS"); shards != "" {
		for _, s := range strings.Split(shards, ",") {
			if s = strings.TrimSpace(s); s != "" {
				v.Shards = append(v.Shards, s)
			}
		}
	}
	for name, dst := range map[string]*int{
		"PING_CONNECTION_INTERVAL": &v.PingConnectionInterval,
		"DATABASE":                 &v.Database,
		"TIMEOUT_MS":               &v.TimeoutMs,
		"MAX_OUTSTANDING_REQUESTS": &v.MaxOutstandingRequests,
		"MAX_RETRIES":              &v.MaxRetries,
		"BACKOFF_BASE_MS":          &v.BackoffBaseMs,
		"BACKOFF_MAX_MS":           &v.BackoffMaxMs,
	} {
		raw := os.Getenv(EnvPrefix + name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s%s=%q is not an integer", ErrInvalid, EnvPrefix, name, raw)
		}
		*dst = n
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}
