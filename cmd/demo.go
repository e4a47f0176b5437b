package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	client "github.com/jsp-lqk/metapipe-grid"
	"github.com/jsp-lqk/metapipe-grid/codec"
	"github.com/jsp-lqk/metapipe-grid/config"
)

const (
	prefixKey = "users"
	evictTTL  = 10 * time.Second
)

type User struct {
	ID   int64  `json:"id" bson:"id"`
	Name string `json:"name" bson:"name"`
	Age  int    `json:"age" bson:"age"`
}

func (u User) String() string {
	return fmt.Sprintf("User{id=%d, name=%s, age=%d}", u.ID, u.Name, u.Age)
}

func runDemo(ctx context.Context, cfg *config.Value, f flags, logger *slog.Logger) error {
	cd, err := codec.Lookup(f.codec)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	if f.metricsAddr != "" {
		stop := serveMetrics(f.metricsAddr, reg, logger)
		defer stop()
	}

	return client.Use(ctx, cfg, func(ctx context.Context, c *client.Client) error {
		return scenario(ctx, c, logger)
	}, client.WithLogger(logger), client.WithDefaultCodec(cd), client.WithRegisterer(reg))
}

func scenario(ctx context.Context, c *client.Client, logger *slog.Logger) error {
	// Hash
	users1, err := client.OpenMap[User](c, client.NewKey(prefixKey, "1"))
	if err != nil {
		return err
	}
	if err := users1.Put(ctx, "1", User{ID: 1, Name: "An1", Age: 21}); err != nil {
		return err
	}
	u, ok, err := users1.Get(ctx, "1")
	if err != nil {
		return err
	}
	report(logger, users1.Key(), u, ok)

	// Hash eviction after 10 seconds
	users2, err := client.OpenMapCache[User](c, client.NewKey(prefixKey, "2"))
	if err != nil {
		return err
	}
	if err := users2.Put(ctx, "2", User{ID: 2, Name: "An2", Age: 21}, evictTTL); err != nil {
		return err
	}
	u, ok, err = users2.Get(ctx, "2")
	if err != nil {
		return err
	}
	report(logger, users2.Key(), u, ok)

	// Value
	users3, err := client.OpenBucket[User](c, client.NewKey(prefixKey, "3"))
	if err != nil {
		return err
	}
	if err := users3.Put(ctx, User{ID: 3, Name: "An3", Age: 21}); err != nil {
		return err
	}
	u, ok, err = users3.Get(ctx)
	if err != nil {
		return err
	}
	report(logger, users3.Key(), u, ok)

	// Value eviction after 10 seconds
	users4, err := client.OpenBucketCache[User](c, client.NewKey(prefixKey, "4"))
	if err != nil {
		return err
	}
	if err := users4.Put(ctx, User{ID: 4, Name: "An3", Age: 21}, evictTTL); err != nil {
		return err
	}
	u, ok, err = users4.Get(ctx)
	if err != nil {
		return err
	}
	report(logger, users4.Key(), u, ok)
	return nil
}

func report(logger *slog.Logger, key string, u User, found bool) {
	if !found {
		logger.Info("not found", "key", key)
		return
	}
	logger.Info("read", "key", key, "user", u.String())
}
