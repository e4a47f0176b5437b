//go:build integration

package client

import (
	"context"
	"fmt"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func buildContainer(t *testing.T, port int) (context.Context, testcontainers.Container, string) {
	ctx := context.Background()

	portString := fmt.Sprintf("%d/tcp", port)

	req := testcontainers.ContainerRequest{
		Image:        "redis:latest",
		Cmd:          []string{"redis-server", "--port", fmt.Sprintf("%d", port)},
		ExposedPorts: []string{portString},
		WaitingFor:   wait.ForListeningPort(nat.Port(portString)),
	}
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatal(err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}

	mappedPort, err := redisContainer.MappedPort(ctx, nat.Port(portString))
	if err != nil {
		t.Fatal(err)
	}

	return ctx, redisContainer, fmt.Sprintf("%s:%d", host, mappedPort.Int())
}

func TestShardedCollections(t *testing.T) {
	targets := make([]Endpoint, 0, 5)
	for i := 0; i <= 4; i++ {
		ctx, c, addr := buildContainer(t, 6379+i)
		targets = append(targets, Endpoint{Address: addr})
		defer c.Terminate(ctx)
	}
	shardedTest(t, targets)
}

func shardedTest(t *testing.T, targets []Endpoint) {
	ctx := context.Background()
	c, err := ShardedClient(ctx, targets)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Shutdown()

	// put many, one bucket per key so the keys spread over the shards
	for i := 0; i < 50; i++ {
		b, err := OpenBucket[string](c, NewKey("sharded", fmt.Sprint(i)))
		if err != nil {
			t.Fatal(err)
		}
		if err := b.Put(ctx, fmt.Sprintf("value-%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	// get many
	for i := 0; i < 50; i++ {
		b, _ := OpenBucket[string](c, NewKey("sharded", fmt.Sprint(i)))
		v, ok, err := b.Get(ctx)
		if err != nil {
			t.Fatal(err)
		}
		assert.True(t, ok)
		assert.Equal(t, fmt.Sprintf("value-%d", i), v, "Unexpected response value")
	}
}
