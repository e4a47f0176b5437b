//go:build integration

package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setup(t *testing.T) (context.Context, testcontainers.Container, string) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:latest",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
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

	port, err := redisContainer.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatal(err)
	}

	return ctx, redisContainer, fmt.Sprintf("%s:%d", host, port.Int())
}

func TestCollectionsAgainstStore(t *testing.T) {
	ctx, redisContainer, addr := setup(t)
	defer redisContainer.Terminate(ctx)

	mapsAndBuckets(t, addr)
	expiringEntries(t, addr)
	remoteTypeConflict(t, addr)
	triggerMaxOutstanding(t, addr)
	triggerTimeout(t, addr)
}

func mapsAndBuckets(t *testing.T, addr string) {
	ctx := context.Background()
	c, err := DefaultClient(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Shutdown()

	m, err := OpenMap[string](c, "it:map")
	if err != nil {
		t.Fatal(err)
	}

	// get - not found
	_, ok, err := m.Get(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	assert.False(t, ok, "Expected missing field")

	// put many
	for i := 0; i < 50; i++ {
		if err := m.Put(ctx, fmt.Sprintf("field-%d", i), fmt.Sprintf("value-%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	// get many
	for i := 0; i < 50; i++ {
		v, ok, err := m.Get(ctx, fmt.Sprintf("field-%d", i))
		if err != nil {
			t.Fatal(err)
		}
		assert.True(t, ok)
		assert.Equal(t, fmt.Sprintf("value-%d", i), v, "Unexpected response value")
	}

	deleted, err := m.Delete(ctx, "field-0")
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, deleted, "Expected field to be deleted")

	deleted, err = m.Delete(ctx, "field-0")
	if err != nil {
		t.Fatal(err)
	}
	assert.False(t, deleted, "Expected nothing to delete")

	b, err := OpenBucket[[]int](c, "it:bucket")
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Put(ctx, []int{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	v, ok, err := b.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, v)
}

func expiringEntries(t *testing.T, addr string) {
	ctx := context.Background()
	c, err := DefaultClient(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Shutdown()

	mc, err := OpenMapCache[string](c, "it:map-cache")
	if err != nil {
		t.Fatal(err)
	}
	bc, err := OpenBucketCache[string](c, "it:bucket-cache")
	if err != nil {
		t.Fatal(err)
	}

	if err := mc.Put(ctx, "f", "v", 200*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := bc.Put(ctx, "v", 200*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	_, ok, err := mc.Get(ctx, "f")
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, ok, "Expected live field")

	time.Sleep(300 * time.Millisecond)

	_, ok, err = mc.Get(ctx, "f")
	if err != nil {
		t.Fatal(err)
	}
	assert.False(t, ok, "Expected expired field")
	_, ok, err = bc.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	assert.False(t, ok, "Expected expired value")
}

func remoteTypeConflict(t *testing.T, addr string) {
	ctx := context.Background()
	writer, err := DefaultClient(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Shutdown()
	b, _ := OpenBucket[string](writer, "it:shared")
	if err := b.Put(ctx, "plain"); err != nil {
		t.Fatal(err)
	}

	// a second process has no local record of the key
	reader, err := DefaultClient(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Shutdown()
	m, _ := OpenMap[string](reader, "it:shared")
	_, _, err = m.Get(ctx, "f")
	var conflict *TypeConflictError
	assert.True(t, errors.As(err, &conflict), "Expected type conflict, got %v", err)
}

func triggerMaxOutstanding(t *testing.T, addr string) {
	ctx := context.Background()
	c, err := DefaultClient(ctx, addr, WithMaxOutstandingRequests(5))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Shutdown()
	m, _ := OpenMap[string](c, "it:overload")

	var wg sync.WaitGroup
	var maxHit atomic.Bool

	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := m.Put(ctx, fmt.Sprintf("key-%d", i), fmt.Sprintf("value-%d", i))
			if errors.Is(err, ErrConnectionOverloaded) {
				maxHit.Store(true)
			}
		}(i)
	}
	wg.Wait()
	assert.True(t, maxHit.Load(), "Expected to hit the max outstanding limit")
}

func triggerTimeout(t *testing.T, addr string) {
	ctx := context.Background()
	c, err := DefaultClient(ctx, addr, WithTimeout(time.Microsecond))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Shutdown()
	m, _ := OpenMap[string](c, "it:timeout")

	var wg sync.WaitGroup
	var timeoutHit atomic.Bool

	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := m.Put(ctx, fmt.Sprintf("key-%d", i), fmt.Sprintf("value-%d", i))
			if errors.Is(err, ErrRequestTimeout) {
				timeoutHit.Store(true)
			}
		}(i)
	}
	wg.Wait()
	assert.True(t, timeoutHit.Load(), "Expected to hit the timeout")
}
