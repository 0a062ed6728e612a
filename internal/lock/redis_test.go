package lock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	rdb, err := NewRedisClient(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	rdb := startRedis(t)
	a := NewRedisLocker(rdb, time.Minute)
	b := NewRedisLocker(rdb, time.Minute)

	release, err := a.Acquire(context.Background(), "doc-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = b.Acquire(ctx, "doc-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release2, err := b.Acquire(context.Background(), "doc-1")
	require.NoError(t, err)
	release2()
}

func TestRedisLockerReleaseOnlyOwnToken(t *testing.T) {
	rdb := startRedis(t)
	l := NewRedisLocker(rdb, time.Minute)
	release, err := l.Acquire(context.Background(), "doc-2")
	require.NoError(t, err)

	require.NoError(t, rdb.Set(context.Background(), redisKeyPrefix+"doc-2", "someone-else", time.Minute).Err())
	release()
	v, err := rdb.Get(context.Background(), redisKeyPrefix+"doc-2").Result()
	require.NoError(t, err)
	require.Equal(t, "someone-else", v)
}
