//go:build integration

package xrecur_test

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/omeyang/xrecur/pkg/lifecycle/xrecur"
)

// setupRedis 启动 Redis 容器；设置 XRECUR_REDIS_ADDR 时直接使用外部 Redis。
func setupRedis(t *testing.T) redis.UniversalClient {
	t.Helper()

	if addr := os.Getenv("XRECUR_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			t.Skipf("无法连接到 Redis %s: %v", addr, err)
		}
		t.Cleanup(func() { _ = client.Close() })
		return client
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLockerIntegration_LockLifecycle(t *testing.T) {
	client := setupRedis(t)
	locker := xrecur.NewRedisLocker(client, xrecur.WithRedisKeyPrefix(fmt.Sprintf("it:%d:", time.Now().UnixNano())))
	ctx := context.Background()

	h, err := locker.TryLock(ctx, "job", 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, h)

	again, err := locker.TryLock(ctx, "job", 2*time.Second)
	require.NoError(t, err)
	assert.Nil(t, again)

	require.NoError(t, h.Renew(ctx, 5*time.Second))
	ttl, err := client.PTTL(ctx, h.Key()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 2*time.Second)

	require.NoError(t, h.Unlock(ctx))
	assert.ErrorIs(t, h.Unlock(ctx), xrecur.ErrLockNotHeld)
	require.NoError(t, locker.Health(ctx))
}

// 三个副本共享同一把锁，任何时刻最多一个在执行。
func TestRedisLockerIntegration_Replicas(t *testing.T) {
	client := setupRedis(t)
	locker := xrecur.NewRedisLocker(client, xrecur.WithRedisKeyPrefix(fmt.Sprintf("it:%d:", time.Now().UnixNano())))

	var running, peak, runs atomic.Int32
	task := xrecur.TaskFunc(func(context.Context) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		runs.Add(1)
		time.Sleep(30 * time.Millisecond)
		return nil
	})

	cfg := xrecur.Config{Interval: 50 * time.Millisecond, ImmediateFirstRun: true}
	ctx := context.Background()
	var replicas []*xrecur.Scheduler
	for range 3 {
		s := newScheduler(t, task, cfg, xrecur.WithName("replicated"), xrecur.WithLocker(locker))
		_, err := s.Start(ctx)
		require.NoError(t, err)
		replicas = append(replicas, s)
	}

	require.Eventually(t, func() bool { return runs.Load() >= 5 }, 10*time.Second, 10*time.Millisecond)
	for _, s := range replicas {
		_, err := s.Stop(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), peak.Load())

	var skips int64
	for _, s := range replicas {
		skips += s.Stats().LockSkips()
	}
	assert.Positive(t, skips)
}
