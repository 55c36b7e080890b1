package xrecur

import (
	"context"
	"fmt"
	"os"
	"time"
)

// LockHandle 一次成功的加锁。每次 TryLock 返回独立的 handle，内含唯一 token，
// 只有持有该 token 的 handle 能解锁或续期。
type LockHandle interface {
	// Unlock 释放本次获取的锁。锁已过期或被接管时返回 [ErrLockNotHeld]。
	Unlock(ctx context.Context) error
	// Renew 把锁的有效期延长到 ttl。锁已丢失时返回 [ErrLockNotHeld]。
	Renew(ctx context.Context, ttl time.Duration) error
	// Key 锁 key。
	Key() string
}

// Locker 分布式锁，保证多副本下同一名称的尝试不会并发执行。
//
// TryLock 非阻塞：
//   - (handle, nil) 获取成功
//   - (nil, nil) 锁被其他持有者占用，属于正常情况
//   - (nil, err) 锁服务异常
//
// 同一 token 也不可重入。
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

// LockerHealthChecker Locker 可选实现，用于健康检查。
type LockerHealthChecker interface {
	Health(ctx context.Context) error
}

// NoopLocker 总是加锁成功，用于单副本部署。
func NoopLocker() Locker { return noopLocker{} }

type noopLocker struct{}

func (noopLocker) TryLock(_ context.Context, key string, _ time.Duration) (LockHandle, error) {
	return noopHandle(key), nil
}

type noopHandle string

func (noopHandle) Unlock(context.Context) error              { return nil }
func (noopHandle) Renew(context.Context, time.Duration) error { return nil }
func (h noopHandle) Key() string                             { return string(h) }

// defaultIdentity hostname:pid，用于锁 token 前缀便于排查。
func defaultIdentity() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

var (
	_ Locker     = noopLocker{}
	_ LockHandle = noopHandle("")
)
