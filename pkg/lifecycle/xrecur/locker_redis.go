package xrecur

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// resizeScript 以不同于加锁时的 TTL 续期，仅持有者可操作。
var resizeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker 基于 redsync 的 Redis 锁。
//
//	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	s, _ := xrecur.New(task, cfg, xrecur.WithName("report"), xrecur.WithLocker(xrecur.NewRedisLocker(client)))
type RedisLocker struct {
	client   redis.UniversalClient
	rs       *redsync.Redsync
	prefix   string
	identity string
}

// RedisLockerOption RedisLocker 选项。
type RedisLockerOption func(*RedisLocker)

// WithRedisKeyPrefix 锁 key 前缀，默认 "xrecur:lock:"。
func WithRedisKeyPrefix(prefix string) RedisLockerOption {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

// WithRedisIdentity 实例标识，作为锁 token 前缀，默认 hostname:pid。
func WithRedisIdentity(identity string) RedisLockerOption {
	return func(l *RedisLocker) {
		if identity != "" {
			l.identity = identity
		}
	}
}

// NewRedisLocker 创建 RedisLocker。client 为 nil 时 panic。
func NewRedisLocker(client redis.UniversalClient, opts ...RedisLockerOption) *RedisLocker {
	if client == nil {
		panic("xrecur: redis client cannot be nil")
	}
	l := &RedisLocker{
		client:   client,
		rs:       redsync.New([]rsredis.Pool{goredis.NewPool(client)}...),
		prefix:   "xrecur:lock:",
		identity: defaultIdentity(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// TryLock 实现 Locker，只尝试一次。
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	fullKey := l.prefix + key
	token := l.identity + ":" + uuid.NewString()
	m := l.rs.NewMutex(fullKey,
		redsync.WithExpiry(ttl),
		redsync.WithTries(1),
		redsync.WithGenValueFunc(func() (string, error) { return token, nil }),
	)
	if err := m.TryLockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
	return &redisHandle{locker: l, mutex: m, key: fullKey, ttl: ttl}, nil
}

// Health 实现 LockerHealthChecker。
func (l *RedisLocker) Health(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
	return nil
}

// Client 底层 Redis 客户端。
func (l *RedisLocker) Client() redis.UniversalClient { return l.client }

type redisHandle struct {
	locker *RedisLocker
	mutex  *redsync.Mutex
	key    string
	ttl    time.Duration
}

func (h *redisHandle) Unlock(ctx context.Context) error {
	ok, err := h.mutex.UnlockContext(ctx)
	return redisResult(ok, err)
}

func (h *redisHandle) Renew(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if ttl == h.ttl {
		ok, err := h.mutex.ExtendContext(ctx)
		return redisResult(ok, err)
	}
	n, err := resizeScript.Run(ctx, h.locker.client, []string{h.key}, h.mutex.Value(), ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (h *redisHandle) Key() string { return h.key }

func redisResult(ok bool, err error) error {
	if err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrLockAlreadyExpired) || errors.Is(err, redsync.ErrExtendFailed) || errors.As(err, &taken) {
			return fmt.Errorf("%w: %w", ErrLockNotHeld, err)
		}
		return fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
	if !ok {
		return ErrLockNotHeld
	}
	return nil
}

var (
	_ Locker              = (*RedisLocker)(nil)
	_ LockerHealthChecker = (*RedisLocker)(nil)
	_ LockHandle          = (*redisHandle)(nil)
)
