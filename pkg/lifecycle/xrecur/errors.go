package xrecur

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInterval 间隔非正、不是整毫秒，或配置中的值不是整数。
	ErrInvalidInterval = errors.New("xrecur: invalid interval")

	// ErrInvalidImmediateFirstRun 配置中的 immediate_first_run 不是布尔值。
	ErrInvalidImmediateFirstRun = errors.New("xrecur: immediate_first_run must be a boolean")

	// ErrNilTask 任务为 nil。
	ErrNilTask = errors.New("xrecur: nil task")

	// ErrNilOption 传入了 nil Option。
	ErrNilOption = errors.New("xrecur: nil option")

	// ErrLockNotHeld 解锁或续期时锁已过期或被其他持有者接管。
	ErrLockNotHeld = errors.New("xrecur: lock not held")

	// ErrInvalidTTL 锁 TTL 非正。
	ErrInvalidTTL = errors.New("xrecur: lock ttl must be positive")

	// ErrLockUnavailable 锁服务不可用（连接失败等），区别于锁被他人持有。
	ErrLockUnavailable = errors.New("xrecur: lock service unavailable")
)

// PanicError 任务 panic 被恢复后交给 ErrorHandler 的错误。
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("xrecur: task panicked: %v", e.Value)
}

// Unwrap 当 panic 值本身是 error 时返回它。
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
