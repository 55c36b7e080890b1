package xrecur

import (
	"context"
	"time"
)

// Task 被周期调用的任务。
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc 函数适配为 Task。
type TaskFunc func(ctx context.Context) error

// Run 实现 Task。
func (f TaskFunc) Run(ctx context.Context) error { return f(ctx) }

// ErrorHandler 接收失败尝试的错误。
type ErrorHandler func(err error)

// Status 调度器生命周期状态。
type Status int32

const (
	StatusInactive Status = iota
	StatusActive
	StatusTerminating
)

func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusActive:
		return "active"
	case StatusTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// MarshalText 以小写文本输出，便于 JSON 状态接口。
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AttemptKind 尝试的来源。
type AttemptKind uint8

const (
	// AttemptImmediate Start 时的立即执行。
	AttemptImmediate AttemptKind = iota
	// AttemptScheduled 定时器 tick 触发。
	AttemptScheduled
	// AttemptFinal Stop(WithFinalRun) 触发的最终执行。
	AttemptFinal
)

func (k AttemptKind) String() string {
	switch k {
	case AttemptImmediate:
		return "immediate"
	case AttemptScheduled:
		return "scheduled"
	case AttemptFinal:
		return "final"
	default:
		return "unknown"
	}
}

// MarshalText 以小写文本输出。
func (k AttemptKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// AttemptInfo 一次尝试的元数据，可在任务内通过 [AttemptFromContext] 读取。
type AttemptInfo struct {
	// ID 尝试的唯一标识（UUID）。
	ID string `json:"id"`
	// Name 调度器名称。
	Name string `json:"name"`
	// Kind 触发来源。
	Kind AttemptKind `json:"kind"`
	// Session 所属的 Start/Stop 会话序号，从 1 开始。
	Session uint64 `json:"session"`
	// ScheduledAt 计划时间：tick 时间，立即/最终执行时与 StartedAt 相同。
	ScheduledAt time.Time `json:"scheduled_at"`
	// StartedAt 实际开始时间（调度器时钟）。
	StartedAt time.Time `json:"started_at"`
}

type attemptKey struct{}

func withAttempt(ctx context.Context, info AttemptInfo) context.Context {
	return context.WithValue(ctx, attemptKey{}, info)
}

// AttemptFromContext 返回 ctx 所属尝试的元数据。
func AttemptFromContext(ctx context.Context) (AttemptInfo, bool) {
	if ctx == nil {
		return AttemptInfo{}, false
	}
	info, ok := ctx.Value(attemptKey{}).(AttemptInfo)
	return info, ok
}

// Hook 尝试生命周期钩子。
//
// BeforeAttempt 按注册顺序调用，可返回派生 ctx；AfterAttempt 逆序调用，
// 类似 defer。lock skipped 的尝试不会触发钩子。
type Hook interface {
	BeforeAttempt(ctx context.Context, info AttemptInfo) context.Context
	AfterAttempt(ctx context.Context, info AttemptInfo, duration time.Duration, err error)
}

// HookFunc 只关心结束事件的钩子。
type HookFunc func(ctx context.Context, info AttemptInfo, duration time.Duration, err error)

// BeforeAttempt 原样返回 ctx。
func (f HookFunc) BeforeAttempt(ctx context.Context, _ AttemptInfo) context.Context { return ctx }

// AfterAttempt 调用 f。
func (f HookFunc) AfterAttempt(ctx context.Context, info AttemptInfo, d time.Duration, err error) {
	f(ctx, info, d, err)
}
