package xrecur

import (
	"encoding/json"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Stats 调度统计，并发安全。
type Stats struct {
	ticks        atomic.Int64
	skippedTicks atomic.Int64
	lockSkips    atomic.Int64
	lockErrors   atomic.Int64

	immediate atomic.Int64
	scheduled atomic.Int64
	final     atomic.Int64

	successes atomic.Int64
	failures  atomic.Int64
	panics    atomic.Int64

	totalDuration atomic.Int64
	minDuration   atomic.Int64
	maxDuration   atomic.Int64

	mu           sync.RWMutex
	lastStart    time.Time
	lastDuration time.Duration
	lastError    error
}

func newStats() *Stats {
	s := &Stats{}
	s.minDuration.Store(math.MaxInt64)
	return s
}

// Ticks 会话内被处理的 tick 数（含被丢弃的）。
func (s *Stats) Ticks() int64 { return s.ticks.Load() }

// SkippedTicks 因上一次尝试未结束而丢弃的 tick 数。
func (s *Stats) SkippedTicks() int64 { return s.skippedTicks.Load() }

// LockSkips 因锁被其他持有者占用或锁服务异常而跳过的尝试数。
func (s *Stats) LockSkips() int64 { return s.lockSkips.Load() }

// LockErrors 锁服务异常次数（包含在 LockSkips 中）。
func (s *Stats) LockErrors() int64 { return s.lockErrors.Load() }

// Attempts 开始过的尝试总数（含 lock skipped）。
func (s *Stats) Attempts() int64 {
	return s.immediate.Load() + s.scheduled.Load() + s.final.Load()
}

// AttemptsByKind 按来源统计的尝试数。
func (s *Stats) AttemptsByKind(kind AttemptKind) int64 {
	switch kind {
	case AttemptImmediate:
		return s.immediate.Load()
	case AttemptScheduled:
		return s.scheduled.Load()
	case AttemptFinal:
		return s.final.Load()
	default:
		return 0
	}
}

// Executions 实际调用了任务的尝试数。
func (s *Stats) Executions() int64 { return s.successes.Load() + s.failures.Load() }

// Successes 成功次数。
func (s *Stats) Successes() int64 { return s.successes.Load() }

// Failures 失败次数（含 panic）。
func (s *Stats) Failures() int64 { return s.failures.Load() }

// Panics 任务 panic 次数。
func (s *Stats) Panics() int64 { return s.panics.Load() }

// FailureRate 失败率（0-1），无执行时为 0。
func (s *Stats) FailureRate() float64 {
	n := s.Executions()
	if n == 0 {
		return 0
	}
	return float64(s.failures.Load()) / float64(n)
}

// MinDuration 最短执行时长，无执行时为 0。
func (s *Stats) MinDuration() time.Duration {
	v := s.minDuration.Load()
	if v == math.MaxInt64 {
		return 0
	}
	return time.Duration(v)
}

// MaxDuration 最长执行时长。
func (s *Stats) MaxDuration() time.Duration { return time.Duration(s.maxDuration.Load()) }

// AvgDuration 平均执行时长。
func (s *Stats) AvgDuration() time.Duration {
	n := s.Executions()
	if n == 0 {
		return 0
	}
	return time.Duration(s.totalDuration.Load() / n)
}

// LastDuration 最近一次执行时长。
func (s *Stats) LastDuration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastDuration
}

// LastError 最近一次执行的错误，成功后清空。
func (s *Stats) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// LastStart 最近一次尝试开始时间。
func (s *Stats) LastStart() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStart
}

func (s *Stats) recordTick(skipped bool) {
	s.ticks.Add(1)
	if skipped {
		s.skippedTicks.Add(1)
	}
}

func (s *Stats) recordBegin(kind AttemptKind, at time.Time) {
	switch kind {
	case AttemptImmediate:
		s.immediate.Add(1)
	case AttemptScheduled:
		s.scheduled.Add(1)
	case AttemptFinal:
		s.final.Add(1)
	}
	s.mu.Lock()
	s.lastStart = at
	s.mu.Unlock()
}

func (s *Stats) recordLockSkip(err error) {
	s.lockSkips.Add(1)
	if err != nil {
		s.lockErrors.Add(1)
	}
}

func (s *Stats) recordResult(d time.Duration, err error) {
	ns := int64(d)
	s.totalDuration.Add(ns)
	if err != nil {
		s.failures.Add(1)
		var pe *PanicError
		if errors.As(err, &pe) {
			s.panics.Add(1)
		}
	} else {
		s.successes.Add(1)
	}
	for {
		old := s.minDuration.Load()
		if ns >= old || s.minDuration.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := s.maxDuration.Load()
		if ns <= old || s.maxDuration.CompareAndSwap(old, ns) {
			break
		}
	}
	s.mu.Lock()
	s.lastDuration = d
	s.lastError = err
	s.mu.Unlock()
}

// StatsSnapshot Stats 的 JSON 快照，时长单位为毫秒。
type StatsSnapshot struct {
	Ticks          int64     `json:"ticks"`
	SkippedTicks   int64     `json:"skipped_ticks"`
	Attempts       int64     `json:"attempts"`
	Immediate      int64     `json:"attempts_immediate"`
	Scheduled      int64     `json:"attempts_scheduled"`
	Final          int64     `json:"attempts_final"`
	LockSkips      int64     `json:"lock_skips"`
	LockErrors     int64     `json:"lock_errors"`
	Successes      int64     `json:"successes"`
	Failures       int64     `json:"failures"`
	Panics         int64     `json:"panics"`
	FailureRate    float64   `json:"failure_rate"`
	MinDurationMS  float64   `json:"min_duration_ms"`
	MaxDurationMS  float64   `json:"max_duration_ms"`
	AvgDurationMS  float64   `json:"avg_duration_ms"`
	LastDurationMS float64   `json:"last_duration_ms"`
	LastStart      time.Time `json:"last_start,omitzero"`
	LastError      string    `json:"last_error,omitempty"`
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// Snapshot 返回当前统计的快照。各字段分别读取，彼此之间不保证原子一致。
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Ticks:          s.Ticks(),
		SkippedTicks:   s.SkippedTicks(),
		Attempts:       s.Attempts(),
		Immediate:      s.immediate.Load(),
		Scheduled:      s.scheduled.Load(),
		Final:          s.final.Load(),
		LockSkips:      s.LockSkips(),
		LockErrors:     s.LockErrors(),
		Successes:      s.Successes(),
		Failures:       s.Failures(),
		Panics:         s.Panics(),
		FailureRate:    s.FailureRate(),
		MinDurationMS:  ms(s.MinDuration()),
		MaxDurationMS:  ms(s.MaxDuration()),
		AvgDurationMS:  ms(s.AvgDuration()),
		LastDurationMS: ms(s.LastDuration()),
		LastStart:      s.LastStart(),
	}
	if err := s.LastError(); err != nil {
		snap.LastError = err.Error()
	}
	return snap
}

// MarshalJSON 输出 Snapshot。
func (s *Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}
