package xrecur

import (
	"context"
	"time"
)

// execution 在途尝试的句柄。done 在尝试结束时关闭一次，用于广播给所有等待者。
type execution struct {
	info AttemptInfo
	done chan struct{}
}

// beginLocked 创建句柄并在新 goroutine 中执行尝试。调用方持有 s.mu 且 s.current == nil。
// scheduledAt 为零值时取当前时间。
func (s *Scheduler) beginLocked(kind AttemptKind, scheduledAt time.Time) *execution {
	now := s.opts.clock.Now()
	at := scheduledAt
	if at.IsZero() {
		at = now
	}
	exec := &execution{
		info: AttemptInfo{
			ID:          s.opts.newID(),
			Name:        s.opts.name,
			Kind:        kind,
			Session:     s.session,
			ScheduledAt: at,
			StartedAt:   now,
		},
		done: make(chan struct{}),
	}
	s.current = exec
	s.stats.recordBegin(kind, now)
	go s.runAttempt(exec)
	return exec
}

// settle 清空句柄并唤醒等待者。
func (s *Scheduler) settle(exec *execution) {
	s.mu.Lock()
	if s.current == exec {
		s.current = nil
	}
	close(exec.done)
	s.mu.Unlock()
}

// AwaitCurrent 等待当前在途尝试结束；没有在途尝试时立即返回 nil。
//
// 只等待调用时刻的那一次尝试，不关心其成败；ctx 结束时返回 ctx.Err()。
func (s *Scheduler) AwaitCurrent(ctx context.Context) error {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil {
		return nil
	}
	return wait(ctx, cur.done)
}

// IsExecuting 是否有尚未结束的尝试。
func (s *Scheduler) IsExecuting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Current 返回在途尝试的元数据。
func (s *Scheduler) Current() (AttemptInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return AttemptInfo{}, false
	}
	return s.current.info, true
}

func wait(ctx context.Context, ch <-chan struct{}) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
