package xrecur

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// HealthStatus 健康状态。
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck 健康检查结果，可直接序列化为 JSON。
type HealthCheck struct {
	Name        string         `json:"name"`
	Status      HealthStatus   `json:"status"`
	State       Status         `json:"state"`
	Executing   bool           `json:"executing"`
	Current     *AttemptInfo   `json:"current,omitempty"`
	FailureRate float64        `json:"failure_rate"`
	Executions  int64          `json:"executions"`
	LastError   string         `json:"last_error,omitempty"`
	Message     string         `json:"message,omitempty"`
	CheckedAt   time.Time      `json:"checked_at"`
	Details     map[string]any `json:"details,omitempty"`
}

// HealthOption 健康检查选项。
type HealthOption func(*healthOptions)

type healthOptions struct {
	failureThreshold float64
	minExecutions    int64
	stallAfter       time.Duration
	checkLocker      bool
}

// WithFailureThreshold 失败率超过该值时为 degraded，取值 [0,1]，默认 0.5。
func WithFailureThreshold(v float64) HealthOption {
	return func(o *healthOptions) {
		if v >= 0 && v <= 1 {
			o.failureThreshold = v
		}
	}
}

// WithMinExecutions 执行次数达到该值后才评估失败率，默认 10。
func WithMinExecutions(n int64) HealthOption {
	return func(o *healthOptions) {
		if n >= 0 {
			o.minExecutions = n
		}
	}
}

// WithStallThreshold 在途尝试运行超过 d 时为 degraded。默认 0，不检查。
func WithStallThreshold(d time.Duration) HealthOption {
	return func(o *healthOptions) {
		if d >= 0 {
			o.stallAfter = d
		}
	}
}

// WithoutLockerCheck 跳过 Locker 健康检查。
func WithoutLockerCheck() HealthOption {
	return func(o *healthOptions) {
		o.checkLocker = false
	}
}

// Health 评估调度器健康状态：
//   - unhealthy：Inactive，或 Locker 健康检查失败
//   - degraded：Terminating、失败率超过阈值或在途尝试疑似卡住
//   - 其余为 healthy
func (s *Scheduler) Health(ctx context.Context, opts ...HealthOption) *HealthCheck {
	o := &healthOptions{failureThreshold: 0.5, minExecutions: 10, checkLocker: true}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	now := s.opts.clock.Now()
	state := s.Status()
	cur, executing := s.Current()
	st := s.stats

	hc := &HealthCheck{
		Name:        s.opts.name,
		Status:      HealthHealthy,
		State:       state,
		Executing:   executing,
		FailureRate: st.FailureRate(),
		Executions:  st.Executions(),
		CheckedAt:   now,
		Details: map[string]any{
			"skipped_ticks": st.SkippedTicks(),
			"lock_skips":    st.LockSkips(),
			"avg_duration":  st.AvgDuration().String(),
			"max_duration":  st.MaxDuration().String(),
		},
	}
	if executing {
		hc.Current = &cur
	}
	if err := st.LastError(); err != nil {
		hc.LastError = err.Error()
	}

	var msgs []string
	degrade := func(msg string) {
		if hc.Status == HealthHealthy {
			hc.Status = HealthDegraded
		}
		msgs = append(msgs, msg)
	}
	fail := func(msg string) {
		hc.Status = HealthUnhealthy
		msgs = append(msgs, msg)
	}

	switch state {
	case StatusInactive:
		fail("scheduler is not running")
	case StatusTerminating:
		degrade("scheduler is terminating")
	}

	if hc.Executions >= o.minExecutions && hc.Executions > 0 && hc.FailureRate > o.failureThreshold {
		degrade(fmt.Sprintf("high failure rate: %.1f%% (threshold %.1f%%)", hc.FailureRate*100, o.failureThreshold*100))
	}

	if executing && o.stallAfter > 0 {
		if running := now.Sub(cur.StartedAt); running > o.stallAfter {
			degrade(fmt.Sprintf("attempt %s running for %s", cur.ID, running))
		}
	}

	if o.checkLocker {
		if checker, ok := s.opts.locker.(LockerHealthChecker); ok {
			if err := checker.Health(ctx); err != nil {
				hc.Details["locker_error"] = err.Error()
				fail(fmt.Sprintf("locker unhealthy: %v", err))
			}
		}
	}

	hc.Message = strings.Join(msgs, "; ")
	return hc
}
