package xrecur_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omeyang/xrecur/pkg/lifecycle/xrecur"
	"github.com/omeyang/xrecur/pkg/observability/xlog"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	waitFor = 5 * time.Second
	tick    = time.Millisecond
)

// probe 记录每次尝试，gated 时阻塞到 release 或 unblock。
type probe struct {
	gate chan struct{}
	quit chan struct{}
	err  error

	once   sync.Once
	mu     sync.Mutex
	infos  []xrecur.AttemptInfo
	active atomic.Int32
	peak   atomic.Int32
}

func newProbe(gated bool) *probe {
	p := &probe{quit: make(chan struct{})}
	if gated {
		p.gate = make(chan struct{})
	}
	return p
}

func (p *probe) Run(ctx context.Context) error {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}

	info, _ := xrecur.AttemptFromContext(ctx)
	p.mu.Lock()
	p.infos = append(p.infos, info)
	p.mu.Unlock()

	if p.gate != nil {
		select {
		case <-p.gate:
		case <-p.quit:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.err
}

// release 放行一个正在等待的尝试。
func (p *probe) release(t *testing.T) {
	t.Helper()
	select {
	case p.gate <- struct{}{}:
	case <-time.After(waitFor):
		t.Fatal("no attempt is waiting on the gate")
	}
}

func (p *probe) unblock() { p.once.Do(func() { close(p.quit) }) }

func (p *probe) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.infos)
}

func (p *probe) attempts() []xrecur.AttemptInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]xrecur.AttemptInfo(nil), p.infos...)
}

// newScheduler 创建静默日志的调度器，测试结束时停止它。
func newScheduler(t *testing.T, task xrecur.Task, cfg xrecur.Config, opts ...xrecur.Option) *xrecur.Scheduler {
	t.Helper()
	all := append([]xrecur.Option{xrecur.WithLogger(xlog.Discard())}, opts...)
	s, err := xrecur.New(task, cfg, all...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if p, ok := task.(*probe); ok {
			p.unblock()
		}
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_, err := s.Stop(ctx)
		require.NoError(t, err)
		require.NoError(t, s.AwaitCurrent(ctx))
	})
	return s
}

type stopResult struct {
	ok  bool
	err error
}

func stopAsync(ctx context.Context, s *xrecur.Scheduler, opts ...xrecur.StopOption) <-chan stopResult {
	ch := make(chan stopResult, 1)
	go func() {
		ok, err := s.Stop(ctx, opts...)
		ch <- stopResult{ok: ok, err: err}
	}()
	return ch
}

func startAsync(ctx context.Context, s *xrecur.Scheduler) <-chan stopResult {
	ch := make(chan stopResult, 1)
	go func() {
		ok, err := s.Start(ctx)
		ch <- stopResult{ok: ok, err: err}
	}()
	return ch
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for result")
		var zero T
		return zero
	}
}

func waitStatus(t *testing.T, s *xrecur.Scheduler, want xrecur.Status) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Status() == want }, waitFor, tick)
}

// manualTrigger 由测试直接调用 fire，记录所有会话的回调。
type manualTrigger struct {
	mu       sync.Mutex
	fires    []func(time.Time)
	disarmed int
}

func (m *manualTrigger) Arm(_ time.Duration, fire func(time.Time)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fires = append(m.fires, fire)
	return func() {
		m.mu.Lock()
		m.disarmed++
		m.mu.Unlock()
	}
}

func (m *manualTrigger) fire(i int, at time.Time) {
	m.mu.Lock()
	f := m.fires[i]
	m.mu.Unlock()
	f(at)
}

func (m *manualTrigger) disarms() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disarmed
}

func noopTask() xrecur.Task {
	return xrecur.TaskFunc(func(context.Context) error { return nil })
}
