package xrecur_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/omeyang/xrecur/pkg/lifecycle/xrecur"
)

func TestLocker_HeldElsewhereSkipsAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	locker := NewMockLocker(ctrl)
	locker.EXPECT().TryLock(gomock.Any(), "job", 5*time.Minute).Return(nil, nil).Times(1)

	var handled atomic.Int32
	p := newProbe(false)
	s := newScheduler(t, p, xrecur.Config{Interval: time.Hour, ImmediateFirstRun: true},
		xrecur.WithClock(clockwork.NewFakeClockAt(t0)),
		xrecur.WithName("job"),
		xrecur.WithLocker(locker),
		xrecur.WithErrorHandler(func(error) { handled.Add(1) }),
	)

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.AwaitCurrent(context.Background()))

	st := s.Stats()
	assert.Zero(t, p.count())
	assert.Equal(t, int64(1), st.Attempts())
	assert.Equal(t, int64(1), st.LockSkips())
	assert.Zero(t, st.LockErrors())
	assert.Zero(t, st.Executions())
	assert.Zero(t, handled.Load(), "a skipped attempt is not a failure")
}

func TestLocker_ServiceErrorSkipsAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	locker := NewMockLocker(ctrl)
	locker.EXPECT().TryLock(gomock.Any(), "xrecur", gomock.Any()).
		Return(nil, errors.New("connection refused")).Times(1)

	p := newProbe(false)
	s := newScheduler(t, p, xrecur.Config{Interval: time.Hour, ImmediateFirstRun: true},
		xrecur.WithClock(clockwork.NewFakeClockAt(t0)), xrecur.WithLocker(locker))

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.AwaitCurrent(context.Background()))

	assert.Zero(t, p.count())
	assert.Equal(t, int64(1), s.Stats().LockSkips())
	assert.Equal(t, int64(1), s.Stats().LockErrors())
}

func TestLocker_AcquireRunUnlock(t *testing.T) {
	ctrl := gomock.NewController(t)
	locker := NewMockLocker(ctrl)
	handle := NewMockLockHandle(ctrl)

	gomock.InOrder(
		locker.EXPECT().TryLock(gomock.Any(), "job", time.Hour).Return(handle, nil),
		handle.EXPECT().Unlock(gomock.Any()).Return(nil),
	)

	p := newProbe(false)
	s := newScheduler(t, p, xrecur.Config{Interval: time.Hour, ImmediateFirstRun: true},
		xrecur.WithClock(clockwork.NewFakeClockAt(t0)),
		xrecur.WithName("job"),
		xrecur.WithLocker(locker),
		xrecur.WithLockTTL(time.Hour),
	)

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.AwaitCurrent(context.Background()))
	assert.Equal(t, 1, p.count())
	assert.Equal(t, int64(1), s.Stats().Successes())
	assert.Zero(t, s.Stats().LockSkips())
}

func TestLocker_UnlockNotHeldIsNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	locker := NewMockLocker(ctrl)
	handle := NewMockLockHandle(ctrl)

	locker.EXPECT().TryLock(gomock.Any(), gomock.Any(), gomock.Any()).Return(handle, nil)
	handle.EXPECT().Unlock(gomock.Any()).Return(xrecur.ErrLockNotHeld).Times(1)
	handle.EXPECT().Key().Return("xrecur:lock:xrecur").AnyTimes()

	s := newScheduler(t, noopTask(), xrecur.Config{Interval: time.Hour, ImmediateFirstRun: true},
		xrecur.WithClock(clockwork.NewFakeClockAt(t0)), xrecur.WithLocker(locker))

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.AwaitCurrent(context.Background()))
	assert.Equal(t, int64(1), s.Stats().Successes())
}

func TestLocker_UnlockTransientErrorIsRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	locker := NewMockLocker(ctrl)
	handle := NewMockLockHandle(ctrl)

	locker.EXPECT().TryLock(gomock.Any(), gomock.Any(), gomock.Any()).Return(handle, nil)
	handle.EXPECT().Unlock(gomock.Any()).Return(errors.New("i/o timeout")).Times(3)
	handle.EXPECT().Key().Return("xrecur:lock:xrecur").AnyTimes()

	s := newScheduler(t, noopTask(), xrecur.Config{Interval: time.Hour, ImmediateFirstRun: true},
		xrecur.WithClock(clockwork.NewFakeClockAt(t0)), xrecur.WithLocker(locker))

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.AwaitCurrent(context.Background()))
}

func TestLocker_RenewKeepsLock(t *testing.T) {
	ctrl := gomock.NewController(t)
	locker := NewMockLocker(ctrl)
	handle := NewMockLockHandle(ctrl)

	var renewed atomic.Int32
	locker.EXPECT().TryLock(gomock.Any(), gomock.Any(), 3*time.Second).Return(handle, nil)
	handle.EXPECT().Renew(gomock.Any(), 3*time.Second).DoAndReturn(func(context.Context, time.Duration) error {
		renewed.Add(1)
		return nil
	}).Times(2)
	handle.EXPECT().Unlock(gomock.Any()).Return(nil)

	fc := clockwork.NewFakeClockAt(t0)
	p := newProbe(true)
	s := newScheduler(t, p, xrecur.Config{Interval: time.Hour, ImmediateFirstRun: true},
		xrecur.WithClock(fc), xrecur.WithLocker(locker), xrecur.WithLockTTL(3*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	_, err := s.Start(ctx)
	require.NoError(t, err)
	// trigger 与续期各一个 ticker
	require.NoError(t, fc.BlockUntilContext(ctx, 2))

	for i := int32(1); i <= 2; i++ {
		fc.Advance(time.Second)
		require.Eventually(t, func() bool { return renewed.Load() == i }, waitFor, tick)
	}

	p.release(t)
	require.NoError(t, s.AwaitCurrent(ctx))
	assert.Equal(t, int64(1), s.Stats().Successes())
}

func TestLocker_RenewFailureCancelsAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	locker := NewMockLocker(ctrl)
	handle := NewMockLockHandle(ctrl)

	locker.EXPECT().TryLock(gomock.Any(), gomock.Any(), gomock.Any()).Return(handle, nil)
	handle.EXPECT().Renew(gomock.Any(), 3*time.Second).Return(xrecur.ErrLockNotHeld)
	handle.EXPECT().Unlock(gomock.Any()).Return(xrecur.ErrLockNotHeld)
	handle.EXPECT().Key().Return("k").AnyTimes()

	errs := make(chan error, 1)
	fc := clockwork.NewFakeClockAt(t0)
	p := newProbe(true)
	s := newScheduler(t, p, xrecur.Config{Interval: time.Hour, ImmediateFirstRun: true},
		xrecur.WithClock(fc),
		xrecur.WithLocker(locker),
		xrecur.WithLockTTL(3*time.Second),
		xrecur.WithErrorHandler(func(err error) { errs <- err }),
	)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	_, err := s.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, fc.BlockUntilContext(ctx, 2))

	fc.Advance(time.Second)
	assert.ErrorIs(t, recv(t, errs), context.Canceled)
	require.NoError(t, s.AwaitCurrent(ctx))
	assert.Equal(t, int64(1), s.Stats().Failures())
}

func TestLocker_FinalRunHonorsLock(t *testing.T) {
	ctrl := gomock.NewController(t)
	locker := NewMockLocker(ctrl)
	locker.EXPECT().TryLock(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)

	p := newProbe(false)
	s := newScheduler(t, p, xrecur.Config{Interval: time.Hour},
		xrecur.WithClock(clockwork.NewFakeClockAt(t0)), xrecur.WithLocker(locker))
	ctx := context.Background()

	_, err := s.Start(ctx)
	require.NoError(t, err)
	ok, err := s.Stop(ctx, xrecur.WithFinalRun())
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Zero(t, p.count())
	assert.Equal(t, int64(1), s.Stats().AttemptsByKind(xrecur.AttemptFinal))
	assert.Equal(t, int64(1), s.Stats().LockSkips())
}

func TestNoopLocker(t *testing.T) {
	h, err := xrecur.NoopLocker().TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "k", h.Key())
	assert.NoError(t, h.Renew(context.Background(), time.Second))
	assert.NoError(t, h.Unlock(context.Background()))
}
