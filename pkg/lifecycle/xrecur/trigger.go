package xrecur

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Trigger 定时驱动。
//
// Arm 从调用时刻 T 开始，在 T+i*interval 调用 fire(tick 时间)，返回的 disarm
// 停止后续调用。实现约定：
//   - Arm 不得同步调用 fire
//   - disarm 返回后不再调用 fire，可重复调用
//   - fire 可能阻塞片刻（调度器加锁），不应在 fire 返回前堆积 tick
type Trigger interface {
	Arm(interval time.Duration, fire func(at time.Time)) (disarm func())
}

// ClockTrigger 基于 clockwork.Clock 的 Trigger。
type ClockTrigger struct {
	clock clockwork.Clock
}

// NewClockTrigger 创建 ClockTrigger，clock 为 nil 时使用真实时钟。
func NewClockTrigger(clock clockwork.Clock) *ClockTrigger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClockTrigger{clock: clock}
}

// Arm 实现 Trigger。ticker 在返回前创建，fake clock 推进时一定能命中。
func (t *ClockTrigger) Arm(interval time.Duration, fire func(at time.Time)) func() {
	ticker := t.clock.NewTicker(interval)
	stop := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		for {
			select {
			case <-stop:
				return
			case at := <-ticker.Chan():
				// stop 与 tick 同时就绪时优先退出
				select {
				case <-stop:
					return
				default:
				}
				fire(at)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			ticker.Stop()
			<-exited
		})
	}
}

var _ Trigger = (*ClockTrigger)(nil)
