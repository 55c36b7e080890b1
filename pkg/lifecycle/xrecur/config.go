package xrecur

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xrecur/pkg/config/xconf"
)

// 配置键，相对于 LoadConfig 的 path。
const (
	KeyIntervalMS        = "interval_ms"
	KeyEvery             = "every"
	KeyImmediateFirstRun = "immediate_first_run"
)

// Config 调度参数，构造后不可变。
type Config struct {
	// Interval 相邻两次尝试开始时间的间隔，必须为正且为整毫秒。
	Interval time.Duration `json:"interval"`
	// ImmediateFirstRun 为 true 时 Start 返回前即开始第一次尝试；
	// 否则第一次尝试在一个完整间隔之后。
	ImmediateFirstRun bool `json:"immediate_first_run"`
}

// Validate 校验配置。
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: %s is not positive", ErrInvalidInterval, c.Interval)
	}
	if c.Interval%time.Millisecond != 0 {
		return fmt.Errorf("%w: %s is not a whole number of milliseconds", ErrInvalidInterval, c.Interval)
	}
	return nil
}

// LoadConfig 从 cfg 的 path 节点读取调度配置（path 为空表示根节点）。
//
// 间隔二选一：interval_ms（整数毫秒）或 every（"@every 30s" 或 "30s"）。
// immediate_first_run 可省略，默认 false；存在时必须是布尔值。
// 字段类型不符时不做弱类型转换，直接报错。
func LoadConfig(cfg xconf.Config, path string) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("%w: nil config source", ErrInvalidInterval)
	}
	key := func(k string) string {
		if path == "" {
			return k
		}
		return path + "." + k
	}

	var out Config
	hasMS, hasEvery := cfg.Exists(key(KeyIntervalMS)), cfg.Exists(key(KeyEvery))
	switch {
	case hasMS && hasEvery:
		return Config{}, fmt.Errorf("%w: %s and %s are mutually exclusive", ErrInvalidInterval, KeyIntervalMS, KeyEvery)
	case hasMS:
		ms, err := cfg.Int64(key(KeyIntervalMS))
		if err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidInterval, err)
		}
		if ms <= 0 || ms > int64(time.Duration(1<<63-1)/time.Millisecond) {
			return Config{}, fmt.Errorf("%w: %s=%d", ErrInvalidInterval, KeyIntervalMS, ms)
		}
		out.Interval = time.Duration(ms) * time.Millisecond
	case hasEvery:
		s, err := cfg.String(key(KeyEvery))
		if err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidInterval, err)
		}
		if out.Interval, err = ParseEvery(s); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("%w: one of %s or %s is required", ErrInvalidInterval, KeyIntervalMS, KeyEvery)
	}

	if cfg.Exists(key(KeyImmediateFirstRun)) {
		b, err := cfg.Bool(key(KeyImmediateFirstRun))
		if err != nil {
			if errors.Is(err, xconf.ErrTypeMismatch) {
				return Config{}, fmt.Errorf("%w: %w", ErrInvalidImmediateFirstRun, err)
			}
			return Config{}, err
		}
		out.ImmediateFirstRun = b
	}

	if err := out.Validate(); err != nil {
		return Config{}, err
	}
	return out, nil
}

// ParseEvery 解析 "@every <duration>" 描述符，也接受不带前缀的 duration。
//
// 解析交给 robfig/cron，结果与 cron 的 ConstantDelaySchedule 一致：
// 不足 1 秒按 1 秒计，秒以下部分被截断。其他 cron 表达式不被接受。
func ParseEvery(spec string) (time.Duration, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, fmt.Errorf("%w: empty every descriptor", ErrInvalidInterval)
	}
	rest := strings.TrimSpace(strings.TrimPrefix(spec, "@every"))
	// cron 会把负值抬到 1 秒
	if strings.HasPrefix(rest, "-") {
		return 0, fmt.Errorf("%w: negative every descriptor %q", ErrInvalidInterval, spec)
	}
	if !strings.HasPrefix(spec, "@") {
		spec = "@every " + rest
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidInterval, err)
	}
	every, ok := sched.(cron.ConstantDelaySchedule)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a fixed interval", ErrInvalidInterval, spec)
	}
	return every.Delay, nil
}
