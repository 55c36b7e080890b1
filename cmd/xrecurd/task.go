package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/omeyang/xrecur/pkg/lifecycle/xrecur"
	"github.com/omeyang/xrecur/pkg/observability/xlog"
)

const (
	// 保留的输出尾部字节数，用于失败时的错误信息与 debug 日志
	outputTailBytes = 4096
	// 取消后等待子进程输出管道关闭的时间
	commandWaitDelay = 5 * time.Second
)

// 注入子进程的环境变量。
const (
	envAttemptID   = "XRECUR_ATTEMPT_ID"
	envAttemptKind = "XRECUR_ATTEMPT_KIND"
	envScheduledAt = "XRECUR_SCHEDULED_AT"
	envSession     = "XRECUR_SESSION"
)

// commandTask 每次尝试执行一个外部命令。
// 尝试被取消（锁丢失、超时）时子进程收到 SIGKILL。
type commandTask struct {
	argv    []string
	dir     string
	env     []string
	timeout time.Duration
	logger  xlog.Logger
}

func newCommandTask(sec taskSection, logger xlog.Logger) *commandTask {
	argv := slices.Clone(sec.Command)
	if sec.Shell != "" {
		argv = []string{"/bin/sh", "-c", sec.Shell}
	}
	env := make([]string, 0, len(sec.Env))
	for _, k := range slices.Sorted(maps.Keys(sec.Env)) {
		env = append(env, k+"="+sec.Env[k])
	}
	return &commandTask{
		argv:    argv,
		dir:     sec.Dir,
		env:     env,
		timeout: sec.Timeout,
		logger:  logger,
	}
}

func (t *commandTask) Run(ctx context.Context) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, t.argv[0], t.argv[1:]...)
	cmd.Dir = t.dir
	cmd.Env = append(os.Environ(), t.env...)
	if info, ok := xrecur.AttemptFromContext(ctx); ok {
		cmd.Env = append(cmd.Env,
			envAttemptID+"="+info.ID,
			envAttemptKind+"="+info.Kind.String(),
			envScheduledAt+"="+info.ScheduledAt.Format(time.RFC3339Nano),
			fmt.Sprintf("%s=%d", envSession, info.Session),
		)
	}
	cmd.WaitDelay = commandWaitDelay

	out := &tailBuffer{limit: outputTailBytes}
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	if err == nil {
		t.logger.Debug(ctx, "command finished", slog.String("output", out.String()))
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("command %s interrupted: %w", t.argv[0], ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("command %s exited with code %d: %s", t.argv[0], exitErr.ExitCode(), out.String())
	}
	return fmt.Errorf("run command %s: %w", t.argv[0], err)
}

// tailBuffer 只保留最后 limit 字节，stdout 与 stderr 并发写入。
type tailBuffer struct {
	mu        sync.Mutex
	limit     int
	buf       []byte
	truncated bool
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(p)
	if n >= b.limit {
		b.buf = append(b.buf[:0], p[n-b.limit:]...)
		b.truncated = true
		return n, nil
	}
	if over := len(b.buf) + n - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.truncated = true
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return "..." + string(b.buf)
	}
	return string(b.buf)
}
