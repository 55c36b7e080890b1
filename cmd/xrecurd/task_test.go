package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xrecur/pkg/lifecycle/xrecur"
	"github.com/omeyang/xrecur/pkg/observability/xlog"
)

func TestCommandTask_Success(t *testing.T) {
	dir := t.TempDir()
	task := newCommandTask(taskSection{
		Shell: `printf '%s %s' "$XRECUR_ATTEMPT_KIND" "$GREETING" > out.txt`,
		Dir:   dir,
		Env:   map[string]string{"GREETING": "hello"},
	}, xlog.Discard())

	s, err := xrecur.New(task, xrecur.Config{Interval: time.Hour, ImmediateFirstRun: true},
		xrecur.WithLogger(xlog.Discard()))
	require.NoError(t, err)
	ctx := context.Background()
	_, err = s.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, s.AwaitCurrent(ctx))
	_, err = s.Stop(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), s.Stats().Successes())
	out, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "immediate hello", string(out))
}

func TestCommandTask_ExitCode(t *testing.T) {
	task := newCommandTask(taskSection{Shell: "echo boom >&2; exit 3"}, xlog.Discard())
	err := task.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with code 3")
	assert.Contains(t, err.Error(), "boom")
}

func TestCommandTask_Timeout(t *testing.T) {
	task := newCommandTask(taskSection{Command: []string{"/bin/sleep", "30"}, Timeout: 50 * time.Millisecond}, xlog.Discard())
	start := time.Now()
	err := task.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestCommandTask_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	task := newCommandTask(taskSection{Command: []string{"/bin/sleep", "30"}}, xlog.Discard())
	assert.ErrorIs(t, task.Run(ctx), context.Canceled)
}

func TestCommandTask_MissingExecutable(t *testing.T) {
	task := newCommandTask(taskSection{Command: []string{"/nonexistent/xrecur-task"}}, xlog.Discard())
	err := task.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run command")
}

func TestCommandTask_EnvOrder(t *testing.T) {
	task := newCommandTask(taskSection{
		Shell: "true",
		Env:   map[string]string{"B": "2", "A": "1"},
	}, xlog.Discard())
	assert.Equal(t, []string{"A=1", "B=2"}, task.env)
	assert.Equal(t, []string{"/bin/sh", "-c", "true"}, task.argv)
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{limit: 8}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("def"))
	assert.Equal(t, "abcdef", b.String())

	_, _ = b.Write([]byte("ghij"))
	assert.Equal(t, "...cdefghij", b.String())

	n, err := b.Write([]byte(strings.Repeat("x", 20) + "12345678"))
	require.NoError(t, err)
	assert.Equal(t, 28, n)
	assert.Equal(t, "...12345678", b.String())
}
