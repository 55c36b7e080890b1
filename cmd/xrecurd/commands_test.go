package main

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer 供 run 命令的日志并发写入。
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRun_ExitCodes(t *testing.T) {
	dir := t.TempDir()
	valid := writeConfig(t, t.TempDir(), recordingConfig(dir, "report", 60000, true, false, "info"))
	invalid := writeConfig(t, t.TempDir(), "scheduler:\n  interval_ms: 0\ntask:\n  shell: \"true\"\n")

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{
			name:     "version",
			args:     []string{"version"},
			wantCode: 0,
			wantOut:  "xrecurd " + Version,
		},
		{
			name:     "validate ok",
			args:     []string{"validate", "--config", valid},
			wantCode: 0,
			wantOut:  `scheduler "report": interval=1m0s immediate_first_run=true`,
		},
		{
			name:     "validate invalid",
			args:     []string{"validate", "-c", invalid},
			wantCode: 2,
			wantErr:  "参数错误",
		},
		{
			name:     "validate missing file",
			args:     []string{"validate", "-c", filepath.Join(dir, "absent.yaml")},
			wantCode: 2,
			wantErr:  "absent.yaml",
		},
		{
			name:     "validate unsupported extension",
			args:     []string{"validate", "-c", filepath.Join(dir, "xrecurd.toml")},
			wantCode: 2,
			wantErr:  "unsupported",
		},
		{
			name:     "missing required flag",
			args:     []string{"validate"},
			wantCode: 2,
			wantErr:  "config",
		},
		{
			name:     "unknown flag",
			args:     []string{"validate", "--bogus"},
			wantCode: 2,
			wantErr:  "bogus",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), append([]string{"xrecurd"}, tt.args...), &stdout, &stderr)
			assert.Equal(t, tt.wantCode, code, "stderr: %s", stderr.String())
			if tt.wantOut != "" {
				assert.Contains(t, stdout.String(), tt.wantOut)
			}
			if tt.wantErr != "" {
				assert.Contains(t, stderr.String(), tt.wantErr)
			}
		})
	}
}

func TestRun_RunCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, t.TempDir(), recordingConfig(dir, "report", 3600000, true, true, "info"))
	record := filepath.Join(dir, "attempts.txt")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var stdout bytes.Buffer
	stderr := &syncBuffer{}
	done := make(chan int, 1)
	go func() {
		done <- run(ctx, []string{"xrecurd", "run", "-c", path, "--no-watch"}, &stdout, stderr)
	}()

	require.Eventually(t, func() bool { return len(readLines(t, record)) == 1 }, waitFor, tick)
	cancel()

	select {
	case code := <-done:
		assert.Equal(t, 0, code, "stderr: %s", stderr.String())
	case <-time.After(waitFor):
		t.Fatal("run did not return after cancel")
	}
	assert.Equal(t, []string{"immediate", "final"}, readLines(t, record))
	assert.Contains(t, stderr.String(), "xrecurd starting")
}

func TestRun_RunCommandInvalidConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "scheduler:\n  every: \"@daily\"\ntask:\n  shell: \"true\"\n")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"xrecurd", "run", "-c", path}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "scheduler")
}
