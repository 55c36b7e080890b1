package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/omeyang/xrecur/pkg/config/xconf"
	"github.com/omeyang/xrecur/pkg/lifecycle/xrecur"
	"github.com/omeyang/xrecur/pkg/observability/xlog"
)

const (
	defaultName            = "xrecurd"
	defaultLockTTL         = 5 * time.Minute
	defaultLockTimeout     = 5 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// 锁类型。
const (
	lockerNone  = "none"
	lockerRedis = "redis"
	lockerK8s   = "k8s"
)

var errInvalidConfig = errors.New("xrecurd: invalid config")

// fileConfig 配置文件结构。scheduler 节的间隔字段由 xrecur.LoadConfig 严格解析，
// 不经过 Unmarshal 的弱类型转换。
//
//	scheduler:
//	  name: nightly-report
//	  every: "@every 1h"          # 或 interval_ms: 3600000
//	  immediate_first_run: true
//	  final_run_on_shutdown: true
//	task:
//	  shell: ./report.sh          # 或 command: ["/usr/bin/report", "--full"]
//	  timeout: 30m
//	locker:
//	  type: redis                 # none | redis | k8s
//	  redis:
//	    addr: 127.0.0.1:6379
//	log:
//	  level: info
//	  format: json
//	admin:
//	  addr: ":8080"
type fileConfig struct {
	Scheduler schedulerSection `koanf:"scheduler"`
	Task      taskSection      `koanf:"task"`
	Locker    lockerSection    `koanf:"locker"`
	Log       logSection       `koanf:"log"`
	Admin     adminSection     `koanf:"admin"`
}

type schedulerSection struct {
	Name               string `koanf:"name"`
	FinalRunOnShutdown bool   `koanf:"final_run_on_shutdown"`
}

type taskSection struct {
	Command []string          `koanf:"command"`
	Shell   string            `koanf:"shell"`
	Dir     string            `koanf:"dir"`
	Env     map[string]string `koanf:"env"`
	Timeout time.Duration     `koanf:"timeout"`
}

type lockerSection struct {
	Type    string        `koanf:"type"`
	TTL     time.Duration `koanf:"ttl"`
	Timeout time.Duration `koanf:"timeout"`
	Redis   redisSection  `koanf:"redis"`
	K8s     k8sSection    `koanf:"k8s"`
}

type redisSection struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

type k8sSection struct {
	Namespace string `koanf:"namespace"`
	Prefix    string `koanf:"prefix"`
}

type logSection struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

type adminSection struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// daemonConfig 校验并补全默认值后的配置。
type daemonConfig struct {
	fileConfig
	Schedule xrecur.Config
}

func loadDaemonConfig(cfg xconf.Config) (*daemonConfig, error) {
	var fc fileConfig
	if err := cfg.Unmarshal("", &fc); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidConfig, err)
	}
	schedule, err := xrecur.LoadConfig(cfg, "scheduler")
	if err != nil {
		return nil, fmt.Errorf("%w: scheduler: %w", errInvalidConfig, err)
	}

	dc := &daemonConfig{fileConfig: fc, Schedule: schedule}
	dc.applyDefaults()
	if err := dc.validate(); err != nil {
		return nil, err
	}
	return dc, nil
}

func (c *daemonConfig) applyDefaults() {
	if c.Scheduler.Name == "" {
		c.Scheduler.Name = defaultName
	}
	c.Locker.Type = strings.ToLower(strings.TrimSpace(c.Locker.Type))
	if c.Locker.Type == "" {
		c.Locker.Type = lockerNone
	}
	if c.Locker.TTL <= 0 {
		c.Locker.TTL = defaultLockTTL
	}
	if c.Locker.Timeout <= 0 {
		c.Locker.Timeout = defaultLockTimeout
	}
	if c.Admin.ShutdownTimeout <= 0 {
		c.Admin.ShutdownTimeout = defaultShutdownTimeout
	}
}

func (c *daemonConfig) validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch {
	case len(c.Task.Command) == 0 && c.Task.Shell == "":
		invalid("task: one of command or shell is required")
	case len(c.Task.Command) > 0 && c.Task.Shell != "":
		invalid("task: command and shell are mutually exclusive")
	case len(c.Task.Command) > 0 && c.Task.Command[0] == "":
		invalid("task: empty executable")
	}
	if c.Task.Timeout < 0 {
		invalid("task: negative timeout %s", c.Task.Timeout)
	}

	switch c.Locker.Type {
	case lockerNone, lockerK8s:
	case lockerRedis:
		if c.Locker.Redis.Addr == "" {
			invalid("locker: redis.addr is required")
		}
	default:
		invalid("locker: unknown type %q", c.Locker.Type)
	}

	if _, err := xlog.ParseLevel(c.Log.Level); err != nil {
		invalid("log: %v", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		invalid("log: unknown format %q", c.Log.Format)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", errInvalidConfig, errors.Join(errs...))
}

// summary validate 命令输出的单行摘要。
func (c *daemonConfig) summary() string {
	return fmt.Sprintf("scheduler %q: interval=%s immediate_first_run=%t final_run_on_shutdown=%t locker=%s",
		c.Scheduler.Name, c.Schedule.Interval, c.Schedule.ImmediateFirstRun,
		c.Scheduler.FinalRunOnShutdown, c.Locker.Type)
}
