package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xrecur/pkg/config/xconf"
	"github.com/omeyang/xrecur/pkg/lifecycle/xrun"
	"github.com/omeyang/xrecur/pkg/observability/xlog"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "配置文件路径（.yaml/.yml/.json）",
		Required: true,
	}
}

// 创建所有子命令。logs 接收 run 命令未配置日志文件时的日志。
func createCommands(logs io.Writer) []*cli.Command {
	return []*cli.Command{
		createRunCommand(logs),
		createValidateCommand(),
		createVersionCommand(),
	}
}

func createRunCommand(logs io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "启动守护进程",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "no-watch",
				Usage: "不监视配置文件变更",
			},
		},
		OnUsageError: onUsageError,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cmdRun(ctx, cmd.String("config"), !cmd.Bool("no-watch"), logs)
		},
	}
}

func createValidateCommand() *cli.Command {
	return &cli.Command{
		Name:         "validate",
		Usage:        "校验配置文件",
		Flags:        []cli.Flag{configFlag()},
		OnUsageError: onUsageError,
		Action: func(_ context.Context, cmd *cli.Command) error {
			_, dc, err := loadConfigFile(cmd.String("config"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.Root().Writer, dc.summary())
			return nil
		},
	}
}

func createVersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "打印版本信息",
		Action: func(_ context.Context, cmd *cli.Command) error {
			fmt.Fprintln(cmd.Root().Writer, "xrecurd", versionString())
			return nil
		},
	}
}

// loadConfigFile 读取并校验配置，所有失败都归为参数错误。
func loadConfigFile(path string) (xconf.Config, *daemonConfig, error) {
	conf, err := xconf.New(path)
	if err != nil {
		return nil, nil, newUsageError(err)
	}
	dc, err := loadDaemonConfig(conf)
	if err != nil {
		return nil, nil, newUsageError(err)
	}
	return conf, dc, nil
}

func cmdRun(ctx context.Context, path string, watch bool, logs io.Writer) (err error) {
	conf, dc, err := loadConfigFile(path)
	if err != nil {
		return err
	}

	logger, closeLog, err := buildLogger(dc.Log, logs)
	if err != nil {
		return newUsageError(fmt.Errorf("log: %w", err))
	}
	defer func() { err = errors.Join(err, closeLog()) }()

	d, err := newDaemon(conf, dc, logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, d.Close()) }()

	services, err := d.services(watch)
	if err != nil {
		return err
	}

	logger.Info(ctx, "xrecurd starting", xlog.Component("xrecurd"),
		slog.String("version", Version), slog.String("config", dc.summary()))
	err = xrun.RunServicesWithOptions(ctx,
		[]xrun.Option{xrun.WithLogger(logger), xrun.WithName("xrecurd")},
		services...)
	if errors.Is(err, xrun.ErrSignal) {
		logger.Info(ctx, "xrecurd stopped", xlog.Component("xrecurd"), xlog.Err(err))
		return nil
	}
	return err
}
