// xrecurd 按固定间隔执行一个外部命令，保证同一时刻至多一个尝试在运行。
//
// 用法:
//
//	xrecurd <命令> --config <路径>
//
// 命令:
//
//	run        启动守护进程，收到 SIGINT/SIGTERM 后停止
//	validate   校验配置文件并打印摘要
//	version    打印版本信息
//
// run 命令说明:
//
//	调度器按 scheduler 节的间隔触发；上一尝试未结束时到期的 tick 被跳过。
//	配置文件变更后自动重载：等待在途尝试结束，再以新配置重建调度器。
//	--no-watch 关闭自动重载。admin.addr 非空时提供 /healthz、/status、/stats。
//
//	子进程可读取环境变量 XRECUR_ATTEMPT_ID、XRECUR_ATTEMPT_KIND、
//	XRECUR_SCHEDULED_AT 与 XRECUR_SESSION。
//
// 退出码:
//
//	0: 成功（run 命令: 因信号正常退出）
//	1: 运行失败
//	2: 参数或配置错误
//
// 示例:
//
//	xrecurd validate -c /etc/xrecurd/report.yaml
//	xrecurd run -c /etc/xrecurd/report.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(context.Background(), os.Args, os.Stdout, os.Stderr))
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime)
}

// createApp 创建 CLI 应用。stdout 接收命令输出，stderr 接收日志与错误。
func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:        "xrecurd",
		Usage:       "周期任务守护进程：固定间隔、不重叠执行",
		Version:     versionString(),
		Writer:      stdout,
		ErrWriter:   stderr,
		Commands:    createCommands(stderr),
		HideVersion: true,
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射，确保与文档退出码契约一致。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(stderr, err)
			}
		},
		OnUsageError: onUsageError,
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := createApp(stdout, stderr)

	if err := app.Run(ctx, args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		fmt.Fprintf(stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}
