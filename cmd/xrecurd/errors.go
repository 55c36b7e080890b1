package main

import (
	"context"
	"errors"

	"github.com/urfave/cli/v3"
)

// usageError 参数或配置错误，对应退出码 2。
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func newUsageError(err error) error {
	if err == nil {
		return nil
	}
	var ue *usageError
	if errors.As(err, &ue) {
		return err
	}
	return &usageError{err: err}
}

// onUsageError 把 flag 解析与必填参数错误转为 usageError。
func onUsageError(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return newUsageError(err)
}
