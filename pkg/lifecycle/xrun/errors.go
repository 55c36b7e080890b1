package xrun

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSignal 因系统信号退出，配合 errors.Is 使用。
	ErrSignal = errors.New("xrun: received signal")
	// ErrNilService 注册了 nil Service。
	ErrNilService = errors.New("xrun: nil service")
	// ErrNilFunc 注册了 nil 函数。
	ErrNilFunc = errors.New("xrun: nil func")
	// ErrNilServer HTTPServer 传入 nil。
	ErrNilServer = errors.New("xrun: nil http server")
)

// SignalError 记录触发退出的信号。
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	if e.Signal == nil {
		return "xrun: received signal <nil>"
	}
	return fmt.Sprintf("xrun: received signal %s", e.Signal)
}

// Unwrap 使 errors.Is(err, ErrSignal) 成立。
func (e *SignalError) Unwrap() error { return ErrSignal }
