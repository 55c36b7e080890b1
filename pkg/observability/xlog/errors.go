package xlog

import "errors"

var (
	// ErrUnknownLevel 级别字符串无法识别。
	ErrUnknownLevel = errors.New("xlog: unknown level")

	// ErrUnknownFormat 输出格式不是 text 或 json。
	ErrUnknownFormat = errors.New("xlog: unknown format")

	// ErrNilHandler NewEnrichHandler 的 base 为 nil。
	ErrNilHandler = errors.New("xlog: base handler is nil")

	// ErrInvalidRotation 轮转参数无效（文件名为空或数值为负）。
	ErrInvalidRotation = errors.New("xlog: invalid rotation config")
)
