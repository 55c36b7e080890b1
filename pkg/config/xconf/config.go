package xconf

import (
	"time"

	"github.com/knadh/koanf/v2"
)

// Format 配置文件格式。
type Format string

const (
	// FormatYAML YAML 格式（推荐用于 K8s ConfigMap）。
	FormatYAML Format = "yaml"
	// FormatJSON JSON 格式。
	FormatJSON Format = "json"
)

// Config 配置接口。
//
// 除 Unmarshal 之外还提供一组严格访问器：值类型不符时返回 [ErrTypeMismatch]，
// 不做 mapstructure 式的弱类型转换。
type Config interface {
	// Client 返回当前 koanf 实例（快照）。
	Client() *koanf.Koanf

	// Unmarshal 将 path 下的配置反序列化到 target，path 为空时反序列化整个配置。
	Unmarshal(path string, target any) error

	// Exists 判断 key 是否存在。
	Exists(key string) bool

	// Int64 读取整数；浮点数仅在没有小数部分时接受。
	Int64(key string) (int64, error)

	// Bool 读取布尔值，不接受 "true"/"1" 之类的字符串。
	Bool(key string) (bool, error)

	// String 读取字符串。
	String(key string) (string, error)

	// Duration 读取 Go duration 字符串（如 "1m30s"）。
	Duration(key string) (time.Duration, error)

	// Reload 重新读取文件；从字节创建的 Config 返回 [ErrNotReloadable]。
	Reload() error

	// Path 返回配置文件路径，从字节创建时为空。
	Path() string

	// Format 返回配置格式。
	Format() Format
}
