package xconf

import (
	"fmt"
	"math"
	"time"
)

func (c *koanfConfig) Exists(key string) bool {
	return c.k.Load().Exists(key)
}

func (c *koanfConfig) get(key string) (any, error) {
	k := c.k.Load()
	if !k.Exists(key) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return k.Get(key), nil
}

func mismatch(key, want string, got any) error {
	return fmt.Errorf("%w: %s: want %s, got %T", ErrTypeMismatch, key, want, got)
}

func (c *koanfConfig) Int64(key string) (int64, error) {
	v, err := c.get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, mismatch(key, "int64", v)
		}
		return int64(n), nil
	case float64:
		// JSON 数字一律解析为 float64
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, mismatch(key, "integer", v)
		}
		return int64(n), nil
	default:
		return 0, mismatch(key, "integer", v)
	}
}

func (c *koanfConfig) Bool(key string) (bool, error) {
	v, err := c.get(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, mismatch(key, "bool", v)
	}
	return b, nil
}

func (c *koanfConfig) String(key string) (string, error) {
	v, err := c.get(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", mismatch(key, "string", v)
	}
	return s, nil
}

func (c *koanfConfig) Duration(key string) (time.Duration, error) {
	s, err := c.String(key)
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrTypeMismatch, key, err)
	}
	return d, nil
}
