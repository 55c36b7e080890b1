// Package xconf 基于 koanf 的最小化配置加载器：文件/字节加载、反序列化、
// 严格类型访问和基于 fsnotify 的热重载。
//
// # 严格访问器
//
// Unmarshal 走 mapstructure，会把字符串 "8080" 转成 int。对调度间隔这类
// 必须拒绝错误类型的字段，使用 Int64/Bool/String/Duration：
//
//	ms, err := cfg.Int64("interval_ms")
//	if errors.Is(err, xconf.ErrTypeMismatch) { ... }
//
// # 并发
//
// Reload 串行执行，解析成功后以 atomic.Pointer 替换 koanf 实例；
// Client 返回的是快照，重载后仍可用但数据过期。
//
// # 监视
//
//	w, err := xconf.Watch(cfg, func(c xconf.Config, err error) { ... })
//	go w.Run(ctx)
//
// ctx 结束后 Run 关闭监视器；Close 返回后不再有回调。
package xconf
