package store

import "time"

// Value 缓存值接口
type Value interface {
	Len() int // 返回数据大小
}

// Options 缓存配置选项
type Options struct {
	// MaxBytes 最大的缓存字节数，<= 0 表示不限制
	MaxBytes int64
	// CleanupInterval 过期项的后台清理间隔，默认一分钟
	CleanupInterval time.Duration
	// OnEvicted 缓存项因过期或容量不足被移除时的回调，在锁外执行
	OnEvicted func(key string, value Value)
}

// DefaultOptions 返回默认配置
func DefaultOptions() Options {
	return Options{
		MaxBytes:        8 << 20,
		CleanupInterval: time.Minute,
	}
}
