package selector

import "github.com/sirupsen/logrus"

// DefaultRingSize 是环的默认大小
const DefaultRingSize = 1000

type options struct {
	logger   *logrus.Logger
	ringSize int
	point    PointFunc
}

// Option 配置选择器
type Option func(*options)

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRingSize 设置环的大小，仅对 Cyclic 有效
func WithRingSize(size int) Option {
	return func(o *options) {
		o.ringSize = size
	}
}

// WithPointFunc 设置 key 到环位置的哈希函数，仅对 Cyclic 有效。默认 HashSHA1。
func WithPointFunc(fn PointFunc) Option {
	return func(o *options) {
		o.point = fn
	}
}

func applyOptions(opts []Option) *options {
	o := &options{
		logger:   logrus.StandardLogger(),
		ringSize: DefaultRingSize,
		point:    HashSHA1,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.point == nil {
		o.point = HashSHA1
	}
	return o
}
