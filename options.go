package hesper

import (
	"github.com/justthefish/hesper/internal/selector"
	"github.com/sirupsen/logrus"
)

// Options holds all the configuration for an AggregateCache.
// It is configured using the Functional Options Pattern with `With...` functions.
type Options struct {
	// RingSize is the size of the ring used by the cyclic strategy.
	// Defaults to 1000 (see config.go). Ignored by the tiered strategy.
	RingSize int

	// PointFunc maps a key to a raw ring position for the cyclic strategy.
	// Defaults to the first 20 bits of the key's SHA-1 digest.
	PointFunc PointFunc

	// CategoryTiers seeds the category -> tier map of the tiered strategy.
	CategoryTiers map[string]Tier

	// Logger is the logger instance shared by the cache and its components.
	// Defaults to logrus.StandardLogger().
	Logger *logrus.Logger
}

// Option configures an AggregateCache.
type Option func(*Options)

// WithRingSize sets the ring size for NewCyclic.
func WithRingSize(size int) Option {
	return func(o *Options) {
		o.RingSize = size
	}
}

// WithPointFunc replaces the key hash used by NewCyclic, e.g. with HashMurmur3.
func WithPointFunc(fn PointFunc) Option {
	return func(o *Options) {
		o.PointFunc = fn
	}
}

// WithCategoryTier maps a category to its preferred tier for NewTiered.
// It can be given several times.
func WithCategoryTier(category string, tier Tier) Option {
	return func(o *Options) {
		if o.CategoryTiers == nil {
			o.CategoryTiers = make(map[string]Tier)
		}
		o.CategoryTiers[category] = tier
	}
}

// WithLogger sets a custom logger for the cache and all its internal components.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func (o Options) selectorOptions() []selector.Option {
	opts := []selector.Option{
		selector.WithLogger(o.Logger),
		selector.WithRingSize(o.RingSize),
	}
	if o.PointFunc != nil {
		opts = append(opts, selector.WithPointFunc(o.PointFunc))
	}
	return opts
}
