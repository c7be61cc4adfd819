package hesper

import (
	"github.com/justthefish/hesper/internal/selector"
	"github.com/sirupsen/logrus"
)

// Default values for AggregateCache configuration.
const (
	// DefaultRingSize is the ring size used by NewCyclic when WithRingSize is not given.
	DefaultRingSize = selector.DefaultRingSize

	// DefaultCategory is used whenever an operation is called with an empty category.
	DefaultCategory = selector.DefaultCategory
)

func defaultOptions() Options {
	return Options{
		RingSize: DefaultRingSize,
		Logger:   logrus.StandardLogger(),
	}
}
