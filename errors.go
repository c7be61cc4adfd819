package hesper

import (
	"errors"

	"github.com/justthefish/hesper/internal/peer"
	"github.com/justthefish/hesper/internal/registry"
	"github.com/justthefish/hesper/internal/selector"
)

var (
	// ErrDuplicateLabel is returned when a peer label is registered twice.
	ErrDuplicateLabel = registry.ErrDuplicateLabel
	// ErrInvalidArgument reports a rejected configuration value such as a non-positive ring size.
	ErrInvalidArgument = registry.ErrInvalidArgument
	// ErrUnknownPeer means a selector produced a label the registry does not hold.
	ErrUnknownPeer = registry.ErrUnknownPeer
	// ErrOutOfRange reports an arc end outside [0, ring size].
	ErrOutOfRange = selector.ErrOutOfRange
	// ErrNoPeersAvailable is returned by lookups against an empty registry.
	ErrNoPeersAvailable = selector.ErrNoPeersAvailable
	// ErrUnresolvedPartition means the ring arcs leave the key's point uncovered.
	ErrUnresolvedPartition = selector.ErrUnresolvedPartition
	// ErrNotFound is returned by Get when the owning peer does not hold the key.
	ErrNotFound = peer.ErrNotFound

	ErrKeyRequired  = errors.New("key is required")
	ErrNotSupported = errors.New("operation not supported by the configured selector")
)
