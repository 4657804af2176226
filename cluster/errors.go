package cluster

import "errors"

// Error taxonomy per spec §7. Precondition errors are returned before any
// state mutation; CacheTransportError is fatal to the in-progress operation
// with no attempted rollback, except on GET where it triggers the single
// secondary-replica retry.
var (
	ErrConfiguration = errors.New("invalid ring configuration")
	ErrDuplicateName = errors.New("node name already exists")
	ErrPortInUse     = errors.New("port already in use")
	ErrUnknownName   = errors.New("no node with that name")
	ErrEmptyRing     = errors.New("no node has been added to the ring")
	ErrRingFull      = errors.New("ring is too full to place a new node")
)
