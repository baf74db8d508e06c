package pkg

import "errors"

var (
	// ErrKeyNotFound is returned when a key doesn't exist
	ErrKeyNotFound = errors.New("key not found")

	// ErrContextCanceled is returned when the context is canceled
	ErrContextCanceled = errors.New("context canceled")

	// ErrStorageUnavailable is returned when storage is closed
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNodeNotFound is returned when no live node has the requested id
	ErrNodeNotFound = errors.New("node not found")

	// ErrNodeExists is returned when creating a node whose id is taken
	ErrNodeExists = errors.New("node already exists")

	// ErrIDOutOfRange is returned for ids outside the identifier space
	ErrIDOutOfRange = errors.New("id out of range")

	// ErrInvalidState is returned when an operation does not fit the node's lifecycle state
	ErrInvalidState = errors.New("invalid node state")

	// ErrRequestLost is returned when the simulation goes quiet before a reply arrives
	ErrRequestLost = errors.New("request lost")

	// ErrRingCorrupted is returned when neighbour pointers do not form one closed ring
	ErrRingCorrupted = errors.New("ring corrupted")

	// ErrNotSettled is returned when messages are still in flight after the event limit
	ErrNotSettled = errors.New("simulation not settled")
)
