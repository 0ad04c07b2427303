package node

import "errors"

var (
	// ErrInvalidNodeID is returned when Config.NodeID is zero.
	ErrInvalidNodeID = errors.New("node: node ID is required")

	// ErrAlreadyStarted is returned when Start() is called on a running node.
	ErrAlreadyStarted = errors.New("node: node already started")

	// ErrNotStarted is returned when an operation requires a running node.
	ErrNotStarted = errors.New("node: node not started")

	// ErrAlreadyStopped is returned when Stop() is called on a stopped node.
	ErrAlreadyStopped = errors.New("node: node already stopped")

	// ErrPeerNotFound is returned for a node ID with no session.
	ErrPeerNotFound = errors.New("node: peer not found")
)
