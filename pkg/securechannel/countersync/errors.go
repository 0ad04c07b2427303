package countersync

import "errors"

var (
	// ErrIncorrectState is returned when the Manager is used before Init,
	// or initialized twice.
	ErrIncorrectState = errors.New("countersync: incorrect state")

	// ErrNoMemory is returned when a pending table is full. The message is
	// neither queued nor sent.
	ErrNoMemory = errors.New("countersync: pending table full")

	// ErrInvalidMessageLength is returned for a request or response body of
	// the wrong size.
	ErrInvalidMessageLength = errors.New("countersync: invalid message length")

	// ErrReadFailed is returned for a response carrying counter zero.
	ErrReadFailed = errors.New("countersync: response counter is zero")

	// ErrMissingSourceNodeID is returned when a sync message does not
	// identify its sender.
	ErrMissingSourceNodeID = errors.New("countersync: missing source node ID")

	// ErrSourceNodeMismatch is returned for a response whose source node ID
	// is not the peer of the session it arrived on.
	ErrSourceNodeMismatch = errors.New("countersync: source node ID does not match session peer")

	// ErrInvalidMessageType is returned for opcodes other than the two sync
	// messages.
	ErrInvalidMessageType = errors.New("countersync: unexpected message type")

	// ErrNoSessionLayer is returned by NewManager without a session layer.
	ErrNoSessionLayer = errors.New("countersync: session layer required")
)
