// Package session tracks peer connection state for the counter
// synchronization stack.
//
// Each peer has one PeerConnectionState holding its session identifiers,
// address and a PeerMessageCounter. The PeerMessageCounter records whether
// the peer's group message counter is trusted. The Manager owns the node's
// global counters, frames outbound messages and routes inbound ones. Group
// keyed traffic for a peer that is not yet synchronized is handed to a
// SyncGate instead of being sent or delivered.
package session

import "fmt"

// NodeID is a 64-bit operational node identifier.
type NodeID uint64

// UndefinedNodeID is the reserved "no node" value.
const UndefinedNodeID NodeID = 0

func (n NodeID) String() string {
	return fmt.Sprintf("0x%016X", uint64(n))
}

// Handle refers to a peer connection state. The same peer can be addressed
// through its unicast session key or through a group key; GroupKeyed
// selects which one protects messages sent with this handle.
type Handle struct {
	localSessionID uint16
	groupKeyed     bool
}

// NewHandle returns a unicast handle for the given local session ID.
func NewHandle(localSessionID uint16) Handle {
	return Handle{localSessionID: localSessionID}
}

// LocalSessionID returns the session the handle refers to.
func (h Handle) LocalSessionID() uint16 {
	return h.localSessionID
}

// GroupKeyed reports whether messages on this handle use the group key.
func (h Handle) GroupKeyed() bool {
	return h.groupKeyed
}

// Unicast returns the same session addressed through its unicast key.
func (h Handle) Unicast() Handle {
	return Handle{localSessionID: h.localSessionID}
}

// WithGroupKey returns the same session addressed through the group key.
func (h Handle) WithGroupKey() Handle {
	return Handle{localSessionID: h.localSessionID, groupKeyed: true}
}

// IsValid reports whether the handle refers to a session at all.
func (h Handle) IsValid() bool {
	return h.localSessionID != 0
}

func (h Handle) String() string {
	if h.groupKeyed {
		return fmt.Sprintf("session %d (group key)", h.localSessionID)
	}
	return fmt.Sprintf("session %d", h.localSessionID)
}

// SyncState is the trust state of a peer's message counter.
type SyncState uint8

const (
	// SyncStateUninitialized means nothing is known about the peer counter.
	SyncStateUninitialized SyncState = iota

	// SyncStateInProgress means a challenge is outstanding.
	SyncStateInProgress

	// SyncStateSynced means the peer counter baseline is trusted.
	SyncStateSynced
)

// String returns a human-readable name for the state.
func (s SyncState) String() string {
	switch s {
	case SyncStateUninitialized:
		return "Uninitialized"
	case SyncStateInProgress:
		return "SyncInProgress"
	case SyncStateSynced:
		return "Synced"
	default:
		return "Unknown"
	}
}
