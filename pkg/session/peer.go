package session

import (
	"time"

	"github.com/backkem/mcsync/pkg/message"
	"github.com/backkem/mcsync/pkg/transport"
)

// PeerConfig describes an established peer session. Session establishment
// itself happens elsewhere; the Manager only needs its results.
type PeerConfig struct {
	// LocalSessionID routes incoming unicast messages to this peer. Must be non-zero.
	LocalSessionID uint16

	// PeerSessionID is placed in outgoing unicast messages.
	PeerSessionID uint16

	// PeerNodeID identifies the peer in group traffic. Must be non-zero.
	PeerNodeID NodeID

	PeerAddress transport.PeerAddress
}

// PeerConnectionState is everything the stack knows about one peer.
// It is owned by the Manager's table and only accessed from the dispatch
// context.
type PeerConnectionState struct {
	localSessionID uint16
	peerSessionID  uint16
	peerNodeID     NodeID
	peerAddress    transport.PeerAddress

	// Outbound counters are node-wide; the state only references them.
	counters *message.GlobalCounters

	peerCounter    PeerMessageCounter
	receptionState *message.ReceptionState

	sessionTimestamp time.Time
	activeTimestamp  time.Time
}

// NewPeerConnectionState creates the state for a peer whose counter is not yet
// synchronized. Outbound counters are taken from counters.
func NewPeerConnectionState(config PeerConfig, counters *message.GlobalCounters, now time.Time) *PeerConnectionState {
	return &PeerConnectionState{
		localSessionID:   config.LocalSessionID,
		peerSessionID:    config.PeerSessionID,
		peerNodeID:       config.PeerNodeID,
		peerAddress:      config.PeerAddress,
		counters:         counters,
		receptionState:   message.NewReceptionState(),
		sessionTimestamp: now,
		activeTimestamp:  now,
	}
}

// Handle returns the unicast handle for this peer.
func (s *PeerConnectionState) Handle() Handle {
	return NewHandle(s.localSessionID)
}

func (s *PeerConnectionState) LocalSessionID() uint16 {
	return s.localSessionID
}

func (s *PeerConnectionState) PeerSessionID() uint16 {
	return s.peerSessionID
}

func (s *PeerConnectionState) PeerNodeID() NodeID {
	return s.peerNodeID
}

func (s *PeerConnectionState) PeerAddress() transport.PeerAddress {
	return s.peerAddress
}

// SetPeerAddress updates where messages for this peer are sent.
func (s *PeerConnectionState) SetPeerAddress(addr transport.PeerAddress) {
	s.peerAddress = addr
}

// LocalMessageCounter returns the counter stamped on secured messages sent
// to this peer. It is the node's global encrypted counter, shared by all
// peers.
func (s *PeerConnectionState) LocalMessageCounter() *message.MessageCounter {
	return s.counters.Encrypted
}

// PeerMessageCounter returns the trust state of the peer's group counter.
func (s *PeerConnectionState) PeerMessageCounter() *PeerMessageCounter {
	return &s.peerCounter
}

// ReceptionState returns the unicast replay detector for this peer.
func (s *PeerConnectionState) ReceptionState() *message.ReceptionState {
	return s.receptionState
}

// MarkActivity updates the send/receive timestamps.
func (s *PeerConnectionState) MarkActivity(now time.Time, isReceive bool) {
	s.sessionTimestamp = now
	if isReceive {
		s.activeTimestamp = now
	}
}

// LastActivity returns the time of the last send or receive.
func (s *PeerConnectionState) LastActivity() time.Time {
	return s.sessionTimestamp
}

// LastReceive returns the time of the last receive.
func (s *PeerConnectionState) LastReceive() time.Time {
	return s.activeTimestamp
}
