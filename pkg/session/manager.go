package session

import (
	"fmt"
	"net"

	"code.cloudfoundry.org/clock"
	"github.com/backkem/mcsync/pkg/message"
	"github.com/backkem/mcsync/pkg/transport"
	"github.com/pion/logging"
)

// DefaultGroupSessionID is stamped on group keyed frames when
// ManagerConfig.GroupSessionID is zero.
const DefaultGroupSessionID uint16 = 0x0001

// Sender writes framed messages to the network. *transport.UDP implements it.
type Sender interface {
	Send(data []byte, addr net.Addr) error
}

// MessageHandler receives decoded inbound messages, normally the exchange
// manager. Returning an error means the message was not processed and its
// group counter is not committed.
type MessageHandler interface {
	OnMessageReceived(h Handle, packetHeader *message.PacketHeader, payloadHeader *message.PayloadHeader, payload []byte) error
}

// SyncGate takes group keyed traffic for peers whose counter is not yet
// trusted. It is implemented by the counter synchronization manager.
type SyncGate interface {
	QueueSendMessageAndStartSync(h Handle, state *PeerConnectionState, payloadHeader *message.PayloadHeader, payload []byte) error
	QueueReceivedMessageAndStartSync(h Handle, state *PeerConnectionState, packetHeader *message.PacketHeader, peerAddress transport.PeerAddress, payload []byte) error
	DropPendingMessages(peer NodeID) (sends, receives int)
}

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// LocalNodeID is stamped as the source of every secured frame. Required.
	LocalNodeID NodeID

	// GroupSessionID identifies the group key on the wire.
	// Default: DefaultGroupSessionID
	GroupSessionID uint16

	// MaxSessions limits the number of peers. Default: DefaultMaxSessions
	MaxSessions int

	// Transport may also be set later with SetTransport.
	Transport Sender

	// Clock is used for activity timestamps. Default: clock.NewClock()
	Clock clock.Clock

	LoggerFactory logging.LoggerFactory
}

// Manager owns peer connection states and the node's global counters. It
// frames outbound messages, routes inbound ones and holds back group keyed
// traffic for unsynchronized peers.
//
// All methods except the constructor must be called from the dispatch context.
type Manager struct {
	localNodeID    NodeID
	groupSessionID uint16
	table          *Table
	counters       *message.GlobalCounters
	clock          clock.Clock
	log            logging.LeveledLogger

	transport Sender
	handler   MessageHandler
	gate      SyncGate
}

// NewManager creates a session manager.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.LocalNodeID == UndefinedNodeID {
		return nil, ErrInvalidNodeID
	}
	if config.GroupSessionID == 0 {
		config.GroupSessionID = DefaultGroupSessionID
	}
	if config.Clock == nil {
		config.Clock = clock.NewClock()
	}

	m := &Manager{
		localNodeID:    config.LocalNodeID,
		groupSessionID: config.GroupSessionID,
		table:          NewTable(config.MaxSessions),
		counters:       message.NewGlobalCounters(),
		clock:          config.Clock,
		transport:      config.Transport,
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("session")
	}
	return m, nil
}

// SetTransport sets the outbound transport.
func (m *Manager) SetTransport(s Sender) {
	m.transport = s
}

// SetMessageHandler sets the receiver of decoded inbound messages.
func (m *Manager) SetMessageHandler(h MessageHandler) {
	m.handler = h
}

// SetSyncGate sets where group keyed traffic for unsynchronized peers goes.
func (m *Manager) SetSyncGate(g SyncGate) {
	m.gate = g
}

// LocalNodeID returns this node's ID.
func (m *Manager) LocalNodeID() NodeID {
	return m.localNodeID
}

// GlobalCounters returns the node-wide outbound counters.
func (m *Manager) GlobalCounters() *message.GlobalCounters {
	return m.counters
}

// AddPeer registers an established peer session and returns its unicast handle.
func (m *Manager) AddPeer(config PeerConfig) (Handle, error) {
	if config.LocalSessionID == 0 || config.PeerSessionID == 0 {
		return Handle{}, ErrInvalidSessionID
	}

	state := NewPeerConnectionState(config, m.counters, m.clock.Now())
	if err := m.table.Add(state); err != nil {
		return Handle{}, err
	}

	if m.log != nil {
		m.log.Debugf("added peer %s on session %d", config.PeerNodeID, config.LocalSessionID)
	}
	return state.Handle(), nil
}

// RemovePeer drops a peer and releases anything queued for it.
func (m *Manager) RemovePeer(h Handle) error {
	state := m.table.Remove(h.LocalSessionID())
	if state == nil {
		return ErrSessionNotFound
	}

	if m.gate != nil {
		sends, receives := m.gate.DropPendingMessages(state.PeerNodeID())
		if m.log != nil && sends+receives > 0 {
			m.log.Debugf("dropped %d queued sends and %d queued receives for %s", sends, receives, state.PeerNodeID())
		}
	}
	return nil
}

// PeerConnectionState returns the state behind a handle.
func (m *Manager) PeerConnectionState(h Handle) (*PeerConnectionState, bool) {
	s := m.table.FindByLocalID(h.LocalSessionID())
	return s, s != nil
}

// PeerConnectionStateByNode returns the state for a peer node.
func (m *Manager) PeerConnectionStateByNode(node NodeID) (*PeerConnectionState, bool) {
	s := m.table.FindByNode(node)
	return s, s != nil
}

// PeerCount returns the number of registered peers.
func (m *Manager) PeerCount() int {
	return m.table.Count()
}

// SendMessage frames and sends a message on h. Group keyed messages to a
// peer whose counter is not trusted are handed to the SyncGate instead.
func (m *Manager) SendMessage(h Handle, payloadHeader *message.PayloadHeader, payload []byte) error {
	state, ok := m.PeerConnectionState(h)
	if !ok {
		return ErrSessionNotFound
	}

	if h.GroupKeyed() && !state.PeerMessageCounter().IsSyncCompleted() {
		if m.gate == nil {
			return ErrPeerNotSynced
		}
		return m.gate.QueueSendMessageAndStartSync(h, state, payloadHeader, payload)
	}

	if m.transport == nil {
		return ErrNoTransport
	}
	if !state.PeerAddress().IsValid() {
		return ErrInvalidPeerAddress
	}

	frame := message.Frame{
		Header: message.PacketHeader{
			SessionID:         state.PeerSessionID(),
			SessionType:       message.SessionTypeUnicast,
			SourceNodeID:      uint64(m.localNodeID),
			SourcePresent:     true,
			DestinationType:   message.DestinationNodeID,
			DestinationNodeID: uint64(state.PeerNodeID()),
		},
		Payload: *payloadHeader,
		Body:    payload,
	}
	if h.GroupKeyed() {
		frame.Header.SessionID = m.groupSessionID
		frame.Header.SessionType = message.SessionTypeGroup
	}
	frame.Header.MessageCounter = state.LocalMessageCounter().Next()

	data, err := frame.Encode()
	if err != nil {
		return err
	}
	if err := m.transport.Send(data, state.PeerAddress().Addr); err != nil {
		return fmt.Errorf("send to %s: %w", state.PeerAddress(), err)
	}

	state.MarkActivity(m.clock.Now(), false)
	if m.log != nil {
		m.log.Tracef("sent %s %s on %s", frame.Header, frame.Payload, h)
	}
	return nil
}

// OnMessageReceived is the inbound entry point for raw datagrams.
func (m *Manager) OnMessageReceived(msg *transport.ReceivedMessage) error {
	header, payload, err := message.DecodePacket(msg.Data)
	if err != nil {
		return err
	}
	if !header.IsSecure() {
		return ErrUnsecuredMessage
	}
	if header.DestinationType == message.DestinationNodeID &&
		NodeID(header.DestinationNodeID) != m.localNodeID {
		if m.log != nil {
			m.log.Debugf("ignoring message for node 0x%016X", header.DestinationNodeID)
		}
		return nil
	}

	if header.IsGroup() {
		state, ok := m.PeerConnectionStateByNode(NodeID(header.SourceNodeID))
		if !ok {
			return fmt.Errorf("group message from 0x%016X: %w", header.SourceNodeID, ErrSessionNotFound)
		}
		if !state.PeerMessageCounter().IsSyncCompleted() {
			if m.gate == nil {
				return ErrPeerNotSynced
			}
			return m.gate.QueueReceivedMessageAndStartSync(state.Handle().WithGroupKey(), state, &header, msg.PeerAddr, payload)
		}
	}

	return m.ProcessReceived(&header, msg.PeerAddr, payload)
}

// ProcessReceived runs replay checks on a message whose packet header is
// already decoded, then delivers it to the MessageHandler. Group counters
// are committed only after the handler accepted the message.
func (m *Manager) ProcessReceived(packetHeader *message.PacketHeader, peerAddress transport.PeerAddress, payload []byte) error {
	var (
		state    *PeerConnectionState
		handle   Handle
		verified VerifiedCounter
	)

	if packetHeader.IsGroup() {
		var ok bool
		if state, ok = m.PeerConnectionStateByNode(NodeID(packetHeader.SourceNodeID)); !ok {
			return ErrSessionNotFound
		}
		v, err := state.PeerMessageCounter().Verify(packetHeader.MessageCounter)
		if err != nil {
			return fmt.Errorf("group message from %s: %w", state.PeerNodeID(), err)
		}
		verified = v
		handle = state.Handle().WithGroupKey()
	} else {
		var ok bool
		if state, ok = m.PeerConnectionState(NewHandle(packetHeader.SessionID)); !ok {
			return ErrSessionNotFound
		}
		if !state.ReceptionState().CheckAndAccept(packetHeader.MessageCounter) {
			return fmt.Errorf("%w: counter %d on session %d", ErrReplayDetected, packetHeader.MessageCounter, packetHeader.SessionID)
		}
		handle = state.Handle()
	}

	payloadHeader, body, err := message.DecodePayload(payload)
	if err != nil {
		return err
	}

	if peerAddress.IsValid() {
		state.SetPeerAddress(peerAddress)
	}
	state.MarkActivity(m.clock.Now(), true)

	if m.handler == nil {
		return ErrNoMessageHandler
	}
	if err := m.handler.OnMessageReceived(handle, packetHeader, &payloadHeader, body); err != nil {
		return err
	}

	if handle.GroupKeyed() {
		return state.PeerMessageCounter().Commit(verified)
	}
	return nil
}
