package countersync

import (
	"fmt"
	"io"

	"github.com/backkem/mcsync/pkg/exchange"
	"github.com/backkem/mcsync/pkg/message"
	"github.com/backkem/mcsync/pkg/securechannel"
	"github.com/backkem/mcsync/pkg/session"
	"github.com/backkem/mcsync/pkg/transport"
	"github.com/pion/logging"
)

// ExchangeManager opens exchanges and routes unsolicited messages.
// *exchange.Manager implements it.
type ExchangeManager interface {
	NewExchange(h session.Handle, d exchange.Delegate) (exchange.Exchange, error)
	RegisterUnsolicitedHandlerForType(t message.MessageType, d exchange.Delegate) error
	UnregisterUnsolicitedHandlerForType(t message.MessageType) error
}

// Manager runs counter synchronization for every peer of a node and holds
// the group keyed traffic waiting on it. It implements session.SyncGate and
// exchange.Delegate.
type Manager struct {
	exchanges ExchangeManager
	sessions  SessionLayer
	config    Config
	metrics   *Metrics
	log       logging.LeveledLogger

	retransTable *pendingTable[retransEntry]
	receiveTable *pendingTable[receiveEntry]
}

// NewManager creates a Manager. Init must be called before use.
func NewManager(config Config) (*Manager, error) {
	if config.Sessions == nil {
		return nil, ErrNoSessionLayer
	}
	config.applyDefaults()

	m := &Manager{
		sessions:     config.Sessions,
		config:       config,
		metrics:      NewMetrics(config.Registerer),
		retransTable: newPendingTable[retransEntry](config.RetransTableSize),
		receiveTable: newPendingTable[receiveEntry](config.ReceiveTableSize),
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("countersync")
	}
	return m, nil
}

// Init registers the manager as the handler for unsolicited sync requests
// and responses.
func (m *Manager) Init(exchanges ExchangeManager) error {
	if exchanges == nil || m.exchanges != nil {
		return ErrIncorrectState
	}

	if err := exchanges.RegisterUnsolicitedHandlerForType(securechannel.MsgCounterSyncReq, m); err != nil {
		return err
	}
	if err := exchanges.RegisterUnsolicitedHandlerForType(securechannel.MsgCounterSyncRsp, m); err != nil {
		_ = exchanges.UnregisterUnsolicitedHandlerForType(securechannel.MsgCounterSyncReq)
		return err
	}

	m.exchanges = exchanges
	return nil
}

// Shutdown unregisters the handlers. Calling it again is a no-op.
func (m *Manager) Shutdown() {
	if m.exchanges == nil {
		return
	}
	_ = m.exchanges.UnregisterUnsolicitedHandlerForType(securechannel.MsgCounterSyncReq)
	_ = m.exchanges.UnregisterUnsolicitedHandlerForType(securechannel.MsgCounterSyncRsp)
	m.exchanges = nil
}

// Metrics returns the manager's collectors.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// StartSync requests the peer's counter unless a request is already
// outstanding or the counter is already trusted.
func (m *Manager) StartSync(h session.Handle, state *session.PeerConnectionState) error {
	if m.exchanges == nil {
		return ErrIncorrectState
	}

	switch state.PeerMessageCounter().State() {
	case session.SyncStateInProgress, session.SyncStateSynced:
		return nil
	}
	return m.SendMsgCounterSyncReq(h, state)
}

// SendMsgCounterSyncReq sends a fresh challenge to the peer on its unicast
// session and arms the response timeout. On failure the peer is returned to
// the unsynchronized state.
func (m *Manager) SendMsgCounterSyncReq(h session.Handle, state *session.PeerConnectionState) (err error) {
	if m.exchanges == nil {
		return ErrIncorrectState
	}

	counter := state.PeerMessageCounter()
	var ec exchange.Exchange
	var started bool
	defer func() {
		if err == nil {
			return
		}
		// A challenge outstanding from an earlier request stays valid.
		if started {
			counter.SyncFail()
		}
		if ec != nil {
			ec.Close()
		}
		err = fmt.Errorf("counter sync request to %s: %w", state.PeerNodeID(), err)
	}()

	// The request itself must not be group keyed, or it would be queued
	// behind the very sync it starts.
	ec, err = m.exchanges.NewExchange(h.Unicast(), m)
	if err != nil {
		return err
	}

	var challenge Challenge
	if _, err = io.ReadFull(m.config.Rand, challenge[:]); err != nil {
		return err
	}
	if err = counter.StartSync(challenge); err != nil {
		return err
	}
	started = true

	ec.SetResponseTimeout(m.config.SyncTimeout)
	if err = ec.SendMessage(securechannel.MsgCounterSyncReq, EncodeSyncRequest(challenge), exchange.SendFlagExpectResponse); err != nil {
		return err
	}

	m.metrics.RequestsSent.Inc()
	if m.log != nil {
		m.log.Debugf("sent counter sync request to %s", state.PeerNodeID())
	}
	return nil
}

// QueueSendMessageAndStartSync holds an outbound message until the peer is
// synced, then starts synchronization. The message is queued first so a
// response can never find it missing.
func (m *Manager) QueueSendMessageAndStartSync(h session.Handle, state *session.PeerConnectionState, payloadHeader *message.PayloadHeader, payload []byte) error {
	if m.exchanges == nil {
		return ErrIncorrectState
	}

	entry := retransEntry{
		handle:  h,
		header:  *payloadHeader,
		payload: append([]byte(nil), payload...),
	}
	if err := m.retransTable.add(state.PeerNodeID(), entry); err != nil {
		return err
	}
	m.updatePending()

	return m.StartSync(h, state)
}

// QueueReceivedMessageAndStartSync holds an inbound message until its sender
// is synced, then starts synchronization. The message is processed only
// after a successful sync.
func (m *Manager) QueueReceivedMessageAndStartSync(h session.Handle, state *session.PeerConnectionState, packetHeader *message.PacketHeader, peerAddress transport.PeerAddress, payload []byte) error {
	if m.exchanges == nil {
		return ErrIncorrectState
	}

	entry := receiveEntry{
		header:      *packetHeader,
		peerAddress: peerAddress,
		payload:     append([]byte(nil), payload...),
	}
	if err := m.receiveTable.add(state.PeerNodeID(), entry); err != nil {
		return err
	}
	m.updatePending()

	return m.StartSync(h, state)
}

// OnMessageReceived implements exchange.Delegate.
func (m *Manager) OnMessageReceived(ec exchange.Exchange, packetHeader *message.PacketHeader, payloadHeader *message.PayloadHeader, payload []byte) error {
	switch payloadHeader.MessageType() {
	case securechannel.MsgCounterSyncReq:
		return m.HandleMsgCounterSyncReq(ec, packetHeader, payload)
	case securechannel.MsgCounterSyncRsp:
		return m.HandleMsgCounterSyncResp(ec, packetHeader, payload)
	default:
		ec.Close()
		return fmt.Errorf("%w: %s", ErrInvalidMessageType, payloadHeader.MessageType())
	}
}

// HandleMsgCounterSyncReq answers a peer's request with this node's counter
// and the echoed challenge. The requester's own counter state is not
// touched.
func (m *Manager) HandleMsgCounterSyncReq(ec exchange.Exchange, packetHeader *message.PacketHeader, payload []byte) error {
	defer ec.Close()

	challenge, err := DecodeSyncRequest(payload)
	if err != nil {
		return err
	}
	if !packetHeader.SourcePresent {
		return ErrMissingSourceNodeID
	}
	state, ok := m.sessions.PeerConnectionState(ec.Session())
	if !ok {
		return session.ErrSessionNotFound
	}

	counter := state.LocalMessageCounter().Current()
	if err := ec.SendMessage(securechannel.MsgCounterSyncRsp, EncodeSyncResponse(counter, challenge), exchange.SendFlagNone); err != nil {
		return fmt.Errorf("counter sync response to %s: %w", state.PeerNodeID(), err)
	}

	m.metrics.RequestsAnswered.Inc()
	if m.log != nil {
		m.log.Debugf("answered counter sync request from %s with %d", state.PeerNodeID(), counter)
	}
	return nil
}

// HandleMsgCounterSyncResp completes a sync whose challenge matches and
// releases everything queued for the peer. The exchange is closed either way.
func (m *Manager) HandleMsgCounterSyncResp(ec exchange.Exchange, packetHeader *message.PacketHeader, payload []byte) error {
	defer ec.Close()

	state, ok := m.sessions.PeerConnectionState(ec.Session())
	if !ok {
		m.metrics.Responses.WithLabelValues(resultNoSession).Inc()
		return session.ErrSessionNotFound
	}

	counter, challenge, err := DecodeSyncResponse(payload)
	if err != nil {
		m.metrics.Responses.WithLabelValues(resultMalformed).Inc()
		return err
	}
	if !packetHeader.SourcePresent {
		m.metrics.Responses.WithLabelValues(resultMalformed).Inc()
		return ErrMissingSourceNodeID
	}
	peer := state.PeerNodeID()
	if source := session.NodeID(packetHeader.SourceNodeID); source != peer {
		m.metrics.Responses.WithLabelValues(resultMalformed).Inc()
		return fmt.Errorf("%w: %s answered on the session of %s", ErrSourceNodeMismatch, source, peer)
	}

	if err := state.PeerMessageCounter().VerifyChallenge(counter, challenge); err != nil {
		m.metrics.Responses.WithLabelValues(resultMismatch).Inc()
		if m.log != nil {
			m.log.Warnf("rejected counter sync response from %s: %v", state.PeerNodeID(), err)
		}
		return fmt.Errorf("counter sync response from %s: %w", state.PeerNodeID(), err)
	}

	m.metrics.Responses.WithLabelValues(resultSynced).Inc()
	if m.log != nil {
		m.log.Debugf("synced counter of %s at %d", state.PeerNodeID(), counter)
	}

	m.RetransPendingMessages(peer)
	m.ProcessPendingMessages(peer)
	return nil
}

// OnResponseTimeout implements exchange.Delegate. The peer returns to the
// unsynchronized state so the next message for it starts a new sync.
func (m *Manager) OnResponseTimeout(ec exchange.Exchange) {
	defer ec.Close()

	state, ok := m.sessions.PeerConnectionState(ec.Session())
	if !ok {
		if m.log != nil {
			m.log.Warnf("counter sync timed out on unknown %s", ec.Session())
		}
		return
	}

	state.PeerMessageCounter().SyncFail()
	m.metrics.Timeouts.Inc()
	if m.log != nil {
		m.log.Infof("counter sync with %s timed out", state.PeerNodeID())
	}

	if m.config.DropPendingOnSyncFail {
		m.DropPendingMessages(state.PeerNodeID())
	}
}

// RetransPendingMessages sends every queued outbound message for peer.
// Send failures are logged and the message is dropped.
func (m *Manager) RetransPendingMessages(peer session.NodeID) {
	entries := m.retransTable.take(peer)
	if len(entries) == 0 {
		return
	}
	m.updatePending()
	m.metrics.Released.WithLabelValues(tableSend).Add(float64(len(entries)))

	for i := range entries {
		e := &entries[i]
		if err := m.sessions.SendMessage(e.handle, &e.header, e.payload); err != nil && m.log != nil {
			m.log.Warnf("dropped queued %s to %s: %v", e.header.MessageType(), peer, err)
		}
	}
}

// ProcessPendingMessages re-injects every queued inbound message from peer
// into the session layer's receive path.
func (m *Manager) ProcessPendingMessages(peer session.NodeID) {
	entries := m.receiveTable.take(peer)
	if len(entries) == 0 {
		return
	}
	m.updatePending()
	m.metrics.Released.WithLabelValues(tableReceive).Add(float64(len(entries)))

	for i := range entries {
		e := &entries[i]
		if err := m.sessions.ProcessReceived(&e.header, e.peerAddress, e.payload); err != nil && m.log != nil {
			m.log.Debugf("queued message from %s rejected: %v", peer, err)
		}
	}
}

// DropPendingMessages discards everything queued for peer.
func (m *Manager) DropPendingMessages(peer session.NodeID) (sends, receives int) {
	sends = m.retransTable.remove(peer)
	receives = m.receiveTable.remove(peer)
	if sends+receives > 0 {
		m.updatePending()
	}
	return sends, receives
}

// PendingSendCount returns the outbound messages queued for peer.
func (m *Manager) PendingSendCount(peer session.NodeID) int {
	return m.retransTable.countFor(peer)
}

// PendingReceiveCount returns the inbound messages queued from peer.
func (m *Manager) PendingReceiveCount(peer session.NodeID) int {
	return m.receiveTable.countFor(peer)
}

// PendingSendLen returns the number of used retransmission table slots.
func (m *Manager) PendingSendLen() int {
	return m.retransTable.size()
}

// PendingReceiveLen returns the number of used receive table slots.
func (m *Manager) PendingReceiveLen() int {
	return m.receiveTable.size()
}

func (m *Manager) updatePending() {
	m.metrics.Pending.WithLabelValues(tableSend).Set(float64(m.retransTable.size()))
	m.metrics.Pending.WithLabelValues(tableReceive).Set(float64(m.receiveTable.size()))
}

var (
	_ session.SyncGate  = (*Manager)(nil)
	_ exchange.Delegate = (*Manager)(nil)
	_ ExchangeManager   = (*exchange.Manager)(nil)
	_ SessionLayer      = (*session.Manager)(nil)
)
