package node

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/backkem/mcsync/pkg/exchange"
	"github.com/backkem/mcsync/pkg/message"
	"github.com/backkem/mcsync/pkg/securechannel"
	"github.com/backkem/mcsync/pkg/securechannel/countersync"
	"github.com/backkem/mcsync/pkg/session"
	"github.com/backkem/mcsync/pkg/system"
	"github.com/backkem/mcsync/pkg/transport"
	"github.com/pion/logging"
)

// Node is a running counter synchronization stack.
// It coordinates all layers and owns their lifecycle.
type Node struct {
	config Config
	state  NodeState
	log    logging.LeveledLogger

	layer       *system.Layer
	udp         *transport.UDP
	udpMetrics  *transport.Metrics
	sessionMgr  *session.Manager
	exchangeMgr *exchange.Manager
	syncMgr     *countersync.Manager

	// mu guards state. It is never taken inside the dispatch context.
	mu sync.RWMutex
}

// NewNode creates a node with the given configuration.
// The node is created but not started. Call Start() to begin operation.
func NewNode(config Config) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	n := &Node{
		config: config,
		state:  NodeStateInitialized,
	}
	if config.LoggerFactory != nil {
		n.log = config.LoggerFactory.NewLogger("node")
	}

	if err := n.initManagers(); err != nil {
		return nil, err
	}
	return n, nil
}

// initManagers creates every layer and wires them together. The transport
// is attached in Start.
func (n *Node) initManagers() error {
	var err error

	n.udpMetrics = transport.NewMetrics(n.config.Registerer)
	n.layer = system.NewLayer(system.LayerConfig{
		Clock:         n.config.Clock,
		LoggerFactory: n.config.LoggerFactory,
	})

	n.sessionMgr, err = session.NewManager(session.ManagerConfig{
		LocalNodeID:    n.config.NodeID,
		GroupSessionID: n.config.GroupSessionID,
		MaxSessions:    n.config.MaxPeers,
		Clock:          n.config.Clock,
		LoggerFactory:  n.config.LoggerFactory,
	})
	if err != nil {
		return err
	}

	n.exchangeMgr = exchange.NewManager(exchange.ManagerConfig{
		Sessions:      n.sessionMgr,
		Timers:        n.layer,
		LoggerFactory: n.config.LoggerFactory,
	})
	n.sessionMgr.SetMessageHandler(n.exchangeMgr)

	n.syncMgr, err = countersync.NewManager(countersync.Config{
		Sessions:              n.sessionMgr,
		SyncTimeout:           n.config.SyncTimeout,
		RetransTableSize:      n.config.RetransTableSize,
		ReceiveTableSize:      n.config.ReceiveTableSize,
		DropPendingOnSyncFail: n.config.DropPendingOnSyncFail,
		Registerer:            n.config.Registerer,
		LoggerFactory:         n.config.LoggerFactory,
	})
	if err != nil {
		return err
	}
	if err := n.syncMgr.Init(n.exchangeMgr); err != nil {
		return err
	}
	n.sessionMgr.SetSyncGate(n.syncMgr)

	return n.registerProtocols()
}

// registerProtocols registers the remaining unsolicited handlers.
func (n *Node) registerProtocols() error {
	status := securechannel.NewStatusHandler(securechannel.StatusHandlerConfig{
		Sessions:      peerRemover{n},
		LoggerFactory: n.config.LoggerFactory,
	})
	if err := n.exchangeMgr.RegisterUnsolicitedHandlerForType(securechannel.StatusReportType, status); err != nil {
		return err
	}

	return n.exchangeMgr.RegisterUnsolicitedHandler(ApplicationProtocol, &appHandler{onMessage: n.config.OnMessage})
}

// Start opens the transport and begins processing messages.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.state.CanStart() {
		if n.state == NodeStateRunning {
			return ErrAlreadyStarted
		}
		return ErrAlreadyStopped
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	udp, err := transport.NewUDP(transport.UDPConfig{
		Conn:           n.config.Conn,
		ListenAddr:     n.config.ListenAddr,
		MessageHandler: n.onDatagram,
		Metrics:        n.udpMetrics,
		LoggerFactory:  n.config.LoggerFactory,
	})
	if err != nil {
		return err
	}
	if err := udp.Start(); err != nil {
		udp.Stop()
		return err
	}
	n.udp = udp

	if err := n.layer.Dispatch(func() { n.sessionMgr.SetTransport(udp) }); err != nil {
		udp.Stop()
		return err
	}

	n.state = NodeStateRunning
	if n.log != nil {
		n.log.Infof("node %s started on %s", n.config.NodeID, udp.LocalAddr())
	}
	return nil
}

// onDatagram moves a datagram from the read loop into the dispatch context.
func (n *Node) onDatagram(msg *transport.ReceivedMessage) {
	err := n.layer.Dispatch(func() {
		if err := n.sessionMgr.OnMessageReceived(msg); err != nil && n.log != nil {
			n.log.Debugf("dropped message from %s: %v", msg.PeerAddr, err)
		}
	})
	if err != nil && n.log != nil {
		n.log.Tracef("dispatch: %v", err)
	}
}

// Stop shuts the node down. Queued messages are discarded.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case NodeStateStopped:
		return ErrAlreadyStopped
	case NodeStateInitialized:
		n.state = NodeStateStopped
		n.layer.Close()
		return nil
	}

	// Stop in reverse order
	n.udp.Stop()
	n.layer.Dispatch(func() {
		n.syncMgr.Shutdown()
		n.exchangeMgr.Close()
	})
	n.layer.Close()

	n.state = NodeStateStopped
	if n.log != nil {
		n.log.Info("node stopped")
	}
	return nil
}

// State returns the current node state.
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Dispatch runs fn in the node's dispatch context. Use it to inspect the
// managers directly.
func (n *Node) Dispatch(fn func()) error {
	return n.layer.Dispatch(fn)
}

// AddPeer registers an established session with a peer.
func (n *Node) AddPeer(config session.PeerConfig) (h session.Handle, err error) {
	dispatchErr := n.layer.Dispatch(func() {
		h, err = n.sessionMgr.AddPeer(config)
	})
	if dispatchErr != nil {
		return session.Handle{}, dispatchErr
	}
	return h, err
}

// RemovePeer drops the session with peer along with any messages queued for it.
func (n *Node) RemovePeer(peer session.NodeID) (err error) {
	dispatchErr := n.layer.Dispatch(func() {
		state, ok := n.sessionMgr.PeerConnectionStateByNode(peer)
		if !ok {
			err = ErrPeerNotFound
			return
		}
		err = n.sessionMgr.RemovePeer(state.Handle())
	})
	if dispatchErr != nil {
		return dispatchErr
	}
	return err
}

// SendGroupMessage sends an application payload to peer under the group key.
// If the peer's counter is not yet synchronized the message is queued and
// synchronization starts.
func (n *Node) SendGroupMessage(peer session.NodeID, opcode uint8, payload []byte) error {
	return n.send(peer, true, opcode, payload)
}

// SendMessage sends an application payload to peer over its unicast session.
func (n *Node) SendMessage(peer session.NodeID, opcode uint8, payload []byte) error {
	return n.send(peer, false, opcode, payload)
}

func (n *Node) send(peer session.NodeID, groupKeyed bool, opcode uint8, payload []byte) (err error) {
	if n.State() != NodeStateRunning {
		return ErrNotStarted
	}

	dispatchErr := n.layer.Dispatch(func() {
		state, ok := n.sessionMgr.PeerConnectionStateByNode(peer)
		if !ok {
			err = ErrPeerNotFound
			return
		}
		h := state.Handle()
		if groupKeyed {
			h = h.WithGroupKey()
		}
		err = n.sendOneShot(h, message.MessageType{ProtocolID: ApplicationProtocol, Opcode: opcode}, payload)
	})
	if dispatchErr != nil {
		return dispatchErr
	}
	return err
}

// CloseSession tells peer the session is over and removes it locally.
func (n *Node) CloseSession(peer session.NodeID) (err error) {
	if n.State() != NodeStateRunning {
		return ErrNotStarted
	}

	dispatchErr := n.layer.Dispatch(func() {
		state, ok := n.sessionMgr.PeerConnectionStateByNode(peer)
		if !ok {
			err = ErrPeerNotFound
			return
		}
		h := state.Handle()
		if sendErr := n.sendOneShot(h, securechannel.StatusReportType, securechannel.CloseSession().Encode()); sendErr != nil && n.log != nil {
			n.log.Warnf("close session with %s: %v", peer, sendErr)
		}
		err = n.sessionMgr.RemovePeer(h)
	})
	if dispatchErr != nil {
		return dispatchErr
	}
	return err
}

// sendOneShot sends a single message on a new exchange and closes it.
func (n *Node) sendOneShot(h session.Handle, t message.MessageType, payload []byte) error {
	ec, err := n.exchangeMgr.NewExchange(h, nil)
	if err != nil {
		return err
	}
	defer ec.Close()

	if err := ec.SendMessage(t, payload, exchange.SendFlagNone); err != nil {
		return fmt.Errorf("send %s to %s: %w", t, h, err)
	}
	return nil
}

// PeerSyncState returns the trust state of peer's group counter.
func (n *Node) PeerSyncState(peer session.NodeID) (s session.SyncState, err error) {
	dispatchErr := n.layer.Dispatch(func() {
		state, ok := n.sessionMgr.PeerConnectionStateByNode(peer)
		if !ok {
			err = ErrPeerNotFound
			return
		}
		s = state.PeerMessageCounter().State()
	})
	if dispatchErr != nil {
		return s, dispatchErr
	}
	return s, err
}

// LocalAddr returns the transport's local address, or nil before Start.
func (n *Node) LocalAddr() net.Addr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.udp == nil {
		return nil
	}
	return n.udp.LocalAddr()
}

// NodeID returns this node's ID.
func (n *Node) NodeID() session.NodeID {
	return n.config.NodeID
}

// SessionManager returns the node's session manager.
// Only use it from inside Dispatch.
func (n *Node) SessionManager() *session.Manager {
	return n.sessionMgr
}

// ExchangeManager returns the node's exchange manager.
// Only use it from inside Dispatch.
func (n *Node) ExchangeManager() *exchange.Manager {
	return n.exchangeMgr
}

// CounterSyncManager returns the node's counter synchronization manager.
// Only use it from inside Dispatch.
func (n *Node) CounterSyncManager() *countersync.Manager {
	return n.syncMgr
}

// LoggerFactory returns the node's logger factory.
// Returns nil if no logger factory was configured.
func (n *Node) LoggerFactory() logging.LoggerFactory {
	return n.config.LoggerFactory
}

// peerRemover removes sessions closed by the peer and reports them to the
// OnSessionClosed callback.
type peerRemover struct {
	n *Node
}

func (r peerRemover) RemovePeer(h session.Handle) error {
	state, ok := r.n.sessionMgr.PeerConnectionState(h)
	if !ok {
		return session.ErrSessionNotFound
	}
	peer := state.PeerNodeID()
	if err := r.n.sessionMgr.RemovePeer(h); err != nil {
		return err
	}
	if r.n.config.OnSessionClosed != nil {
		r.n.config.OnSessionClosed(peer)
	}
	return nil
}
