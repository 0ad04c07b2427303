package exchange

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/backkem/mcsync/pkg/message"
	"github.com/backkem/mcsync/pkg/session"
	"github.com/backkem/mcsync/pkg/system"
	"github.com/pion/logging"
)

// SessionLayer sends payloads on a session. *session.Manager implements it.
type SessionLayer interface {
	SendMessage(h session.Handle, payloadHeader *message.PayloadHeader, payload []byte) error
}

// TimerStarter schedules callbacks in the dispatch context.
// *system.Layer implements it.
type TimerStarter interface {
	StartTimer(d time.Duration, fn func()) *system.Timer
}

// ManagerConfig configures the exchange Manager.
type ManagerConfig struct {
	// Sessions carries outbound messages. Required.
	Sessions SessionLayer

	// Timers drives response timeouts. Required.
	Timers TimerStarter

	LoggerFactory logging.LoggerFactory
}

type exchangeKey struct {
	handle     session.Handle
	exchangeID uint16
	role       ExchangeRole
}

// Manager routes inbound messages to exchanges and opens new ones.
// It is only used from the dispatch context, and never holds state across
// a delegate call, so delegates may open, close or send freely.
type Manager struct {
	sessions SessionLayer
	timers   TimerStarter
	log      logging.LeveledLogger

	exchanges map[exchangeKey]*Context

	// Type handlers take precedence over protocol handlers.
	typeHandlers     map[message.MessageType]Delegate
	protocolHandlers map[message.ProtocolID]Delegate

	// First ID is random, subsequent ones increment.
	nextExchangeID uint16
}

// NewManager creates an exchange manager.
func NewManager(config ManagerConfig) *Manager {
	m := &Manager{
		sessions:         config.Sessions,
		timers:           config.Timers,
		exchanges:        make(map[exchangeKey]*Context),
		typeHandlers:     make(map[message.MessageType]Delegate),
		protocolHandlers: make(map[message.ProtocolID]Delegate),
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("exchange")
	}

	var buf [2]byte
	if _, err := rand.Read(buf[:]); err == nil {
		m.nextExchangeID = binary.LittleEndian.Uint16(buf[:])
	}
	return m
}

// RegisterUnsolicitedHandler makes d the delegate of every exchange opened
// by an unsolicited message of protocol p.
func (m *Manager) RegisterUnsolicitedHandler(p message.ProtocolID, d Delegate) error {
	if _, exists := m.protocolHandlers[p]; exists {
		return ErrHandlerExists
	}
	m.protocolHandlers[p] = d
	return nil
}

// UnregisterUnsolicitedHandler removes the handler for protocol p.
func (m *Manager) UnregisterUnsolicitedHandler(p message.ProtocolID) error {
	if _, exists := m.protocolHandlers[p]; !exists {
		return ErrNoHandler
	}
	delete(m.protocolHandlers, p)
	return nil
}

// RegisterUnsolicitedHandlerForType makes d the delegate of exchanges opened
// by an unsolicited message of type t.
func (m *Manager) RegisterUnsolicitedHandlerForType(t message.MessageType, d Delegate) error {
	if _, exists := m.typeHandlers[t]; exists {
		return ErrHandlerExists
	}
	m.typeHandlers[t] = d
	return nil
}

// UnregisterUnsolicitedHandlerForType removes the handler for type t.
func (m *Manager) UnregisterUnsolicitedHandlerForType(t message.MessageType) error {
	if _, exists := m.typeHandlers[t]; !exists {
		return ErrNoHandler
	}
	delete(m.typeHandlers, t)
	return nil
}

func (m *Manager) unsolicitedHandler(t message.MessageType) (Delegate, bool) {
	if d, ok := m.typeHandlers[t]; ok {
		return d, true
	}
	d, ok := m.protocolHandlers[t.ProtocolID]
	return d, ok
}

// NewExchange opens an exchange as initiator on h.
func (m *Manager) NewExchange(h session.Handle, d Delegate) (Exchange, error) {
	if !h.IsValid() {
		return nil, ErrInvalidSession
	}

	ec := &Context{
		role:     ExchangeRoleInitiator,
		state:    ExchangeStateActive,
		handle:   h,
		delegate: d,
		manager:  m,
	}
	// Skip IDs still held by open exchanges on the same session.
	for i := 0; i < 1<<16; i++ {
		ec.id = m.nextExchangeID
		m.nextExchangeID++
		if _, exists := m.exchanges[ec.key()]; !exists {
			m.exchanges[ec.key()] = ec
			return ec, nil
		}
	}
	return nil, ErrExchangeExists
}

// OnMessageReceived routes a decoded message. It implements
// session.MessageHandler.
func (m *Manager) OnMessageReceived(h session.Handle, packetHeader *message.PacketHeader, payloadHeader *message.PayloadHeader, payload []byte) error {
	role := ExchangeRoleInitiator
	if payloadHeader.Initiator {
		role = ExchangeRoleResponder
	}
	key := exchangeKey{handle: h, exchangeID: payloadHeader.ExchangeID, role: role}

	if ec, ok := m.exchanges[key]; ok {
		return ec.deliver(packetHeader, payloadHeader, payload)
	}

	if !payloadHeader.Initiator {
		return ErrUnsolicitedNotInitiator
	}
	if payloadHeader.ProtocolVendorID != message.VendorIDStandard {
		return ErrNoHandler
	}
	handler, ok := m.unsolicitedHandler(payloadHeader.MessageType())
	if !ok {
		return ErrNoHandler
	}

	ec := &Context{
		id:       payloadHeader.ExchangeID,
		role:     ExchangeRoleResponder,
		state:    ExchangeStateActive,
		handle:   h,
		delegate: handler,
		manager:  m,
	}
	m.exchanges[key] = ec

	if m.log != nil {
		m.log.Tracef("new responder exchange %d on %s for %s", ec.id, h, payloadHeader.MessageType())
	}

	if err := ec.deliver(packetHeader, payloadHeader, payload); err != nil {
		ec.Close()
		return err
	}
	return nil
}

func (m *Manager) removeExchange(ec *Context) {
	if m.exchanges[ec.key()] == ec {
		delete(m.exchanges, ec.key())
	}
}

// ExchangeCount returns the number of open exchanges.
func (m *Manager) ExchangeCount() int {
	return len(m.exchanges)
}

// Close closes every open exchange.
func (m *Manager) Close() {
	open := make([]*Context, 0, len(m.exchanges))
	for _, ec := range m.exchanges {
		open = append(open, ec)
	}
	for _, ec := range open {
		ec.Close()
	}
}
