package exchange

import (
	"time"

	"github.com/backkem/mcsync/pkg/message"
	"github.com/backkem/mcsync/pkg/session"
	"github.com/backkem/mcsync/pkg/system"
)

// Exchange is the view of an exchange given to delegates.
type Exchange interface {
	// SendMessage sends on the exchange's session. With
	// SendFlagExpectResponse the response timeout is (re)armed.
	SendMessage(t message.MessageType, payload []byte, flags SendFlags) error

	// SetResponseTimeout sets the timeout armed by SendFlagExpectResponse.
	// Zero disables it.
	SetResponseTimeout(d time.Duration)

	// Close cancels any response timer and releases the exchange.
	// Closing twice is a no-op.
	Close()

	// Session returns the handle the exchange runs on.
	Session() session.Handle
}

// Delegate receives events for an exchange.
type Delegate interface {
	// OnMessageReceived is called for each message on the exchange.
	// An error reports the message as not processed.
	OnMessageReceived(ec Exchange, packetHeader *message.PacketHeader, payloadHeader *message.PayloadHeader, payload []byte) error

	// OnResponseTimeout is called when no message arrived within the
	// response timeout after a send with SendFlagExpectResponse.
	OnResponseTimeout(ec Exchange)
}

// Context is a single exchange. It is only used from the dispatch context.
type Context struct {
	id       uint16
	role     ExchangeRole
	state    ExchangeState
	handle   session.Handle
	delegate Delegate
	manager  *Manager

	responseTimeout time.Duration
	responseTimer   *system.Timer
}

func (c *Context) key() exchangeKey {
	return exchangeKey{handle: c.handle, exchangeID: c.id, role: c.role}
}

// ID returns the exchange ID.
func (c *Context) ID() uint16 {
	return c.id
}

// Role returns the local role.
func (c *Context) Role() ExchangeRole {
	return c.role
}

// IsInitiator returns true if we are the exchange initiator.
func (c *Context) IsInitiator() bool {
	return c.role == ExchangeRoleInitiator
}

// IsClosed returns true if the exchange is closed.
func (c *Context) IsClosed() bool {
	return c.state == ExchangeStateClosed
}

func (c *Context) Session() session.Handle {
	return c.handle
}

// SetDelegate replaces the delegate.
func (c *Context) SetDelegate(d Delegate) {
	c.delegate = d
}

func (c *Context) SetResponseTimeout(d time.Duration) {
	c.responseTimeout = d
}

// IsResponseExpected reports whether a response timer is armed.
func (c *Context) IsResponseExpected() bool {
	return c.responseTimer != nil
}

func (c *Context) SendMessage(t message.MessageType, payload []byte, flags SendFlags) error {
	if c.state != ExchangeStateActive {
		return ErrExchangeClosed
	}

	header := message.PayloadHeader{
		ProtocolID:       t.ProtocolID,
		ProtocolOpcode:   t.Opcode,
		ExchangeID:       c.id,
		ProtocolVendorID: message.VendorIDStandard,
		Initiator:        c.role == ExchangeRoleInitiator,
	}
	if err := c.manager.sessions.SendMessage(c.handle, &header, payload); err != nil {
		return err
	}

	if flags.Has(SendFlagExpectResponse) && c.responseTimeout > 0 {
		c.cancelResponseTimer()
		c.responseTimer = c.manager.timers.StartTimer(c.responseTimeout, c.onResponseTimeout)
	}
	return nil
}

func (c *Context) Close() {
	if c.state == ExchangeStateClosed {
		return
	}
	c.state = ExchangeStateClosed
	c.cancelResponseTimer()
	c.manager.removeExchange(c)
}

func (c *Context) cancelResponseTimer() {
	if c.responseTimer != nil {
		c.responseTimer.Cancel()
		c.responseTimer = nil
	}
}

func (c *Context) onResponseTimeout() {
	c.responseTimer = nil
	if c.state != ExchangeStateActive {
		return
	}

	if c.manager.log != nil {
		c.manager.log.Debugf("exchange %d on %s: response timeout", c.id, c.handle)
	}
	if c.delegate != nil {
		c.delegate.OnResponseTimeout(c)
	}
}

// deliver hands an inbound message to the delegate. Receiving anything on
// the exchange satisfies an outstanding response timeout.
func (c *Context) deliver(packetHeader *message.PacketHeader, payloadHeader *message.PayloadHeader, payload []byte) error {
	if c.state != ExchangeStateActive {
		return ErrExchangeClosed
	}
	c.cancelResponseTimer()

	if c.delegate == nil {
		return nil
	}
	return c.delegate.OnMessageReceived(c, packetHeader, payloadHeader, payload)
}

var _ Exchange = (*Context)(nil)
