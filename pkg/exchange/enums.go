// Package exchange multiplexes conversations over peer sessions.
//
// An exchange is one request/response conversation, identified by the
// session handle it runs on, its exchange ID and the local role. The
// initiator picks the exchange ID and sets the I flag on everything it
// sends. Messages that match no exchange open a responder exchange if a
// handler is registered for their protocol.
//
// Reliability (acknowledgements and retransmission) is not provided here.
// A caller that expects a reply arms a response timeout instead.
package exchange

// ExchangeRole indicates whether this node opened the exchange.
type ExchangeRole int

const (
	ExchangeRoleUnknown ExchangeRole = iota

	// ExchangeRoleInitiator allocated the exchange ID and sets the I flag.
	ExchangeRoleInitiator

	// ExchangeRoleResponder reuses the initiator's exchange ID.
	ExchangeRoleResponder
)

// String returns a human-readable name for the exchange role.
func (r ExchangeRole) String() string {
	switch r {
	case ExchangeRoleInitiator:
		return "Initiator"
	case ExchangeRoleResponder:
		return "Responder"
	default:
		return "Unknown"
	}
}

// ExchangeState tracks the lifecycle of an exchange.
type ExchangeState int

const (
	ExchangeStateUnknown ExchangeState = iota
	ExchangeStateActive
	ExchangeStateClosed
)

// String returns a human-readable name for the exchange state.
func (s ExchangeState) String() string {
	switch s {
	case ExchangeStateActive:
		return "Active"
	case ExchangeStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// SendFlags modify how a message is sent.
type SendFlags uint8

const (
	// SendFlagExpectResponse arms the exchange's response timeout.
	SendFlagExpectResponse SendFlags = 1 << iota
)

// SendFlagNone sends a message with no special handling.
const SendFlagNone SendFlags = 0

// Has reports whether all bits of f are set.
func (s SendFlags) Has(f SendFlags) bool {
	return s&f == f
}
