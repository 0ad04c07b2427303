package message

import "errors"

// Message layer errors.
var (
	// Header decoding errors
	ErrMessageTooShort     = errors.New("message: data too short")
	ErrInvalidVersion      = errors.New("message: invalid version (must be 0)")
	ErrInvalidSessionType  = errors.New("message: invalid session type (reserved value)")
	ErrInvalidDSIZ         = errors.New("message: invalid DSIZ field (reserved value)")
	ErrMissingSourceNodeID = errors.New("message: group session requires source node ID")
	ErrPayloadTooShort     = errors.New("message: payload too short for payload header")

	// Frame errors
	ErrMessageTooLong = errors.New("message: exceeds maximum size")
)

// Message format constants.
const (
	// MessageVersion is the only supported message format version.
	MessageVersion uint8 = 0

	// MinHeaderSize is the minimum packet header size in bytes.
	// Message Flags (1) + Session ID (2) + Security Flags (1) + Message Counter (4) = 8
	MinHeaderSize = 8

	// MinPayloadHeaderSize is the minimum payload header size in bytes.
	// Exchange Flags (1) + Opcode (1) + Exchange ID (2) + Protocol ID (2) = 6
	MinPayloadHeaderSize = 6

	// MaxUDPMessageSize is the maximum message size for UDP transport
	// (IPv6 minimum MTU).
	MaxUDPMessageSize = 1280

	// NodeIDSize is the size of a 64-bit Node ID in bytes.
	NodeIDSize = 8

	// GroupIDSize is the size of a 16-bit Group ID in bytes.
	GroupIDSize = 2
)

// Message Flags bit positions.
const (
	flagDSIZMask      uint8 = 0x03
	flagSourcePresent uint8 = 0x04
	flagVersionShift        = 4
	flagVersionMask   uint8 = 0x0F
)

// Security Flags bit positions.
const (
	secFlagSessionTypeMask uint8 = 0x03
	secFlagExtensions      uint8 = 0x20
	secFlagControl         uint8 = 0x40
	secFlagPrivacy         uint8 = 0x80
)

// Exchange Flags bit positions.
const (
	exchFlagInitiator       uint8 = 0x01
	exchFlagAcknowledgement uint8 = 0x02
	exchFlagReliability     uint8 = 0x04
	exchFlagVendor          uint8 = 0x10
)

// Counter constants.
const (
	// CounterWindowSize is the size of the replay detection window.
	CounterWindowSize = 32

	// CounterInitMax is the maximum initial counter value (2^28).
	// Counters are initialized to random values in [1, CounterInitMax].
	CounterInitMax = 1 << 28
)

// UnspecifiedNodeID is the reserved "no node" identifier.
const UnspecifiedNodeID uint64 = 0

// VendorIDStandard is the standard vendor namespace for protocol IDs.
const VendorIDStandard uint16 = 0x0000
