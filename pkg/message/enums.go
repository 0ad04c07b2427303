// Package message implements the wire framing used by the counter
// synchronization stack: the packet and payload headers, outbound frame
// assembly, and the message counters with their replay windows.
//
// Message protection (encryption, privacy obfuscation) is performed by an
// external codec and is not part of this package.
package message

import "fmt"

// SessionType is the key class of a message, carried in the low two bits of
// the security flags.
type SessionType uint8

const (
	// SessionTypeUnicast is a per-peer session. Session ID 0 marks an
	// unsecured session.
	SessionTypeUnicast SessionType = 0
	SessionTypeGroup   SessionType = 1
)

var sessionTypeNames = [...]string{
	SessionTypeUnicast: "Unicast",
	SessionTypeGroup:   "Group",
}

func (s SessionType) String() string {
	if !s.IsValid() {
		return fmt.Sprintf("SessionType(%d)", uint8(s))
	}
	return sessionTypeNames[s]
}

// IsValid reports whether s is Unicast or Group.
func (s SessionType) IsValid() bool {
	return int(s) < len(sessionTypeNames)
}

// DestinationType selects the destination field layout (DSIZ flag bits).
type DestinationType uint8

const (
	DestinationNone    DestinationType = 0
	DestinationNodeID  DestinationType = 1 // 64-bit node ID
	DestinationGroupID DestinationType = 2 // 16-bit group ID
)

var destinationSizes = [...]int{
	DestinationNone:    0,
	DestinationNodeID:  NodeIDSize,
	DestinationGroupID: GroupIDSize,
}

func (d DestinationType) String() string {
	switch d {
	case DestinationNone:
		return "none"
	case DestinationNodeID:
		return "node"
	case DestinationGroupID:
		return "group"
	}
	return fmt.Sprintf("DestinationType(%d)", uint8(d))
}

// IsValid reports whether d has a defined field layout.
func (d DestinationType) IsValid() bool {
	return int(d) < len(destinationSizes)
}

// Size is the encoded length of the destination field, 0 when absent or
// invalid.
func (d DestinationType) Size() int {
	if !d.IsValid() {
		return 0
	}
	return destinationSizes[d]
}

// ProtocolID identifies the protocol that defines a message opcode.
type ProtocolID uint16

const (
	// ProtocolSecureChannel carries counter synchronization and session
	// control.
	ProtocolSecureChannel ProtocolID = 0x0000
	// ProtocolInteractionModel carries application traffic.
	ProtocolInteractionModel ProtocolID = 0x0001
	// ProtocolForTesting is reserved for isolated test environments.
	ProtocolForTesting ProtocolID = 0x0004
)

func (p ProtocolID) String() string {
	switch p {
	case ProtocolSecureChannel:
		return "SecureChannel"
	case ProtocolInteractionModel:
		return "InteractionModel"
	case ProtocolForTesting:
		return "Testing"
	}
	return fmt.Sprintf("Protocol(0x%04X)", uint16(p))
}

// MessageType names a message by protocol and opcode.
type MessageType struct {
	ProtocolID ProtocolID
	Opcode     uint8
}

func (t MessageType) String() string {
	return fmt.Sprintf("%s/0x%02X", t.ProtocolID, t.Opcode)
}
