package message

import (
	"encoding/binary"
	"fmt"
)

// PacketHeader is the unencrypted header that precedes every message on the
// wire. All multi-byte fields are little-endian.
type PacketHeader struct {
	// SessionID identifies the key context. For group messages this is the
	// group session ID; for unicast it is the receiver's local session ID.
	SessionID uint16

	// MessageCounter is the sender's counter value for this message.
	MessageCounter uint32

	// SessionType is unicast or group.
	SessionType SessionType

	// SourceNodeID is valid only when SourcePresent is true.
	// Group messages always carry it.
	SourceNodeID  uint64
	SourcePresent bool

	DestinationType    DestinationType
	DestinationNodeID  uint64
	DestinationGroupID uint16

	Privacy    bool
	Control    bool
	Extensions bool
}

// Size returns the encoded size of the packet header in bytes.
func (h *PacketHeader) Size() int {
	size := MinHeaderSize
	if h.SourcePresent {
		size += NodeIDSize
	}
	return size + h.DestinationType.Size()
}

// Encode serializes the packet header.
func (h *PacketHeader) Encode() []byte {
	buf := make([]byte, h.Size())
	h.EncodeTo(buf)
	return buf
}

// EncodeTo serializes the header into buf, which must hold at least Size()
// bytes. Returns the number of bytes written.
func (h *PacketHeader) EncodeTo(buf []byte) int {
	buf[0] = h.messageFlags()
	binary.LittleEndian.PutUint16(buf[1:], h.SessionID)
	buf[3] = h.securityFlags()
	binary.LittleEndian.PutUint32(buf[4:], h.MessageCounter)
	offset := MinHeaderSize

	if h.SourcePresent {
		binary.LittleEndian.PutUint64(buf[offset:], h.SourceNodeID)
		offset += NodeIDSize
	}

	switch h.DestinationType {
	case DestinationNodeID:
		binary.LittleEndian.PutUint64(buf[offset:], h.DestinationNodeID)
		offset += NodeIDSize
	case DestinationGroupID:
		binary.LittleEndian.PutUint16(buf[offset:], h.DestinationGroupID)
		offset += GroupIDSize
	}

	return offset
}

func (h *PacketHeader) messageFlags() uint8 {
	flags := MessageVersion << flagVersionShift
	if h.SourcePresent {
		flags |= flagSourcePresent
	}
	return flags | uint8(h.DestinationType)&flagDSIZMask
}

func (h *PacketHeader) securityFlags() uint8 {
	flags := uint8(h.SessionType) & secFlagSessionTypeMask
	if h.Extensions {
		flags |= secFlagExtensions
	}
	if h.Control {
		flags |= secFlagControl
	}
	if h.Privacy {
		flags |= secFlagPrivacy
	}
	return flags
}

// Decode parses a packet header from data and returns the number of bytes
// consumed. The length is checked before every field is read.
func (h *PacketHeader) Decode(data []byte) (int, error) {
	if len(data) < MinHeaderSize {
		return 0, ErrMessageTooShort
	}

	msgFlags := data[0]
	if (msgFlags>>flagVersionShift)&flagVersionMask != MessageVersion {
		return 0, ErrInvalidVersion
	}
	h.SourcePresent = msgFlags&flagSourcePresent != 0
	h.DestinationType = DestinationType(msgFlags & flagDSIZMask)
	if !h.DestinationType.IsValid() {
		return 0, ErrInvalidDSIZ
	}

	h.SessionID = binary.LittleEndian.Uint16(data[1:])

	secFlags := data[3]
	h.SessionType = SessionType(secFlags & secFlagSessionTypeMask)
	if !h.SessionType.IsValid() {
		return 0, ErrInvalidSessionType
	}
	h.Extensions = secFlags&secFlagExtensions != 0
	h.Control = secFlags&secFlagControl != 0
	h.Privacy = secFlags&secFlagPrivacy != 0

	h.MessageCounter = binary.LittleEndian.Uint32(data[4:])
	offset := MinHeaderSize

	if len(data) < h.Size() {
		return 0, ErrMessageTooShort
	}

	h.SourceNodeID = 0
	if h.SourcePresent {
		h.SourceNodeID = binary.LittleEndian.Uint64(data[offset:])
		offset += NodeIDSize
	}

	h.DestinationNodeID = 0
	h.DestinationGroupID = 0
	switch h.DestinationType {
	case DestinationNodeID:
		h.DestinationNodeID = binary.LittleEndian.Uint64(data[offset:])
		offset += NodeIDSize
	case DestinationGroupID:
		h.DestinationGroupID = binary.LittleEndian.Uint16(data[offset:])
		offset += GroupIDSize
	}

	return offset, nil
}

// IsSecure returns true unless this is an unsecured unicast message
// (unicast session type with session ID 0).
func (h *PacketHeader) IsSecure() bool {
	return !(h.SessionType == SessionTypeUnicast && h.SessionID == 0)
}

// IsGroup returns true if the message is protected by a group key.
func (h *PacketHeader) IsGroup() bool {
	return h.SessionType == SessionTypeGroup
}

// Validate checks structural constraints that are independent of any session.
func (h *PacketHeader) Validate() error {
	if h.SessionType == SessionTypeGroup && !h.SourcePresent {
		return ErrMissingSourceNodeID
	}
	if h.SessionType == SessionTypeUnicast && h.DestinationType == DestinationGroupID {
		return ErrInvalidDSIZ
	}
	return nil
}

// String returns a compact description for logging.
func (h PacketHeader) String() string {
	return fmt.Sprintf("PacketHeader{Session=%d, Type=%s, Counter=%d, Source=0x%016X}",
		h.SessionID, h.SessionType, h.MessageCounter, h.SourceNodeID)
}
