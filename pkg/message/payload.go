package message

import (
	"encoding/binary"
	"fmt"
)

// PayloadHeader is the exchange-level header that starts the message
// payload. For protected messages it travels inside the encrypted region.
type PayloadHeader struct {
	ProtocolID     ProtocolID
	ProtocolOpcode uint8
	ExchangeID     uint16

	// ProtocolVendorID is only encoded when VendorPresent is true.
	ProtocolVendorID uint16
	VendorPresent    bool

	// AckedMessageCounter is valid only when Acknowledgement is true.
	AckedMessageCounter uint32

	// Initiator is set on every message sent by the exchange initiator (I Flag).
	Initiator bool

	Acknowledgement bool
	Reliability     bool
}

// Size returns the encoded size of the payload header in bytes.
func (p *PayloadHeader) Size() int {
	size := MinPayloadHeaderSize
	if p.VendorPresent {
		size += 2
	}
	if p.Acknowledgement {
		size += 4
	}
	return size
}

// Encode serializes the payload header.
func (p *PayloadHeader) Encode() []byte {
	buf := make([]byte, p.Size())
	p.EncodeTo(buf)
	return buf
}

// EncodeTo serializes the payload header into buf, which must hold at least
// Size() bytes. Returns the number of bytes written.
func (p *PayloadHeader) EncodeTo(buf []byte) int {
	buf[0] = p.exchangeFlags()
	buf[1] = p.ProtocolOpcode
	binary.LittleEndian.PutUint16(buf[2:], p.ExchangeID)
	offset := 4

	if p.VendorPresent {
		binary.LittleEndian.PutUint16(buf[offset:], p.ProtocolVendorID)
		offset += 2
	}

	binary.LittleEndian.PutUint16(buf[offset:], uint16(p.ProtocolID))
	offset += 2

	if p.Acknowledgement {
		binary.LittleEndian.PutUint32(buf[offset:], p.AckedMessageCounter)
		offset += 4
	}

	return offset
}

func (p *PayloadHeader) exchangeFlags() uint8 {
	var flags uint8
	if p.Initiator {
		flags |= exchFlagInitiator
	}
	if p.Acknowledgement {
		flags |= exchFlagAcknowledgement
	}
	if p.Reliability {
		flags |= exchFlagReliability
	}
	if p.VendorPresent {
		flags |= exchFlagVendor
	}
	return flags
}

// Decode parses a payload header from data and returns the number of bytes
// consumed.
func (p *PayloadHeader) Decode(data []byte) (int, error) {
	if len(data) < MinPayloadHeaderSize {
		return 0, ErrPayloadTooShort
	}

	flags := data[0]
	p.Initiator = flags&exchFlagInitiator != 0
	p.Acknowledgement = flags&exchFlagAcknowledgement != 0
	p.Reliability = flags&exchFlagReliability != 0
	p.VendorPresent = flags&exchFlagVendor != 0

	if len(data) < p.Size() {
		return 0, ErrPayloadTooShort
	}

	p.ProtocolOpcode = data[1]
	p.ExchangeID = binary.LittleEndian.Uint16(data[2:])
	offset := 4

	p.ProtocolVendorID = VendorIDStandard
	if p.VendorPresent {
		p.ProtocolVendorID = binary.LittleEndian.Uint16(data[offset:])
		offset += 2
	}

	p.ProtocolID = ProtocolID(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2

	p.AckedMessageCounter = 0
	if p.Acknowledgement {
		p.AckedMessageCounter = binary.LittleEndian.Uint32(data[offset:])
		offset += 4
	}

	return offset, nil
}

// HasProtocol reports whether the header belongs to the given standard protocol.
func (p *PayloadHeader) HasProtocol(id ProtocolID) bool {
	return p.ProtocolVendorID == VendorIDStandard && p.ProtocolID == id
}

// HasMessageType reports whether the header carries the given message type.
func (p *PayloadHeader) HasMessageType(t MessageType) bool {
	return p.HasProtocol(t.ProtocolID) && p.ProtocolOpcode == t.Opcode
}

// MessageType returns the protocol and opcode carried by the header.
func (p *PayloadHeader) MessageType() MessageType {
	return MessageType{ProtocolID: p.ProtocolID, Opcode: p.ProtocolOpcode}
}

// String returns a compact description for logging.
func (p PayloadHeader) String() string {
	return fmt.Sprintf("PayloadHeader{Protocol=%s, Opcode=0x%02X, Exchange=%d, I=%t}",
		p.ProtocolID, p.ProtocolOpcode, p.ExchangeID, p.Initiator)
}
