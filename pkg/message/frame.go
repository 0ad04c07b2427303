package message

// Frame is a complete message: packet header, payload header and
// application payload.
type Frame struct {
	Header  PacketHeader
	Payload PayloadHeader
	Body    []byte
}

// Encode serializes the frame in wire order.
// Returns ErrMessageTooLong if the result exceeds MaxUDPMessageSize.
func (f *Frame) Encode() ([]byte, error) {
	total := f.Header.Size() + f.Payload.Size() + len(f.Body)
	if total > MaxUDPMessageSize {
		return nil, ErrMessageTooLong
	}

	buf := make([]byte, total)
	offset := f.Header.EncodeTo(buf)
	offset += f.Payload.EncodeTo(buf[offset:])
	copy(buf[offset:], f.Body)
	return buf, nil
}

// DecodePacket splits raw wire data into its packet header and the
// remaining payload bytes. The returned payload aliases data.
func DecodePacket(data []byte) (PacketHeader, []byte, error) {
	var h PacketHeader
	n, err := h.Decode(data)
	if err != nil {
		return PacketHeader{}, nil, err
	}
	if err := h.Validate(); err != nil {
		return PacketHeader{}, nil, err
	}
	return h, data[n:], nil
}

// DecodePayload parses the payload header at the start of payload and
// returns a copy of the application body that follows it.
func DecodePayload(payload []byte) (PayloadHeader, []byte, error) {
	var p PayloadHeader
	n, err := p.Decode(payload)
	if err != nil {
		return PayloadHeader{}, nil, err
	}

	var body []byte
	if len(payload) > n {
		body = make([]byte, len(payload)-n)
		copy(body, payload[n:])
	}
	return p, body, nil
}
