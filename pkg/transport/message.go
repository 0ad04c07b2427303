package transport

// ReceivedMessage is one datagram as read from the wire. Data is owned by
// the receiver; the transport never reuses it.
type ReceivedMessage struct {
	Data     []byte
	PeerAddr PeerAddress
}

// MessageHandler is called for each received message from the read loop.
type MessageHandler func(msg *ReceivedMessage)
