package node

import (
	"github.com/backkem/mcsync/pkg/exchange"
	"github.com/backkem/mcsync/pkg/message"
	"github.com/backkem/mcsync/pkg/session"
)

// ApplicationProtocol carries application payloads between nodes.
const ApplicationProtocol = message.ProtocolInteractionModel

// Message is an application payload received from a peer.
type Message struct {
	From       session.NodeID
	GroupKeyed bool
	Opcode     uint8
	Counter    uint32
	Payload    []byte
}

// appHandler delivers unsolicited application messages to the OnMessage
// callback. Application messages are one-way, so every exchange closes
// after its first message.
type appHandler struct {
	onMessage func(m Message)
}

func (a *appHandler) OnMessageReceived(ec exchange.Exchange, packetHeader *message.PacketHeader, payloadHeader *message.PayloadHeader, payload []byte) error {
	defer ec.Close()

	if a.onMessage != nil {
		a.onMessage(Message{
			From:       session.NodeID(packetHeader.SourceNodeID),
			GroupKeyed: ec.Session().GroupKeyed(),
			Opcode:     payloadHeader.ProtocolOpcode,
			Counter:    packetHeader.MessageCounter,
			Payload:    payload,
		})
	}
	return nil
}

func (a *appHandler) OnResponseTimeout(ec exchange.Exchange) {
	ec.Close()
}

var _ exchange.Delegate = (*appHandler)(nil)
