package transport

import (
	"fmt"
	"net"
)

// PeerAddress identifies where a peer's messages come from and where replies
// go. It is stored alongside queued inbound messages so they can be
// reprocessed after counter synchronization.
type PeerAddress struct {
	Addr          net.Addr
	TransportType TransportType
}

// NewPeerAddress wraps addr, deriving the transport type from its network.
func NewPeerAddress(addr net.Addr) PeerAddress {
	if addr == nil {
		return PeerAddress{}
	}
	return PeerAddress{Addr: addr, TransportType: transportTypeOf(addr.Network())}
}

// NewUDPPeerAddress wraps addr as a UDP peer address.
func NewUDPPeerAddress(addr net.Addr) PeerAddress {
	return PeerAddress{Addr: addr, TransportType: TransportTypeUDP}
}

// UDPAddrFromString resolves a "host:port" string into a UDP peer address.
func UDPAddrFromString(addr string) (PeerAddress, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return PeerAddress{}, fmt.Errorf("resolve %q: %w", addr, err)
	}
	return NewUDPPeerAddress(udpAddr), nil
}

// IsValid reports whether the address can be sent to.
func (p PeerAddress) IsValid() bool {
	return p.TransportType.IsValid() && p.Addr != nil
}

func (p PeerAddress) String() string {
	if p.Addr == nil {
		return fmt.Sprintf("%s:<nil>", p.TransportType)
	}
	return fmt.Sprintf("%s:%s", p.TransportType, p.Addr)
}
