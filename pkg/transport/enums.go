// Package transport moves raw message bytes between nodes.
//
// UDP wraps any net.PacketConn with a read loop. Pipe provides an in-memory
// packet connection pair for tests and the demo.
package transport

// TransportType identifies the link a peer is reached over.
type TransportType int

const (
	TransportTypeUnknown TransportType = iota
	TransportTypeUDP
	// TransportTypePipe is an in-memory Pipe endpoint.
	TransportTypePipe
)

func (t TransportType) String() string {
	switch t {
	case TransportTypeUDP:
		return "UDP"
	case TransportTypePipe:
		return "Pipe"
	default:
		return "Unknown"
	}
}

// IsValid reports whether frames can be sent over t.
func (t TransportType) IsValid() bool {
	return t == TransportTypeUDP || t == TransportTypePipe
}

// transportTypeOf classifies addr by its network name.
func transportTypeOf(network string) TransportType {
	switch network {
	case "udp", "udp4", "udp6":
		return TransportTypeUDP
	case pipeNetwork:
		return TransportTypePipe
	default:
		return TransportTypeUnknown
	}
}
