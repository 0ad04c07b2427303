package transport

import (
	"net"
	"testing"
)

func TestNewPeerAddress(t *testing.T) {
	tests := []struct {
		name  string
		addr  net.Addr
		want  TransportType
		valid bool
	}{
		{"udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: DefaultPort}, TransportTypeUDP, true},
		{"pipe", PipeAddr{ID: 1, Port: DefaultPort}, TransportTypePipe, true},
		{"tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: DefaultPort}, TransportTypeUnknown, false},
		{"nil", nil, TransportTypeUnknown, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPeerAddress(tc.addr)
			if p.TransportType != tc.want {
				t.Errorf("TransportType = %s, want %s", p.TransportType, tc.want)
			}
			if p.IsValid() != tc.valid {
				t.Errorf("IsValid() = %t, want %t", p.IsValid(), tc.valid)
			}
		})
	}
}

func TestUDPAddrFromString(t *testing.T) {
	p, err := UDPAddrFromString("127.0.0.1:5540")
	if err != nil {
		t.Fatalf("UDPAddrFromString() error = %v", err)
	}
	if !p.IsValid() || p.TransportType != TransportTypeUDP {
		t.Errorf("UDPAddrFromString() = %s", p)
	}
	if p.String() != "UDP:127.0.0.1:5540" {
		t.Errorf("String() = %q", p.String())
	}

	if _, err := UDPAddrFromString("not an address"); err == nil {
		t.Error("UDPAddrFromString() accepted a malformed address")
	}
}
