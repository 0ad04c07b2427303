package transport

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/backkem/mcsync/pkg/message"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newLoopbackUDP(t *testing.T, handler MessageHandler) *UDP {
	t.Helper()
	u, err := NewUDP(UDPConfig{ListenAddr: "127.0.0.1:0", MessageHandler: handler})
	if err != nil {
		t.Fatalf("NewUDP() error = %v", err)
	}
	return u
}

func TestNewUDPRequiresHandler(t *testing.T) {
	if _, err := NewUDP(UDPConfig{ListenAddr: "127.0.0.1:0"}); !errors.Is(err, ErrNoHandler) {
		t.Errorf("NewUDP() error = %v, want %v", err, ErrNoHandler)
	}
}

func TestUDPLifecycle(t *testing.T) {
	u := newLoopbackUDP(t, func(*ReceivedMessage) {})

	if err := u.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := u.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want %v", err, ErrAlreadyStarted)
	}
	if err := u.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := u.Stop(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Stop() error = %v, want %v", err, ErrClosed)
	}
	if err := u.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Stop error = %v, want %v", err, ErrClosed)
	}
}

func TestUDPSendErrors(t *testing.T) {
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: DefaultPort}

	tests := []struct {
		name   string
		data   []byte
		addr   net.Addr
		closed bool
		want   error
	}{
		{"nil address", []byte{1}, nil, false, ErrInvalidAddress},
		{"too large", make([]byte, message.MaxUDPMessageSize+1), addr, false, ErrMessageTooLarge},
		{"closed", []byte{1}, addr, true, ErrClosed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u := newLoopbackUDP(t, func(*ReceivedMessage) {})
			if tc.closed {
				u.Stop()
			} else {
				defer u.Stop()
			}
			if err := u.Send(tc.data, tc.addr); !errors.Is(err, tc.want) {
				t.Errorf("Send() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestUDPLoopbackRoundtrip(t *testing.T) {
	atServer := make(chan *ReceivedMessage, 1)
	atClient := make(chan *ReceivedMessage, 1)

	server := newLoopbackUDP(t, func(m *ReceivedMessage) { atServer <- m })
	client := newLoopbackUDP(t, func(m *ReceivedMessage) { atClient <- m })
	for _, u := range []*UDP{server, client} {
		if err := u.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		defer u.Stop()
	}

	if err := client.Send([]byte("ping"), server.LocalAddr()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	var req *ReceivedMessage
	select {
	case req = <-atServer:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for ping")
	}
	if string(req.Data) != "ping" || req.PeerAddr.TransportType != TransportTypeUDP {
		t.Fatalf("server got %q from %v", req.Data, req.PeerAddr)
	}

	if err := server.Send([]byte("pong"), req.PeerAddr.Addr); err != nil {
		t.Fatalf("reply Send() error = %v", err)
	}
	select {
	case m := <-atClient:
		if string(m.Data) != "pong" {
			t.Errorf("client got %q, want pong", m.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for pong")
	}
}

func TestUDPOverPipe(t *testing.T) {
	p, c0, c1 := NewPipeConnPair()
	defer p.Close()

	received := make(chan *ReceivedMessage, 1)
	u0, err := NewUDP(UDPConfig{Conn: c0, MessageHandler: func(*ReceivedMessage) {}})
	if err != nil {
		t.Fatalf("NewUDP() error = %v", err)
	}
	u1, err := NewUDP(UDPConfig{Conn: c1, MessageHandler: func(m *ReceivedMessage) { received <- m }})
	if err != nil {
		t.Fatalf("NewUDP() error = %v", err)
	}
	if err := u1.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer u1.Stop()
	defer u0.Stop()

	want := []byte{0x00, 0x01, 0x02}
	if err := u0.Send(want, c0.PeerAddr()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case m := <-received:
		if !bytes.Equal(m.Data, want) {
			t.Errorf("Data = %x, want %x", m.Data, want)
		}
		if m.PeerAddr.Addr != c0.LocalAddr() || m.PeerAddr.TransportType != TransportTypePipe {
			t.Errorf("PeerAddr = %v, want %v", m.PeerAddr.Addr, c0.LocalAddr())
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message over pipe")
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestUDPMetrics(t *testing.T) {
	p, c0, c1 := NewPipeConnPair()
	defer p.Close()

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	received := make(chan *ReceivedMessage, 1)
	u0, err := NewUDP(UDPConfig{Conn: c0, MessageHandler: func(*ReceivedMessage) {}, Metrics: metrics})
	if err != nil {
		t.Fatalf("NewUDP() error = %v", err)
	}
	defer u0.Stop()
	u1, err := NewUDP(UDPConfig{Conn: c1, MessageHandler: func(m *ReceivedMessage) { received <- m }, Metrics: metrics})
	if err != nil {
		t.Fatalf("NewUDP() error = %v", err)
	}
	if err := u1.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer u1.Stop()

	if err := u0.Send([]byte("hello"), c0.PeerAddr()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message over pipe")
	}

	tests := []struct {
		name string
		c    prometheus.Counter
		want float64
	}{
		{"datagrams sent", metrics.Datagrams.WithLabelValues(directionSent), 1},
		{"datagrams received", metrics.Datagrams.WithLabelValues(directionReceived), 1},
		{"bytes sent", metrics.Bytes.WithLabelValues(directionSent), 5},
		{"bytes received", metrics.Bytes.WithLabelValues(directionReceived), 5},
		{"send errors", metrics.SendErrors, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := counterValue(t, tc.c); got != tc.want {
				t.Errorf("value = %v, want %v", got, tc.want)
			}
		})
	}

	// Registering a second set on the same registry is a programming error.
	defer func() {
		if recover() == nil {
			t.Error("NewMetrics() on a used registry did not panic")
		}
	}()
	NewMetrics(reg)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.sent(1)
	m.received(1)
	m.sendFailed()
}
