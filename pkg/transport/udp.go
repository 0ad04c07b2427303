package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/backkem/mcsync/pkg/message"
	"github.com/pion/logging"
)

// DefaultPort is the default listen port for the demo node.
const DefaultPort = 5540

type udpState uint8

const (
	udpIdle udpState = iota
	udpRunning
	udpClosed
)

// UDP carries frames over a net.PacketConn. Any PacketConn works, including
// PipePacketConn, so the same code path runs in tests and in production.
//
// The handler runs on the read loop goroutine, one datagram at a time.
type UDP struct {
	conn    net.PacketConn
	handler MessageHandler
	metrics *Metrics
	log     logging.LeveledLogger

	mu    sync.RWMutex
	state udpState
	done  chan struct{}
}

// UDPConfig configures the UDP transport.
type UDPConfig struct {
	// Conn is used as-is when set. Otherwise a socket is opened on ListenAddr.
	Conn       net.PacketConn
	ListenAddr string

	// MessageHandler is required.
	MessageHandler MessageHandler

	// Metrics is optional. Several transports may share one Metrics.
	Metrics *Metrics

	// LoggerFactory is optional; nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// NewUDP creates a UDP transport. The read loop starts with Start.
func NewUDP(config UDPConfig) (*UDP, error) {
	if config.MessageHandler == nil {
		return nil, ErrNoHandler
	}

	conn := config.Conn
	if conn == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		var err error
		if conn, err = net.ListenPacket("udp", addr); err != nil {
			return nil, err
		}
	}

	u := &UDP{
		conn:    conn,
		handler: config.MessageHandler,
		metrics: config.Metrics,
		done:    make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		u.log = config.LoggerFactory.NewLogger("transport-udp")
	}
	return u, nil
}

// Start launches the read loop.
func (u *UDP) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch u.state {
	case udpRunning:
		return ErrAlreadyStarted
	case udpClosed:
		return ErrClosed
	}
	u.state = udpRunning

	if u.log != nil {
		u.log.Infof("listening on %s", u.conn.LocalAddr())
	}
	go u.readLoop()
	return nil
}

// Stop closes the connection and waits for the read loop to exit.
// A transport that was never started is closed as well.
func (u *UDP) Stop() error {
	u.mu.Lock()
	prev := u.state
	if prev == udpClosed {
		u.mu.Unlock()
		return ErrClosed
	}
	u.state = udpClosed
	u.mu.Unlock()

	// Unblock a pending ReadFrom before closing.
	u.conn.SetReadDeadline(time.Now())
	err := u.conn.Close()

	if prev == udpRunning {
		<-u.done
	}
	if u.log != nil {
		u.log.Info("stopped")
	}
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// Send writes one frame to addr.
func (u *UDP) Send(data []byte, addr net.Addr) error {
	u.mu.RLock()
	closed := u.state == udpClosed
	u.mu.RUnlock()

	switch {
	case closed:
		return ErrClosed
	case addr == nil:
		return ErrInvalidAddress
	case len(data) > message.MaxUDPMessageSize:
		return ErrMessageTooLarge
	}

	if _, err := u.conn.WriteTo(data, addr); err != nil {
		u.metrics.sendFailed()
		if u.log != nil {
			u.log.Warnf("send to %s failed: %v", addr, err)
		}
		return err
	}
	u.metrics.sent(len(data))
	if u.log != nil {
		u.log.Tracef("sent %d bytes to %s", len(data), addr)
	}
	return nil
}

// LocalAddr returns the local address the transport is listening on.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

func (u *UDP) isClosed() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state == udpClosed
}

// readLoop hands each datagram to the handler as a fresh copy.
func (u *UDP) readLoop() {
	defer close(u.done)

	buf := make([]byte, message.MaxUDPMessageSize)
	for {
		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			if u.isClosed() || errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if u.log != nil {
				u.log.Warnf("read error: %v", err)
			}
			continue
		}
		if n == 0 {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		u.metrics.received(n)
		if u.log != nil {
			u.log.Tracef("received %d bytes from %s", n, addr)
		}

		u.handler(&ReceivedMessage{
			Data:     data,
			PeerAddr: NewPeerAddress(addr),
		})
	}
}
