package countersync

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/backkem/mcsync/pkg/message"
	"github.com/backkem/mcsync/pkg/session"
	"github.com/backkem/mcsync/pkg/transport"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// Defaults.
const (
	DefaultSyncTimeout      = 500 * time.Millisecond
	DefaultRetransTableSize = 10
	DefaultReceiveTableSize = 10
)

// SessionLayer is the part of the session manager the Manager drives.
// *session.Manager implements it.
type SessionLayer interface {
	// SendMessage sends a queued outbound message once its peer is synced.
	SendMessage(h session.Handle, payloadHeader *message.PayloadHeader, payload []byte) error

	// ProcessReceived re-injects a queued inbound message.
	ProcessReceived(packetHeader *message.PacketHeader, peerAddress transport.PeerAddress, payload []byte) error

	PeerConnectionState(h session.Handle) (*session.PeerConnectionState, bool)
}

// Config configures a Manager.
type Config struct {
	// Sessions is required.
	Sessions SessionLayer

	// Rand supplies challenges. Default: crypto/rand.Reader
	Rand io.Reader

	// SyncTimeout bounds the wait for a MsgCounterSyncRsp.
	// Default: DefaultSyncTimeout
	SyncTimeout time.Duration

	// RetransTableSize is the number of outbound messages that can wait for
	// synchronization across all peers. Default: DefaultRetransTableSize
	RetransTableSize int

	// ReceiveTableSize is the inbound equivalent. Default: DefaultReceiveTableSize
	ReceiveTableSize int

	// DropPendingOnSyncFail releases a peer's queued messages when its sync
	// times out. By default they stay queued until a later sync succeeds.
	DropPendingOnSyncFail bool

	// Registerer receives the manager's metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer

	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = DefaultSyncTimeout
	}
	if c.RetransTableSize <= 0 {
		c.RetransTableSize = DefaultRetransTableSize
	}
	if c.ReceiveTableSize <= 0 {
		c.ReceiveTableSize = DefaultReceiveTableSize
	}
}
