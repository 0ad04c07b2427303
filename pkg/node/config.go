package node

import (
	"fmt"
	"net"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/backkem/mcsync/pkg/session"
	"github.com/backkem/mcsync/pkg/transport"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds all configuration for a Node.
type Config struct {
	// NodeID identifies this node in every frame it sends. Required.
	NodeID session.NodeID

	// Network. Conn takes precedence over ListenAddr.
	ListenAddr string // default ":5540"
	Conn       net.PacketConn

	// Sessions
	GroupSessionID uint16 // group key session ID on the wire (default 1)
	MaxPeers       int    // default session.DefaultMaxSessions

	// Counter synchronization - optional, defaults from countersync
	SyncTimeout           time.Duration
	RetransTableSize      int
	ReceiveTableSize      int
	DropPendingOnSyncFail bool

	// Callbacks - Optional. Both run in the node's dispatch context and
	// must not call back into the Node.
	OnMessage       func(m Message)
	OnSessionClosed func(peer session.NodeID)

	// Clock drives timers. Tests use a fake clock. Default: real clock.
	Clock clock.Clock

	// Registerer receives the counter synchronization and transport
	// metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer

	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.NodeID == session.UndefinedNodeID {
		return ErrInvalidNodeID
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.ListenAddr == "" && c.Conn == nil {
		c.ListenAddr = fmt.Sprintf(":%d", transport.DefaultPort)
	}
	if c.Clock == nil {
		c.Clock = clock.NewClock()
	}
}
