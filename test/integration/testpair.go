// Package integration provides test infrastructure for end-to-end counter
// synchronization tests between two nodes.
package integration

import (
	"context"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/backkem/mcsync/pkg/node"
	"github.com/backkem/mcsync/pkg/session"
	"github.com/backkem/mcsync/pkg/transport"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// Node IDs used by every test pair.
const (
	NodeA session.NodeID = 0xA001
	NodeB session.NodeID = 0xB002
)

// TestPair holds two running nodes joined by an in-memory pipe, each with an
// established session to the other.
//
// Both nodes share one fake clock, so sync timeouts only fire when a test
// advances it. Packets still flow in real time.
//
// Example usage:
//
//	pair := NewTestPair(t, DefaultTestPairConfig())
//	pair.A.SendGroupMessage(NodeB, 0x01, []byte("hi"))
//	pair.ExpectMessage(pair.BMessages, "hi")
type TestPair struct {
	A, B *node.Node

	// Messages delivered to each node's application.
	AMessages chan node.Message
	BMessages chan node.Message

	// Registries holding each node's metrics.
	ARegistry *prometheus.Registry
	BRegistry *prometheus.Registry

	Pipe  *transport.Pipe
	Clock *fakeclock.FakeClock

	config TestPairConfig
	t      *testing.T
}

// TestPairConfig configures NewTestPair.
type TestPairConfig struct {
	// SyncTimeout for both nodes. Defaults to 500ms.
	SyncTimeout time.Duration

	// DropPendingOnSyncFail is applied to both nodes.
	DropPendingOnSyncFail bool

	// Condition is applied to the pipe before the nodes start.
	Condition transport.NetworkCondition

	// LoggerFactory for logging. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// DefaultTestPairConfig returns the configuration used by most tests.
func DefaultTestPairConfig() TestPairConfig {
	return TestPairConfig{
		SyncTimeout: 500 * time.Millisecond,
	}
}

// NewTestPair starts two nodes and pairs them. Everything is torn down with
// t.Cleanup.
func NewTestPair(t *testing.T, config TestPairConfig) *TestPair {
	t.Helper()

	if config.SyncTimeout == 0 {
		config.SyncTimeout = DefaultTestPairConfig().SyncTimeout
	}

	pipe, connA, connB := transport.NewPipeConnPair()
	pipe.SetCondition(config.Condition)
	t.Cleanup(func() { pipe.Close() })

	p := &TestPair{
		AMessages: make(chan node.Message, 32),
		BMessages: make(chan node.Message, 32),
		ARegistry: prometheus.NewRegistry(),
		BRegistry: prometheus.NewRegistry(),
		Pipe:      pipe,
		Clock:     fakeclock.NewFakeClock(time.Unix(1_700_000_000, 0)),
		config:    config,
		t:         t,
	}

	p.A = p.startNode(NodeA, connA, p.AMessages, p.ARegistry)
	p.B = p.startNode(NodeB, connB, p.BMessages, p.BRegistry)

	if _, err := p.A.AddPeer(session.PeerConfig{
		LocalSessionID: 10,
		PeerSessionID:  20,
		PeerNodeID:     NodeB,
		PeerAddress:    transport.NewPeerAddress(connA.PeerAddr()),
	}); err != nil {
		t.Fatalf("A.AddPeer() error = %v", err)
	}
	if _, err := p.B.AddPeer(session.PeerConfig{
		LocalSessionID: 20,
		PeerSessionID:  10,
		PeerNodeID:     NodeA,
		PeerAddress:    transport.NewPeerAddress(connB.PeerAddr()),
	}); err != nil {
		t.Fatalf("B.AddPeer() error = %v", err)
	}
	return p
}

func (p *TestPair) startNode(id session.NodeID, conn *transport.PipePacketConn, msgs chan node.Message, reg *prometheus.Registry) *node.Node {
	p.t.Helper()

	n, err := node.NewNode(node.Config{
		NodeID:                id,
		Conn:                  conn,
		SyncTimeout:           p.config.SyncTimeout,
		DropPendingOnSyncFail: p.config.DropPendingOnSyncFail,
		OnMessage:             func(m node.Message) { msgs <- m },
		Clock:                 p.Clock,
		Registerer:            reg,
		LoggerFactory:         p.config.LoggerFactory,
	})
	if err != nil {
		p.t.Fatalf("NewNode(%s) error = %v", id, err)
	}
	if err := n.Start(context.Background()); err != nil {
		p.t.Fatalf("Start(%s) error = %v", id, err)
	}
	p.t.Cleanup(func() { n.Stop() })
	return n
}

// Nodes returns both nodes.
func (p *TestPair) Nodes() []*node.Node {
	return []*node.Node{p.A, p.B}
}

// Peer returns the node on the other side of n.
func (p *TestPair) Peer(n *node.Node) session.NodeID {
	if n == p.A {
		return NodeB
	}
	return NodeA
}

// ExpireSyncTimeout advances the shared clock past the sync timeout.
func (p *TestPair) ExpireSyncTimeout() {
	p.Clock.Increment(p.config.SyncTimeout + time.Millisecond)
}

// ExpectMessage waits for the next delivered message and checks its payload.
func (p *TestPair) ExpectMessage(ch <-chan node.Message, payload string) node.Message {
	p.t.Helper()
	select {
	case m := <-ch:
		if string(m.Payload) != payload {
			p.t.Fatalf("payload = %q, want %q", m.Payload, payload)
		}
		return m
	case <-time.After(3 * time.Second):
		p.t.Fatalf("timeout waiting for %q", payload)
		return node.Message{}
	}
}

// ExpectNoMessage fails if anything is delivered within d.
func (p *TestPair) ExpectNoMessage(ch <-chan node.Message, d time.Duration) {
	p.t.Helper()
	select {
	case m := <-ch:
		p.t.Fatalf("unexpected message %q", m.Payload)
	case <-time.After(d):
	}
}

// WaitSyncState polls until n's view of its peer's counter reaches want.
func (p *TestPair) WaitSyncState(n *node.Node, want session.SyncState) {
	p.t.Helper()
	peer := p.Peer(n)
	deadline := time.Now().Add(3 * time.Second)
	for {
		got, err := n.PeerSyncState(peer)
		if err != nil {
			p.t.Fatalf("PeerSyncState(%s) error = %v", peer, err)
		}
		if got == want {
			return
		}
		if time.Now().After(deadline) {
			p.t.Fatalf("%s's view of %s = %s, want %s", n.NodeID(), peer, got, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// PendingSends returns how many group messages n holds for its peer.
func (p *TestPair) PendingSends(n *node.Node) int {
	var count int
	n.Dispatch(func() { count = n.CounterSyncManager().PendingSendCount(p.Peer(n)) })
	return count
}

// CounterValue gathers reg and returns the value of the named counter with
// the given label value, or 0 when absent.
func CounterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label == "" {
				return m.GetCounter().GetValue()
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
