// mcsync-demo runs two nodes that exchange group keyed messages and
// synchronize each other's message counters on first contact.
//
// Usage:
//
//	mcsync-demo [options]
//
// Options:
//
//	-transport     "pipe" (in-memory) or "udp" (loopback sockets) (default: pipe)
//	-count         Group messages each node sends (default: 5)
//	-interval      Delay between messages (default: 200ms)
//	-drop          Packet drop rate on the pipe, 0.0-1.0 (default: 0)
//	-sync-timeout  Counter synchronization response timeout (default: 500ms)
//	-metrics-addr  Serve Prometheus metrics on this address (default: disabled)
//	-verbose       Enable debug logging
//	-config        YAML file with any of the options above; flags win
//
// Example:
//
//	mcsync-demo -transport udp -count 10 -metrics-addr :9090
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/backkem/mcsync/pkg/node"
	"github.com/backkem/mcsync/pkg/session"
	"github.com/backkem/mcsync/pkg/transport"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	nodeA session.NodeID = 0xA
	nodeB session.NodeID = 0xB

	demoOpcode = 0x01
)

func main() {
	opts, err := parseFlags()
	if err != nil {
		log.Fatalf("Invalid options: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("Demo error: %v", err)
	}
}

func run(ctx context.Context, opts options) error {
	loggerFactory := logging.NewDefaultLoggerFactory()
	if opts.Verbose {
		loggerFactory.DefaultLogLevel = logging.LogLevelDebug
	}

	registry := prometheus.NewRegistry()
	if opts.MetricsAddr != "" {
		srv := serveMetrics(opts.MetricsAddr, registry)
		defer srv.Close()
	}

	connA, connB, cleanup, err := openConns(opts)
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := newDemoNode(nodeA, connA, registry, loggerFactory, opts)
	if err != nil {
		return err
	}
	b, err := newDemoNode(nodeB, connB, registry, loggerFactory, opts)
	if err != nil {
		return err
	}

	for _, n := range []*node.Node{a, b} {
		if err := n.Start(ctx); err != nil {
			return fmt.Errorf("start node %s: %w", n.NodeID(), err)
		}
		defer n.Stop()
	}

	if err := pair(a, b); err != nil {
		return err
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for i := 0; i < opts.Count; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for _, p := range []struct {
			from *node.Node
			to   session.NodeID
		}{{a, nodeB}, {b, nodeA}} {
			payload := []byte(fmt.Sprintf("hello #%d from %s", i, p.from.NodeID()))
			if err := p.from.SendGroupMessage(p.to, demoOpcode, payload); err != nil {
				log.Printf("%s: send failed: %v", p.from.NodeID(), err)
			}
		}
	}

	// Let the last messages land before reporting.
	select {
	case <-ctx.Done():
	case <-time.After(opts.Interval):
	}
	printSummary(a, nodeB)
	printSummary(b, nodeA)

	if opts.MetricsAddr != "" {
		log.Printf("Serving metrics on %s, press Ctrl+C to exit", opts.MetricsAddr)
		<-ctx.Done()
	}
	log.Println("Shutting down...")
	return nil
}

// openConns returns the packet connections the two nodes run on.
func openConns(opts options) (net.PacketConn, net.PacketConn, func(), error) {
	switch opts.Transport {
	case "pipe":
		p := transport.NewPipe()
		p.SetCondition(transport.NetworkCondition{DropRate: opts.Drop})
		c0, c1 := p.PacketConns(transport.DefaultPort)
		return c0, c1, func() { p.Close() }, nil
	case "udp":
		c0, err := net.ListenPacket("udp", "127.0.0.1:0")
		if err != nil {
			return nil, nil, nil, err
		}
		c1, err := net.ListenPacket("udp", "127.0.0.1:0")
		if err != nil {
			c0.Close()
			return nil, nil, nil, err
		}
		// The nodes close their own sockets on Stop.
		return c0, c1, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown transport %q", opts.Transport)
	}
}

func newDemoNode(id session.NodeID, conn net.PacketConn, registry *prometheus.Registry, loggerFactory logging.LoggerFactory, opts options) (*node.Node, error) {
	n, err := node.NewNode(node.Config{
		NodeID:      id,
		Conn:        conn,
		SyncTimeout: opts.SyncTimeout,
		OnMessage: func(m node.Message) {
			log.Printf("%s <- %s: %q (counter %d, group=%t)", id, m.From, m.Payload, m.Counter, m.GroupKeyed)
		},
		OnSessionClosed: func(peer session.NodeID) {
			log.Printf("%s: session with %s closed by peer", id, peer)
		},
		Registerer:    prometheus.WrapRegistererWith(prometheus.Labels{"node": id.String()}, registry),
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		return nil, fmt.Errorf("create node %s: %w", id, err)
	}
	return n, nil
}

// pair installs the established session on both sides.
func pair(a, b *node.Node) error {
	if _, err := a.AddPeer(session.PeerConfig{
		LocalSessionID: 1,
		PeerSessionID:  2,
		PeerNodeID:     b.NodeID(),
		PeerAddress:    transport.NewPeerAddress(b.LocalAddr()),
	}); err != nil {
		return fmt.Errorf("add peer %s: %w", b.NodeID(), err)
	}
	if _, err := b.AddPeer(session.PeerConfig{
		LocalSessionID: 2,
		PeerSessionID:  1,
		PeerNodeID:     a.NodeID(),
		PeerAddress:    transport.NewPeerAddress(a.LocalAddr()),
	}); err != nil {
		return fmt.Errorf("add peer %s: %w", a.NodeID(), err)
	}
	return nil
}

func printSummary(n *node.Node, peer session.NodeID) {
	state, err := n.PeerSyncState(peer)
	if err != nil {
		log.Printf("%s: %v", n.NodeID(), err)
		return
	}

	var sends, receives int
	n.Dispatch(func() {
		sends = n.CounterSyncManager().PendingSendCount(peer)
		receives = n.CounterSyncManager().PendingReceiveCount(peer)
	})

	fmt.Println("----------------------------------------")
	fmt.Printf("Node:             %s\n", n.NodeID())
	fmt.Printf("Peer:             %s\n", peer)
	fmt.Printf("Peer counter:     %s\n", state)
	fmt.Printf("Pending sends:    %d\n", sends)
	fmt.Printf("Pending receives: %d\n", receives)
}

func serveMetrics(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server: %v", err)
		}
	}()
	return srv
}
