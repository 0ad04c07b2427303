// Package node assembles the counter synchronization stack into a runnable
// node: a UDP transport, the session manager, the exchange layer, the
// counter synchronization manager and a small application protocol for
// carrying payloads between peers.
//
// # Creating a Node
//
//	n, err := node.NewNode(node.Config{
//	    NodeID:     0x1111,
//	    ListenAddr: ":5540",
//	    OnMessage: func(m node.Message) {
//	        fmt.Printf("%s sent %x\n", m.From, m.Payload)
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := n.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	h, _ := n.AddPeer(session.PeerConfig{...})
//	n.SendGroupMessage(0x2222, 0x01, []byte("hello"))
//
// The first group keyed message to or from a peer triggers counter
// synchronization with it; the message is delivered once the peer's counter
// is trusted.
//
// # Testing
//
// Two nodes can be connected in memory with transport.NewPipeConnPair by
// setting Config.Conn on each.
package node
