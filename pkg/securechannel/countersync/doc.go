// Package countersync implements message counter synchronization.
//
// Messages protected by a group key share one key among many senders, so a
// receiver cannot learn a sender's counter from a session handshake. Before
// group keyed traffic to or from a peer is admitted, the Manager asks that
// peer for its current counter with a MsgCounterSyncReq carrying a fresh
// random challenge. The peer answers with a MsgCounterSyncRsp holding its
// counter and the echoed challenge. A response whose challenge does not
// match the outstanding one is never trusted.
//
// While synchronization is pending, group keyed messages for the peer are
// held in two bounded tables: outbound messages in the retransmission table
// and inbound messages in the receive table. A successful response drains
// both for that peer. A timeout returns the peer to the unsynchronized state
// and the next message for it starts a new attempt.
//
// Wire format (Secure Channel protocol, no TLV):
//
//	MsgCounterSyncReq  challenge[8]
//	MsgCounterSyncRsp  counter(LE32) challenge[8]
//
// All Manager methods run in the single dispatch context of the owning
// stack and take no locks.
package countersync
