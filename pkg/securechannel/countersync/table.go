package countersync

import (
	"github.com/backkem/mcsync/pkg/message"
	"github.com/backkem/mcsync/pkg/session"
	"github.com/backkem/mcsync/pkg/transport"
)

// retransEntry is an outbound group keyed message waiting for its peer's
// counter to be synchronized.
type retransEntry struct {
	handle  session.Handle
	header  message.PayloadHeader
	payload []byte
}

// receiveEntry is an inbound group keyed message whose replay check is
// deferred until its sender's counter is synchronized.
type receiveEntry struct {
	header      message.PacketHeader
	peerAddress transport.PeerAddress
	payload     []byte
}

type slot[E any] struct {
	peer  session.NodeID
	used  bool
	entry E
}

// pendingTable is a fixed-capacity arena of optional entries keyed by peer.
// Lookups scan linearly; capacity is small and set by configuration.
type pendingTable[E any] struct {
	slots []slot[E]
	count int
}

func newPendingTable[E any](capacity int) *pendingTable[E] {
	return &pendingTable[E]{slots: make([]slot[E], capacity)}
}

// add stores e in the first free slot.
func (t *pendingTable[E]) add(peer session.NodeID, e E) error {
	for i := range t.slots {
		if !t.slots[i].used {
			t.slots[i] = slot[E]{peer: peer, used: true, entry: e}
			t.count++
			return nil
		}
	}
	return ErrNoMemory
}

// take removes and returns every entry for peer, in slot order.
func (t *pendingTable[E]) take(peer session.NodeID) []E {
	var out []E
	for i := range t.slots {
		if t.slots[i].used && t.slots[i].peer == peer {
			out = append(out, t.slots[i].entry)
			t.clear(i)
		}
	}
	return out
}

// remove drops every entry for peer and returns how many there were.
func (t *pendingTable[E]) remove(peer session.NodeID) int {
	return len(t.take(peer))
}

func (t *pendingTable[E]) clear(i int) {
	t.slots[i] = slot[E]{}
	t.count--
}

// countFor returns the number of entries queued for peer.
func (t *pendingTable[E]) countFor(peer session.NodeID) int {
	n := 0
	for i := range t.slots {
		if t.slots[i].used && t.slots[i].peer == peer {
			n++
		}
	}
	return n
}

func (t *pendingTable[E]) size() int {
	return t.count
}

func (t *pendingTable[E]) capacity() int {
	return len(t.slots)
}
