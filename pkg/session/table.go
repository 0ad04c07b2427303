package session

import "sync"

// DefaultMaxSessions is the default maximum number of concurrent peers.
const DefaultMaxSessions = 16

// Table holds peer connection states, indexed by local session ID and by
// peer node ID. Capacity is fixed at construction.
type Table struct {
	sessions    map[uint16]*PeerConnectionState
	byNode      map[NodeID]*PeerConnectionState
	maxSessions int

	mu sync.RWMutex
}

// NewTable creates a table. maxSessions <= 0 uses DefaultMaxSessions.
func NewTable(maxSessions int) *Table {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Table{
		sessions:    make(map[uint16]*PeerConnectionState),
		byNode:      make(map[NodeID]*PeerConnectionState),
		maxSessions: maxSessions,
	}
}

// Add inserts a state. Local session IDs and peer node IDs must be unique.
func (t *Table) Add(s *PeerConnectionState) error {
	if s == nil || s.localSessionID == 0 {
		return ErrInvalidSessionID
	}
	if s.peerNodeID == UndefinedNodeID {
		return ErrInvalidNodeID
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.sessions) >= t.maxSessions {
		return ErrSessionTableFull
	}
	if _, exists := t.sessions[s.localSessionID]; exists {
		return ErrDuplicateSession
	}
	if _, exists := t.byNode[s.peerNodeID]; exists {
		return ErrDuplicatePeer
	}

	t.sessions[s.localSessionID] = s
	t.byNode[s.peerNodeID] = s
	return nil
}

// Remove deletes a state and returns it, or nil if it was not present.
func (t *Table) Remove(localSessionID uint16) *PeerConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[localSessionID]
	if !ok {
		return nil
	}
	delete(t.sessions, localSessionID)
	delete(t.byNode, s.peerNodeID)
	return s
}

// FindByLocalID returns the state for a local session ID, or nil.
func (t *Table) FindByLocalID(id uint16) *PeerConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[id]
}

// FindByNode returns the state for a peer node ID, or nil.
func (t *Table) FindByNode(node NodeID) *PeerConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byNode[node]
}

// Count returns the number of states in the table.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// IsFull returns true if no more states can be added.
func (t *Table) IsFull() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions) >= t.maxSessions
}

func (t *Table) MaxSessions() int {
	return t.maxSessions
}

// ForEach calls fn for each state until fn returns false.
// fn must not modify the table.
func (t *Table) ForEach(fn func(*PeerConnectionState) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, s := range t.sessions {
		if !fn(s) {
			return
		}
	}
}
