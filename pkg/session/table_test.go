package session

import (
	"errors"
	"testing"

	"github.com/backkem/mcsync/pkg/message"
)

func newTestState(localID uint16, node NodeID) *PeerConnectionState {
	return &PeerConnectionState{
		localSessionID: localID,
		peerSessionID:  localID + 100,
		peerNodeID:     node,
		counters:       message.NewGlobalCounters(),
		receptionState: message.NewReceptionState(),
	}
}

func TestNewTableDefaults(t *testing.T) {
	if got := NewTable(0).MaxSessions(); got != DefaultMaxSessions {
		t.Errorf("MaxSessions() = %d, want %d", got, DefaultMaxSessions)
	}
	if got := NewTable(3).MaxSessions(); got != 3 {
		t.Errorf("MaxSessions() = %d, want 3", got)
	}
}

func TestTableAdd(t *testing.T) {
	tests := []struct {
		name     string
		existing []*PeerConnectionState
		add      *PeerConnectionState
		want     error
	}{
		{"ok", nil, newTestState(1, 10), nil},
		{"nil", nil, nil, ErrInvalidSessionID},
		{"zero session", nil, newTestState(0, 10), ErrInvalidSessionID},
		{"undefined node", nil, newTestState(1, UndefinedNodeID), ErrInvalidNodeID},
		{"duplicate session", []*PeerConnectionState{newTestState(1, 10)}, newTestState(1, 11), ErrDuplicateSession},
		{"duplicate node", []*PeerConnectionState{newTestState(1, 10)}, newTestState(2, 10), ErrDuplicatePeer},
		{"full", []*PeerConnectionState{newTestState(1, 10), newTestState(2, 11)}, newTestState(3, 12), ErrSessionTableFull},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			table := NewTable(2)
			for _, s := range tc.existing {
				if err := table.Add(s); err != nil {
					t.Fatalf("setup Add() error = %v", err)
				}
			}
			if err := table.Add(tc.add); !errors.Is(err, tc.want) {
				t.Errorf("Add() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestTableLookupAndRemove(t *testing.T) {
	table := NewTable(4)
	a := newTestState(1, 10)
	b := newTestState(2, 20)
	table.Add(a)
	table.Add(b)

	if table.FindByLocalID(2) != b {
		t.Error("FindByLocalID(2) did not return b")
	}
	if table.FindByNode(10) != a {
		t.Error("FindByNode(10) did not return a")
	}
	if table.FindByLocalID(3) != nil || table.FindByNode(30) != nil {
		t.Error("lookup of unknown entry returned a state")
	}

	if got := table.Remove(1); got != a {
		t.Fatal("Remove(1) did not return a")
	}
	if table.FindByNode(10) != nil {
		t.Error("node index not cleaned on Remove")
	}
	if table.Remove(1) != nil {
		t.Error("second Remove(1) returned a state")
	}
	if table.Count() != 1 {
		t.Errorf("Count() = %d, want 1", table.Count())
	}

	// The freed node ID can be reused.
	if err := table.Add(newTestState(5, 10)); err != nil {
		t.Errorf("Add() after Remove error = %v", err)
	}
}

func TestTableForEach(t *testing.T) {
	table := NewTable(4)
	for i := uint16(1); i <= 3; i++ {
		table.Add(newTestState(i, NodeID(i)))
	}

	seen := 0
	table.ForEach(func(*PeerConnectionState) bool {
		seen++
		return true
	})
	if seen != 3 {
		t.Errorf("ForEach visited %d, want 3", seen)
	}

	seen = 0
	table.ForEach(func(*PeerConnectionState) bool {
		seen++
		return false
	})
	if seen != 1 {
		t.Errorf("ForEach with early stop visited %d, want 1", seen)
	}
}
