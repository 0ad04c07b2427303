package session

import (
	"crypto/subtle"
	"fmt"

	"github.com/backkem/mcsync/pkg/message"
)

// ChallengeSize is the length of a counter synchronization challenge.
const ChallengeSize = 8

// PeerMessageCounter tracks whether a peer's group message counter is
// trusted. The challenge exists only while a sync is in progress and the
// replay window exists only once synced; both live in the per-state value,
// so neither can be observed in the wrong state.
//
// PeerMessageCounter is not safe for concurrent use. It is only touched
// from the dispatch context.
type PeerMessageCounter struct {
	state counterState
}

type counterState interface {
	syncState() SyncState
}

type uninitialized struct{}

type syncInProgress struct {
	challenge [ChallengeSize]byte
}

// synced holds the trusted replay window. The baseline is window.Max().
type synced struct {
	window message.CounterWindow
}

func (uninitialized) syncState() SyncState  { return SyncStateUninitialized }
func (syncInProgress) syncState() SyncState { return SyncStateInProgress }
func (*synced) syncState() SyncState        { return SyncStateSynced }

// VerifiedCounter is proof that Verify accepted a counter. Pass it to Commit
// once the message carrying the counter has been processed.
type VerifiedCounter struct {
	counter  uint32
	verified bool
}

// Counter returns the verified counter value.
func (v VerifiedCounter) Counter() uint32 {
	return v.counter
}

// State returns the current synchronization state.
func (p *PeerMessageCounter) State() SyncState {
	if p.state == nil {
		return SyncStateUninitialized
	}
	return p.state.syncState()
}

// IsSyncStarted reports whether a challenge is outstanding.
func (p *PeerMessageCounter) IsSyncStarted() bool {
	return p.State() == SyncStateInProgress
}

// IsSyncCompleted reports whether the peer counter is trusted.
func (p *PeerMessageCounter) IsSyncCompleted() bool {
	return p.State() == SyncStateSynced
}

// Challenge returns the outstanding challenge while a sync is in progress.
func (p *PeerMessageCounter) Challenge() ([ChallengeSize]byte, bool) {
	if s, ok := p.state.(syncInProgress); ok {
		return s.challenge, true
	}
	return [ChallengeSize]byte{}, false
}

// Baseline returns the largest counter known for the peer: the synchronized
// counter, or a later one once committed. Only valid when synced.
func (p *PeerMessageCounter) Baseline() (uint32, bool) {
	if s, ok := p.state.(*synced); ok {
		return s.window.Max(), true
	}
	return 0, false
}

// StartSync records the challenge sent to the peer.
// The challenge is generated by the caller.
func (p *PeerMessageCounter) StartSync(challenge [ChallengeSize]byte) error {
	if p.State() != SyncStateUninitialized {
		return ErrIncorrectState
	}
	p.state = syncInProgress{challenge: challenge}
	return nil
}

// VerifyChallenge completes a sync if challenge matches the outstanding one.
// counter becomes the baseline. Counters after it are accepted, as is each
// counter in the window below it exactly once, so group messages the peer
// sent while the sync was in flight still pass. On mismatch the sync stays
// in progress.
func (p *PeerMessageCounter) VerifyChallenge(counter uint32, challenge [ChallengeSize]byte) error {
	s, ok := p.state.(syncInProgress)
	if !ok {
		return ErrIncorrectState
	}
	if subtle.ConstantTimeCompare(s.challenge[:], challenge[:]) != 1 {
		return ErrChallengeMismatch
	}
	p.state = &synced{window: message.NewOpenCounterWindow(counter)}
	return nil
}

// SyncFail abandons an in-progress sync. It has no effect in other states.
func (p *PeerMessageCounter) SyncFail() {
	if p.IsSyncStarted() {
		p.state = uninitialized{}
	}
}

// Verify checks counter against the trusted window without recording it.
func (p *PeerMessageCounter) Verify(counter uint32) (VerifiedCounter, error) {
	s, ok := p.state.(*synced)
	if !ok {
		return VerifiedCounter{}, ErrIncorrectState
	}
	if !s.window.IsNew(counter, true) {
		return VerifiedCounter{}, fmt.Errorf("%w: %d", ErrDuplicateCounter, counter)
	}
	return VerifiedCounter{counter: counter, verified: true}, nil
}

// Commit records a verified counter as received.
func (p *PeerMessageCounter) Commit(v VerifiedCounter) error {
	if !v.verified {
		return ErrNotVerified
	}
	s, ok := p.state.(*synced)
	if !ok {
		return ErrIncorrectState
	}
	if !s.window.IsNew(v.counter, true) {
		return fmt.Errorf("%w: %d", ErrDuplicateCounter, v.counter)
	}
	s.window.Mark(v.counter, true)
	return nil
}
