package session

import (
	"errors"
	"testing"
)

var (
	challengeA = [ChallengeSize]byte{1, 2, 3, 4, 5, 6, 7, 8}
	challengeB = [ChallengeSize]byte{8, 7, 6, 5, 4, 3, 2, 1}
)

func syncedCounter(t *testing.T, baseline uint32) *PeerMessageCounter {
	t.Helper()
	var p PeerMessageCounter
	if err := p.StartSync(challengeA); err != nil {
		t.Fatalf("StartSync() error = %v", err)
	}
	if err := p.VerifyChallenge(baseline, challengeA); err != nil {
		t.Fatalf("VerifyChallenge() error = %v", err)
	}
	return &p
}

func TestPeerMessageCounterInitialState(t *testing.T) {
	var p PeerMessageCounter
	if p.State() != SyncStateUninitialized {
		t.Errorf("State() = %s, want Uninitialized", p.State())
	}
	if p.IsSyncStarted() || p.IsSyncCompleted() {
		t.Error("zero value reports sync started or completed")
	}
	if _, ok := p.Challenge(); ok {
		t.Error("Challenge() present in Uninitialized")
	}
	if _, ok := p.Baseline(); ok {
		t.Error("Baseline() present in Uninitialized")
	}
}

func TestPeerMessageCounterTransitions(t *testing.T) {
	var p PeerMessageCounter

	if err := p.StartSync(challengeA); err != nil {
		t.Fatalf("StartSync() error = %v", err)
	}
	if !p.IsSyncStarted() {
		t.Fatal("IsSyncStarted() = false after StartSync")
	}
	if c, ok := p.Challenge(); !ok || c != challengeA {
		t.Errorf("Challenge() = %x, %t", c, ok)
	}
	if err := p.StartSync(challengeB); !errors.Is(err, ErrIncorrectState) {
		t.Errorf("second StartSync() error = %v, want ErrIncorrectState", err)
	}

	if err := p.VerifyChallenge(1000, challengeA); err != nil {
		t.Fatalf("VerifyChallenge() error = %v", err)
	}
	if !p.IsSyncCompleted() {
		t.Fatal("IsSyncCompleted() = false after VerifyChallenge")
	}
	if _, ok := p.Challenge(); ok {
		t.Error("challenge retained after sync")
	}
	if b, ok := p.Baseline(); !ok || b != 1000 {
		t.Errorf("Baseline() = %d, %t, want 1000, true", b, ok)
	}

	if err := p.StartSync(challengeB); !errors.Is(err, ErrIncorrectState) {
		t.Errorf("StartSync() when synced error = %v, want ErrIncorrectState", err)
	}
	if err := p.VerifyChallenge(5, challengeA); !errors.Is(err, ErrIncorrectState) {
		t.Errorf("VerifyChallenge() when synced error = %v, want ErrIncorrectState", err)
	}

	p.SyncFail()
	if !p.IsSyncCompleted() {
		t.Error("SyncFail() changed a synced counter")
	}
}

func TestPeerMessageCounterChallengeMismatch(t *testing.T) {
	var p PeerMessageCounter
	p.StartSync(challengeA)

	if err := p.VerifyChallenge(10, challengeB); !errors.Is(err, ErrChallengeMismatch) {
		t.Fatalf("VerifyChallenge() error = %v, want ErrChallengeMismatch", err)
	}
	if !p.IsSyncStarted() {
		t.Error("mismatch left SyncInProgress")
	}
	if err := p.VerifyChallenge(10, challengeA); err != nil {
		t.Errorf("VerifyChallenge() with correct challenge error = %v", err)
	}
}

func TestPeerMessageCounterSyncFail(t *testing.T) {
	var p PeerMessageCounter
	p.SyncFail()
	if p.State() != SyncStateUninitialized {
		t.Fatal("SyncFail() on Uninitialized changed state")
	}

	p.StartSync(challengeA)
	p.SyncFail()
	if p.State() != SyncStateUninitialized {
		t.Errorf("State() = %s after SyncFail, want Uninitialized", p.State())
	}
	if _, ok := p.Challenge(); ok {
		t.Error("challenge retained after SyncFail")
	}
	if err := p.StartSync(challengeB); err != nil {
		t.Errorf("StartSync() after SyncFail error = %v", err)
	}
}

func TestPeerMessageCounterVerifyOutsideSynced(t *testing.T) {
	var p PeerMessageCounter
	if _, err := p.Verify(1); !errors.Is(err, ErrIncorrectState) {
		t.Errorf("Verify() error = %v, want ErrIncorrectState", err)
	}
	p.StartSync(challengeA)
	if _, err := p.Verify(1); !errors.Is(err, ErrIncorrectState) {
		t.Errorf("Verify() in progress error = %v, want ErrIncorrectState", err)
	}
}

func TestPeerMessageCounterVerifyCommit(t *testing.T) {
	tests := []struct {
		name     string
		baseline uint32
		commits  []uint32
		counter  uint32
		wantErr  error
	}{
		{"baseline rejected", 1000, nil, 1000, ErrDuplicateCounter},
		{"ahead accepted", 1000, nil, 1500, nil},
		{"just before baseline accepted", 1000, nil, 999, nil},
		{"window edge accepted", 1000, nil, 968, nil},
		{"behind window rejected", 1000, nil, 967, ErrDuplicateCounter},
		{"far before baseline rejected", 1000, nil, 10, ErrDuplicateCounter},
		{"committed rejected", 1000, []uint32{1001}, 1001, ErrDuplicateCounter},
		{"committed below baseline rejected", 1000, []uint32{999}, 999, ErrDuplicateCounter},
		{"late in window accepted", 1000, []uint32{1005}, 1002, nil},
		{"late duplicate rejected", 1000, []uint32{1005, 1002}, 1002, ErrDuplicateCounter},
		{"rollover accepted", 0xFFFFFFF0, []uint32{0xFFFFFFFF}, 3, nil},
		{"baseline across wrap", 0xFFFFFFFE, nil, 0, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := syncedCounter(t, tc.baseline)
			for _, c := range tc.commits {
				v, err := p.Verify(c)
				if err != nil {
					t.Fatalf("Verify(%d) error = %v", c, err)
				}
				if err := p.Commit(v); err != nil {
					t.Fatalf("Commit(%d) error = %v", c, err)
				}
			}

			v, err := p.Verify(tc.counter)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Verify(%d) error = %v, want %v", tc.counter, err, tc.wantErr)
			}
			if err == nil && v.Counter() != tc.counter {
				t.Errorf("Counter() = %d, want %d", v.Counter(), tc.counter)
			}
		})
	}
}

func TestPeerMessageCounterVerifyDoesNotRecord(t *testing.T) {
	p := syncedCounter(t, 50)

	for i := 0; i < 3; i++ {
		if _, err := p.Verify(51); err != nil {
			t.Fatalf("Verify() #%d error = %v", i, err)
		}
	}
	if b, _ := p.Baseline(); b != 50 {
		t.Errorf("Baseline() = %d after Verify only, want 50", b)
	}
}

func TestPeerMessageCounterCommit(t *testing.T) {
	p := syncedCounter(t, 50)

	if err := p.Commit(VerifiedCounter{}); !errors.Is(err, ErrNotVerified) {
		t.Errorf("Commit(zero) error = %v, want ErrNotVerified", err)
	}

	v, _ := p.Verify(60)
	if err := p.Commit(v); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if b, _ := p.Baseline(); b != 60 {
		t.Errorf("Baseline() = %d, want 60", b)
	}
	if err := p.Commit(v); !errors.Is(err, ErrDuplicateCounter) {
		t.Errorf("second Commit() error = %v, want ErrDuplicateCounter", err)
	}

	var fresh PeerMessageCounter
	if err := fresh.Commit(v); !errors.Is(err, ErrIncorrectState) {
		t.Errorf("Commit() on unsynced counter error = %v, want ErrIncorrectState", err)
	}
}

func TestSyncStateString(t *testing.T) {
	for state, want := range map[SyncState]string{
		SyncStateUninitialized: "Uninitialized",
		SyncStateInProgress:    "SyncInProgress",
		SyncStateSynced:        "Synced",
		SyncState(9):           "Unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
