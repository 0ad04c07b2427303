package session

import "errors"

// Session package errors.
var (
	// ErrIncorrectState is returned when a PeerMessageCounter operation is
	// not valid in its current state.
	ErrIncorrectState = errors.New("session: incorrect peer counter state")

	// ErrChallengeMismatch is returned when a sync response echoes a
	// challenge other than the one outstanding.
	ErrChallengeMismatch = errors.New("session: sync challenge mismatch")

	// ErrDuplicateCounter is returned for a counter that was already
	// received or falls behind the trusted window.
	ErrDuplicateCounter = errors.New("session: duplicate message counter")

	// ErrNotVerified is returned by Commit for a token not produced by Verify.
	ErrNotVerified = errors.New("session: counter not verified")

	ErrInvalidSessionID   = errors.New("session: invalid session ID")
	ErrInvalidNodeID      = errors.New("session: invalid node ID")
	ErrSessionNotFound    = errors.New("session: session not found")
	ErrSessionTableFull   = errors.New("session: session table full")
	ErrDuplicateSession   = errors.New("session: duplicate session ID")
	ErrDuplicatePeer      = errors.New("session: peer node already has a session")
	ErrReplayDetected     = errors.New("session: replay detected")
	ErrNoTransport        = errors.New("session: no transport configured")
	ErrNoMessageHandler   = errors.New("session: no message handler configured")
	ErrPeerNotSynced      = errors.New("session: peer counter not synchronized")
	ErrUnsecuredMessage   = errors.New("session: unsecured message not handled")
	ErrInvalidPeerAddress = errors.New("session: invalid peer address")
)
