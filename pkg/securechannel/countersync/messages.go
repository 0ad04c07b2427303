package countersync

import (
	"encoding/binary"

	"github.com/backkem/mcsync/pkg/session"
)

const (
	// SyncRequestSize is the length of a MsgCounterSyncReq body.
	SyncRequestSize = session.ChallengeSize

	// SyncResponseSize is the length of a MsgCounterSyncRsp body.
	SyncResponseSize = 4 + session.ChallengeSize
)

// Challenge is the random nonce binding a response to its request.
type Challenge = [session.ChallengeSize]byte

// EncodeSyncRequest returns the MsgCounterSyncReq body.
func EncodeSyncRequest(challenge Challenge) []byte {
	buf := make([]byte, SyncRequestSize)
	copy(buf, challenge[:])
	return buf
}

// DecodeSyncRequest parses a MsgCounterSyncReq body.
func DecodeSyncRequest(data []byte) (Challenge, error) {
	var challenge Challenge
	if len(data) != SyncRequestSize {
		return challenge, ErrInvalidMessageLength
	}
	copy(challenge[:], data)
	return challenge, nil
}

// EncodeSyncResponse returns the MsgCounterSyncRsp body.
func EncodeSyncResponse(counter uint32, challenge Challenge) []byte {
	buf := make([]byte, SyncResponseSize)
	binary.LittleEndian.PutUint32(buf, counter)
	copy(buf[4:], challenge[:])
	return buf
}

// DecodeSyncResponse parses a MsgCounterSyncRsp body. A zero counter is
// rejected with ErrReadFailed.
func DecodeSyncResponse(data []byte) (uint32, Challenge, error) {
	var challenge Challenge
	if len(data) != SyncResponseSize {
		return 0, challenge, ErrInvalidMessageLength
	}

	counter := binary.LittleEndian.Uint32(data)
	if counter == 0 {
		return 0, challenge, ErrReadFailed
	}
	copy(challenge[:], data[4:])
	return counter, challenge, nil
}
