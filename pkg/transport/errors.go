package transport

import "errors"

var (
	ErrClosed          = errors.New("transport: closed")
	ErrAlreadyStarted  = errors.New("transport: already started")
	ErrNoHandler       = errors.New("transport: no message handler configured")
	ErrInvalidAddress  = errors.New("transport: invalid address")
	ErrMessageTooLarge = errors.New("transport: message exceeds maximum frame size")
)
