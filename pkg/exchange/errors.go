package exchange

import "errors"

// Errors returned by the exchange package.
var (
	// ErrExchangeClosed is returned when attempting operations on a closed exchange.
	ErrExchangeClosed = errors.New("exchange: exchange is closed")

	// ErrNoHandler is returned when no unsolicited handler is registered for a protocol.
	ErrNoHandler = errors.New("exchange: no handler registered for protocol")

	// ErrHandlerExists is returned when registering a protocol twice.
	ErrHandlerExists = errors.New("exchange: handler already registered for protocol")

	// ErrExchangeExists is returned when an exchange key is already in use.
	ErrExchangeExists = errors.New("exchange: exchange already exists")

	// ErrInvalidSession is returned for a handle that refers to no session.
	ErrInvalidSession = errors.New("exchange: invalid session handle")

	// ErrUnsolicitedNotInitiator is returned for unsolicited messages without I flag.
	ErrUnsolicitedNotInitiator = errors.New("exchange: unsolicited message must have I flag set")
)
