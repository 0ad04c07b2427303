package securechannel

import (
	"errors"
	"time"

	"github.com/backkem/mcsync/pkg/exchange"
	"github.com/backkem/mcsync/pkg/message"
	"github.com/backkem/mcsync/pkg/session"
	"github.com/pion/logging"
)

// SessionRemover removes peer sessions. *session.Manager implements it.
type SessionRemover interface {
	RemovePeer(h session.Handle) error
}

// StatusHandlerConfig configures a StatusHandler.
type StatusHandlerConfig struct {
	Sessions SessionRemover

	// OnSessionClosed is called after a peer closed a session.
	OnSessionClosed func(h session.Handle)

	// OnPeerBusy is called with the wait time a busy peer asked for.
	OnPeerBusy func(h session.Handle, wait time.Duration)

	LoggerFactory logging.LoggerFactory
}

// StatusHandler handles unsolicited StatusReport messages on established
// sessions. CloseSession removes the session, which also drops any traffic
// still queued for counter synchronization with that peer.
type StatusHandler struct {
	config StatusHandlerConfig
	log    logging.LeveledLogger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(config StatusHandlerConfig) *StatusHandler {
	h := &StatusHandler{config: config}
	if config.LoggerFactory != nil {
		h.log = config.LoggerFactory.NewLogger("securechannel")
	}
	return h
}

// OnMessageReceived implements exchange.Delegate.
func (h *StatusHandler) OnMessageReceived(ec exchange.Exchange, _ *message.PacketHeader, payloadHeader *message.PayloadHeader, payload []byte) error {
	defer ec.Close()

	if !payloadHeader.HasMessageType(StatusReportType) {
		return nil
	}
	status, err := DecodeStatusReport(payload)
	if err != nil {
		return err
	}

	handle := ec.Session()
	switch {
	case status.IsCloseSession():
		// Reports sent under the group key cannot close the unicast session.
		if handle.GroupKeyed() {
			return nil
		}
		if err := h.config.Sessions.RemovePeer(handle); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			return err
		}
		if h.log != nil {
			h.log.Infof("peer closed %s", handle)
		}
		if h.config.OnSessionClosed != nil {
			h.config.OnSessionClosed(handle)
		}
	case status.IsBusy():
		wait := time.Duration(status.BusyWaitTime()) * time.Millisecond
		if h.log != nil {
			h.log.Debugf("peer on %s busy for %s", handle, wait)
		}
		if h.config.OnPeerBusy != nil {
			h.config.OnPeerBusy(handle, wait)
		}
	default:
		if h.log != nil {
			h.log.Debugf("ignoring %s on %s", status, handle)
		}
	}
	return nil
}

// OnResponseTimeout implements exchange.Delegate. The handler never
// expects a response.
func (h *StatusHandler) OnResponseTimeout(ec exchange.Exchange) {
	ec.Close()
}

var _ exchange.Delegate = (*StatusHandler)(nil)
