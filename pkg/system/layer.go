// Package system provides the single execution context the protocol stack
// runs in.
//
// Transport deliveries, timer expirations and application calls all enter
// the stack through Layer.Dispatch, which runs them one at a time. Code
// running inside Dispatch may start and cancel timers but must never call
// Dispatch again.
package system

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/pion/logging"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("system: layer closed")

// LayerConfig configures a Layer.
type LayerConfig struct {
	// Clock drives timers. Default: clock.NewClock().
	Clock clock.Clock

	// LoggerFactory is optional; nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// Layer serializes every entry into the stack.
type Layer struct {
	clock clock.Clock
	log   logging.LeveledLogger

	mu      sync.Mutex
	closed  atomic.Bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewLayer creates a dispatch layer.
func NewLayer(config LayerConfig) *Layer {
	if config.Clock == nil {
		config.Clock = clock.NewClock()
	}

	l := &Layer{
		clock:   config.Clock,
		closeCh: make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		l.log = config.LoggerFactory.NewLogger("system")
	}
	return l
}

// Clock returns the clock driving this layer's timers.
func (l *Layer) Clock() clock.Clock {
	return l.clock
}

// Dispatch runs fn in the execution context and returns once it has run.
func (l *Layer) Dispatch(fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed.Load() {
		return ErrClosed
	}
	fn()
	return nil
}

// StartTimer arranges for fn to run in the execution context after d.
// Cancelling the returned Timer before fn has started guarantees fn never
// runs, even if the clock already fired.
func (l *Layer) StartTimer(d time.Duration, fn func()) *Timer {
	t := &Timer{
		timer: l.clock.NewTimer(d),
		stop:  make(chan struct{}),
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		select {
		case <-t.timer.C():
		case <-t.stop:
			return
		case <-l.closeCh:
			t.timer.Stop()
			return
		}

		err := l.Dispatch(func() {
			if t.cancelled.Swap(true) {
				return
			}
			fn()
		})
		if err != nil && l.log != nil {
			l.log.Debugf("timer dropped: %v", err)
		}
	}()

	return t
}

// Close stops accepting work and waits for pending timer goroutines.
// Close must not be called from inside Dispatch.
func (l *Layer) Close() {
	l.mu.Lock()
	if l.closed.Swap(true) {
		l.mu.Unlock()
		return
	}
	close(l.closeCh)
	l.mu.Unlock()

	l.wg.Wait()
	if l.log != nil {
		l.log.Debug("dispatch layer closed")
	}
}

// Timer is a cancellable one-shot callback created by Layer.StartTimer.
type Timer struct {
	timer     clock.Timer
	stop      chan struct{}
	cancelled atomic.Bool
}

// Cancel stops the timer. It reports whether the callback was prevented
// from running. Safe to call more than once and from any goroutine.
func (t *Timer) Cancel() bool {
	if t == nil || t.cancelled.Swap(true) {
		return false
	}
	t.timer.Stop()
	close(t.stop)
	return true
}
