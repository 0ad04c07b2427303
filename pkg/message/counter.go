package message

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
)

// MessageCounter produces outgoing message counter values.
// It is safe for concurrent use.
type MessageCounter struct {
	value uint32
	mu    sync.Mutex
}

// NewMessageCounter creates a counter initialized to a random value in
// [1, CounterInitMax].
func NewMessageCounter() *MessageCounter {
	return &MessageCounter{value: randomCounterInit()}
}

// NewMessageCounterWithValue creates a counter with a specific initial value.
// Used for testing or restoring persisted counters.
func NewMessageCounterWithValue(initial uint32) *MessageCounter {
	return &MessageCounter{value: initial}
}

// Next returns the current value and advances the counter.
// Global counters roll over; rollover policy belongs to the session layer.
func (c *MessageCounter) Next() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.value
	c.value++
	return current
}

// Current returns the value the next outgoing message will carry.
func (c *MessageCounter) Current() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// randomCounterInit returns Crypto_DRBG(len = 28) + 1.
func randomCounterInit() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 1
	}
	return (binary.LittleEndian.Uint32(buf[:]) & (CounterInitMax - 1)) + 1
}

// GlobalCounters holds the node-wide outgoing counters. One instance is
// created per node and handed to the session layer, which stamps secured
// traffic from Encrypted and unsecured handshake traffic from Unencrypted.
type GlobalCounters struct {
	Unencrypted *MessageCounter
	Encrypted   *MessageCounter
}

// NewGlobalCounters creates both counters with random initial values.
func NewGlobalCounters() *GlobalCounters {
	return &GlobalCounters{
		Unencrypted: NewMessageCounter(),
		Encrypted:   NewMessageCounter(),
	}
}

// CounterWindow is a sliding replay window: the largest counter seen plus a
// bitmap covering the CounterWindowSize counters below it.
// The zero value has max 0 and an empty bitmap.
type CounterWindow struct {
	max    uint32
	bitmap uint32
}

// NewCounterWindow returns a window whose largest seen counter is max and in
// which every counter below max is treated as already received.
func NewCounterWindow(max uint32) CounterWindow {
	return CounterWindow{max: max, bitmap: 0xFFFFFFFF}
}

// NewOpenCounterWindow returns a window anchored at max in which none of the
// CounterWindowSize counters below max have been seen yet.
func NewOpenCounterWindow(max uint32) CounterWindow {
	return CounterWindow{max: max}
}

// Max returns the largest counter recorded in the window.
func (w CounterWindow) Max() uint32 {
	return w.max
}

// IsNew reports whether counter has not been seen and is still inside the
// window. With rollover the comparison uses 31-bit signed distance, as
// required for group counters; without it counters compare as plain uint32.
// IsNew never modifies the window.
func (w CounterWindow) IsNew(counter uint32, rollover bool) bool {
	var behind uint32
	if rollover {
		diff := int32(counter - w.max)
		if diff > 0 {
			return true
		}
		if diff == 0 {
			return false
		}
		behind = uint32(-int64(diff))
	} else {
		if counter > w.max {
			return true
		}
		if counter == w.max {
			return false
		}
		behind = w.max - counter
	}

	if behind > CounterWindowSize {
		return false
	}
	return w.bitmap&(uint32(1)<<(behind-1)) == 0
}

// Mark records counter as received. The caller must have checked IsNew with
// the same rollover mode.
func (w *CounterWindow) Mark(counter uint32, rollover bool) {
	ahead := counter > w.max
	if rollover {
		ahead = int32(counter-w.max) > 0
	}

	if ahead {
		shift := counter - w.max
		if shift > CounterWindowSize {
			w.bitmap = 0
		} else {
			w.bitmap = (w.bitmap << shift) | (1 << (shift - 1))
		}
		w.max = counter
		return
	}

	behind := w.max - counter
	if behind >= 1 && behind <= CounterWindowSize {
		w.bitmap |= 1 << (behind - 1)
	}
}

// ReceptionState is the replay detector for unicast sessions. It trusts the
// first counter it sees and rejects duplicates and counters behind the
// window afterwards. Unicast counters never roll over.
type ReceptionState struct {
	window      CounterWindow
	initialized bool
	mu          sync.Mutex
}

// NewReceptionState creates a reception state that accepts any first counter.
func NewReceptionState() *ReceptionState {
	return &ReceptionState{}
}

// CheckAndAccept returns true and records counter if it is not a replay.
func (r *ReceptionState) CheckAndAccept(counter uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		r.window = CounterWindow{max: counter}
		r.initialized = true
		return true
	}

	if !r.window.IsNew(counter, false) {
		return false
	}
	r.window.Mark(counter, false)
	return true
}

// MaxCounter returns the largest counter accepted so far.
func (r *ReceptionState) MaxCounter() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.window.Max()
}
