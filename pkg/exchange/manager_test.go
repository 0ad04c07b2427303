package exchange

import (
	"errors"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/backkem/mcsync/pkg/message"
	"github.com/backkem/mcsync/pkg/session"
	"github.com/backkem/mcsync/pkg/system"
)

var (
	testHandle = session.NewHandle(7)
	echoType   = message.MessageType{ProtocolID: message.ProtocolForTesting, Opcode: 0x01}
)

type sentMessage struct {
	handle  session.Handle
	header  message.PayloadHeader
	payload []byte
}

type fakeSessions struct {
	sent []sentMessage
	err  error
}

func (f *fakeSessions) SendMessage(h session.Handle, ph *message.PayloadHeader, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{h, *ph, payload})
	return nil
}

type recordingDelegate struct {
	received []message.PayloadHeader
	timeouts chan Exchange
	err      error

	// onMessage runs after recording, if set.
	onMessage func(ec Exchange)
}

func newRecordingDelegate() *recordingDelegate {
	return &recordingDelegate{timeouts: make(chan Exchange, 4)}
}

func (d *recordingDelegate) OnMessageReceived(ec Exchange, _ *message.PacketHeader, ph *message.PayloadHeader, _ []byte) error {
	d.received = append(d.received, *ph)
	if d.onMessage != nil {
		d.onMessage(ec)
	}
	return d.err
}

func (d *recordingDelegate) OnResponseTimeout(ec Exchange) {
	d.timeouts <- ec
}

type fixture struct {
	m        *Manager
	sessions *fakeSessions
	layer    *system.Layer
	clock    *fakeclock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fc := fakeclock.NewFakeClock(time.Unix(1000, 0))
	layer := system.NewLayer(system.LayerConfig{Clock: fc})
	t.Cleanup(layer.Close)

	sessions := &fakeSessions{}
	return &fixture{
		m:        NewManager(ManagerConfig{Sessions: sessions, Timers: layer}),
		sessions: sessions,
		layer:    layer,
		clock:    fc,
	}
}

// run executes fn in the dispatch context.
func (f *fixture) run(t *testing.T, fn func()) {
	t.Helper()
	if err := f.layer.Dispatch(fn); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
}

func inbound(exchangeID uint16, initiator bool, t message.MessageType) *message.PayloadHeader {
	return &message.PayloadHeader{
		ProtocolID:     t.ProtocolID,
		ProtocolOpcode: t.Opcode,
		ExchangeID:     exchangeID,
		Initiator:      initiator,
	}
}

func TestNewExchangeAllocatesIDs(t *testing.T) {
	f := newFixture(t)

	first, err := f.m.NewExchange(testHandle, newRecordingDelegate())
	if err != nil {
		t.Fatalf("NewExchange() error = %v", err)
	}
	second, err := f.m.NewExchange(testHandle, newRecordingDelegate())
	if err != nil {
		t.Fatalf("NewExchange() error = %v", err)
	}

	a, b := first.(*Context), second.(*Context)
	if b.ID() != a.ID()+1 {
		t.Errorf("second ID = %d, want %d", b.ID(), a.ID()+1)
	}
	if !a.IsInitiator() || a.Role() != ExchangeRoleInitiator {
		t.Errorf("role = %s, want Initiator", a.Role())
	}
	if f.m.ExchangeCount() != 2 {
		t.Errorf("ExchangeCount() = %d, want 2", f.m.ExchangeCount())
	}
}

func TestNewExchangeSkipsTakenID(t *testing.T) {
	f := newFixture(t)
	f.m.nextExchangeID = 41

	held, err := f.m.NewExchange(testHandle, newRecordingDelegate())
	if err != nil {
		t.Fatalf("NewExchange() error = %v", err)
	}
	if held.(*Context).ID() != 41 {
		t.Fatalf("ID = %d, want 41", held.(*Context).ID())
	}

	// Wrap around onto the still open exchange.
	f.m.nextExchangeID = 41
	for _, want := range []uint16{42, 43} {
		ec, err := f.m.NewExchange(testHandle, newRecordingDelegate())
		if err != nil {
			t.Fatalf("NewExchange() error = %v", err)
		}
		if got := ec.(*Context).ID(); got != want {
			t.Errorf("ID = %d, want %d", got, want)
		}
	}
	if f.m.ExchangeCount() != 3 {
		t.Errorf("ExchangeCount() = %d, want 3", f.m.ExchangeCount())
	}
}

func TestNewExchangeInvalidHandle(t *testing.T) {
	f := newFixture(t)
	if _, err := f.m.NewExchange(session.Handle{}, nil); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("NewExchange() error = %v, want ErrInvalidSession", err)
	}
}

func TestInitiatorSendSetsFlag(t *testing.T) {
	f := newFixture(t)
	ec, _ := f.m.NewExchange(testHandle.WithGroupKey(), newRecordingDelegate())

	if err := ec.SendMessage(echoType, []byte{1, 2}, SendFlagNone); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if len(f.sessions.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(f.sessions.sent))
	}
	got := f.sessions.sent[0]
	if got.handle != testHandle.WithGroupKey() {
		t.Errorf("handle = %s, want %s", got.handle, testHandle.WithGroupKey())
	}
	if !got.header.Initiator {
		t.Error("Initiator flag not set")
	}
	if !got.header.HasMessageType(echoType) {
		t.Errorf("message type = %s, want %s", got.header.MessageType(), echoType)
	}
	if got.header.ExchangeID != ec.(*Context).ID() {
		t.Errorf("ExchangeID = %d, want %d", got.header.ExchangeID, ec.(*Context).ID())
	}
}

func TestSendErrorPropagates(t *testing.T) {
	f := newFixture(t)
	sendErr := errors.New("boom")
	f.sessions.err = sendErr

	ec, _ := f.m.NewExchange(testHandle, newRecordingDelegate())
	ec.SetResponseTimeout(time.Second)
	if err := ec.SendMessage(echoType, nil, SendFlagExpectResponse); !errors.Is(err, sendErr) {
		t.Fatalf("SendMessage() error = %v, want %v", err, sendErr)
	}
	if ec.(*Context).IsResponseExpected() {
		t.Error("response timer armed after failed send")
	}
}

func TestResponseRoutedToInitiator(t *testing.T) {
	f := newFixture(t)
	d := newRecordingDelegate()
	ec, _ := f.m.NewExchange(testHandle, d)
	id := ec.(*Context).ID()

	if err := f.m.OnMessageReceived(testHandle, &message.PacketHeader{}, inbound(id, false, echoType), nil); err != nil {
		t.Fatalf("OnMessageReceived() error = %v", err)
	}
	if len(d.received) != 1 {
		t.Fatalf("delegate got %d messages, want 1", len(d.received))
	}

	// Same ID on a different handle is a different exchange.
	err := f.m.OnMessageReceived(testHandle.WithGroupKey(), &message.PacketHeader{}, inbound(id, false, echoType), nil)
	if !errors.Is(err, ErrUnsolicitedNotInitiator) {
		t.Errorf("OnMessageReceived() on other handle error = %v, want ErrUnsolicitedNotInitiator", err)
	}
}

func TestUnsolicitedMessages(t *testing.T) {
	f := newFixture(t)
	handler := newRecordingDelegate()
	if err := f.m.RegisterUnsolicitedHandler(message.ProtocolForTesting, handler); err != nil {
		t.Fatalf("RegisterUnsolicitedHandler() error = %v", err)
	}

	vendor := inbound(3, true, echoType)
	vendor.ProtocolVendorID = 0xFFF1
	vendor.VendorPresent = true

	tests := []struct {
		name    string
		header  *message.PayloadHeader
		wantErr error
	}{
		{"registered protocol", inbound(1, true, echoType), nil},
		{"missing initiator flag", inbound(2, false, echoType), ErrUnsolicitedNotInitiator},
		{"unregistered protocol", inbound(4, true, message.MessageType{ProtocolID: message.ProtocolInteractionModel}), ErrNoHandler},
		{"vendor protocol", vendor, ErrNoHandler},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.m.OnMessageReceived(testHandle, &message.PacketHeader{}, tt.header, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("OnMessageReceived() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if len(handler.received) != 1 {
		t.Errorf("handler got %d messages, want 1", len(handler.received))
	}
	if f.m.ExchangeCount() != 1 {
		t.Errorf("ExchangeCount() = %d, want 1", f.m.ExchangeCount())
	}
}

func TestResponderReplies(t *testing.T) {
	f := newFixture(t)
	handler := newRecordingDelegate()
	handler.onMessage = func(ec Exchange) {
		if err := ec.SendMessage(echoType, []byte{0xAA}, SendFlagNone); err != nil {
			t.Errorf("reply SendMessage() error = %v", err)
		}
		ec.Close()
	}
	f.m.RegisterUnsolicitedHandler(message.ProtocolForTesting, handler)

	if err := f.m.OnMessageReceived(testHandle, &message.PacketHeader{}, inbound(42, true, echoType), nil); err != nil {
		t.Fatalf("OnMessageReceived() error = %v", err)
	}

	if len(f.sessions.sent) != 1 {
		t.Fatalf("sent %d replies, want 1", len(f.sessions.sent))
	}
	reply := f.sessions.sent[0].header
	if reply.Initiator {
		t.Error("responder reply carries Initiator flag")
	}
	if reply.ExchangeID != 42 {
		t.Errorf("reply ExchangeID = %d, want 42", reply.ExchangeID)
	}
	if f.m.ExchangeCount() != 0 {
		t.Errorf("ExchangeCount() = %d after close, want 0", f.m.ExchangeCount())
	}
}

func TestHandlerErrorClosesExchange(t *testing.T) {
	f := newFixture(t)
	handler := newRecordingDelegate()
	handler.err = errors.New("rejected")
	f.m.RegisterUnsolicitedHandler(message.ProtocolForTesting, handler)

	err := f.m.OnMessageReceived(testHandle, &message.PacketHeader{}, inbound(9, true, echoType), nil)
	if !errors.Is(err, handler.err) {
		t.Fatalf("OnMessageReceived() error = %v, want %v", err, handler.err)
	}
	if f.m.ExchangeCount() != 0 {
		t.Errorf("ExchangeCount() = %d, want 0", f.m.ExchangeCount())
	}
}

func TestTypeHandlerPrecedence(t *testing.T) {
	f := newFixture(t)
	byProtocol := newRecordingDelegate()
	byType := newRecordingDelegate()
	f.m.RegisterUnsolicitedHandler(message.ProtocolForTesting, byProtocol)
	if err := f.m.RegisterUnsolicitedHandlerForType(echoType, byType); err != nil {
		t.Fatalf("RegisterUnsolicitedHandlerForType() error = %v", err)
	}

	other := message.MessageType{ProtocolID: message.ProtocolForTesting, Opcode: 0x02}
	f.m.OnMessageReceived(testHandle, &message.PacketHeader{}, inbound(1, true, echoType), nil)
	f.m.OnMessageReceived(testHandle, &message.PacketHeader{}, inbound(2, true, other), nil)

	if len(byType.received) != 1 || !byType.received[0].HasMessageType(echoType) {
		t.Errorf("type handler got %v, want one %s", byType.received, echoType)
	}
	if len(byProtocol.received) != 1 || !byProtocol.received[0].HasMessageType(other) {
		t.Errorf("protocol handler got %v, want one %s", byProtocol.received, other)
	}

	if err := f.m.RegisterUnsolicitedHandlerForType(echoType, byType); !errors.Is(err, ErrHandlerExists) {
		t.Errorf("duplicate type register error = %v, want ErrHandlerExists", err)
	}
	if err := f.m.UnregisterUnsolicitedHandlerForType(echoType); err != nil {
		t.Errorf("UnregisterUnsolicitedHandlerForType() error = %v", err)
	}
	if err := f.m.UnregisterUnsolicitedHandlerForType(echoType); !errors.Is(err, ErrNoHandler) {
		t.Errorf("second unregister error = %v, want ErrNoHandler", err)
	}
}

func TestRegisterUnsolicitedHandler(t *testing.T) {
	f := newFixture(t)
	d := newRecordingDelegate()

	if err := f.m.RegisterUnsolicitedHandler(message.ProtocolSecureChannel, d); err != nil {
		t.Fatalf("first register error = %v", err)
	}
	if err := f.m.RegisterUnsolicitedHandler(message.ProtocolSecureChannel, d); !errors.Is(err, ErrHandlerExists) {
		t.Errorf("second register error = %v, want ErrHandlerExists", err)
	}
	if err := f.m.UnregisterUnsolicitedHandler(message.ProtocolSecureChannel); err != nil {
		t.Errorf("unregister error = %v", err)
	}
	if err := f.m.UnregisterUnsolicitedHandler(message.ProtocolSecureChannel); !errors.Is(err, ErrNoHandler) {
		t.Errorf("second unregister error = %v, want ErrNoHandler", err)
	}
}

func TestResponseTimeout(t *testing.T) {
	f := newFixture(t)
	d := newRecordingDelegate()
	var ec Exchange

	f.run(t, func() {
		ec, _ = f.m.NewExchange(testHandle, d)
		ec.SetResponseTimeout(500 * time.Millisecond)
		if err := ec.SendMessage(echoType, nil, SendFlagExpectResponse); err != nil {
			t.Errorf("SendMessage() error = %v", err)
		}
	})

	f.clock.Increment(500 * time.Millisecond)
	select {
	case got := <-d.timeouts:
		if got != ec {
			t.Error("timeout delivered for wrong exchange")
		}
	case <-time.After(time.Second):
		t.Fatal("response timeout did not fire")
	}

	f.run(t, func() {
		if ec.(*Context).IsResponseExpected() {
			t.Error("response still expected after timeout")
		}
	})
}

func TestResponseCancelsTimeout(t *testing.T) {
	f := newFixture(t)
	d := newRecordingDelegate()

	f.run(t, func() {
		ec, _ := f.m.NewExchange(testHandle, d)
		ec.SetResponseTimeout(500 * time.Millisecond)
		ec.SendMessage(echoType, nil, SendFlagExpectResponse)

		id := ec.(*Context).ID()
		if err := f.m.OnMessageReceived(testHandle, &message.PacketHeader{}, inbound(id, false, echoType), nil); err != nil {
			t.Errorf("OnMessageReceived() error = %v", err)
		}
	})

	f.clock.Increment(time.Second)
	select {
	case <-d.timeouts:
		t.Fatal("timeout fired after response")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestSendWithoutTimeoutArmsNothing(t *testing.T) {
	f := newFixture(t)
	ec, _ := f.m.NewExchange(testHandle, newRecordingDelegate())

	ec.SendMessage(echoType, nil, SendFlagExpectResponse)
	if ec.(*Context).IsResponseExpected() {
		t.Error("timer armed with zero response timeout")
	}
}

func TestCloseExchange(t *testing.T) {
	f := newFixture(t)
	d := newRecordingDelegate()
	var ec Exchange

	f.run(t, func() {
		ec, _ = f.m.NewExchange(testHandle, d)
		ec.SetResponseTimeout(500 * time.Millisecond)
		ec.SendMessage(echoType, nil, SendFlagExpectResponse)
		ec.Close()
		ec.Close()
	})

	if f.m.ExchangeCount() != 0 {
		t.Errorf("ExchangeCount() = %d, want 0", f.m.ExchangeCount())
	}
	if !ec.(*Context).IsClosed() {
		t.Error("IsClosed() = false")
	}
	if err := ec.SendMessage(echoType, nil, SendFlagNone); !errors.Is(err, ErrExchangeClosed) {
		t.Errorf("SendMessage() after close error = %v, want ErrExchangeClosed", err)
	}

	f.clock.Increment(time.Second)
	select {
	case <-d.timeouts:
		t.Fatal("closed exchange timed out")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestManagerClose(t *testing.T) {
	f := newFixture(t)
	a, _ := f.m.NewExchange(testHandle, nil)
	b, _ := f.m.NewExchange(session.NewHandle(8), nil)

	f.m.Close()

	if f.m.ExchangeCount() != 0 {
		t.Errorf("ExchangeCount() = %d, want 0", f.m.ExchangeCount())
	}
	if !a.(*Context).IsClosed() || !b.(*Context).IsClosed() {
		t.Error("exchanges not closed")
	}
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{ExchangeRoleInitiator.String(), "Initiator"},
		{ExchangeRoleResponder.String(), "Responder"},
		{ExchangeRole(9).String(), "Unknown"},
		{ExchangeStateActive.String(), "Active"},
		{ExchangeStateClosed.String(), "Closed"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}

	flags := SendFlagExpectResponse
	if !flags.Has(SendFlagExpectResponse) || SendFlagNone.Has(SendFlagExpectResponse) {
		t.Error("SendFlags.Has mismatch")
	}
}
