package transport

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// NetworkCondition configures impairments applied by a Pipe.
type NetworkCondition struct {
	// DropRate is the probability of dropping a packet (0.0 - 1.0).
	DropRate float64

	// DelayMin and DelayMax bound a uniformly distributed per-packet delay.
	// Delayed packets are written from a timer; WriteTo never blocks.
	DelayMin time.Duration
	DelayMax time.Duration

	// DuplicateRate is the probability of delivering a packet twice.
	// Useful for exercising replay detection.
	DuplicateRate float64
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess delivers queued packets from a background goroutine.
	AutoProcess bool

	// ProcessInterval is the auto-processor tick. Default: 1ms.
	ProcessInterval time.Duration
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		AutoProcess:     true,
		ProcessInterval: time.Millisecond,
	}
}

// Pipe is a bidirectional in-memory packet link built on pion's test.Bridge.
// With AutoProcess disabled, packets only move on Tick or Process, which
// gives tests full control over ordering.
type Pipe struct {
	bridge *test.Bridge

	mu              sync.RWMutex
	condition       NetworkCondition
	closed          bool
	rng             *rand.Rand
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewPipe creates a pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	p := &Pipe{
		bridge:          test.NewBridge(),
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
	}
	if p.processInterval <= 0 {
		p.processInterval = time.Millisecond
	}

	if p.autoProcess {
		p.startAutoProcess()
	}
	return p
}

func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
}

// SetCondition replaces the impairments applied in both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Tick delivers at most one packet in each direction and returns how many
// were delivered.
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Queued returns the packets waiting in both directions. A packet leaves the
// queue only once a reader is blocked on the receiving endpoint.
func (p *Pipe) Queued() int {
	return p.bridge.Len(0) + p.bridge.Len(1)
}

// Process delivers queued packets to the readers currently waiting for them.
// Packets with no waiting reader stay queued.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			return count
		}
		count += n
	}
}

// PacketConns returns the two endpoints as net.PacketConns. Endpoint 0 sees
// endpoint 1 as its only peer and vice versa.
func (p *Pipe) PacketConns(port int) (*PipePacketConn, *PipePacketConn) {
	a0 := PipeAddr{ID: 0, Port: port}
	a1 := PipeAddr{ID: 1, Port: port}
	c0 := &PipePacketConn{conn: p.bridge.GetConn0(), local: a0, peer: a1, pipe: p}
	c1 := &PipePacketConn{conn: p.bridge.GetConn1(), local: a1, peer: a0, pipe: p}
	return c0, c1
}

// Close stops auto-processing and closes both endpoints.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.bridge.GetConn0().Close()
	err1 := p.bridge.GetConn1().Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// NewPipeConnPair is a shortcut for tests: an auto-processing pipe and its
// two packet endpoints.
func NewPipeConnPair() (*Pipe, *PipePacketConn, *PipePacketConn) {
	p := NewPipe()
	c0, c1 := p.PacketConns(DefaultPort)
	return p, c0, c1
}

// PipeAddr implements net.Addr for pipe endpoints.
type PipeAddr struct {
	ID   int
	Port int
}

const pipeNetwork = "pipe"

// Network returns "pipe".
func (a PipeAddr) Network() string { return pipeNetwork }

func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d:%d", a.ID, a.Port) }

// PipePacketConn adapts one pipe endpoint to net.PacketConn.
type PipePacketConn struct {
	conn  net.Conn
	local PipeAddr
	peer  PipeAddr
	pipe  *Pipe
}

// ReadFrom reads a packet; the source is always the other endpoint.
func (c *PipePacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, err := c.conn.Read(b)
	return n, c.peer, err
}

// WriteTo writes a packet to the other endpoint. addr is ignored.
func (c *PipePacketConn) WriteTo(b []byte, _ net.Addr) (int, error) {
	// rng is not safe for concurrent use.
	c.pipe.mu.Lock()
	cond := c.pipe.condition
	drop := cond.DropRate > 0 && c.pipe.rng.Float64() < cond.DropRate
	dup := cond.DuplicateRate > 0 && c.pipe.rng.Float64() < cond.DuplicateRate
	var delay time.Duration
	if cond.DelayMax > cond.DelayMin {
		delay = cond.DelayMin + time.Duration(c.pipe.rng.Int63n(int64(cond.DelayMax-cond.DelayMin)))
	} else {
		delay = cond.DelayMin
	}
	c.pipe.mu.Unlock()

	if drop {
		return len(b), nil
	}
	copies := 1
	if dup {
		copies = 2
	}
	if delay > 0 {
		// The writer may be the dispatch context, so it must not block.
		data := make([]byte, len(b))
		copy(data, b)
		time.AfterFunc(delay, func() { c.deliver(data, copies) })
		return len(b), nil
	}
	for i := 0; i < copies; i++ {
		if _, err := c.conn.Write(b); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

// deliver writes a delayed packet unless the pipe closed in the meantime.
func (c *PipePacketConn) deliver(data []byte, copies int) {
	c.pipe.mu.RLock()
	closed := c.pipe.closed
	c.pipe.mu.RUnlock()
	if closed {
		return
	}
	for i := 0; i < copies; i++ {
		if _, err := c.conn.Write(data); err != nil {
			return
		}
	}
}

func (c *PipePacketConn) Close() error {
	return c.conn.Close()
}

func (c *PipePacketConn) LocalAddr() net.Addr {
	return c.local
}

// PeerAddr returns the address of the other endpoint.
func (c *PipePacketConn) PeerAddr() net.Addr {
	return c.peer
}

func (c *PipePacketConn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

func (c *PipePacketConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *PipePacketConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

var _ net.PacketConn = (*PipePacketConn)(nil)
