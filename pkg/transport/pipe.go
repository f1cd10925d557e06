package transport

import (
	"math/rand"
	"sync"
	"time"

	"github.com/pion/transport/v3/deadline"
)

// NetworkCondition configures link behavior simulation.
// Use this to test framing and recovery under adverse line conditions.
type NetworkCondition struct {
	// MaxChunk caps the bytes returned by a single Read, splitting
	// deliveries the way a UART FIFO does. Zero means no cap.
	MaxChunk int

	// DropRate is the probability of dropping a whole Write (0.0 - 1.0).
	DropRate float64

	// CorruptRate is the probability of flipping one byte of a Write (0.0 - 1.0).
	CorruptRate float64
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// Condition is the initial link condition.
	Condition NetworkCondition

	// ReadTimeout bounds a single Read. A Read that times out returns (0, nil).
	// Default: 10ms. Negative disables the timeout.
	ReadTimeout time.Duration

	// Seed seeds the condition RNG. Zero seeds from the clock.
	Seed int64
}

const defaultPipeReadTimeout = 10 * time.Millisecond

// Pipe provides a bidirectional in-memory byte stream between two endpoints.
// Writes are delivered immediately; there is no background goroutine.
//
// This follows the "Virtual Network" testing pattern: use Pipe for
// deterministic tests without real serial hardware.
type Pipe struct {
	mu        sync.RWMutex
	condition NetworkCondition
	rng       *rand.Rand

	conns [2]*PipeConn

	closeOnce sync.Once
	done      chan struct{}
}

// NewPipe creates a connected pipe.
func NewPipe(config PipeConfig) *Pipe {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	timeout := config.ReadTimeout
	if timeout == 0 {
		timeout = defaultPipeReadTimeout
	}

	p := &Pipe{
		condition: config.Condition,
		rng:       rand.New(rand.NewSource(seed)),
		done:      make(chan struct{}),
	}

	q0, q1 := newPipeQueue(), newPipeQueue()
	p.conns[0] = &PipeConn{pipe: p, id: 0, in: q1, out: q0, readTimeout: timeout, deadline: deadline.New()}
	p.conns[1] = &PipeConn{pipe: p, id: 1, in: q0, out: q1, readTimeout: timeout, deadline: deadline.New()}
	return p
}

// Conn0 returns the connection for endpoint 0.
func (p *Pipe) Conn0() *PipeConn {
	return p.conns[0]
}

// Conn1 returns the connection for endpoint 1.
func (p *Pipe) Conn1() *PipeConn {
	return p.conns[1]
}

// SetCondition configures link condition simulation.
// The conditions apply to bytes in both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Condition returns the current link condition configuration.
func (p *Pipe) Condition() NetworkCondition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.condition
}

// Close closes both endpoints. Pending Reads return ErrClosed once the
// buffered bytes are drained.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	return nil
}

// impair applies the write-side conditions to b and returns the bytes to
// deliver, or nil to drop them.
func (p *Pipe) impair(b []byte) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	cond := p.condition
	if cond.DropRate > 0 && p.rng.Float64() < cond.DropRate {
		return nil
	}

	out := append([]byte(nil), b...)
	if cond.CorruptRate > 0 && len(out) > 0 && p.rng.Float64() < cond.CorruptRate {
		out[p.rng.Intn(len(out))] ^= byte(1 + p.rng.Intn(255))
	}
	return out
}

func (p *Pipe) maxChunk() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.condition.MaxChunk
}

// pipeQueue is one direction of a Pipe.
type pipeQueue struct {
	mu     sync.Mutex
	buf    []byte
	notify chan struct{}
}

func newPipeQueue() *pipeQueue {
	return &pipeQueue{notify: make(chan struct{}, 1)}
}

func (q *pipeQueue) put(b []byte) {
	if len(b) == 0 {
		return
	}
	q.mu.Lock()
	q.buf = append(q.buf, b...)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *pipeQueue) take(b []byte, limit int) int {
	if limit > 0 && len(b) > limit {
		b = b[:limit]
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	n := copy(b, q.buf)
	q.buf = q.buf[:copy(q.buf, q.buf[n:])]
	return n
}

func (q *pipeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// PipeConn is one endpoint of a Pipe. It implements Transport.
type PipeConn struct {
	pipe *Pipe
	id   int
	in   *pipeQueue
	out  *pipeQueue

	readTimeout time.Duration
	deadline    *deadline.Deadline

	wmu sync.Mutex
}

// Read returns buffered bytes, waiting up to the read timeout for some to
// arrive. It returns (0, nil) on timeout.
func (c *PipeConn) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	if c.readTimeout > 0 {
		c.deadline.Set(time.Now().Add(c.readTimeout))
	} else {
		c.deadline.Set(time.Time{})
	}

	for {
		if n := c.in.take(b, c.pipe.maxChunk()); n > 0 {
			return n, nil
		}

		select {
		case <-c.in.notify:
		case <-c.pipe.done:
			if n := c.in.take(b, c.pipe.maxChunk()); n > 0 {
				return n, nil
			}
			return 0, ErrClosed
		case <-c.deadline.Done():
			return 0, nil
		}
	}
}

// Write delivers b to the peer, subject to the pipe's NetworkCondition.
// Dropped writes still report len(b).
func (c *PipeConn) Write(b []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	select {
	case <-c.pipe.done:
		return 0, ErrClosed
	default:
	}

	c.out.put(c.pipe.impair(b))
	return len(b), nil
}

// Close closes the whole pipe.
func (c *PipeConn) Close() error {
	return c.pipe.Close()
}

// Buffered returns the number of bytes waiting to be read on this endpoint.
func (c *PipeConn) Buffered() int {
	return c.in.len()
}

// ID returns the endpoint index, 0 or 1.
func (c *PipeConn) ID() int {
	return c.id
}

// Verify PipeConn implements Transport.
var _ Transport = (*PipeConn)(nil)
