package framing

import (
	"bytes"
	"io"
)

// DefaultCapacity is the default receive buffer size, which also bounds the
// largest frame that can be reassembled.
const DefaultCapacity = 1024

// ReceiverStats holds counters for diagnostics.
type ReceiverStats struct {
	BytesRead uint64 // Bytes pulled from the reader
	Frames    uint64 // Frames handed out by NextFrame
	Overflows uint64 // Buffer resets due to a missing delimiter
	Reads     uint64 // Calls to ReadMore that reached the reader
	EmptyRead uint64 // Reads that returned zero bytes
}

// Receiver reassembles delimiter-terminated frames from a byte stream.
//
// The buffer holds unconsumed stream data in buf[0:n]. When NextFrame returns
// a frame, the frame stays in place and its delimiter offset is remembered;
// the bytes are compacted away on the following NextFrame call. This keeps
// the returned slice valid while the caller decodes it.
//
// A Receiver is owned by a single goroutine and is not safe for concurrent use.
type Receiver struct {
	r       io.Reader
	buf     []byte
	n       int
	discard int // delimiter offset of the last returned frame, -1 if none
	stats   ReceiverStats
}

// NewReceiver creates a receiver reading from r with the given buffer capacity.
// A capacity <= 0 selects DefaultCapacity.
func NewReceiver(r io.Reader, capacity int) *Receiver {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Receiver{
		r:       r,
		buf:     make([]byte, capacity),
		discard: -1,
	}
}

// ReadMore performs a single read from the underlying reader into the free
// tail of the buffer and returns the number of bytes added.
//
// A zero count is not end of stream; the transport simply had nothing ready.
// Reader errors are returned unchanged. ReadMore never compacts the buffer,
// so a frame returned by NextFrame remains valid across it.
func (rc *Receiver) ReadMore() (int, error) {
	if rc.n == len(rc.buf) {
		return 0, nil
	}

	n, err := rc.r.Read(rc.buf[rc.n:])
	rc.stats.Reads++
	if n > 0 {
		rc.n += n
		rc.stats.BytesRead += uint64(n)
	} else {
		rc.stats.EmptyRead++
	}
	return n, err
}

// NextFrame returns the next complete frame, delimiter included.
//
// It returns (nil, nil) when no complete frame is buffered yet, and
// (nil, ErrOverflow) when the buffer is full without a delimiter, in which
// case the buffered bytes are dropped. The returned slice aliases the
// internal buffer and is only valid until the next call to NextFrame.
func (rc *Receiver) NextFrame() ([]byte, error) {
	rc.compact()

	if z := bytes.IndexByte(rc.buf[:rc.n], Delimiter); z >= 0 {
		rc.discard = z
		rc.stats.Frames++
		return rc.buf[:z+1], nil
	}

	if rc.n == len(rc.buf) {
		rc.n = 0
		rc.stats.Overflows++
		return nil, ErrOverflow
	}

	return nil, nil
}

// compact drops the previously returned frame from the front of the buffer.
func (rc *Receiver) compact() {
	if rc.discard < 0 {
		return
	}
	z := rc.discard
	copy(rc.buf, rc.buf[z+1:rc.n])
	rc.n -= z + 1
	rc.discard = -1
}

// Buffered returns the number of bytes currently held, including a frame
// that was returned but not yet compacted.
func (rc *Receiver) Buffered() int {
	return rc.n
}

// Cap returns the buffer capacity.
func (rc *Receiver) Cap() int {
	return len(rc.buf)
}

// Reset drops all buffered data.
func (rc *Receiver) Reset() {
	rc.n = 0
	rc.discard = -1
}

// Stats returns a snapshot of the receiver counters.
func (rc *Receiver) Stats() ReceiverStats {
	return rc.stats
}
