package handshake

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/backkem/serialpake/pkg/framing"
	"github.com/backkem/serialpake/pkg/wire"
	"github.com/pion/logging"
)

// ConnStats holds message and byte counters for a Conn.
type ConnStats struct {
	MessagesSent     uint64
	MessagesReceived uint64
	BytesSent        uint64
	BytesReceived    uint64
	FramingErrors    uint64
	DecodeErrors     uint64
}

// Sub returns the counters accumulated since base.
func (s ConnStats) Sub(base ConnStats) ConnStats {
	return ConnStats{
		MessagesSent:     s.MessagesSent - base.MessagesSent,
		MessagesReceived: s.MessagesReceived - base.MessagesReceived,
		BytesSent:        s.BytesSent - base.BytesSent,
		BytesReceived:    s.BytesReceived - base.BytesReceived,
		FramingErrors:    s.FramingErrors - base.FramingErrors,
		DecodeErrors:     s.DecodeErrors - base.DecodeErrors,
	}
}

// ConnConfig configures a Conn.
type ConnConfig struct {
	// Transport is the byte stream. Required.
	Transport io.ReadWriter

	// Family selects the message variants the codec accepts.
	Family wire.Family

	// BufferSize sizes both the receive buffer and the encode buffer.
	// Default: framing.DefaultCapacity.
	BufferSize int

	// OnDiscard is called for every frame dropped by the framing or decode
	// layer. Optional.
	OnDiscard func(err error)

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory

	// LoggerScope names the logger. Default: "handshake-conn".
	LoggerScope string
}

// Conn sends and receives framed messages over a byte stream.
//
// A Conn is owned by a single goroutine. The transport may still be shared
// with other writers if it serializes writes itself.
type Conn struct {
	t         io.ReadWriter
	rx        *framing.Receiver
	codec     *wire.Codec
	onDiscard func(error)
	log       logging.LeveledLogger

	stats ConnStats
}

// NewConn creates a Conn.
func NewConn(config ConnConfig) (*Conn, error) {
	if config.Transport == nil {
		return nil, ErrNoTransport
	}
	if config.BufferSize <= 0 {
		config.BufferSize = framing.DefaultCapacity
	}

	c := &Conn{
		t:         config.Transport,
		rx:        framing.NewReceiver(config.Transport, config.BufferSize),
		codec:     wire.NewCodec(config.Family, config.BufferSize),
		onDiscard: config.OnDiscard,
	}
	if config.LoggerFactory != nil {
		scope := config.LoggerScope
		if scope == "" {
			scope = "handshake-conn"
		}
		c.log = config.LoggerFactory.NewLogger(scope)
	}
	return c, nil
}

// Family returns the message family this Conn speaks.
func (c *Conn) Family() wire.Family {
	return c.codec.Family()
}

// Send encodes msg and writes the frame. Encode failures mean the buffer is
// too small for the message and are not recoverable.
func (c *Conn) Send(msg wire.Message) error {
	frame, err := c.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("handshake: encode %s: %w", msg.Kind(), err)
	}

	for off := 0; off < len(frame); {
		n, err := c.t.Write(frame[off:])
		off += n
		if err != nil {
			return fmt.Errorf("handshake: write %s: %w", msg.Kind(), err)
		}
		if n == 0 {
			return fmt.Errorf("handshake: write %s: %w", msg.Kind(), io.ErrShortWrite)
		}
	}

	c.stats.MessagesSent++
	c.stats.BytesSent += uint64(len(frame))
	if c.log != nil {
		c.log.Tracef("sent %s (%d bytes)", msg.Kind(), len(frame))
	}
	return nil
}

// Receive returns the next message that decodes. Overflows and undecodable
// frames are logged, counted and skipped. Only transport errors and ctx are
// fatal; ctx is checked before each read.
func (c *Conn) Receive(ctx context.Context) (wire.Message, error) {
	for {
		frame, err := c.rx.NextFrame()
		switch {
		case errors.Is(err, framing.ErrOverflow):
			c.stats.FramingErrors++
			c.discard(err)
			continue
		case err != nil:
			return nil, err
		}

		if frame != nil {
			msg, err := c.codec.Decode(frame)
			if err != nil {
				c.stats.DecodeErrors++
				c.discard(err)
				continue
			}
			c.stats.MessagesReceived++
			if c.log != nil {
				c.log.Tracef("received %s (%d bytes)", msg.Kind(), len(frame))
			}
			return msg, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := c.rx.ReadMore(); err != nil {
			return nil, fmt.Errorf("handshake: read: %w", err)
		}
	}
}

func (c *Conn) discard(err error) {
	if c.log != nil {
		c.log.Warnf("dropped frame: %v", err)
	}
	if c.onDiscard != nil {
		c.onDiscard(err)
	}
}

// Stats returns a snapshot of the counters.
func (c *Conn) Stats() ConnStats {
	s := c.stats
	s.BytesReceived = c.rx.Stats().BytesRead
	return s
}
