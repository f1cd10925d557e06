// Package transport provides the byte-stream links the handshake runs over:
// serial ports, TCP streams to serial bridges, and an in-memory pipe for
// tests.
//
// Every Transport follows the same read contract: Read may return (0, nil)
// when its read timeout expires with nothing received. That is not end of
// stream; callers keep reading. Writes are serialized, so a Transport may be
// written from more than one goroutine.
package transport

import (
	"io"
	"time"

	"github.com/pion/logging"
)

// Transport is a duplex byte stream.
type Transport interface {
	io.ReadWriteCloser
}

// Defaults shared by the concrete transports.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = time.Second
	DefaultDialTimeout = 5 * time.Second
)

// OpenConfig configures Open.
type OpenConfig struct {
	// BaudRate for serial endpoints. Default: DefaultBaudRate.
	BaudRate int

	// ReadTimeout bounds a single Read. Default: DefaultReadTimeout.
	ReadTimeout time.Duration

	// DialTimeout bounds connecting to a TCP endpoint. Default: DefaultDialTimeout.
	DialTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Open connects to ep.
func Open(ep Endpoint, config OpenConfig) (Transport, error) {
	switch ep.Kind {
	case KindSerial:
		return OpenSerial(SerialConfig{
			Port:          ep.Address,
			BaudRate:      config.BaudRate,
			ReadTimeout:   config.ReadTimeout,
			LoggerFactory: config.LoggerFactory,
		})
	case KindTCP:
		return DialTCP(TCPConfig{
			Address:       ep.Address,
			DialTimeout:   config.DialTimeout,
			ReadTimeout:   config.ReadTimeout,
			LoggerFactory: config.LoggerFactory,
		})
	default:
		return nil, ErrInvalidEndpoint
	}
}
