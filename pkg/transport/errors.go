package transport

import "errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed transport.
	ErrClosed = errors.New("transport: closed")

	// ErrInvalidEndpoint is returned when an endpoint string cannot be parsed.
	ErrInvalidEndpoint = errors.New("transport: invalid endpoint")

	// ErrNoPort is returned when no serial port name is configured.
	ErrNoPort = errors.New("transport: no serial port configured")

	// ErrInvalidBaudRate is returned for a non-positive baud rate.
	ErrInvalidBaudRate = errors.New("transport: invalid baud rate")

	// ErrPortNotFound is returned when the named serial port does not exist.
	ErrPortNotFound = errors.New("transport: serial port not found")
)
