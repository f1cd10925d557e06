package framing

import "errors"

// Framing errors.
var (
	// ErrOverflow is returned by NextFrame when the receive buffer filled up
	// without a delimiter. The buffered bytes are discarded.
	ErrOverflow = errors.New("framing: receive buffer overflow")

	// ErrEmptyFrame is returned when a frame has no body (delimiter only).
	ErrEmptyFrame = errors.New("framing: empty frame")

	// ErrInvalidEncoding is returned when a frame is not valid COBS.
	ErrInvalidEncoding = errors.New("framing: invalid COBS encoding")

	// ErrShortBuffer is returned when the destination cannot hold the result.
	ErrShortBuffer = errors.New("framing: destination buffer too small")
)
