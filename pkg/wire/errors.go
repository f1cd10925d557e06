package wire

import (
	"errors"
	"fmt"
)

// Codec errors.
var (
	// ErrMalformed indicates bytes that do not form a valid envelope.
	ErrMalformed = errors.New("wire: malformed message")

	// ErrUnknownKind indicates an envelope with an unrecognized discriminant.
	ErrUnknownKind = errors.New("wire: unknown message kind")

	// ErrWrongFamily indicates a plain/strong variant not enabled on this codec.
	ErrWrongFamily = errors.New("wire: message kind not allowed for augmentation family")

	// ErrMissingField indicates a required field is empty.
	ErrMissingField = errors.New("wire: missing required field")

	// ErrFrameTooLarge indicates an encoded message does not fit the working
	// buffer. This is a configuration error, not a runtime condition.
	ErrFrameTooLarge = errors.New("wire: encoded frame exceeds buffer")
)

// DecodeError reports a frame that could not be decoded into a Message.
// Decode errors are recoverable: the frame is dropped and the caller waits
// for the next one.
type DecodeError struct {
	Kind Kind // Zero if the discriminant could not be read
	Err  error
}

// Error implements error.
func (e *DecodeError) Error() string {
	if e.Kind == 0 {
		return fmt.Sprintf("wire: decode: %v", e.Err)
	}
	return fmt.Sprintf("wire: decode %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
