package wire

import (
	"errors"
	"fmt"

	"github.com/backkem/serialpake/pkg/framing"
	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for handshake messages.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for handshake messages.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		MaxArrayElements:  16,
		MaxMapPairs:       16,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// envelope is the outer [kind, body] array.
type envelope struct {
	_    struct{} `cbor:",toarray"`
	Kind Kind
	Body cbor.RawMessage
}

// Marshal encodes a message envelope to CBOR without framing.
func Marshal(msg Message) ([]byte, error) {
	body, err := encMode.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", msg.Kind(), err)
	}
	return encMode.Marshal(envelope{Kind: msg.Kind(), Body: body})
}

// Unmarshal decodes an unframed CBOR envelope into a message.
// Family restrictions are not applied; use a Codec for that.
func Unmarshal(data []byte) (Message, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	msg := newMessage(env.Kind)
	if msg == nil {
		return nil, &DecodeError{Kind: env.Kind, Err: ErrUnknownKind}
	}
	if len(env.Body) == 0 {
		return nil, &DecodeError{Kind: env.Kind, Err: ErrMalformed}
	}
	if err := decMode.Unmarshal(env.Body, msg); err != nil {
		return nil, &DecodeError{Kind: env.Kind, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if err := msg.validate(); err != nil {
		return nil, &DecodeError{Kind: env.Kind, Err: err}
	}
	return msg, nil
}

// Codec encodes messages into frames and decodes frames into messages.
//
// Encoded frames are written into a fixed working buffer that is reused by
// every Encode call. A Codec is not safe for concurrent use.
type Codec struct {
	family  Family
	out     []byte
	scratch []byte
}

// NewCodec creates a codec for the given augmentation family.
// bufSize bounds the encoded frame size; <= 0 selects framing.DefaultCapacity.
func NewCodec(family Family, bufSize int) *Codec {
	if bufSize <= 0 {
		bufSize = framing.DefaultCapacity
	}
	return &Codec{
		family:  family,
		out:     make([]byte, bufSize),
		scratch: make([]byte, bufSize),
	}
}

// Family returns the augmentation family this codec accepts.
func (c *Codec) Family() Family {
	return c.family
}

// Encode serializes msg into a delimiter-terminated frame.
// The returned slice aliases the codec's working buffer and is valid until
// the next call to Encode.
func (c *Codec) Encode(msg Message) ([]byte, error) {
	if !c.family.Allows(msg.Kind()) {
		return nil, fmt.Errorf("%w: %s with %s codec", ErrWrongFamily, msg.Kind(), c.family)
	}

	data, err := Marshal(msg)
	if err != nil {
		return nil, err
	}

	n, err := framing.Encode(c.out, data)
	if errors.Is(err, framing.ErrShortBuffer) {
		return nil, fmt.Errorf("%w: %s needs %d bytes, buffer is %d",
			ErrFrameTooLarge, msg.Kind(), framing.MaxEncodedLen(len(data)), len(c.out))
	}
	if err != nil {
		return nil, err
	}
	return c.out[:n], nil
}

// Decode parses a frame (delimiter included or not) into a message.
// All failures are returned as *DecodeError.
func (c *Codec) Decode(frame []byte) (Message, error) {
	n, err := framing.Decode(c.scratch, frame)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	msg, err := Unmarshal(c.scratch[:n])
	if err != nil {
		return nil, err
	}
	if !c.family.Allows(msg.Kind()) {
		return nil, &DecodeError{Kind: msg.Kind(), Err: ErrWrongFamily}
	}
	return msg, nil
}
