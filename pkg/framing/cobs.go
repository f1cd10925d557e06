// Package framing turns a raw, chunked byte stream into discrete frames.
//
// Frames use Consistent Overhead Byte Stuffing (COBS): the payload is
// rewritten so that it contains no zero bytes, and a single 0x00 delimiter
// terminates each frame. There is no length prefix, so a receiver can
// resynchronize on the next delimiter after corruption or data loss.
//
// Wire format:
//
//	<stuffed payload (no 0x00)> 0x00
//
// A Receiver accumulates bytes from an io.Reader into a bounded buffer and
// hands out complete frames one at a time:
//
//	rx := framing.NewReceiver(port, framing.DefaultCapacity)
//	for {
//		frame, err := rx.NextFrame()
//		switch {
//		case errors.Is(err, framing.ErrOverflow):
//			continue // buffer was reset, keep going
//		case frame != nil:
//			handle(frame) // valid until the next NextFrame call
//			continue
//		}
//		if _, err := rx.ReadMore(); err != nil {
//			return err
//		}
//	}
package framing

// Delimiter terminates every frame on the wire.
const Delimiter byte = 0x00

// maxBlock is the largest COBS code value; it marks a run of 254 non-zero
// bytes that is not followed by an implicit zero.
const maxBlock = 0xFF

// MaxEncodedLen returns the worst-case size of an encoded frame for a
// payload of n bytes, including the trailing delimiter.
func MaxEncodedLen(n int) int {
	return n + n/254 + 2
}

// Encode stuffs src into dst and appends the delimiter.
// Returns the number of bytes written to dst.
func Encode(dst, src []byte) (int, error) {
	if len(dst) < MaxEncodedLen(len(src)) {
		return 0, ErrShortBuffer
	}

	codeIdx := 0
	code := byte(1)
	w := 1

	for _, b := range src {
		if b == 0 {
			dst[codeIdx] = code
			codeIdx = w
			w++
			code = 1
			continue
		}

		dst[w] = b
		w++
		code++

		if code == maxBlock {
			dst[codeIdx] = code
			codeIdx = w
			w++
			code = 1
		}
	}

	dst[codeIdx] = code
	dst[w] = Delimiter
	return w + 1, nil
}

// Decode reverses Encode. The frame may include the trailing delimiter.
// Returns the number of payload bytes written to dst.
func Decode(dst, frame []byte) (int, error) {
	body := frame
	if n := len(body); n > 0 && body[n-1] == Delimiter {
		body = body[:n-1]
	}
	if len(body) == 0 {
		return 0, ErrEmptyFrame
	}

	r, w := 0, 0
	for r < len(body) {
		code := body[r]
		if code == 0 {
			return 0, ErrInvalidEncoding
		}
		r++

		end := r + int(code) - 1
		if end > len(body) {
			return 0, ErrInvalidEncoding
		}
		if w+(end-r) > len(dst) {
			return 0, ErrShortBuffer
		}

		for ; r < end; r++ {
			if body[r] == 0 {
				return 0, ErrInvalidEncoding
			}
			dst[w] = body[r]
			w++
		}

		// Every block except a full one and the final one implies a zero.
		if code != maxBlock && r < len(body) {
			if w >= len(dst) {
				return 0, ErrShortBuffer
			}
			dst[w] = 0
			w++
		}
	}

	return w, nil
}

// AppendEncode appends the encoded form of src (with delimiter) to dst.
func AppendEncode(dst, src []byte) []byte {
	start := len(dst)
	need := MaxEncodedLen(len(src))
	if cap(dst)-start < need {
		grown := make([]byte, start, start+need)
		copy(grown, dst)
		dst = grown
	}
	n, _ := Encode(dst[start:start+need], src)
	return dst[:start+n]
}

// DecodeToSlice decodes frame into a newly allocated slice.
func DecodeToSlice(frame []byte) ([]byte, error) {
	out := make([]byte, len(frame))
	n, err := Decode(out, frame)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
