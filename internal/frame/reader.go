package frame

import (
	"bytes"
	"errors"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// DefaultMaxFrameSize bounds how many bytes may be buffered while waiting for one frame.
const DefaultMaxFrameSize = 16 << 20

const readChunkSize = 32 << 10

// Reader splits a byte stream into frames. Pipe reads may carry several frames or a
// partial one, so frame boundaries come from the encoding rather than from read sizes.
type Reader struct {
	src     io.Reader
	isError bool
	max     int

	buf   []byte
	chunk []byte
	err   error
}

// NewReader wraps src; isError marks every produced envelope as stderr-sourced.
func NewReader(src io.Reader, isError bool) *Reader {
	return &Reader{
		src:     src,
		isError: isError,
		max:     DefaultMaxFrameSize,
		chunk:   make([]byte, readChunkSize),
	}
}

// SetMaxFrameSize overrides DefaultMaxFrameSize.
func (r *Reader) SetMaxFrameSize(n int) {
	if n > 0 {
		r.max = n
	}
}

// Next returns the next envelope in stream order. Malformed input is returned as a
// decode-error envelope, never as an error. The error is io.EOF once the stream ends
// and everything buffered has been returned, or the underlying read error.
func (r *Reader) Next() (Envelope, error) {
	for {
		if len(r.buf) > 0 {
			n, complete := frameLength(r.buf)
			switch {
			case complete && n > 0:
				env := Decode(r.buf[:n], r.isError)
				r.consume(n)
				return env, nil
			case !complete && n < 0:
				return r.flush(), nil
			case len(r.buf) > r.max:
				return r.flush(), nil
			}
		}

		if r.err != nil {
			if len(r.buf) > 0 {
				return r.flush(), nil
			}
			return Envelope{}, r.err
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.buf = append(r.buf, r.chunk[:n]...)
		}
		if err != nil {
			r.err = err
		}
	}
}

func (r *Reader) consume(n int) {
	rest := copy(r.buf, r.buf[n:])
	r.buf = r.buf[:rest]
}

// flush turns everything buffered into one decode-error envelope.
func (r *Reader) flush() Envelope {
	env := Decode(r.buf, r.isError)
	if !env.IsDecodeError() {
		env = decodeFailure(r.buf, errors.New("unterminated frame"))
	}
	r.buf = r.buf[:0]
	return env
}

// frameLength reports the size of the leading frame. complete is false when more bytes
// are needed. A negative length means the buffer does not start with a frame at all.
func frameLength(b []byte) (n int, complete bool) {
	if !isMapCode(b[0]) {
		return -1, false
	}
	br := bytes.NewReader(b)
	dec := msgpack.NewDecoder(br)
	if err := dec.Skip(); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, false
		}
		return -1, false
	}
	return len(b) - br.Len(), true
}
