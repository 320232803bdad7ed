// Package frame decodes msgpack frames emitted by helper processes into envelopes.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// DecodeErrorTitle tags envelopes built from bytes that were not a valid frame.
const DecodeErrorTitle = "decode-error"

const maxPrealloc = 1024

// ActionData is the success payload of a stdout frame.
type ActionData struct {
	Title string
	Data  any

	raw msgpack.RawMessage
}

// DecodeData decodes the original Data bytes into v.
func (a ActionData) DecodeData(v any) error {
	if len(a.raw) == 0 {
		return errors.New("frame carries no data")
	}
	return msgpack.Unmarshal(a.raw, v)
}

// String returns Data when it is a plain string.
func (a ActionData) String() (string, bool) {
	s, ok := a.Data.(string)
	return s, ok
}

// ErrorData is the payload of a stderr frame or of a local decode failure.
type ErrorData struct {
	Title string
	Error any
}

// DecodeFailure is the error payload attached to decode-error envelopes.
type DecodeFailure struct {
	Err string
	Raw []byte
}

// Message flattens the error payload into display text.
func (e ErrorData) Message() string {
	switch v := e.Error.(type) {
	case nil:
		return ""
	case string:
		return v
	case DecodeFailure:
		return v.Err
	case map[string]any:
		if msg, ok := v["Err"].(string); ok {
			return msg
		}
		if msg, ok := v["Error"].(string); ok {
			return msg
		}
	}
	return fmt.Sprint(e.Error)
}

// Envelope is one decoded unit of helper output. Exactly one of Action or Failure is set.
type Envelope struct {
	Title   string
	IsError bool
	Action  *ActionData
	Failure *ErrorData
}

// IsDecodeError reports whether the envelope stands in for bytes that could not be decoded.
func (e Envelope) IsDecodeError() bool {
	return e.IsError && e.Title == DecodeErrorTitle
}

type wireFrame struct {
	Title string             `msgpack:"Title"`
	Data  msgpack.RawMessage `msgpack:"Data,omitempty"`
	Error msgpack.RawMessage `msgpack:"Error,omitempty"`
}

// Decode turns one frame into an envelope. It never panics: anything that is not a
// single map with a non-empty Title becomes a decode-error envelope carrying the bytes.
// Frames from the error stream always yield error envelopes.
func Decode(b []byte, isError bool) (env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			env = decodeFailure(b, fmt.Errorf("panic: %v", r))
		}
	}()

	f, err := unmarshalFrame(b)
	if err != nil {
		return decodeFailure(b, err)
	}

	if isError || (len(f.Error) > 0 && len(f.Data) == 0) {
		payload := f.Error
		if len(payload) == 0 {
			payload = f.Data
		}
		value, err := decodeValue(payload)
		if err != nil {
			return decodeFailure(b, err)
		}
		return Envelope{
			Title:   f.Title,
			IsError: true,
			Failure: &ErrorData{Title: f.Title, Error: value},
		}
	}

	value, err := decodeValue(f.Data)
	if err != nil {
		return decodeFailure(b, err)
	}
	return Envelope{
		Title:  f.Title,
		Action: &ActionData{Title: f.Title, Data: value, raw: f.Data},
	}
}

// Encode builds a frame. Helpers and tests use it; the supervisor only decodes.
func Encode(title string, data any, isError bool) ([]byte, error) {
	raw, err := msgpack.Marshal(data)
	if err != nil {
		return nil, err
	}
	f := wireFrame{Title: title}
	if isError {
		f.Error = raw
	} else {
		f.Data = raw
	}
	return msgpack.Marshal(&f)
}

func unmarshalFrame(b []byte) (wireFrame, error) {
	if len(b) == 0 {
		return wireFrame{}, errors.New("empty frame")
	}
	if !isMapCode(b[0]) {
		return wireFrame{}, fmt.Errorf("frame is not a map (code 0x%02x)", b[0])
	}

	r := bytes.NewReader(b)
	dec := msgpack.NewDecoder(r)
	var f wireFrame
	if err := dec.Decode(&f); err != nil {
		return wireFrame{}, err
	}
	if r.Len() > 0 {
		return wireFrame{}, fmt.Errorf("%d trailing bytes after frame", r.Len())
	}
	if strings.TrimSpace(f.Title) == "" {
		return wireFrame{}, errors.New("frame has no Title")
	}
	return f, nil
}

func decodeValue(raw msgpack.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.SetMapDecoder(decodeMap)
	return dec.DecodeInterface()
}

// decodeMap decodes every map as map[string]any. Keys that are not strings are
// formatted with %v.
func decodeMap(d *msgpack.Decoder) (any, error) {
	n, err := d.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	m := make(map[string]any, min(n, maxPrealloc))
	for range n {
		k, err := d.DecodeInterface()
		if err != nil {
			return nil, err
		}
		v, err := d.DecodeInterface()
		if err != nil {
			return nil, err
		}
		key, ok := k.(string)
		if !ok {
			key = fmt.Sprint(k)
		}
		m[key] = v
	}
	return m, nil
}

func decodeFailure(b []byte, err error) Envelope {
	raw := append([]byte(nil), b...)
	return Envelope{
		Title:   DecodeErrorTitle,
		IsError: true,
		Failure: &ErrorData{
			Title: DecodeErrorTitle,
			Error: DecodeFailure{Err: err.Error(), Raw: raw},
		},
	}
}

func isMapCode(c byte) bool {
	return msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32
}
