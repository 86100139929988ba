package wsmarshaller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/webitel/danmaku-relay/internal/domain/model"
)

var (
	// ErrNotText is returned for frames that cannot carry a danmaku (control frames, binary non-UTF-8 data).
	ErrNotText      = errors.New("ws marshaller: frame is not text")
	ErrMalformed    = errors.New("ws marshaller: malformed danmaku")
	ErrMissingField = errors.New("ws marshaller: missing field")
)

func missing(field string) error {
	return fmt.Errorf("%w %q", ErrMissingField, field)
}

// Decode parses one inbound frame. Text frames and binary frames holding valid UTF-8 are accepted.
// Every field is required; unknown keys are ignored.
func Decode(messageType int, data []byte) (model.Danmaku, error) {
	switch messageType {
	case websocket.TextMessage:
	case websocket.BinaryMessage:
		if !utf8.Valid(data) {
			return model.Danmaku{}, ErrNotText
		}
	default:
		return model.Danmaku{}, ErrNotText
	}

	var w wsDanmaku
	if err := json.Unmarshal(data, &w); err != nil {
		return model.Danmaku{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return w.toModel()
}

// Encode renders d as the outbound text frame payload.
// HTML characters are left unescaped so the frame carries the text exactly as submitted.
func Encode(d model.Danmaku) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("ws marshaller: encode: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
