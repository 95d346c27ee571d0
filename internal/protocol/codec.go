package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownTag     = errors.New("unknown frame tag")
)

// EncodeOutbound serializes a relay-to-member frame.
func EncodeOutbound(frame Outbound) ([]byte, error) {
	return encode(frame.Tag(), frame)
}

// EncodeInbound serializes a member-to-relay frame.
func EncodeInbound(frame Inbound) ([]byte, error) {
	return encode(frame.Tag(), frame)
}

func encode(tag string, frame any) ([]byte, error) {
	switch frame.(type) {
	case Exit, Shutdown, *Exit, *Shutdown:
		return json.Marshal(tag)
	}
	return json.Marshal(map[string]any{tag: frame})
}

// DecodeInbound parses a frame sent by a member.
func DecodeInbound(data []byte) (Inbound, error) {
	tag, raw, err := split(data)
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagJoin:
		return payload[Join](raw)
	case TagEncData:
		return payload[EncData](raw)
	case TagExit:
		return Exit{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
}

// DecodeOutbound parses a frame sent by the relay.
func DecodeOutbound(data []byte) (Outbound, error) {
	tag, raw, err := split(data)
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagEncData:
		return payload[EncData](raw)
	case TagError:
		return payload[Error](raw)
	case TagShutdown:
		return Shutdown{}, nil
	case TagJoinMessage:
		return payload[JoinMessage](raw)
	case TagKeyMessage:
		return payload[KeyMessage](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
}

// split returns the variant tag and its raw payload. Unit variants may arrive
// either as a bare string or as an object with a null/empty payload.
func split(data []byte) (string, json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", nil, ErrMalformedFrame
	}
	if data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return tag, nil, nil
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(data, &object); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(object) != 1 {
		return "", nil, fmt.Errorf("%w: expected exactly one variant, got %d", ErrMalformedFrame, len(object))
	}
	for tag, raw := range object {
		return tag, raw, nil
	}
	return "", nil, ErrMalformedFrame
}

func payload[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, fmt.Errorf("%w: missing payload", ErrMalformedFrame)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return out, nil
}
