package wire

import (
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// Decode error taxonomy (spec.md §4.3/§7). Each is a distinct sentinel
// so callers can errors.Is against it rather than string-matching.
var (
	ErrMalformedFrame = errors.New("wire: malformed frame")
	ErrMissingField   = errors.New("wire: missing envelope field")
	ErrUnknownType    = errors.New("wire: unknown message type")
	ErrBadPayload     = errors.New("wire: bad payload")
)

// wireFrame is the raw envelope shape of spec.md §6, decoded loosely
// first so we can distinguish "field absent" from "field wrong type"
// before committing to a typed payload.
type wireFrame struct {
	Type      *string         `json:"type"`
	SenderID  *string         `json:"sender_id"`
	Data      *map[string]any `json:"data"`
	Timestamp *float64        `json:"timestamp"`
}

// Encode serializes m to its canonical JSON wire frame. If m.Timestamp
// is zero, the current time is substituted — "set by sender if
// omitted" (spec.md §4.3).
func Encode(m Message) ([]byte, error) {
	ts := m.Timestamp
	if ts == 0 {
		ts = float64(time.Now().UnixNano()) / 1e9
	}

	data, err := payloadOf(m)
	if err != nil {
		return nil, err
	}

	frame := struct {
		Type      MessageType `json:"type"`
		SenderID  string      `json:"sender_id"`
		Data      any         `json:"data"`
		Timestamp float64     `json:"timestamp"`
	}{Type: m.Type, SenderID: m.SenderID, Data: data, Timestamp: ts}

	return sonic.Marshal(frame)
}

func payloadOf(m Message) (any, error) {
	switch m.Type {
	case Join:
		return m.JoinData, nil
	case Put:
		return m.PutData, nil
	case Get:
		return m.GetData, nil
	case Result:
		return m.ResultData, nil
	case Heartbeat:
		return m.HeartbeatData, nil
	case Update:
		return m.UpdateData, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}

// Decode parses raw bytes into a validated Message. Fails with
// ErrMalformedFrame on syntactically invalid JSON or an envelope field
// of the wrong JSON type (e.g. a numeric sender_id), ErrMissingField if
// any of the four envelope fields is absent, ErrUnknownType if type is
// not in the enum, and ErrBadPayload if type-specific required fields
// are missing or mistyped (spec.md §4.3).
func Decode(raw []byte) (Message, error) {
	var frame wireFrame
	if err := sonic.Unmarshal(raw, &frame); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch {
	case frame.Type == nil:
		return Message{}, fmt.Errorf("%w: type", ErrMissingField)
	case frame.SenderID == nil:
		return Message{}, fmt.Errorf("%w: sender_id", ErrMissingField)
	case frame.Data == nil:
		return Message{}, fmt.Errorf("%w: data", ErrMissingField)
	case frame.Timestamp == nil:
		return Message{}, fmt.Errorf("%w: timestamp", ErrMissingField)
	}

	mt := MessageType(*frame.Type)
	if !mt.valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, *frame.Type)
	}

	msg := Message{Type: mt, SenderID: *frame.SenderID, Timestamp: *frame.Timestamp}

	dataBytes, err := sonic.Marshal(*frame.Data)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	switch mt {
	case Join:
		var p JoinPayload
		if err := sonic.Unmarshal(dataBytes, &p); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if _, ok := (*frame.Data)["ip"]; !ok {
			return Message{}, fmt.Errorf("%w: JOIN missing ip", ErrBadPayload)
		}
		if _, ok := (*frame.Data)["port"]; !ok {
			return Message{}, fmt.Errorf("%w: JOIN missing port", ErrBadPayload)
		}
		msg.JoinData = &p

	case Put:
		var p PutPayload
		if err := sonic.Unmarshal(dataBytes, &p); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if _, ok := (*frame.Data)["key"]; !ok {
			return Message{}, fmt.Errorf("%w: PUT missing key", ErrBadPayload)
		}
		if _, ok := (*frame.Data)["value"]; !ok {
			return Message{}, fmt.Errorf("%w: PUT missing value", ErrBadPayload)
		}
		msg.PutData = &p

	case Get:
		var p GetPayload
		if err := sonic.Unmarshal(dataBytes, &p); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if _, ok := (*frame.Data)["key"]; !ok {
			return Message{}, fmt.Errorf("%w: GET missing key", ErrBadPayload)
		}
		if _, ok := (*frame.Data)["requester_ip"]; !ok {
			return Message{}, fmt.Errorf("%w: GET missing requester_ip", ErrBadPayload)
		}
		if _, ok := (*frame.Data)["requester_port"]; !ok {
			return Message{}, fmt.Errorf("%w: GET missing requester_port", ErrBadPayload)
		}
		msg.GetData = &p

	case Result:
		var p ResultPayload
		if err := sonic.Unmarshal(dataBytes, &p); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if _, ok := (*frame.Data)["key"]; !ok {
			return Message{}, fmt.Errorf("%w: RESULT missing key", ErrBadPayload)
		}
		if _, ok := (*frame.Data)["value"]; !ok {
			return Message{}, fmt.Errorf("%w: RESULT missing value", ErrBadPayload)
		}
		msg.ResultData = &p

	case Heartbeat:
		var p HeartbeatPayload
		if err := sonic.Unmarshal(dataBytes, &p); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if _, ok := (*frame.Data)["ip"]; !ok {
			return Message{}, fmt.Errorf("%w: HEARTBEAT missing ip", ErrBadPayload)
		}
		if _, ok := (*frame.Data)["port"]; !ok {
			return Message{}, fmt.Errorf("%w: HEARTBEAT missing port", ErrBadPayload)
		}
		msg.HeartbeatData = &p

	case Update:
		var p UpdatePayload
		if err := sonic.Unmarshal(dataBytes, &p); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if _, ok := (*frame.Data)["role"]; !ok {
			return Message{}, fmt.Errorf("%w: UPDATE missing role", ErrBadPayload)
		}
		if p.Role != RolePredecessor && p.Role != RoleSuccessor {
			return Message{}, fmt.Errorf("%w: UPDATE unknown role %q", ErrBadPayload, p.Role)
		}
		if _, ok := (*frame.Data)["ip"]; !ok {
			return Message{}, fmt.Errorf("%w: UPDATE missing ip", ErrBadPayload)
		}
		if _, ok := (*frame.Data)["port"]; !ok {
			return Message{}, fmt.Errorf("%w: UPDATE missing port", ErrBadPayload)
		}
		msg.UpdateData = &p
	}

	return msg, nil
}
