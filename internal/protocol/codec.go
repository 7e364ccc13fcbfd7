package protocol

import (
	"encoding/json"
	"fmt"
)

// DecodeError describes a frame that could not be turned into a Message.
// ID is set when the frame was readable enough to carry one.
type DecodeError struct {
	ID     string
	Type   Type
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("invalid %q message: %s", e.Type, e.Reason)
	}
	return "invalid message: " + e.Reason
}

// Decode parses a raw text frame.
func Decode(frame []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(frame, &m); err != nil {
		return Message{}, &DecodeError{Reason: "malformed JSON"}
	}
	if m.Type == "" {
		return Message{}, &DecodeError{ID: m.ID, Reason: "missing type"}
	}
	if !m.Type.Known() {
		return Message{}, &DecodeError{ID: m.ID, Type: m.Type, Reason: "unknown message type"}
	}
	if m.Type.NeedsID() && m.ID == "" {
		return Message{}, &DecodeError{Type: m.Type, Reason: "missing id"}
	}
	return m, nil
}

// Encode renders m as a text frame.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// ConnectionAck builds a connection_ack message.
func ConnectionAck() Message { return Message{Type: TypeConnectionAck} }

// KeepAlive builds a connection_keep_alive message.
func KeepAlive() Message { return Message{Type: TypeConnectionKeepAlive} }

// ConnectionError builds a connection_error message with a {message} payload.
func ConnectionError(message string) Message {
	return Message{Type: TypeConnectionError, Payload: mustMarshal(ErrorPayload{Message: message})}
}

// Error builds an error message for id. payload is marshaled as is; pass an
// ErrorPayload for protocol errors or a GraphQL error list for engine
// failures.
func Error(id string, payload any) Message {
	return Message{Type: TypeError, ID: id, Payload: mustMarshal(payload)}
}

// Data builds a data message for id carrying an execution result.
func Data(id string, result any) Message {
	return Message{Type: TypeData, ID: id, Payload: mustMarshal(result)}
}

// Complete builds a complete message for id.
func Complete(id string) Message { return Message{Type: TypeComplete, ID: id} }

// mustMarshal is only used for payloads built from JSON-safe values; a
// failure is reported in-band rather than dropping the frame.
func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(ErrorPayload{Message: "unserializable payload: " + err.Error()})
	}
	return b
}
