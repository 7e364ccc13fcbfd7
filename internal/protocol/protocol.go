// Package protocol implements the graphql-ws message envelope.
//
// Every frame is a JSON object {"type", "id"?, "payload"?}. Decode validates
// the type tag and the presence of an id for operation-scoped types; Encode
// is its inverse for server-built messages.
package protocol

import (
	"bytes"
	"encoding/json"
)

// Subprotocol is the WebSocket subprotocol name negotiated on upgrade.
const Subprotocol = "graphql-ws"

// Type is a message type tag.
type Type string

const (
	TypeConnectionInit      Type = "connection_init"
	TypeConnectionAck       Type = "connection_ack"
	TypeConnectionError     Type = "connection_error"
	TypeConnectionTerminate Type = "connection_terminate"
	TypeConnectionKeepAlive Type = "connection_keep_alive"
	TypeStart               Type = "start"
	TypeStop                Type = "stop"
	TypeData                Type = "data"
	TypeError               Type = "error"
	TypeComplete            Type = "complete"
)

var knownTypes = map[Type]struct {
	needsID    bool
	fromClient bool
}{
	TypeConnectionInit:      {fromClient: true},
	TypeConnectionTerminate: {fromClient: true},
	TypeStart:               {needsID: true, fromClient: true},
	TypeStop:                {needsID: true, fromClient: true},
	TypeConnectionAck:       {},
	TypeConnectionError:     {},
	TypeConnectionKeepAlive: {},
	TypeData:                {needsID: true},
	TypeError:               {needsID: true},
	TypeComplete:            {needsID: true},
}

// Known reports whether t is a recognized type tag.
func (t Type) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// FromClient reports whether t is sent by clients.
func (t Type) FromClient() bool { return knownTypes[t].fromClient }

// NeedsID reports whether messages of type t must carry an operation id.
func (t Type) NeedsID() bool { return knownTypes[t].needsID }

// Message is one protocol frame.
type Message struct {
	Type    Type            `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StartPayload is the payload of a start message.
type StartPayload struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// ErrorPayload is the {message} payload of connection_error and protocol
// level error frames.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Start decodes the payload of a start message.
func (m Message) Start() (StartPayload, error) {
	var p StartPayload
	if len(m.Payload) == 0 || string(m.Payload) == "null" {
		return p, nil
	}
	// Numbers stay json.Number so variable coercion sees the literal.
	dec := json.NewDecoder(bytes.NewReader(m.Payload))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return StartPayload{}, err
	}
	return p, nil
}

// Params decodes the payload of a connection_init message. A missing
// payload yields an empty map.
func (m Message) Params() (map[string]any, error) {
	params := map[string]any{}
	if len(m.Payload) == 0 || string(m.Payload) == "null" {
		return params, nil
	}
	if err := json.Unmarshal(m.Payload, &params); err != nil {
		return nil, err
	}
	return params, nil
}
