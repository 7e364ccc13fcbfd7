// Package session implements the server side of the graphql-ws protocol for a
// single connection.
//
// A Session is a small state machine:
//
//	pending --connection_init--> acknowledged --connection_terminate / disconnect--> terminated
//
// Transitions never move backward. While acknowledged, every start message
// registers an Operation in the connection's Registry and runs it on its own
// goroutine, streaming engine results as data frames. stop, normal
// completion, engine failure and teardown all leave the Registry through
// exactly one path, which is also the only path allowed to emit the
// operation's terminal frame.
//
// Outbound frames go to a Sink. The Sink must accept concurrent Send calls
// and deliver them one at a time; frames of one operation are sent in the
// order the engine produced them.
package session
