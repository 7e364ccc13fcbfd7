package events

import (
	"net/http"
	"time"
)

// WSConnect is emitted once a graphql-ws connection has been accepted.
type WSConnect struct {
	ConnectionID string
	Request      *http.Request
}

// WSDisconnect is emitted when a graphql-ws connection is torn down.
type WSDisconnect struct {
	ConnectionID string
	Duration     time.Duration
	Err          error
}

// OperationStart is emitted when a start message registers an operation.
type OperationStart struct {
	ConnectionID  string
	OperationID   string
	OperationName string
}

// Outcomes reported by OperationFinish.
const (
	OutcomeComplete   = "complete"
	OutcomeError      = "error"
	OutcomeStopped    = "stopped"
	OutcomeTerminated = "terminated"
)

// OperationFinish is emitted exactly once per registered operation.
type OperationFinish struct {
	ConnectionID string
	OperationID  string
	Outcome      string
	Results      int
	Duration     time.Duration
}

// Frame directions.
const (
	Inbound  = "in"
	Outbound = "out"
)

// Frame is emitted for every protocol frame read or written.
type Frame struct {
	ConnectionID string
	Direction    string
	Type         string
}
