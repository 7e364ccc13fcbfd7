package events

import "time"

// GraphQLStart is emitted before executing an HTTP GraphQL operation.
type GraphQLStart struct {
	Query         string
	OperationName string
}

// GraphQLFinish is emitted after executing an HTTP GraphQL operation.
type GraphQLFinish struct {
	Query         string
	OperationName string
	ErrorCount    int
	Duration      time.Duration
}
