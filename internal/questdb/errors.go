package questdb

import (
	"errors"
	"fmt"
)

// Errors
var (
	// ErrNotConnected is returned when the gateway is used before Connect.
	ErrNotConnected = errors.New("questdb: not connected")
)

// ConnectionError indicates the store endpoint is unreachable or the
// connect probe returned a non-200 status.
type ConnectionError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("questdb: connect %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("questdb: connect %s: status %d", e.Endpoint, e.Status)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError indicates the store accepted the request but returned an
// error body for the query.
type QueryError struct {
	Query   string
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("questdb: query failed: %s", e.Message)
}
