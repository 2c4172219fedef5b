package models

import (
	"errors"
	"fmt"
)

// ErrChangeNotFound is returned when a lookup that requires a change finds none
var ErrChangeNotFound = errors.New("change not found")

// ConnectionError is a transport or authentication failure on the command channel
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError is an unexpected response shape from the review server
type ProtocolError struct {
	Command string
	Detail  string
	Err     error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("unexpected response to %q: %s", e.Command, e.Detail)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// GitOperationError is a failed working copy operation
type GitOperationError struct {
	Op            string
	Ref           string
	RemoteMessage string
	Err           error
}

func (e *GitOperationError) Error() string {
	msg := "git " + e.Op
	if e.Ref != "" {
		msg += " " + e.Ref
	}
	msg += " failed"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.RemoteMessage != "" {
		msg += " (remote: " + e.RemoteMessage + ")"
	}
	return msg
}

func (e *GitOperationError) Unwrap() error { return e.Err }

// ConfigBootstrapError is a failure while installing server-side configuration
type ConfigBootstrapError struct {
	Step string
	Err  error
}

func (e *ConfigBootstrapError) Error() string {
	return fmt.Sprintf("bootstrap step %q failed: %v", e.Step, e.Err)
}

func (e *ConfigBootstrapError) Unwrap() error { return e.Err }
