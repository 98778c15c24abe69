package telnet

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotConnected is returned when an operation needs a live transport and
// the session has none.
var ErrNotConnected = errors.New("not connected")

// ConnectError reports a failure to open or authenticate a session.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("connect %s: %v", e.Addr, e.Err) }
func (e *ConnectError) Unwrap() error { return e.Err }

// NoResponseError reports that no bytes arrived within the deadline.
type NoResponseError struct {
	Wait time.Duration
	Err  error
}

func (e *NoResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no response from server within %s: %v", e.Wait, e.Err)
	}
	return fmt.Sprintf("no response from server within %s", e.Wait)
}

func (e *NoResponseError) Unwrap() error { return e.Err }

// CommandError reports a send or read failure on an established session.
// It always wraps the underlying transport error.
type CommandError struct {
	Addr    string
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q on %s: %v", e.Command, e.Addr, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
