package socket

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Send when the transport is not
// Connected. Recoverable: the caller may retry after reconnecting.
var ErrNotConnected = errors.New("socket: not connected")

// TransportError reports a connect, read, or write failure. Never fatal;
// it always accompanies a transition to Disconnected.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("socket %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
