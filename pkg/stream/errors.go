package stream

import (
	"errors"
	"fmt"

	"github.com/i3x-protocol/i3x-go/pkg/transport"
)

// Stream errors.
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrStreamEnded    = errors.New("stream ended by server")
	ErrStopTimeout    = errors.New("stream did not stop in time")
	ErrHandlerPanic   = errors.New("value change handler panicked")
)

// Error is a stream fault reported through the reader's error callback.
// It matches transport.ErrStream as well as its cause.
type Error struct {
	SubscriptionID string
	SessionID      string

	// Fatal is set when the fault ended the stream for good.
	Fatal bool

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := "stream"
	if e.Fatal {
		prefix = "stream terminated"
	}
	return fmt.Sprintf("%s (subscription %s): %v", prefix, e.SubscriptionID, e.Err)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches transport.ErrStream.
func (e *Error) Is(target error) bool {
	return target == transport.ErrStream
}

// IsFatal reports whether err must end a stream without reconnecting:
// the subscription is gone or the credentials were rejected.
func IsFatal(err error) bool {
	return errors.Is(err, transport.ErrNotFound) || errors.Is(err, transport.ErrAuthentication)
}
