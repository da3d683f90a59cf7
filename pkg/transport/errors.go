package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies transport failures.
type Kind uint8

const (
	// KindOther is any failure without a more specific class.
	KindOther Kind = iota
	// KindConnection means the server could not be reached.
	KindConnection
	// KindAuthentication means credentials were rejected.
	KindAuthentication
	// KindNotFound means the resource does not exist.
	KindNotFound
	// KindServer means the server failed internally.
	KindServer
	// KindTimeout means the request deadline passed.
	KindTimeout
	// KindSubscription means a subscription operation was rejected.
	KindSubscription
	// KindStream means a stream session failed.
	KindStream
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindOther:
		return "OTHER"
	case KindConnection:
		return "CONNECTION"
	case KindAuthentication:
		return "AUTHENTICATION"
	case KindNotFound:
		return "NOT_FOUND"
	case KindServer:
		return "SERVER"
	case KindTimeout:
		return "TIMEOUT"
	case KindSubscription:
		return "SUBSCRIPTION"
	case KindStream:
		return "STREAM"
	default:
		return "UNKNOWN"
	}
}

// Error classes, matched with errors.Is.
var (
	ErrOther          = errors.New("i3x error")
	ErrConnection     = errors.New("connection failed")
	ErrAuthentication = errors.New("authentication failed")
	ErrNotFound       = errors.New("not found")
	ErrServer         = errors.New("server error")
	ErrTimeout        = errors.New("timeout")
	ErrSubscription   = errors.New("subscription error")
	ErrStream         = errors.New("stream error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConnection:
		return ErrConnection
	case KindAuthentication:
		return ErrAuthentication
	case KindNotFound:
		return ErrNotFound
	case KindServer:
		return ErrServer
	case KindTimeout:
		return ErrTimeout
	case KindSubscription:
		return ErrSubscription
	case KindStream:
		return ErrStream
	default:
		return ErrOther
	}
}

// Error is a classified transport failure.
type Error struct {
	Kind Kind

	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int

	Message string

	// Err is the underlying cause, if any.
	Err error
}

// NewError creates an Error of the given kind.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.sentinel().Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindOther when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

// StatusKind maps an HTTP status code of 400 or above to a kind.
func StatusKind(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindAuthentication
	case status == 404:
		return KindNotFound
	case status >= 500:
		return KindServer
	default:
		return KindOther
	}
}

// errorFromResponse builds an Error from a failed response. The message is
// the JSON "detail" or "message" field when present, else the raw body.
func errorFromResponse(status int, body []byte) *Error {
	msg := strings.TrimSpace(string(body))
	var detail map[string]any
	if json.Unmarshal(body, &detail) == nil {
		if v, ok := detail["detail"]; ok && v != nil {
			msg = fmt.Sprint(v)
		} else if v, ok := detail["message"]; ok && v != nil {
			msg = fmt.Sprint(v)
		}
	}
	return &Error{Kind: StatusKind(status), StatusCode: status, Message: msg}
}

// classifyError wraps a failure from http.Client.Do.
func classifyError(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	return &Error{Kind: KindConnection, Err: err}
}
