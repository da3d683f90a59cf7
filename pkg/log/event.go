package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the transport or stream session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Endpoint is the server base URL.
	Endpoint string `cbor:"6,keyasint,omitempty"`

	// SubscriptionID is set for events tied to a subscription.
	SubscriptionID string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Request     *RequestEvent     `cbor:"10,keyasint,omitempty"` // HTTP layer
	Frame       *FrameEvent       `cbor:"11,keyasint,omitempty"` // Stream layer
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Stream/subscription state
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"` // Heartbeat/end/retry
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerHTTP is the request/response layer.
	LayerHTTP Layer = 0
	// LayerStream is the server-sent event stream.
	LayerStream Layer = 1
	// LayerClient is the subscription orchestration layer.
	LayerClient Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerHTTP:
		return "HTTP"
	case LayerStream:
		return "STREAM"
	case LayerClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a request, response or data frame.
	CategoryMessage Category = 0
	// CategoryControl indicates a control frame (heartbeat/end/retry).
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// RequestEvent captures one HTTP call. Outgoing events carry the method and
// path; incoming events add the status and round-trip duration.
type RequestEvent struct {
	Method string `cbor:"1,keyasint"`
	Path   string `cbor:"2,keyasint"`

	// StatusCode is 0 when no response was received.
	StatusCode int `cbor:"3,keyasint,omitempty"`

	// Size is the body size in bytes.
	Size int `cbor:"4,keyasint,omitempty"`

	// Duration is stored as nanoseconds.
	Duration *time.Duration `cbor:"5,keyasint,omitempty"`
}

// MaxFrameData bounds the bytes kept in FrameEvent.Data.
const MaxFrameData = 4096

// FrameEvent captures one server-sent event.
type FrameEvent struct {
	// EventType is the SSE event field ("" for the default message type).
	EventType string `cbor:"1,keyasint,omitempty"`

	// EventID is the SSE id field.
	EventID string `cbor:"2,keyasint,omitempty"`

	// Size is the data size in bytes.
	Size int `cbor:"3,keyasint"`

	// Data is the frame payload (may be truncated for large frames).
	Data []byte `cbor:"4,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"5,keyasint,omitempty"`

	// Changes is the number of value changes decoded from the frame.
	Changes int `cbor:"6,keyasint,omitempty"`
}

// NewFrameEvent builds a FrameEvent, truncating data to MaxFrameData.
func NewFrameEvent(eventType, eventID string, data []byte) *FrameEvent {
	fe := &FrameEvent{
		EventType: eventType,
		EventID:   eventID,
		Size:      len(data),
	}
	if len(data) > MaxFrameData {
		fe.Data = append([]byte(nil), data[:MaxFrameData]...)
		fe.Truncated = true
	} else {
		fe.Data = append([]byte(nil), data...)
	}
	return fe
}

// StateChangeEvent captures stream and subscription lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityTransport indicates the HTTP transport opened or closed.
	StateEntityTransport StateEntity = 0
	// StateEntityStream indicates a stream session state change.
	StateEntityStream StateEntity = 1
	// StateEntitySubscription indicates a subscription lifecycle change.
	StateEntitySubscription StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityTransport:
		return "TRANSPORT"
	case StateEntityStream:
		return "STREAM"
	case StateEntitySubscription:
		return "SUBSCRIPTION"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures stream control frames.
type ControlMsgEvent struct {
	// Type of control message.
	Type ControlMsgType `cbor:"1,keyasint"`

	// Retry is the server reconnect hint, set for ControlMsgRetry.
	Retry *time.Duration `cbor:"2,keyasint,omitempty"`
}

// ControlMsgType indicates the type of control message.
type ControlMsgType uint8

const (
	// ControlMsgHeartbeat indicates a keep-alive frame.
	ControlMsgHeartbeat ControlMsgType = 0
	// ControlMsgEnd indicates the server ended the stream.
	ControlMsgEnd ControlMsgType = 1
	// ControlMsgRetry indicates a reconnect delay hint.
	ControlMsgRetry ControlMsgType = 2
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgHeartbeat:
		return "HEARTBEAT"
	case ControlMsgEnd:
		return "END"
	case ControlMsgRetry:
		return "RETRY"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the HTTP status code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`

	// Fatal is set when the error ended a stream permanently.
	Fatal bool `cbor:"5,keyasint,omitempty"`
}
