package stream

import "bytes"

// FrameKind is the role of a frame in the stream.
type FrameKind uint8

const (
	// FrameData carries value changes.
	FrameData FrameKind = iota

	// FrameHeartbeat keeps the connection alive and is discarded.
	FrameHeartbeat

	// FrameEnd means the server finished the stream.
	FrameEnd

	// FrameRetry only carries a reconnect hint.
	FrameRetry
)

// String returns the frame kind name.
func (k FrameKind) String() string {
	switch k {
	case FrameData:
		return "DATA"
	case FrameHeartbeat:
		return "HEARTBEAT"
	case FrameEnd:
		return "END"
	case FrameRetry:
		return "RETRY"
	default:
		return "UNKNOWN"
	}
}

var (
	heartbeatEvents = map[string]bool{"heartbeat": true, "ping": true, "keepalive": true}
	endEvents       = map[string]bool{"end": true, "close": true, "complete": true}
)

// Classify returns the kind of f.
func Classify(f Frame) FrameKind {
	switch {
	case endEvents[f.Event]:
		return FrameEnd
	case heartbeatEvents[f.Event]:
		return FrameHeartbeat
	}

	data := bytes.TrimSpace(f.Data)
	switch {
	case len(data) == 0 && f.Event == "" && f.Retry > 0:
		return FrameRetry
	case len(data) == 0:
		return FrameHeartbeat
	case bytes.Equal(data, []byte("{}")):
		return FrameHeartbeat
	}
	return FrameData
}
