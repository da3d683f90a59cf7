package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func logOne(t *testing.T, event Event) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	NewSlogAdapter(slog.New(handler)).Log(event)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestSlogAdapterLogsRequestEvent(t *testing.T) {
	d := 25 * time.Millisecond
	entry := logOne(t, Event{
		SessionID: "sess-1",
		Direction: DirectionIn,
		Layer:     LayerHTTP,
		Category:  CategoryMessage,
		Request:   &RequestEvent{Method: "POST", Path: "/subscriptions", StatusCode: 200, Duration: &d},
	})

	if entry["session_id"] != "sess-1" {
		t.Errorf("session_id: got %v", entry["session_id"])
	}
	if entry["layer"] != "HTTP" {
		t.Errorf("layer: got %v", entry["layer"])
	}
	if entry["method"] != "POST" || entry["path"] != "/subscriptions" {
		t.Errorf("request attrs missing: %v", entry)
	}
	if entry["status"] != float64(200) {
		t.Errorf("status: got %v", entry["status"])
	}
	if entry["level"] != "DEBUG" {
		t.Errorf("level: got %v", entry["level"])
	}
}

func TestSlogAdapterLogsFrameEvent(t *testing.T) {
	entry := logOne(t, Event{
		SessionID:      "sess-2",
		SubscriptionID: "sub-1",
		Layer:          LayerStream,
		Frame:          &FrameEvent{EventID: "42", Size: 128, Changes: 2},
	})

	if entry["subscription_id"] != "sub-1" {
		t.Errorf("subscription_id: got %v", entry["subscription_id"])
	}
	if entry["frame_size"] != float64(128) || entry["changes"] != float64(2) {
		t.Errorf("frame attrs: %v", entry)
	}
	if entry["event_id"] != "42" {
		t.Errorf("event_id: got %v", entry["event_id"])
	}
}

func TestSlogAdapterLogsErrorAtWarn(t *testing.T) {
	entry := logOne(t, Event{
		Layer:    LayerStream,
		Category: CategoryError,
		Error:    &ErrorEventData{Layer: LayerStream, Message: "subscription gone", Fatal: true},
	})

	if entry["level"] != "WARN" {
		t.Errorf("level: got %v", entry["level"])
	}
	if entry["fatal"] != true {
		t.Errorf("fatal: got %v", entry["fatal"])
	}
	if entry["error_msg"] != "subscription gone" {
		t.Errorf("error_msg: got %v", entry["error_msg"])
	}
}

func TestSlogAdapterLogsStateChange(t *testing.T) {
	entry := logOne(t, Event{
		Category:    CategoryState,
		StateChange: &StateChangeEvent{Entity: StateEntityStream, OldState: "CONNECTING", NewState: "STREAMING"},
	})
	if entry["entity"] != "STREAM" || entry["new_state"] != "STREAMING" {
		t.Errorf("state attrs: %v", entry)
	}
}
