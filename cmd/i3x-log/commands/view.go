package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/i3x-protocol/i3x-go/pkg/log"
)

// RunView prints the events of path matching opts in human-readable form.
func RunView(path string, opts FilterOptions, output io.Writer) error {
	return forEach(path, opts, func(event log.Event) error {
		formatEvent(output, event)
		return nil
	})
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [session] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	layer := event.Layer.String()
	if event.Category == log.CategoryControl {
		layer = "CTRL"
	}

	fmt.Fprintf(w, "%s [%s] %-3s %s %s", ts, shortenID(event.SessionID),
		event.Direction.String(), layer, eventType(event))
	if event.SubscriptionID != "" {
		fmt.Fprintf(w, " sub=%s", event.SubscriptionID)
	}
	fmt.Fprintln(w)

	switch {
	case event.Request != nil:
		formatRequestDetails(w, event.Request)
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.ControlMsg != nil:
		if event.ControlMsg.Retry != nil {
			fmt.Fprintf(w, "  Retry: %s\n", *event.ControlMsg.Retry)
		}
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// eventType returns the label used for the event in view and export output.
func eventType(event log.Event) string {
	switch {
	case event.Request != nil:
		if event.Direction == log.DirectionOut {
			return "Request"
		}
		return "Response"
	case event.Frame != nil:
		return "Frame"
	case event.StateChange != nil:
		return "State"
	case event.ControlMsg != nil:
		return event.ControlMsg.Type.String()
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenID returns the first 8 characters of a session ID.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatRequestDetails(w io.Writer, req *log.RequestEvent) {
	fmt.Fprintf(w, "  %s %s\n", req.Method, req.Path)
	if req.StatusCode != 0 {
		fmt.Fprintf(w, "  Status: %d\n", req.StatusCode)
	}
	if req.Size > 0 {
		fmt.Fprintf(w, "  Size: %d bytes\n", req.Size)
	}
	if req.Duration != nil {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*req.Duration))
	}
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	if frame.EventType != "" {
		fmt.Fprintf(w, "  Event: %s\n", frame.EventType)
	}
	if frame.EventID != "" {
		fmt.Fprintf(w, "  ID: %s\n", frame.EventID)
	}
	fmt.Fprintf(w, "  Size: %d bytes, %d changes\n", frame.Size, frame.Changes)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", frame.Data)
		if frame.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
	if err.Fatal {
		fmt.Fprintln(w, "  Fatal: true")
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}
