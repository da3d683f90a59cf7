package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/i3x-protocol/i3x-go/pkg/log"
)

// RunExport writes the events of path matching opts to w as jsonl or csv.
func RunExport(path, format string, opts FilterOptions, w io.Writer) error {
	switch format {
	case "jsonl":
		encoder := json.NewEncoder(w)
		return forEach(path, opts, func(event log.Event) error {
			if err := encoder.Encode(event); err != nil {
				return fmt.Errorf("failed to encode event: %w", err)
			}
			return nil
		})
	case "csv":
		return exportCSV(path, opts, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportCSV(path string, opts FilterOptions, w io.Writer) error {
	cw := csv.NewWriter(w)

	header := []string{"timestamp", "session_id", "direction", "layer", "category", "subscription_id", "type", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	err := forEach(path, opts, func(event log.Event) error {
		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.SessionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.SubscriptionID,
			eventType(event),
			csvDetail(event),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

// csvDetail condenses the type-specific payload into a single column.
func csvDetail(event log.Event) string {
	switch {
	case event.Request != nil:
		s := event.Request.Method + " " + event.Request.Path
		if event.Request.StatusCode != 0 {
			s += " " + strconv.Itoa(event.Request.StatusCode)
		}
		return s
	case event.Frame != nil:
		return event.Frame.EventID
	case event.StateChange != nil:
		return event.StateChange.NewState
	case event.Error != nil:
		return event.Error.Message
	}
	return ""
}
