package log

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.ilog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func TestFileLoggerWritesAndCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ilog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	logger.Log(Event{SessionID: "a"})
	logger.Log(Event{SessionID: "b"})
	if logger.Written() != 2 {
		t.Errorf("expected 2 written events, got %d", logger.Written())
	}
	if logger.Err() != nil {
		t.Errorf("unexpected error: %v", logger.Err())
	}

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	// Ignored after close.
	logger.Log(Event{SessionID: "c"})

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() == 0 {
		t.Error("expected non-empty log file")
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := createTestLogFile(t, []Event{{SessionID: "first"}})

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Log(Event{SessionID: "second"})
	logger.Close()

	events, err := ReadAll(path, Filter{})
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 2 || events[1].SessionID != "second" {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	now := time.Now()
	path := createTestLogFile(t, []Event{
		{Timestamp: now, SessionID: "s-1", Layer: LayerHTTP, Category: CategoryMessage},
		{Timestamp: now, SessionID: "s-2", Layer: LayerStream, Category: CategoryMessage},
		{Timestamp: now, SessionID: "s-3", Layer: LayerClient, Category: CategoryState},
	})

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	var read []Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		read = append(read, event)
	}

	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	if read[0].SessionID != "s-1" || read[2].SessionID != "s-3" {
		t.Errorf("events out of order: %q .. %q", read[0].SessionID, read[2].SessionID)
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	events, err := ReadAll(path, Filter{})
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing.ilog")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFilter(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, SessionID: "s-1", SubscriptionID: "sub-a", Layer: LayerHTTP, Category: CategoryMessage, Direction: DirectionOut},
		{Timestamp: base.Add(time.Second), SessionID: "s-2", SubscriptionID: "sub-a", Layer: LayerStream, Category: CategoryControl},
		{Timestamp: base.Add(2 * time.Second), SessionID: "s-2", SubscriptionID: "sub-b", Layer: LayerStream, Category: CategoryError},
	}
	path := createTestLogFile(t, events)

	stream := LayerStream
	errCat := CategoryError
	out := DirectionOut
	start := base.Add(time.Second)
	end := base.Add(2 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"All", Filter{}, 3},
		{"Session", Filter{SessionID: "s-2"}, 2},
		{"Subscription", Filter{SubscriptionID: "sub-a"}, 2},
		{"Layer", Filter{Layer: &stream}, 2},
		{"Category", Filter{Category: &errCat}, 1},
		{"Direction", Filter{Direction: &out}, 1},
		{"TimeStart", Filter{TimeStart: &start}, 2},
		{"TimeEnd", Filter{TimeEnd: &end}, 2},
		{"Combined", Filter{SubscriptionID: "sub-a", Layer: &stream}, 1},
		{"NoMatch", Filter{SessionID: "nope"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadAll(path, tt.filter)
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}
