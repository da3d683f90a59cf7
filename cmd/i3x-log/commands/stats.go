package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/i3x-protocol/i3x-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Sessions          map[string]*SessionStats
	Subscriptions     map[string]*SubscriptionStats
	Requests          int
	StatusCodes       map[int]int
	Errors            int
	FatalErrors       int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for a single transport or stream session.
type SessionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Endpoint  string
}

// SubscriptionStats holds statistics for a single subscription.
type SubscriptionStats struct {
	Sessions   map[string]struct{}
	Frames     int
	Changes    int
	Heartbeats int
	Errors     int
	LastEvent  string
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Sessions:          make(map[string]*SessionStats),
		Subscriptions:     make(map[string]*SubscriptionStats),
		StatusCodes:       make(map[int]int),
	}
}

// Add folds one event into the statistics.
func (s *Stats) Add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	sess, ok := s.Sessions[event.SessionID]
	if !ok {
		sess = &SessionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Sessions[event.SessionID] = sess
	}
	sess.Events++
	if event.Timestamp.After(sess.LastSeen) {
		sess.LastSeen = event.Timestamp
	}
	if sess.Endpoint == "" {
		sess.Endpoint = event.Endpoint
	}

	if event.Request != nil && event.Direction == log.DirectionOut {
		s.Requests++
	}
	if event.Request != nil && event.Request.StatusCode != 0 {
		s.StatusCodes[event.Request.StatusCode]++
	}
	if event.Error != nil {
		s.Errors++
		if event.Error.Fatal {
			s.FatalErrors++
		}
	}

	if event.SubscriptionID == "" {
		return
	}
	sub, ok := s.Subscriptions[event.SubscriptionID]
	if !ok {
		sub = &SubscriptionStats{Sessions: make(map[string]struct{})}
		s.Subscriptions[event.SubscriptionID] = sub
	}
	if event.Layer == log.LayerStream && event.SessionID != "" {
		sub.Sessions[event.SessionID] = struct{}{}
	}
	switch {
	case event.Frame != nil:
		sub.Frames++
		sub.Changes += event.Frame.Changes
		if event.Frame.EventID != "" {
			sub.LastEvent = event.Frame.EventID
		}
	case event.ControlMsg != nil && event.ControlMsg.Type == log.ControlMsgHeartbeat:
		sub.Heartbeats++
	case event.Error != nil:
		sub.Errors++
	}
}

// RunStats analyzes the events of path matching opts and prints statistics.
func RunStats(path string, opts FilterOptions, w io.Writer) error {
	stats := newStats()
	err := forEach(path, opts, func(event log.Event) error {
		stats.Add(event)
		return nil
	})
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== i3X Client Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerHTTP, log.LayerStream, log.LayerClient} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if stats.Requests > 0 {
		fmt.Fprintf(w, "Requests: %d\n", stats.Requests)
		codes := make([]int, 0, len(stats.StatusCodes))
		for code := range stats.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Fprintf(w, "  %d: %d\n", code, stats.StatusCodes[code])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		type sessionInfo struct {
			id    string
			stats *SessionStats
		}
		sessions := make([]sessionInfo, 0, len(stats.Sessions))
		for id, ss := range stats.Sessions {
			sessions = append(sessions, sessionInfo{id, ss})
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].stats.FirstSeen.Before(sessions[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, s := range sessions {
			duration := s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenID(s.id), s.stats.Events, duration)
			if s.stats.Endpoint != "" {
				fmt.Fprintf(w, "           Endpoint: %s\n", s.stats.Endpoint)
			}
		}
	}

	if len(stats.Subscriptions) > 0 {
		ids := make([]string, 0, len(stats.Subscriptions))
		for id := range stats.Subscriptions {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		fmt.Fprintln(w)
		fmt.Fprintf(w, "Subscriptions: %d\n", len(ids))
		for _, id := range ids {
			sub := stats.Subscriptions[id]
			fmt.Fprintf(w, "  %s: %d frames, %d changes, %d heartbeats, %d stream sessions\n",
				id, sub.Frames, sub.Changes, sub.Heartbeats, len(sub.Sessions))
			if sub.LastEvent != "" {
				fmt.Fprintf(w, "           Last event id: %s\n", sub.LastEvent)
			}
			if sub.Errors > 0 {
				fmt.Fprintf(w, "           Errors: %d\n", sub.Errors)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d (%d fatal)\n", stats.Errors, stats.FatalErrors)
	}
}
