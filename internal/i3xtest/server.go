// Package i3xtest provides an in-memory i3X server for tests.
package i3xtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Server is an in-memory i3X server backed by httptest. Subscriptions,
// registrations and streams behave like a real server; values and objects
// come from a small fixed plant model.
type Server struct {
	srv  *httptest.Server
	done chan struct{}

	mu             sync.Mutex
	nextID         int
	subs           map[string]*subState
	values         map[string]any
	objects        []map[string]any
	registerStatus int
	deleteStatus   int
	streamStatus   int
	registerCalls  int
	syncItems      []json.RawMessage
	lastBody       map[string]any
	lastQuery      url.Values
	updatePaths    []string
}

var objectTypes = []map[string]any{
	{"elementId": "pump-type", "displayName": "Pump", "namespaceUri": "urn:plant"},
	{"elementId": "temp-type", "displayName": "Temperature", "namespaceUri": "urn:plant"},
}

var relationshipTypes = []map[string]any{
	{"elementId": "HasChild", "displayName": "Has child", "namespaceUri": "urn:plant", "reverseOf": "HasParent"},
	{"elementId": "HasParent", "displayName": "Has parent", "namespaceUri": "urn:plant", "reverseOf": "HasChild"},
}

type subState struct {
	objects map[string]int
	streams []chan string
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t *testing.T) *Server {
	t.Helper()
	f := &Server{
		done: make(chan struct{}),
		subs: make(map[string]*subState),
		values: map[string]any{
			"pump-1": map[string]any{
				"data": []any{map[string]any{"value": 72.5, "quality": "Good", "timestamp": "2025-01-01T00:00:00Z"}},
			},
		},
		objects: []map[string]any{
			{"elementId": "pump-1", "displayName": "Pump 1", "typeId": "pump-type", "isComposition": true},
			{"elementId": "pump-1/temp", "displayName": "Temp", "typeId": "temp-type", "parentId": "pump-1"},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /namespaces", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []any{map[string]any{"uri": "urn:plant", "displayName": "Plant"}})
	})
	mux.HandleFunc("GET /objecttypes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, inNamespace(objectTypes, r.URL.Query().Get("namespaceUri")))
	})
	mux.HandleFunc("POST /objecttypes/query", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, withIDs(objectTypes, stringSet(f.decode(r)["elementIds"])))
	})
	mux.HandleFunc("GET /relationshiptypes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, inNamespace(relationshipTypes, r.URL.Query().Get("namespaceUri")))
	})
	mux.HandleFunc("POST /relationshiptypes/query", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, withIDs(relationshipTypes, stringSet(f.decode(r)["elementIds"])))
	})
	mux.HandleFunc("GET /objects", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		typeID := q.Get("typeId")
		metadata := q.Get("includeMetadata") == "true"
		f.mu.Lock()
		f.lastQuery = q
		out := []any{}
		for _, o := range f.objects {
			if typeID != "" && o["typeId"] != typeID {
				continue
			}
			item := make(map[string]any, len(o)+1)
			for k, v := range o {
				item[k] = v
			}
			if metadata {
				item["metadata"] = map[string]any{"source": "fixture"}
			}
			out = append(out, item)
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, out)
	})
	mux.HandleFunc("POST /objects/related", func(w http.ResponseWriter, r *http.Request) {
		body := f.decode(r)
		ids := stringSet(body["elementIds"])
		rel, _ := body["relationshipType"].(string)
		f.mu.Lock()
		parents := map[string]bool{}
		for _, o := range f.objects {
			if p, ok := o["parentId"].(string); ok && ids[o["elementId"].(string)] {
				parents[p] = true
			}
		}
		out := []any{}
		for _, o := range f.objects {
			parent, _ := o["parentId"].(string)
			child := ids[parent]
			isParent := parents[o["elementId"].(string)]
			if (rel == "HasChild" && child) || (rel == "HasParent" && isParent) || (rel == "" && (child || isParent)) {
				out = append(out, o)
			}
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, out)
	})
	mux.HandleFunc("POST /objects/list", func(w http.ResponseWriter, r *http.Request) {
		body := f.decode(r)
		ids := stringSet(body["elementIds"])
		f.mu.Lock()
		var out []any
		for _, o := range f.objects {
			if ids[o["elementId"].(string)] {
				out = append(out, o)
			}
		}
		f.mu.Unlock()
		if out == nil {
			out = []any{}
		}
		writeJSON(w, http.StatusOK, out)
	})
	valueHandler := func(w http.ResponseWriter, r *http.Request) {
		body := f.decode(r)
		out := map[string]any{}
		f.mu.Lock()
		for id := range stringSet(body["elementIds"]) {
			if v, ok := f.values[id]; ok {
				out[id] = v
			}
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, out)
	}
	mux.HandleFunc("POST /objects/value", valueHandler)
	mux.HandleFunc("POST /objects/history", valueHandler)
	mux.HandleFunc("PUT /objects/{id}/value", func(w http.ResponseWriter, r *http.Request) {
		f.decode(r)
		f.mu.Lock()
		f.updatePaths = append(f.updatePaths, r.URL.EscapedPath())
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "updated"})
	})
	mux.HandleFunc("PUT /objects/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		f.decode(r)
		f.mu.Lock()
		f.updatePaths = append(f.updatePaths, r.URL.EscapedPath())
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "history updated"})
	})

	mux.HandleFunc("POST /subscriptions", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.nextID++
		id := fmt.Sprintf("sub-%d", f.nextID)
		f.subs[id] = &subState{objects: map[string]int{}}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"subscriptionId": id, "created": time.Now().UTC().Format(time.RFC3339Nano)})
	})
	mux.HandleFunc("GET /subscriptions", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		ids := make([]string, 0, len(f.subs))
		for id := range f.subs {
			ids = append(ids, id)
		}
		f.mu.Unlock()
		sort.Strings(ids)
		writeJSON(w, http.StatusOK, map[string]any{"subscriptionIds": ids})
	})
	mux.HandleFunc("GET /subscriptions/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		f.mu.Lock()
		sub, ok := f.subs[id]
		var objects []string
		if ok {
			for o := range sub.objects {
				objects = append(objects, o)
			}
		}
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "subscription not found"})
			return
		}
		sort.Strings(objects)
		writeJSON(w, http.StatusOK, map[string]any{"subscriptionId": id, "isStreaming": false, "queuedUpdates": 0, "objects": objects})
	})
	mux.HandleFunc("DELETE /subscriptions/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		f.mu.Lock()
		if status := f.deleteStatus; status != 0 {
			f.mu.Unlock()
			writeJSON(w, status, map[string]any{"detail": "delete failed"})
			return
		}
		_, ok := f.subs[id]
		delete(f.subs, id)
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "subscription not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "deleted", "unsubscribed": []string{id}})
	})
	mux.HandleFunc("POST /subscriptions/{id}/register", func(w http.ResponseWriter, r *http.Request) {
		body := f.decode(r)
		f.mu.Lock()
		f.registerCalls++
		status := f.registerStatus
		sub, ok := f.subs[r.PathValue("id")]
		total := 0
		if ok && status == 0 {
			depth, _ := body["maxDepth"].(float64)
			for id := range stringSet(body["elementIds"]) {
				sub.objects[id] = int(depth)
			}
			total = len(sub.objects)
		}
		f.mu.Unlock()
		switch {
		case status != 0:
			writeJSON(w, status, map[string]any{"detail": "invalid element"})
		case !ok:
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "subscription not found"})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"message": "registered", "totalObjects": total})
		}
	})
	mux.HandleFunc("POST /subscriptions/{id}/unregister", func(w http.ResponseWriter, r *http.Request) {
		body := f.decode(r)
		f.mu.Lock()
		sub, ok := f.subs[r.PathValue("id")]
		total := 0
		if ok {
			for id := range stringSet(body["elementIds"]) {
				delete(sub.objects, id)
			}
			total = len(sub.objects)
		}
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "subscription not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "unregistered", "totalObjects": total})
	})
	mux.HandleFunc("POST /subscriptions/{id}/sync", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		items := f.syncItems
		f.syncItems = nil
		f.mu.Unlock()
		if items == nil {
			items = []json.RawMessage{}
		}
		writeJSON(w, http.StatusOK, items)
	})
	mux.HandleFunc("GET /subscriptions/{id}/stream", f.handleStream)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(func() {
		close(f.done)
		f.srv.Close()
	})
	return f
}

// URL returns the base URL of the server.
func (f *Server) URL() string {
	return f.srv.URL
}

func (f *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	sub, ok := f.subs[r.PathValue("id")]
	status := f.streamStatus
	events := make(chan string, 32)
	if ok && status == 0 {
		sub.streams = append(sub.streams, events)
	}
	f.mu.Unlock()

	switch {
	case status != 0:
		writeJSON(w, status, map[string]any{"detail": "stream unavailable"})
		return
	case !ok:
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "subscription not found"})
		return
	}

	flusher := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-f.done:
			return
		case ev := <-events:
			if _, err := fmt.Fprint(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Push queues an SSE event on the newest stream of subscription id.
func (f *Server) Push(t *testing.T, id, event string) {
	t.Helper()
	f.mu.Lock()
	sub, ok := f.subs[id]
	var events chan string
	if ok && len(sub.streams) > 0 {
		events = sub.streams[len(sub.streams)-1]
	}
	f.mu.Unlock()
	require.True(t, ok, "unknown subscription %s", id)
	require.NotNil(t, events, "subscription %s has no stream", id)
	events <- event
}

// StreamCount returns how many streams subscription id has opened.
func (f *Server) StreamCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[id]; ok {
		return len(sub.streams)
	}
	return 0
}

// HasSubscription reports whether the server knows subscription id.
func (f *Server) HasSubscription(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[id]
	return ok
}

// RegisterCount returns the number of register calls received.
func (f *Server) RegisterCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registerCalls
}

func (f *Server) decode(r *http.Request) map[string]any {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.lastBody = body
	f.mu.Unlock()
	return body
}

// Body returns the last decoded request body.
func (f *Server) Body() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody
}

// Query returns the query of the last GET /objects request.
func (f *Server) Query() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery
}

func inNamespace(items []map[string]any, ns string) []any {
	out := []any{}
	for _, item := range items {
		if ns == "" || item["namespaceUri"] == ns {
			out = append(out, item)
		}
	}
	return out
}

func withIDs(items []map[string]any, ids map[string]bool) []any {
	out := []any{}
	for _, item := range items {
		if ids[item["elementId"].(string)] {
			out = append(out, item)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func stringSet(v any) map[string]bool {
	out := map[string]bool{}
	items, _ := v.([]any)
	for _, item := range items {
		if s, ok := item.(string); ok {
			out[s] = true
		}
	}
	return out
}

// ChangeEvent formats an SSE event carrying one value change.
func ChangeEvent(id, elementID string, value int) string {
	return fmt.Sprintf("id: %s\ndata: {%q:{\"data\":[{\"value\":%d,\"quality\":\"Good\",\"timestamp\":\"2025-01-01T00:00:00Z\"}]}}\n\n", id, elementID, value)
}

// CloseClientConnections drops every open connection, including streams.
func (f *Server) CloseClientConnections() {
	f.srv.CloseClientConnections()
}

// SetRegisterStatus makes register calls fail with status. 0 restores
// normal behavior.
func (f *Server) SetRegisterStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerStatus = status
}

// SetDeleteStatus makes subscription deletes fail with status. 0 restores
// normal behavior.
func (f *Server) SetDeleteStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteStatus = status
}

// SetStreamStatus makes stream requests fail with status. 0 restores
// normal behavior.
func (f *Server) SetStreamStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamStatus = status
}

// SetSyncItems sets the items returned by the next sync call.
func (f *Server) SetSyncItems(items ...json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncItems = items
}

// SetValue sets the value entry returned for elementID.
func (f *Server) SetValue(elementID string, entry map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[elementID] = entry
}

// Forget deletes subscription id on the server side only.
func (f *Server) Forget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
}

// UpdatePaths returns the escaped paths of value updates received.
func (f *Server) UpdatePaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.updatePaths...)
}
