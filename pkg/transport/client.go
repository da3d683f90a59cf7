package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i3x-protocol/i3x-go/pkg/log"
)

// Transport defaults.
const (
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize bounds the body read for a single call.
	MaxResponseSize = 16 << 20
)

// Credentials are sent as X-API-Key and X-API-Secret headers.
type Credentials struct {
	APIKey    string
	APISecret string
}

// RequestObserver receives the outcome of every call.
type RequestObserver interface {
	ObserveRequest(method, path string, status int, d time.Duration, err error)
}

// Options configures a Client.
type Options struct {
	// Auth enables API key authentication when set.
	Auth *Credentials

	// Timeout bounds each request/response call (default: 30s).
	// It does not apply to streams.
	Timeout time.Duration

	// TLS settings for https base URLs.
	TLS TLSConfig

	// HTTPClient replaces the client used for calls. Timeout and TLS are
	// ignored when it is set.
	HTTPClient *http.Client

	// StreamClient replaces the client used for OpenStream.
	StreamClient *http.Client

	// Logger for operational logging. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger receives a RequestEvent for every call. Nil disables
	// protocol capture.
	ProtocolLogger log.Logger

	// Observer receives call outcomes, typically a metrics collector.
	Observer RequestObserver
}

// DefaultOptions returns the default transport options.
func DefaultOptions() Options {
	return Options{Timeout: DefaultTimeout}
}

// Client issues calls against one i3X server.
type Client struct {
	baseURL   string
	opts      Options
	logger    *slog.Logger
	plog      log.Logger
	sessionID string

	mu           sync.RWMutex
	httpClient   *http.Client
	streamClient *http.Client
}

// New creates a Client for baseURL. A trailing slash is removed. The
// client is closed until Open succeeds.
func New(baseURL string, opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		opts:      opts,
		logger:    logger,
		plog:      log.OrNoop(opts.ProtocolLogger),
		sessionID: uuid.New().String(),
	}
}

// BaseURL returns the server base URL without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SessionID returns the protocol log session ID of this client.
func (c *Client) SessionID() string {
	return c.sessionID
}

// IsOpen reports whether Open has succeeded and Close has not been called.
func (c *Client) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.httpClient != nil
}

// Open prepares the HTTP clients and verifies connectivity with
// GET /namespaces. Calling Open on an open client is a no-op. On failure
// the client stays closed.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.httpClient != nil {
		c.mu.Unlock()
		return nil
	}
	httpClient, streamClient, err := c.buildClients()
	if err != nil {
		c.mu.Unlock()
		return NewError(KindConnection, "configure TLS", err)
	}
	c.httpClient = httpClient
	c.streamClient = streamClient
	c.mu.Unlock()

	if err := c.Get(ctx, "/namespaces", nil, nil); err != nil {
		_ = c.Close()
		return err
	}

	c.logState("CLOSED", "OPEN", "")
	c.logger.Debug("transport open", "url", c.baseURL)
	return nil
}

func (c *Client) buildClients() (*http.Client, *http.Client, error) {
	var base http.RoundTripper = http.DefaultTransport
	if !c.opts.TLS.IsZero() {
		tlsConf, err := NewClientTLSConfig(c.opts.TLS)
		if err != nil {
			return nil, nil, err
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = tlsConf
		base = tr
	}

	httpClient := c.opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: base, Timeout: c.opts.Timeout}
	}
	streamClient := c.opts.StreamClient
	if streamClient == nil {
		if c.opts.HTTPClient != nil {
			// Same transport, no overall deadline.
			streamClient = &http.Client{Transport: c.opts.HTTPClient.Transport}
		} else {
			streamClient = &http.Client{Transport: base}
		}
	}
	return httpClient, streamClient, nil
}

// Close releases idle connections. It is safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	hc := c.httpClient
	c.httpClient = nil
	c.streamClient = nil
	c.mu.Unlock()

	if hc != nil {
		hc.CloseIdleConnections()
		c.logState("OPEN", "CLOSED", "")
	}
	return nil
}

func (c *Client) clients() (*http.Client, *http.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.httpClient == nil {
		return nil, nil, NewError(KindConnection, "transport is not connected", nil)
	}
	return c.httpClient, c.streamClient, nil
}

// Get issues GET path with optional query parameters and decodes the JSON
// response into out. A nil out discards the body.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues POST path. A nil body sends no request body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Put issues PUT path with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, body, out)
}

// Delete issues DELETE path.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, out)
}

// Do issues one call. JSON responses are decoded into out; for other
// content types out may be *string or *any to receive the text. A 204
// response leaves out untouched.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	hc, _, err := c.clients()
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	c.logRequest(method, path, 0, 0, nil)
	start := time.Now()

	resp, err := hc.Do(req)
	if err != nil {
		terr := classifyError(err)
		c.finish(method, path, 0, 0, time.Since(start), terr)
		return terr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	elapsed := time.Since(start)
	if err != nil {
		terr := classifyError(err)
		c.finish(method, path, resp.StatusCode, len(data), elapsed, terr)
		return terr
	}

	if resp.StatusCode >= 400 {
		terr := errorFromResponse(resp.StatusCode, data)
		c.finish(method, path, resp.StatusCode, len(data), elapsed, terr)
		return terr
	}
	c.finish(method, path, resp.StatusCode, len(data), elapsed, nil)

	if out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil
	}
	return decodeBody(resp.Header.Get("Content-Type"), data, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, NewError(KindOther, "encode request body", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, NewError(KindOther, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a := c.opts.Auth; a != nil {
		req.Header.Set("X-API-Key", a.APIKey)
		if a.APISecret != "" {
			req.Header.Set("X-API-Secret", a.APISecret)
		}
	}
	return req, nil
}

func decodeBody(contentType string, data []byte, out any) error {
	if strings.Contains(contentType, "json") {
		if err := json.Unmarshal(data, out); err != nil {
			return NewError(KindOther, "decode response", err)
		}
		return nil
	}
	switch v := out.(type) {
	case *string:
		*v = string(data)
	case *any:
		*v = string(data)
	default:
		return NewError(KindOther, fmt.Sprintf("unexpected content type %q", contentType), nil)
	}
	return nil
}

// finish records the outcome of a call.
func (c *Client) finish(method, path string, status, size int, d time.Duration, err error) {
	c.logRequest(method, path, status, size, &d)
	if err != nil {
		c.logError(path, status, err)
		c.logger.Debug("request failed", "method", method, "path", path, "status", status, "error", err)
	}
	if c.opts.Observer != nil {
		c.opts.Observer.ObserveRequest(method, path, status, d, err)
	}
}

func (c *Client) logRequest(method, path string, status, size int, d *time.Duration) {
	dir := log.DirectionOut
	if d != nil {
		dir = log.DirectionIn
	}
	c.plog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.sessionID,
		Direction: dir,
		Layer:     log.LayerHTTP,
		Category:  log.CategoryMessage,
		Endpoint:  c.baseURL,
		Request: &log.RequestEvent{
			Method:     method,
			Path:       path,
			StatusCode: status,
			Size:       size,
			Duration:   d,
		},
	})
}

func (c *Client) logError(path string, status int, err error) {
	ev := &log.ErrorEventData{
		Layer:   log.LayerHTTP,
		Message: err.Error(),
		Context: path,
	}
	if status != 0 {
		ev.Code = &status
	}
	c.plog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.sessionID,
		Direction: log.DirectionIn,
		Layer:     log.LayerHTTP,
		Category:  log.CategoryError,
		Endpoint:  c.baseURL,
		Error:     ev,
	})
}

func (c *Client) logState(oldState, newState, reason string) {
	c.plog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.sessionID,
		Layer:     log.LayerHTTP,
		Category:  log.CategoryState,
		Endpoint:  c.baseURL,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityTransport,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// EscapeID escapes an element ID for use as one path segment.
func EscapeID(id string) string {
	return url.PathEscape(id)
}
