package transport

import (
	"context"
	"io"
	"net/http"
	"time"
)

// maxErrorBody bounds the bytes read from a rejected stream response.
const maxErrorBody = 64 << 10

// StreamPath returns the event-stream path for a subscription.
func StreamPath(subscriptionID string) string {
	return "/subscriptions/" + EscapeID(subscriptionID) + "/stream"
}

// OpenStream opens the server-sent event stream of a subscription. When
// lastEventID is set it is sent as Last-Event-ID so the server can resume
// after the last delivered event. The caller must close the returned body.
func (c *Client) OpenStream(ctx context.Context, subscriptionID, lastEventID string) (io.ReadCloser, error) {
	_, sc, err := c.clients()
	if err != nil {
		return nil, err
	}

	path := StreamPath(subscriptionID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	c.logRequest(http.MethodGet, path, 0, 0, nil)
	start := time.Now()

	resp, err := sc.Do(req)
	if err != nil {
		terr := classifyError(err)
		c.finish(http.MethodGet, path, 0, 0, time.Since(start), terr)
		return nil, terr
	}

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		terr := errorFromResponse(resp.StatusCode, data)
		c.finish(http.MethodGet, path, resp.StatusCode, len(data), time.Since(start), terr)
		return nil, terr
	}

	c.finish(http.MethodGet, path, resp.StatusCode, 0, time.Since(start), nil)
	return resp.Body, nil
}
