// Package transport provides the HTTP transport for i3X clients.
//
// The transport layer handles:
//   - JSON request/response calls against the i3X REST API
//   - API key authentication (X-API-Key / X-API-Secret headers)
//   - Mapping HTTP status codes and network failures to typed errors
//   - Opening long-lived server-sent event streams for subscriptions
//   - Optional TLS settings for HTTPS servers (custom CA, client certificates)
//
// # Errors
//
// Every failure is returned as *Error with a Kind. Use errors.Is with the
// package sentinels to branch on the class:
//
//	if errors.Is(err, transport.ErrNotFound) { ... }
//
// Status mapping:
//   - 401, 403: ErrAuthentication
//   - 404: ErrNotFound
//   - 5xx: ErrServer
//   - other 4xx: ErrOther
//
// Network failures map to ErrConnection, deadlines to ErrTimeout.
//
// # Streams
//
// OpenStream returns the raw event-stream body. The HTTP client used for
// streams has no overall timeout; the caller ends the stream by cancelling
// the context or closing the body.
package transport
