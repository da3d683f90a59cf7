// Package log provides structured protocol logging for i3X clients.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (HTTP, stream, client).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/i3x/client.ilog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - HTTP: Requests and responses (RequestEvent)
//   - Stream: Server-sent frames (FrameEvent)
//   - Client: Subscription and stream state changes (StateChangeEvent)
//
// Control frames (heartbeat/end/retry) and errors have dedicated event types.
//
// # File Format
//
// Log files use CBOR encoding with .ilog extension. The i3x-log CLI tool
// provides viewing, filtering, and export capabilities.
package log
