// Package connection provides reconnect supervision for long-lived i3X
// stream sessions.
//
// This package handles:
//   - Exponential backoff for reconnection attempts
//   - Jitter to prevent thundering herd
//   - Session state tracking
//   - Reconnection after a session drops, until stopped or a fatal error
//
// # Reconnection Strategy
//
// When a session is lost, the supervisor uses exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Continue at 60s until successful or the attempt limit is reached
//  5. Reset to 1s once a new session delivers data
//
// A server retry hint raises the delay to at least the hinted value.
//
// # Jitter
//
// To prevent thundering herd when many subscriptions reconnect at once:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// # Success Criteria
//
// Opening the stream is not enough to reset the backoff. A session counts
// as established once it delivers its first frame; a server that accepts
// the request and then immediately drops it keeps backing off.
package connection
