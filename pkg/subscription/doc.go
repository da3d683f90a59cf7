// Package subscription tracks the client-side state of i3X subscriptions.
//
// A Tracker is the in-memory record of one server subscription: its ID and
// creation time, the elements registered on it, whether a stream session is
// attached, and value changes received but not yet handed to the consumer.
// All Tracker methods are safe for concurrent use; the stream reader and the
// consumer touch the same Tracker from different goroutines.
//
// # Registered Objects
//
// Registered objects mirror what the server acknowledged. Register stores
// (elementId, maxDepth) pairs: registering an ID again replaces its depth
// rather than adding a second entry. Unregister ignores unknown IDs.
//
// # Queued Updates
//
// Consumers that poll instead of using a callback read changes with Drain,
// which returns and clears everything queued so far in arrival order. An
// Enqueue that happens before Drain returns is in that batch or the next,
// never both.
//
// The queue is bounded. When MaxQueuedUpdates is reached the oldest change
// is dropped and counted in Dropped. A negative limit disables the bound,
// leaving memory growth to the caller.
//
// # Lifecycle
//
//	CREATED -> REGISTERED -> STREAMING <-> STOPPED -> DELETED
//
// Trackers do not survive a process restart. A restarted client adopts an
// existing server subscription by creating a new Tracker for its ID.
package subscription
