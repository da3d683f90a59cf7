package client

import (
	"time"

	"github.com/i3x-protocol/i3x-go/pkg/subscription"
)

// Subscription is a read-only view of one subscription. The state it
// reports is owned by the client and updated as calls and stream events
// happen.
type Subscription struct {
	client   *Client
	tracker  *subscription.Tracker
	delivery Delivery
}

// Client returns the client that owns the subscription.
func (s *Subscription) Client() *Client {
	return s.client
}

// ID returns the server-assigned subscription id.
func (s *Subscription) ID() string {
	return s.tracker.ID()
}

// Created returns when the subscription was created, or first seen for
// adopted subscriptions.
func (s *Subscription) Created() time.Time {
	return s.tracker.Created()
}

// Delivery returns the delivery mode.
func (s *Subscription) Delivery() Delivery {
	return s.delivery
}

// IsStreaming reports whether a stream reader is attached. It turns false
// when the stream stops for any reason, including fatal errors.
func (s *Subscription) IsStreaming() bool {
	return s.tracker.IsStreaming()
}

// State returns the lifecycle state.
func (s *Subscription) State() subscription.State {
	return s.tracker.State()
}

// Objects returns the registered elements acknowledged by the server.
func (s *Subscription) Objects() []subscription.Object {
	return s.tracker.Objects()
}

// QueuedUpdates returns the number of changes waiting for Sync.
func (s *Subscription) QueuedUpdates() int {
	return s.tracker.QueuedUpdates()
}

// Dropped returns how many queued changes were evicted by the queue cap.
func (s *Subscription) Dropped() uint64 {
	return s.tracker.Dropped()
}
