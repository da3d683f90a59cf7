package client

import (
	"fmt"
	"runtime/debug"

	"github.com/i3x-protocol/i3x-go/pkg/model"
)

// safeCall runs a consumer callback and turns a panic into an error
// reported through OnError.
func (c *Client) safeCall(name string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("callback panicked", "callback", name, "panic", p, "stack", string(debug.Stack()))
			c.reportError(fmt.Errorf("%w: %s: %v", ErrCallbackPanic, name, p))
		}
	}()
	fn()
}

// reportError passes err to OnError, or logs it when no callback is set.
// A panicking OnError is only logged.
func (c *Client) reportError(err error) {
	c.cbMu.RLock()
	fn := c.onError
	c.cbMu.RUnlock()

	if fn == nil {
		c.logger.Warn("unhandled error", "error", err)
		return
	}

	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("OnError callback panicked", "panic", p, "error", err)
		}
	}()
	fn(c, err)
}

// deliver routes one change of sub according to its delivery mode.
func (c *Client) deliver(sub *Subscription, change model.ValueChange) {
	c.cbMu.RLock()
	fn := c.onValueChange
	c.cbMu.RUnlock()

	switch sub.delivery {
	case DeliveryQueue:
		c.enqueue(sub, change)
		return
	case DeliveryAuto:
		if fn == nil {
			c.enqueue(sub, change)
			return
		}
	case DeliveryCallback:
		if fn == nil {
			c.logger.Debug("discarding change without callback", "subscription_id", sub.ID(), "element_id", change.ElementID)
			return
		}
	}
	c.safeCall("OnValueChange", func() { fn(c, sub, change) })
}

func (c *Client) enqueue(sub *Subscription, change model.ValueChange) {
	if n := sub.tracker.Enqueue(change); n > 0 {
		c.logger.Debug("queue full, dropped oldest update", "subscription_id", sub.ID(), "dropped", n)
		if c.config.Metrics != nil {
			c.config.Metrics.ObserveDropped(n)
		}
	}
}
