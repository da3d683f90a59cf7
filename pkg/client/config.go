package client

import (
	"log/slog"
	"time"

	"github.com/i3x-protocol/i3x-go/pkg/log"
	"github.com/i3x-protocol/i3x-go/pkg/stream"
	"github.com/i3x-protocol/i3x-go/pkg/subscription"
	"github.com/i3x-protocol/i3x-go/pkg/transport"
)

// Delivery selects how a subscription hands value changes to the consumer.
type Delivery uint8

const (
	// DeliveryAuto calls OnValueChange when a callback is set and queues
	// the change for Sync otherwise. The choice is made per change.
	DeliveryAuto Delivery = iota

	// DeliveryCallback always calls OnValueChange. Changes arriving while
	// no callback is set are discarded.
	DeliveryCallback

	// DeliveryQueue queues every change for Sync.
	DeliveryQueue
)

// String returns the delivery mode name.
func (d Delivery) String() string {
	switch d {
	case DeliveryAuto:
		return "auto"
	case DeliveryCallback:
		return "callback"
	case DeliveryQueue:
		return "queue"
	default:
		return "unknown"
	}
}

// ParseDelivery parses a delivery mode name as returned by String.
func ParseDelivery(s string) (Delivery, bool) {
	switch s {
	case "auto", "":
		return DeliveryAuto, true
	case "callback":
		return DeliveryCallback, true
	case "queue":
		return DeliveryQueue, true
	}
	return DeliveryAuto, false
}

// Metrics receives call and stream activity. *metrics.Collector
// implements it.
type Metrics interface {
	transport.RequestObserver
	stream.Observer
}

// Config configures a Client.
type Config struct {
	// Auth enables API key authentication.
	Auth *transport.Credentials `yaml:"-"`

	// Timeout bounds each request/response call (default: 30s).
	Timeout time.Duration `yaml:"timeout"`

	// TLS settings for https servers.
	TLS transport.TLSConfig `yaml:"tls"`

	// Stream configures the per-subscription stream readers.
	Stream stream.Config `yaml:"stream"`

	// Queue configures the per-subscription update queues.
	Queue subscription.Config `yaml:"queue"`

	// Logger for operational logging. Nil disables logging.
	Logger *slog.Logger `yaml:"-"`

	// ProtocolLogger captures requests, frames and state changes.
	ProtocolLogger log.Logger `yaml:"-"`

	// Metrics receives call and stream activity.
	Metrics Metrics `yaml:"-"`
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: transport.DefaultTimeout,
		Stream:  stream.DefaultConfig(),
		Queue:   subscription.DefaultConfig(),
	}
}

// SubscribeOptions configures Subscribe.
type SubscribeOptions struct {
	// MaxDepth is the depth of child elements included in changes.
	// 0 means the registered elements only.
	MaxDepth int

	// Delivery selects callback or queued delivery.
	Delivery Delivery
}
