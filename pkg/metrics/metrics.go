package metrics

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/i3x-protocol/i3x-go/pkg/stream"
	"github.com/i3x-protocol/i3x-go/pkg/transport"
)

const metricsNamespace = "i3x_client"

// Collector is a prometheus.Collector for i3X client activity. It
// implements transport.RequestObserver and stream.Observer, so it can be
// passed as client.Config.Metrics.
type Collector struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	frames          *prometheus.CounterVec
	changes         prometheus.Counter
	reconnects      prometheus.Counter
	streamErrors    *prometheus.CounterVec
	dropped         prometheus.Counter
}

var (
	_ prometheus.Collector      = (*Collector)(nil)
	_ transport.RequestObserver = (*Collector)(nil)
	_ stream.Observer           = (*Collector)(nil)
)

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Request/response calls by method, endpoint and outcome.",
			}, []string{"method", "endpoint", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of request/response calls.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			}, []string{"method", "endpoint"},
		),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "stream_frames_total",
				Help:      "Stream frames received by kind.",
			}, []string{"kind"},
		),
		changes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "value_changes_total",
				Help:      "Value changes decoded from stream frames.",
			},
		),
		reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "stream_reconnects_total",
				Help:      "Stream reconnect attempts.",
			},
		),
		streamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "stream_errors_total",
				Help:      "Stream faults, split into fatal and recoverable.",
			}, []string{"fatal"},
		),
		dropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "queue_dropped_total",
				Help:      "Queued value changes evicted by the queue cap.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.requests.Describe(ch)
	c.requestDuration.Describe(ch)
	c.frames.Describe(ch)
	c.changes.Describe(ch)
	c.reconnects.Describe(ch)
	c.streamErrors.Describe(ch)
	c.dropped.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.requests.Collect(ch)
	c.requestDuration.Collect(ch)
	c.frames.Collect(ch)
	c.changes.Collect(ch)
	c.reconnects.Collect(ch)
	c.streamErrors.Collect(ch)
	c.dropped.Collect(ch)
}

// ObserveRequest records one call.
func (c *Collector) ObserveRequest(method, path string, status int, d time.Duration, err error) {
	endpoint := Endpoint(path)
	c.requests.WithLabelValues(method, endpoint, outcome(status, err)).Inc()
	if status != 0 {
		c.requestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
	}
}

// ObserveFrame records one stream frame.
func (c *Collector) ObserveFrame(kind stream.FrameKind, changes int) {
	c.frames.WithLabelValues(strings.ToLower(kind.String())).Inc()
	if changes > 0 {
		c.changes.Add(float64(changes))
	}
}

// ObserveReconnect records one reconnect attempt.
func (c *Collector) ObserveReconnect() {
	c.reconnects.Inc()
}

// ObserveStreamError records one stream fault.
func (c *Collector) ObserveStreamError(fatal bool) {
	c.streamErrors.WithLabelValues(strconv.FormatBool(fatal)).Inc()
}

// ObserveDropped records evicted queue entries.
func (c *Collector) ObserveDropped(n int) {
	c.dropped.Add(float64(n))
}

// Endpoint reduces a request path to a low-cardinality label: element
// and subscription ids are replaced by placeholders.
func Endpoint(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) >= 2 {
		switch parts[0] {
		case "subscriptions":
			parts[1] = "{id}"
		case "objects":
			if len(parts) == 3 && (parts[2] == "value" || parts[2] == "history") {
				parts[1] = "{elementId}"
			}
		}
	}
	return "/" + strings.Join(parts, "/")
}

// outcome is the code label: the HTTP status, or the error kind when no
// response arrived.
func outcome(status int, err error) string {
	if status != 0 {
		return strconv.Itoa(status)
	}
	if err == nil {
		return "ok"
	}
	var terr *transport.Error
	if errors.As(err, &terr) {
		return strings.ToLower(terr.Kind.String())
	}
	return "error"
}
