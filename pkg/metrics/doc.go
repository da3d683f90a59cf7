// Package metrics exports i3X client activity as Prometheus metrics.
package metrics
