// Package metrics defines the Prometheus metrics of the form relay service.
package metrics
