// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics defines the Prometheus instruments of the designer client.
//
// A Metrics value is created once per process and handed to the remote
// access layer, the push channel and the synchronization controller. Tests
// register against a private registry so that instruments never collide.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "bad"
	subsystem = "client"
)

// Metrics holds every client instrument.
type Metrics struct {
	// Requests counts REST requests by method, route template and outcome
	// ("2xx", "4xx", "5xx" or "transport").
	Requests *prometheus.CounterVec

	// RequestDuration observes REST round trips by method and route template.
	RequestDuration *prometheus.HistogramVec

	// PushMessages counts inbound push envelopes by category
	// ("welcome", "status_change", "plugin", "invalid").
	PushMessages *prometheus.CounterVec

	// PushConnects counts established push connections.
	PushConnects prometheus.Counter

	// PushConnected is 1 while the push channel is connected.
	PushConnected prometheus.Gauge

	// StaleResponses counts responses discarded by sequence fencing, by
	// resource ("pipeline", "source_preview").
	StaleResponses *prometheus.CounterVec

	// Polls counts poll re-fetches by pipeline kind.
	Polls *prometheus.CounterVec
}

// New registers the client instruments with reg.
//
// # Inputs
//
//   - reg: Target registry. nil registers nowhere, which keeps the
//     instruments usable without exposing them.
//
// # Outputs
//
//   - *Metrics: Ready to use instruments.
//
// # Example
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg)
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "REST requests by method, route and outcome",
		}, []string{"method", "route", "outcome"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "REST round trip latency",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),

		PushMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "push_messages_total",
			Help:      "Inbound push messages by category",
		}, []string{"category"}),

		PushConnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "push_connects_total",
			Help:      "Established push channel connections",
		}),

		PushConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "push_connected",
			Help:      "1 while the push channel is connected",
		}),

		StaleResponses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stale_responses_total",
			Help:      "Responses discarded because a newer one was already applied",
		}, []string{"resource"}),

		Polls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "polls_total",
			Help:      "Poll re-fetches of running pipelines by kind",
		}, []string{"kind"}),
	}
}

// Nop returns instruments that are not registered anywhere.
func Nop() *Metrics {
	return New(nil)
}

// Outcome maps an HTTP status to the outcome label. Zero means the request
// never got a response.
func Outcome(status int) string {
	switch {
	case status == 0:
		return "transport"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
