// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics records relay activity as Prometheus metrics.
//
// Both binaries construct one Recorder against their own registry and
// expose it on the optional metrics listener. All Recorder methods are
// safe to call on a nil *Recorder, so components take a Recorder field
// and tests simply leave it unset.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Modes label whether a request used the unary or streaming path.
const (
	ModeUnary  = "unary"
	ModeStream = "stream"
)

// Outcomes label how a relay or dispatch ended.
const (
	OutcomeOK        = "ok"
	OutcomeTimeout   = "timeout"
	OutcomeStalled   = "stalled"
	OutcomeError     = "error"
	OutcomeForbidden = "forbidden"
	OutcomeTruncated = "truncated"
)

// Kinds label malformed artifacts.
const (
	KindRequest  = "request"
	KindResponse = "response"
	KindFragment = "fragment"
)

// Recorder holds the relay's collectors.
type Recorder struct {
	registry *prometheus.Registry

	submitted       *prometheus.CounterVec
	relayed         *prometheus.CounterVec
	relayDuration   *prometheus.HistogramVec
	fragmentsRelay  prometheus.Counter
	dispatched      *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	fragmentsWrite  prometheus.Counter
	reclaimed       prometheus.Counter
	malformed       *prometheus.CounterVec
	ledgerSize      prometheus.Gauge
}

// New creates a Recorder with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		submitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsrelay_requests_submitted_total",
				Help: "Request envelopes written by the submitter",
			},
			[]string{"mode"},
		),
		relayed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsrelay_relays_total",
				Help: "Submitter relays by outcome",
			},
			[]string{"mode", "outcome"},
		),
		relayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fsrelay_relay_duration_seconds",
				Help:    "Time from request write to response or stream end",
				Buckets: []float64{0.1, 0.3, 1, 3, 10, 30, 60, 120, 300},
			},
			[]string{"mode"},
		),
		fragmentsRelay: factory.NewCounter(prometheus.CounterOpts{
			Name: "fsrelay_fragments_relayed_total",
			Help: "Stream fragments consumed by the submitter",
		}),
		dispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsrelay_requests_dispatched_total",
				Help: "Requests processed by the dispatcher by outcome",
			},
			[]string{"mode", "outcome"},
		),
		upstreamLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fsrelay_upstream_duration_seconds",
				Help:    "Upstream call duration, including the full stream for streaming calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		fragmentsWrite: factory.NewCounter(prometheus.CounterOpts{
			Name: "fsrelay_fragments_written_total",
			Help: "Stream fragments written by the dispatcher",
		}),
		reclaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "fsrelay_reclaimed_files_total",
			Help: "Stale queue files deleted by the reclaimer",
		}),
		malformed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsrelay_malformed_artifacts_total",
				Help: "Queue artifacts that failed to parse",
			},
			[]string{"kind"},
		),
		ledgerSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fsrelay_ledger_claimed",
			Help: "Request files claimed by this dispatcher process",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Submitted counts a request envelope written by the submitter.
func (r *Recorder) Submitted(mode string) {
	if r == nil {
		return
	}
	r.submitted.WithLabelValues(mode).Inc()
}

// RelayFinished records how a submitter relay ended.
func (r *Recorder) RelayFinished(mode, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.relayed.WithLabelValues(mode, outcome).Inc()
	r.relayDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// FragmentRelayed counts a fragment handed to the inbound caller.
func (r *Recorder) FragmentRelayed() {
	if r == nil {
		return
	}
	r.fragmentsRelay.Inc()
}

// Dispatched records how the dispatcher finished a request.
func (r *Recorder) Dispatched(mode, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.dispatched.WithLabelValues(mode, outcome).Inc()
	r.upstreamLatency.WithLabelValues(mode).Observe(duration.Seconds())
}

// FragmentWritten counts a fragment file written by the dispatcher.
func (r *Recorder) FragmentWritten() {
	if r == nil {
		return
	}
	r.fragmentsWrite.Inc()
}

// Reclaimed adds n deleted stale files.
func (r *Recorder) Reclaimed(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.reclaimed.Add(float64(n))
}

// Malformed counts an artifact of the given kind that failed to parse.
func (r *Recorder) Malformed(kind string) {
	if r == nil {
		return
	}
	r.malformed.WithLabelValues(kind).Inc()
}

// LedgerSize publishes the number of claimed request files.
func (r *Recorder) LedgerSize(n int) {
	if r == nil {
		return
	}
	r.ledgerSize.Set(float64(n))
}
