// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

package herdsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the sync service. All metrics are optional; a service
// without metrics attached skips instrumentation entirely.
type Metrics struct {
	// Runs counts completed drains by result ("ok" or "error").
	Runs *prometheus.CounterVec

	// Operations counts per-operation verdicts by status ("applied" or
	// "failed").
	Operations *prometheus.CounterVec

	// QueueDepth is the pending-operation count after the last drain.
	QueueDepth prometheus.Gauge
}

// NewMetrics registers the sync metrics with reg (use
// prometheus.DefaultRegisterer for the process-global registry).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "herdsync_sync_runs_total",
			Help: "Completed sync runs by result.",
		}, []string{"result"}),
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "herdsync_sync_operations_total",
			Help: "Per-operation sync verdicts by status.",
		}, []string{"status"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "herdsync_pending_operations",
			Help: "Pending operations remaining after the last sync run.",
		}),
	}
}
