// Package metrics exposes prometheus counters for the settlement pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEvents counts delivered notifications by event type and what
	// the reconciler did with them.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Payment lifecycle notifications received, by type and outcome.",
	}, []string{"type", "outcome"})

	// Transfers counts per-destination settlement outcomes.
	Transfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_transfers_total",
		Help: "Vendor transfer attempts, by outcome (created, skipped, failed).",
	}, []string{"outcome"})
)
