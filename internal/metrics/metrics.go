package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GenerationsCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veocreator_generations_committed_total",
			Help: "Generations charged to a user",
		},
		[]string{"tier"},
	)

	GenerationsDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veocreator_generations_denied_total",
			Help: "Generation requests refused by the entitlement check",
		},
		[]string{"tier", "reason"},
	)

	GuestGenerations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "veocreator_guest_generations_total",
			Help: "Generations dispatched without an authenticated user",
		},
	)

	DispatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veocreator_dispatch_failures_total",
			Help: "Failed upstream dispatches by kind",
		},
		[]string{"tier", "kind"},
	)

	CommitFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "veocreator_commit_failures_total",
			Help: "Ledger commits that failed after a successful dispatch",
		},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veocreator_dispatch_duration_seconds",
			Help:    "Upstream generation latency in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"tier"},
	)

	PendingReservations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "veocreator_pending_reservations",
			Help: "Admitted generations not yet committed or cancelled",
		},
	)

	StripeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veocreator_stripe_events_total",
			Help: "Stripe webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)
)
