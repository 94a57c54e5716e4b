package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the ledger's operational surface. Registered on the default
// registerer; the router exposes them on /metrics.
var (
	TransfersExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transfers_executed_total",
		Help: "Withdrawal operations applied, by destination kind.",
	}, []string{"destination"})

	PlansRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawal_plans_rejected_total",
		Help: "Withdrawal plans rejected before or during apply, by reason.",
	}, []string{"reason"})

	ReservationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_created_total",
		Help: "Sale reservations created.",
	})

	ReconciliationDrift = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciliation_drift_total",
		Help: "Silos whose cached occupancy disagreed with the batch sum.",
	})
)
