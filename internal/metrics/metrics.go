// Package metrics holds the Prometheus collectors of the ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeCommitted = "committed"
	OutcomeReplayed  = "replayed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

var (
	// HTTPRequests counts served requests.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// HTTPLatency observes request latency.
	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})

	// Operations counts ledger operations by kind and outcome.
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_total",
		Help: "Ledger operations by kind and outcome",
	}, []string{"kind", "outcome"})

	// VersionConflicts counts lost compare-and-set races.
	VersionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_version_conflicts_total",
		Help: "Compare-and-set attempts rejected because the account version moved",
	})

	// Compensations counts compensating writes by result.
	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_compensations_total",
		Help: "Compensating balance writes",
	}, []string{"result"})

	// NotificationsDropped counts notifications lost to full buffers or absent subscribers.
	NotificationsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_notifications_dropped_total",
		Help: "Notifications not delivered to a subscriber",
	}, []string{"reason"})

	// NotificationsDelivered counts notifications handed to subscribers.
	NotificationsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_notifications_delivered_total",
		Help: "Notifications delivered to a subscriber",
	})

	// Subscribers tracks open notification subscriptions.
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_notification_subscribers",
		Help: "Open notification subscriptions",
	})
)
