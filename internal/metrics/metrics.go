package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Authorization
	AccessDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bufete_access_decisions_total",
		Help: "Authorization decisions by role, resource kind, action and outcome",
	}, []string{"role", "kind", "action", "outcome"})

	// Case lifecycle
	CaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bufete_case_transitions_total",
		Help: "Case state transitions by target state and outcome",
	}, []string{"to", "outcome"})

	CasesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bufete_cases_created_total",
		Help: "Cases created through assignment",
	})

	// Scheduling
	AppointmentsBooked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bufete_appointments_booked_total",
		Help: "Appointment booking attempts by outcome",
	}, []string{"outcome"})

	// Messaging
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bufete_messages_sent_total",
		Help: "Message send attempts by sender role and outcome",
	}, []string{"role", "outcome"})

	// Documents
	DocumentVersions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bufete_document_versions_total",
		Help: "Document version allocations by outcome",
	}, []string{"outcome"})

	DocumentVersionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bufete_document_version_retries_total",
		Help: "Version allocations retried after losing a concurrent insert",
	})

	// File storage
	StorageOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bufete_storage_operations_total",
		Help: "File storage operations by backend, op and outcome",
	}, []string{"backend", "op", "outcome"})

	StorageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bufete_storage_latency_seconds",
		Help:    "File storage operation latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "op"})
)

// Outcome maps an error to a low-cardinality label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
