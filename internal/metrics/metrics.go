package metrics

import (
	"errors"

	"github.com/kotche/notes/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK = "ok"
)

var (
	AccessChecksCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_checks_total",
			Help: "Number of ownership and access checks by outcome",
		},
		[]string{"check", "outcome"},
	)

	CollaborationChangesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collaboration_changes_total",
			Help: "Number of collaboration grant changes by outcome",
		},
		[]string{"operation", "outcome"},
	)

	ExportsDispatchedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exports_dispatched_total",
			Help: "Number of export requests handed to the export channel",
		},
		[]string{"outcome"},
	)

	ExportsDeliveredCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exports_delivered_total",
			Help: "Number of export jobs processed by the worker",
		},
		[]string{"outcome"},
	)
)

func Init() {
	prometheus.MustRegister(AccessChecksCounter)
	prometheus.MustRegister(CollaborationChangesCounter)
	prometheus.MustRegister(ExportsDispatchedCounter)
	prometheus.MustRegister(ExportsDeliveredCounter)
}

// Outcome turns an error into a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, model.ErrNoteNotFound):
		return "not_found"
	case errors.Is(err, model.ErrCollaborationNotFound):
		return "grant_not_found"
	case errors.Is(err, model.ErrForbidden):
		return "forbidden"
	case errors.Is(err, model.ErrCollaborationExists):
		return "already_exists"
	case errors.Is(err, model.ErrInvalidGrantee):
		return "invalid_grantee"
	case errors.Is(err, model.ErrChannelUnavailable):
		return "channel_unavailable"
	default:
		return "error"
	}
}
