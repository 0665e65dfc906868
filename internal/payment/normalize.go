// Package payment reconciles gateway callbacks and client confirmations with the order ledger.
package payment

import (
	"strings"

	"ms-pettag/internal/models"
)

// outcomes is the only table of external payment strings in the service.
var outcomes = map[string]models.PaymentOutcome{
	"1":         models.OutcomeApproved,
	"aceptada":  models.OutcomeApproved,
	"aprobada":  models.OutcomeApproved,
	"approved":  models.OutcomeApproved,
	"accepted":  models.OutcomeApproved,
	"true":      models.OutcomeApproved,
	"succeeded": models.OutcomeApproved,
	"success":   models.OutcomeApproved,
	"completed": models.OutcomeApproved,

	"2":         models.OutcomeRejected,
	"rechazada": models.OutcomeRejected,
	"rejected":  models.OutcomeRejected,
	"declined":  models.OutcomeRejected,
	"false":     models.OutcomeRejected,

	"3":               models.OutcomePending,
	"pendiente":       models.OutcomePending,
	"pending":         models.OutcomePending,
	"processing":      models.OutcomePending,
	"requires_action": models.OutcomePending,

	"4":                       models.OutcomeFailed,
	"fallida":                 models.OutcomeFailed,
	"failed":                  models.OutcomeFailed,
	"canceled":                models.OutcomeFailed,
	"cancelled":               models.OutcomeFailed,
	"error":                   models.OutcomeFailed,
	"requires_payment_method": models.OutcomeFailed,
}

// NormalizeStatus folds gateway state fields (numeric code, label, response
// text) into one outcome. Any approved field wins; otherwise the first
// recognised field decides. Nothing recognised means pending.
func NormalizeStatus(fields ...string) models.PaymentOutcome {
	first, found := models.OutcomePending, false
	for _, f := range fields {
		o, ok := outcomes[strings.ToLower(strings.TrimSpace(f))]
		if !ok {
			continue
		}
		if o == models.OutcomeApproved {
			return o
		}
		if !found {
			first, found = o, true
		}
	}
	return first
}
