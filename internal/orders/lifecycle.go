package orders

import (
	"time"

	"github.com/jogardn/laser-orders/internal/payment"
	"github.com/jogardn/laser-orders/pkg/models"
)

// PaymentTransition computes the patch a gateway outcome implies for the
// order. Payment status and production status move independently: a success
// only ever advances new → accepted, a failure never touches production
// status. The second return value is false when nothing would change.
func PaymentTransition(order models.Order, outcome payment.Outcome, method models.PaymentMethod, transactionID string, now time.Time) (Patch, bool) {
	var patch Patch
	pp := PaymentPatch{}

	switch outcome {
	case payment.OutcomeSuccess:
		if order.Payment.Status != models.PaymentCompleted {
			status := models.PaymentCompleted
			paidAt := now
			pp.Status = &status
			pp.PaidAt = &paidAt
		}
		if order.Status == models.StatusNew {
			accepted := models.StatusAccepted
			patch.Status = &accepted
		}
	case payment.OutcomeFailure:
		if order.Payment.Status != models.PaymentFailed {
			status := models.PaymentFailed
			pp.Status = &status
		}
	default:
		return Patch{}, false
	}

	if !pp.Empty() {
		if transactionID != "" && transactionID != order.Payment.TransactionID {
			pp.TransactionID = &transactionID
		}
		if method != "" && method != order.Payment.Method {
			pp.Method = &method
		}
		patch.Payment = &pp
	}

	return patch, !patch.Empty()
}

// stampPaidAt fills paidAt when an admin marks an unpaid order as paid
// without giving a time.
func stampPaidAt(patch *Patch, current models.Order, now time.Time) {
	if patch.Payment == nil || patch.Payment.Status == nil || patch.Payment.PaidAt != nil {
		return
	}
	if *patch.Payment.Status == models.PaymentCompleted && current.Payment.Status != models.PaymentCompleted {
		paidAt := now
		patch.Payment.PaidAt = &paidAt
	}
}
