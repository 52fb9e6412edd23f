package orders

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jogardn/laser-orders/pkg/models"
)

type Scope int

const (
	ScopeCustomer Scope = iota
	ScopeAdmin
)

// Patch holds the mutable subset of an order. Nil fields are left untouched.
type Patch struct {
	Status        *models.OrderStatus
	Notes         *string
	InternalNotes *string
	Payment       *PaymentPatch
	DeliveryDate  *time.Time
	Delivery      *models.Delivery
}

type PaymentPatch struct {
	Method        *models.PaymentMethod
	Status        *models.PaymentStatus
	TransactionID *string
	PaidAt        *time.Time
}

func (p PaymentPatch) Empty() bool {
	return p.Method == nil && p.Status == nil && p.TransactionID == nil && p.PaidAt == nil
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.Notes == nil && p.InternalNotes == nil &&
		(p.Payment == nil || p.Payment.Empty()) && p.DeliveryDate == nil && p.Delivery == nil
}

// Apply copies the patch onto the order and bumps UpdatedAt.
func (p Patch) Apply(o *models.Order, now time.Time) {
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.Notes != nil {
		o.Notes = *p.Notes
	}
	if p.InternalNotes != nil {
		o.InternalNotes = *p.InternalNotes
	}
	if p.Payment != nil {
		if p.Payment.Method != nil {
			o.Payment.Method = *p.Payment.Method
		}
		if p.Payment.Status != nil {
			o.Payment.Status = *p.Payment.Status
		}
		if p.Payment.TransactionID != nil {
			o.Payment.TransactionID = *p.Payment.TransactionID
		}
		if p.Payment.PaidAt != nil {
			paidAt := *p.Payment.PaidAt
			o.Payment.PaidAt = &paidAt
		}
	}
	if p.DeliveryDate != nil {
		date := *p.DeliveryDate
		o.DeliveryDate = &date
	}
	if p.Delivery != nil {
		delivery := *p.Delivery
		o.Delivery = &delivery
	}
	o.UpdatedAt = now
}

func (p Patch) validate() error {
	var problems []string
	if p.Status != nil && !p.Status.Valid() {
		problems = append(problems, fmt.Sprintf("status %q is not allowed", *p.Status))
	}
	if p.Payment != nil {
		if p.Payment.Status != nil && !p.Payment.Status.Valid() {
			problems = append(problems, fmt.Sprintf("payment status %q is not allowed", *p.Payment.Status))
		}
		if p.Payment.Method != nil && !p.Payment.Method.Valid() {
			problems = append(problems, fmt.Sprintf("payment method %q is not allowed", *p.Payment.Method))
		}
	}
	if len(problems) > 0 {
		return newValidationError(problems...)
	}
	return nil
}

var allowedFields = map[Scope]map[string]bool{
	ScopeCustomer: {"notes": true},
	ScopeAdmin: {
		"status":        true,
		"notes":         true,
		"internalNotes": true,
		"payment":       true,
		"deliveryDate":  true,
		"delivery":      true,
	},
}

// ParsePatch extracts the fields the scope may change from a JSON object.
// Unknown and disallowed fields are ignored; ErrNoFields is returned when
// nothing remains.
func ParsePatch(body []byte, scope Scope) (Patch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Patch{}, newValidationError("request body must be a JSON object")
	}

	allowed := allowedFields[scope]
	var patch Patch
	for key, value := range raw {
		if !allowed[key] {
			continue
		}
		if err := decodeField(&patch, key, value); err != nil {
			return Patch{}, newValidationError(fmt.Sprintf("%s: %v", key, err))
		}
	}

	if patch.Empty() {
		return Patch{}, ErrNoFields
	}
	if err := patch.validate(); err != nil {
		return Patch{}, err
	}
	return patch, nil
}

func decodeField(p *Patch, key string, value json.RawMessage) error {
	switch key {
	case "status":
		var status models.OrderStatus
		if err := json.Unmarshal(value, &status); err != nil {
			return err
		}
		p.Status = &status
	case "notes":
		var notes string
		if err := json.Unmarshal(value, &notes); err != nil {
			return err
		}
		p.Notes = &notes
	case "internalNotes":
		var notes string
		if err := json.Unmarshal(value, &notes); err != nil {
			return err
		}
		p.InternalNotes = &notes
	case "payment":
		var payment struct {
			Method        *models.PaymentMethod `json:"method"`
			Status        *models.PaymentStatus `json:"status"`
			TransactionID *string               `json:"transactionId"`
			PaidAt        *time.Time            `json:"paidAt"`
		}
		if err := json.Unmarshal(value, &payment); err != nil {
			return err
		}
		pp := PaymentPatch{Method: payment.Method, Status: payment.Status, TransactionID: payment.TransactionID, PaidAt: payment.PaidAt}
		if !pp.Empty() {
			p.Payment = &pp
		}
	case "deliveryDate":
		var text string
		if err := json.Unmarshal(value, &text); err != nil {
			return err
		}
		date, err := parseDate(text)
		if err != nil {
			return err
		}
		p.DeliveryDate = &date
	case "delivery":
		var delivery models.Delivery
		if err := json.Unmarshal(value, &delivery); err != nil {
			return err
		}
		p.Delivery = &delivery
	}
	return nil
}

func parseDate(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", text)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD date")
	}
	return t, nil
}
