package payment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownGateway  = errors.New("unknown payment gateway")
	ErrInvalidCallback = errors.New("invalid payment callback")
	ErrBadSignature    = errors.New("payment callback signature mismatch")
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// OutcomeUnknown covers intermediate gateway states such as
	// "processing"; they do not move the order.
	OutcomeUnknown Outcome = "unknown"
)

// Callback is a gateway notification normalised to what the order
// lifecycle needs.
type Callback struct {
	Gateway        string  `json:"gateway"`
	OrderRef       string  `json:"orderRef"`
	TransactionID  string  `json:"transactionId,omitempty"`
	Outcome        Outcome `json:"outcome"`
	RawStatus      string  `json:"rawStatus"`
	IdempotencyKey string  `json:"idempotencyKey"`
}

func newCallback(gateway, orderRef, transactionID, rawStatus string, outcome Outcome) (Callback, error) {
	orderRef = strings.TrimSpace(orderRef)
	if orderRef == "" {
		return Callback{}, fmt.Errorf("%w: order reference is missing", ErrInvalidCallback)
	}
	ref := transactionID
	if ref == "" {
		ref = orderRef
	}
	return Callback{
		Gateway:        gateway,
		OrderRef:       orderRef,
		TransactionID:  transactionID,
		Outcome:        outcome,
		RawStatus:      rawStatus,
		IdempotencyKey: fmt.Sprintf("%s:%s:%s", gateway, ref, outcome),
	}, nil
}

type Checkout struct {
	Gateway    string          `json:"gateway"`
	OrderID    string          `json:"orderId"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	PaymentURL string          `json:"paymentUrl"`
}

// Gateway is a payment provider integration. Checkout only builds the
// redirect; the provider reports the result later through ParseCallback.
type Gateway interface {
	Name() string
	Method() models.PaymentMethod
	Checkout(order models.Order) (Checkout, error)
	ParseCallback(contentType string, body []byte) (Callback, error)
}

type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

func (r *Registry) Get(name string) (Gateway, error) {
	g, ok := r.gateways[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, name)
	}
	return g, nil
}

func checkoutAmount(order models.Order) (decimal.Decimal, string, error) {
	if !order.Pricing.TotalPrice.IsPositive() {
		return decimal.Zero, "", fmt.Errorf("order %s has no payable amount", order.OrderNumber)
	}
	if order.Payment.Status == models.PaymentCompleted {
		return decimal.Zero, "", fmt.Errorf("order %s is already paid", order.OrderNumber)
	}
	currency := order.Pricing.Currency
	if currency == "" {
		currency = "UAH"
	}
	return order.Pricing.TotalPrice.Round(2), currency, nil
}
