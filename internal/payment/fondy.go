package payment

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/shopspring/decimal"
)

const fondyCheckoutURL = "https://pay.fondy.eu/merchant/checkout"

type Fondy struct {
	merchantID  string
	callbackURL string
}

func NewFondy(merchantID, publicURL string) *Fondy {
	return &Fondy{
		merchantID:  merchantID,
		callbackURL: strings.TrimRight(publicURL, "/") + "/api/payments/fondy/callback",
	}
}

func (f *Fondy) Name() string                 { return "fondy" }
func (f *Fondy) Method() models.PaymentMethod { return models.PaymentFondy }

func (f *Fondy) Checkout(order models.Order) (Checkout, error) {
	amount, currency, err := checkoutAmount(order)
	if err != nil {
		return Checkout{}, err
	}

	// Fondy expects the amount in kopecks.
	params := url.Values{}
	params.Set("merchant_id", f.merchantID)
	params.Set("order_id", order.OrderNumber)
	params.Set("amount", amount.Mul(decimal.NewFromInt(100)).StringFixed(0))
	params.Set("currency", currency)
	params.Set("order_desc", "Order "+order.OrderNumber)
	params.Set("server_callback_url", f.callbackURL)

	return Checkout{
		Gateway:    f.Name(),
		OrderID:    order.ID,
		Amount:     amount,
		Currency:   currency,
		PaymentURL: fondyCheckoutURL + "?" + params.Encode(),
	}, nil
}

func (f *Fondy) ParseCallback(contentType string, body []byte) (Callback, error) {
	var orderID, status, paymentID string

	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return Callback{}, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
		}
		orderID, status, paymentID = form.Get("order_id"), form.Get("order_status"), form.Get("payment_id")
	} else {
		var payload struct {
			OrderID     string      `json:"order_id"`
			OrderStatus string      `json:"order_status"`
			PaymentID   json.Number `json:"payment_id"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return Callback{}, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
		}
		orderID, status, paymentID = payload.OrderID, payload.OrderStatus, payload.PaymentID.String()
	}

	var outcome Outcome
	switch strings.ToLower(status) {
	case "approved":
		outcome = OutcomeSuccess
	case "declined", "expired", "reversed":
		outcome = OutcomeFailure
	default:
		outcome = OutcomeUnknown
	}

	return newCallback(f.Name(), orderID, paymentID, status, outcome)
}
