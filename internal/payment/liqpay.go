package payment

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/jogardn/laser-orders/pkg/models"
)

const liqpayCheckoutURL = "https://www.liqpay.ua/api/3/checkout"

type LiqPay struct {
	publicKey   string
	privateKey  string
	callbackURL string
}

func NewLiqPay(publicKey, privateKey, publicURL string) *LiqPay {
	return &LiqPay{
		publicKey:   publicKey,
		privateKey:  privateKey,
		callbackURL: strings.TrimRight(publicURL, "/") + "/api/payments/liqpay/callback",
	}
}

func (l *LiqPay) Name() string                 { return "liqpay" }
func (l *LiqPay) Method() models.PaymentMethod { return models.PaymentLiqPay }

func (l *LiqPay) Checkout(order models.Order) (Checkout, error) {
	amount, currency, err := checkoutAmount(order)
	if err != nil {
		return Checkout{}, err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"version":     3,
		"public_key":  l.publicKey,
		"action":      "pay",
		"amount":      amount.StringFixed(2),
		"currency":    currency,
		"description": "Order " + order.OrderNumber,
		"order_id":    order.OrderNumber,
		"server_url":  l.callbackURL,
	})
	if err != nil {
		return Checkout{}, fmt.Errorf("failed to encode liqpay payload: %w", err)
	}
	data := base64.StdEncoding.EncodeToString(payload)

	params := url.Values{}
	params.Set("data", data)
	params.Set("signature", l.sign(data))

	return Checkout{
		Gateway:    l.Name(),
		OrderID:    order.ID,
		Amount:     amount,
		Currency:   currency,
		PaymentURL: liqpayCheckoutURL + "?" + params.Encode(),
	}, nil
}

// ParseCallback accepts either the signed form post (data + signature) or a
// bare JSON body, which is what the sandbox tooling sends.
func (l *LiqPay) ParseCallback(contentType string, body []byte) (Callback, error) {
	raw := body
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return Callback{}, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
		}
		data := form.Get("data")
		if l.privateKey != "" {
			expected := l.sign(data)
			if subtle.ConstantTimeCompare([]byte(expected), []byte(form.Get("signature"))) != 1 {
				return Callback{}, ErrBadSignature
			}
		}
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return Callback{}, fmt.Errorf("%w: data is not base64", ErrInvalidCallback)
		}
		raw = decoded
	} else if l.privateKey != "" {
		return Callback{}, ErrBadSignature
	}

	var payload struct {
		OrderID       string      `json:"order_id"`
		Status        string      `json:"status"`
		TransactionID json.Number `json:"transaction_id"`
		PaymentID     json.Number `json:"payment_id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Callback{}, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}

	var outcome Outcome
	switch strings.ToLower(payload.Status) {
	case "success", "sandbox":
		outcome = OutcomeSuccess
	case "failure", "error", "reversed":
		outcome = OutcomeFailure
	default:
		outcome = OutcomeUnknown
	}

	txID := payload.TransactionID.String()
	if txID == "" {
		txID = payload.PaymentID.String()
	}
	return newCallback(l.Name(), payload.OrderID, txID, payload.Status, outcome)
}

func (l *LiqPay) sign(data string) string {
	sum := sha1.Sum([]byte(l.privateKey + data + l.privateKey))
	return base64.StdEncoding.EncodeToString(sum[:])
}
