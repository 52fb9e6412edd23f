package bot

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/shopspring/decimal"
)

// cartPrefix marks a /start payload that carries a website cart.
const cartPrefix = "order_"

const maxCartItems = 50

type cartPayload struct {
	Items []struct {
		ID        string          `json:"id"`
		ProductID string          `json:"productId"`
		Name      string          `json:"name"`
		Price     decimal.Decimal `json:"price"`
		Quantity  int             `json:"quantity"`
	} `json:"items"`
}

// decodeCart reads base64 JSON in either the standard or the URL-safe
// alphabet, padded or not. Prices are only shown to the user; the order
// service reprices lines from its catalogue.
func decodeCart(encoded string) ([]models.ShopItem, error) {
	encoded = strings.TrimRight(strings.TrimSpace(encoded), "=")
	if encoded == "" {
		return nil, errors.New("empty cart payload")
	}

	var raw []byte
	var err error
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.RawStdEncoding} {
		if raw, err = enc.DecodeString(encoded); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}

	var cart cartPayload
	if err := json.Unmarshal(raw, &cart); err != nil {
		return nil, fmt.Errorf("failed to parse cart: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil, errors.New("cart has no items")
	}
	if len(cart.Items) > maxCartItems {
		return nil, fmt.Errorf("cart has %d items, at most %d allowed", len(cart.Items), maxCartItems)
	}

	items := make([]models.ShopItem, 0, len(cart.Items))
	for _, it := range cart.Items {
		id := it.ProductID
		if id == "" {
			id = it.ID
		}
		if id == "" || it.Quantity <= 0 || it.Price.IsNegative() {
			return nil, fmt.Errorf("invalid cart line %q", it.Name)
		}
		name := it.Name
		if name == "" {
			name = id
		}
		items = append(items, models.ShopItem{ProductID: id, Name: name, Price: it.Price, Quantity: it.Quantity})
	}
	return items, nil
}
