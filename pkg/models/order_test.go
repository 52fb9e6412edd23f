package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderJSONCarriesOnlyTheMatchingPayload(t *testing.T) {
	body := `{
		"customer": {"name": "Olena", "email": "olena@example.com", "phone": "+380501112233"},
		"service": "cutting",
		"cutting": {"material": "plywood3", "length": 12.5, "detailCount": 4},
		"engraving": {"material": "wood", "area": 100, "complexity": 10},
		"pricing": {"totalPrice": 250}
	}`

	var order Order
	require.NoError(t, json.Unmarshal([]byte(body), &order))

	cutting, ok := order.Details.(CuttingDetails)
	require.True(t, ok, "expected cutting details, got %T", order.Details)
	assert.Equal(t, ServiceCutting, order.Service())
	assert.Equal(t, "plywood3", cutting.Material)
	assert.True(t, decimal.RequireFromString("12.5").Equal(cutting.Length))

	out, err := json.Marshal(order)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &raw))
	assert.Contains(t, raw, "cutting")
	assert.NotContains(t, raw, "engraving")
	assert.JSONEq(t, `250`, string(mustField(t, raw["pricing"], "totalPrice")))
}

func TestOrderJSONRejectsUnknownService(t *testing.T) {
	var order Order
	err := json.Unmarshal([]byte(`{"service": "welding"}`), &order)
	assert.Error(t, err)
}

func TestOrderJSONDesignWithoutPayload(t *testing.T) {
	var order Order
	require.NoError(t, json.Unmarshal([]byte(`{"service": "design"}`), &order))
	assert.Equal(t, ServiceDesign, order.Service())
}

func TestProductEffectivePrice(t *testing.T) {
	discount := decimal.NewFromInt(80)
	p := Product{ID: "p1", Name: "Keychain", Price: decimal.NewFromInt(100), DiscountPrice: &discount}
	assert.True(t, p.EffectivePrice().Equal(discount))

	higher := decimal.NewFromInt(120)
	p.DiscountPrice = &higher
	assert.True(t, p.EffectivePrice().Equal(decimal.NewFromInt(100)))

	item := p.Snapshot(3)
	assert.Equal(t, 3, item.Quantity)
	assert.Equal(t, "p1", item.ProductID)
}

func mustField(t *testing.T, obj json.RawMessage, key string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(obj, &m))
	return m[key]
}
