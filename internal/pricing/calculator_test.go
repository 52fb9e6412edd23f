package pricing

import (
	"errors"
	"testing"

	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testRules(mode Mode) Rules {
	return Rules{
		Currency:              "UAH",
		HourlyCost:            d("0.83"),
		MinimumOrder:          d("150"),
		VolumeDiscountPercent: d("15"),
		Engraving: EngravingRules{
			Mode:             mode,
			DiscountArea:     d("100000"),
			DiscountQuantity: 1000,
			Materials: map[string]EngravingMaterial{
				"wood": {Name: "Wood", TimePerUnit: d("0.0002"), MarginPerUnit: d("0.0005")},
			},
			Tiers: map[string]Tier{
				"logo_small": {Name: "Logo", Area: d("900"), Complexity: d("40"), UnitPrice: d("25")},
			},
		},
		Cutting: CuttingRules{
			DiscountLength: d("500"),
			PerDetailCost:  d("0.50"),
			Materials: map[string]CuttingMaterial{
				"plywood3": {Name: "Plywood 3mm", TimePerMeter: d("8.33"), MarginPerMeter: d("8.00")},
			},
		},
		Design: DesignRules{BasePrice: d("500")},
	}
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got.String())
}

func TestEngravingAreaSmallJobIsFloored(t *testing.T) {
	calc := NewCalculator(testRules(ModeArea))

	q, err := calc.Quote(Request{
		Service:    models.ServiceEngraving,
		Material:   "wood",
		Area:       d("50000"),
		Complexity: d("50"),
	})
	require.NoError(t, err)

	assertMoney(t, "4.15", q.TimeCost)
	assertMoney(t, "25", q.MarginCost)
	assertMoney(t, "29.15", q.Preliminary)
	assertMoney(t, "150", q.Floored)
	assertMoney(t, "150", q.Total)
	assert.True(t, q.MinimumApplied)
	assert.True(t, q.Discount.IsZero())
	assert.Equal(t, ModeArea, q.Mode)
}

func TestCuttingLongJobGetsVolumeDiscount(t *testing.T) {
	calc := NewCalculator(testRules(ModeFixed))

	q, err := calc.Quote(Request{
		Service:     models.ServiceCutting,
		Material:    "plywood3",
		Length:      d("600"),
		DetailCount: 10,
	})
	require.NoError(t, err)

	assertMoney(t, "14.91", q.UnitPrice)
	assertMoney(t, "5", q.DetailCost)
	assertMoney(t, "8951", q.Preliminary)
	assertMoney(t, "8951", q.Floored)
	assertMoney(t, "7608.35", q.Total)
	assertMoney(t, "1342.65", q.Discount)
	assertMoney(t, "15", q.DiscountPercent)
	assert.False(t, q.MinimumApplied)
}

func TestDiscountIsTakenOffTheFlooredPrice(t *testing.T) {
	rules := testRules(ModeArea)
	// Margin so low that a large area still falls under the minimum.
	rules.Engraving.Materials["foil"] = EngravingMaterial{Name: "Foil", TimePerUnit: d("0.000001"), MarginPerUnit: d("0.000001")}
	calc := NewCalculator(rules)

	q, err := calc.Quote(Request{
		Service:    models.ServiceEngraving,
		Material:   "foil",
		Area:       d("200000"),
		Complexity: d("10"),
	})
	require.NoError(t, err)

	assert.True(t, q.MinimumApplied)
	assertMoney(t, "150", q.Floored)
	// 150 × 0.85, not max(150, preliminary × 0.85).
	assertMoney(t, "127.5", q.Total)
	assertMoney(t, "22.5", q.Discount)
}

func TestEngravingAreaTotalNeverBelowMinimumWithoutDiscount(t *testing.T) {
	calc := NewCalculator(testRules(ModeArea))

	for _, area := range []string{"1", "10", "999", "5000", "99999"} {
		for _, complexity := range []string{"1", "50", "100"} {
			q, err := calc.Quote(Request{
				Service:    models.ServiceEngraving,
				Material:   "wood",
				Area:       d(area),
				Complexity: d(complexity),
			})
			require.NoError(t, err)
			assert.True(t, q.Total.GreaterThanOrEqual(d("150")), "area %s complexity %s gave %s", area, complexity, q.Total)
		}
	}
}

func TestEngravingFixedTier(t *testing.T) {
	calc := NewCalculator(testRules(ModeFixed))
	assert.Equal(t, ModeFixed, calc.EngravingMode())

	small, err := calc.Quote(Request{Service: models.ServiceEngraving, Tier: "logo_small", Quantity: 2})
	require.NoError(t, err)
	assertMoney(t, "50", small.Preliminary)
	assertMoney(t, "150", small.Total)

	bulk, err := calc.Quote(Request{Service: models.ServiceEngraving, Tier: "logo_small", Quantity: 1000})
	require.NoError(t, err)
	assertMoney(t, "25000", bulk.Floored)
	assertMoney(t, "21250", bulk.Total)
	assertMoney(t, "25", bulk.UnitPrice)
}

func TestDesignIsFlat(t *testing.T) {
	calc := NewCalculator(testRules(ModeFixed))

	q, err := calc.Quote(Request{Service: models.ServiceDesign})
	require.NoError(t, err)
	assertMoney(t, "500", q.Total)
	assert.True(t, q.Discount.IsZero())
}

func TestShopSumsLineItems(t *testing.T) {
	calc := NewCalculator(testRules(ModeFixed))

	q, err := calc.Quote(Request{Service: models.ServiceShop, Items: []models.ShopItem{
		{ProductID: "a", Name: "Keychain", Price: d("45"), Quantity: 2},
		{ProductID: "b", Name: "Coaster", Price: d("70.5"), Quantity: 3},
	}})
	require.NoError(t, err)
	assertMoney(t, "301.5", q.Total)
}

func TestQuoteValidation(t *testing.T) {
	calc := NewCalculator(testRules(ModeArea))
	fixed := NewCalculator(testRules(ModeFixed))

	tests := []struct {
		name string
		calc *Calculator
		req  Request
	}{
		{"zero area", calc, Request{Service: models.ServiceEngraving, Material: "wood", Area: d("0"), Complexity: d("50")}},
		{"negative area", calc, Request{Service: models.ServiceEngraving, Material: "wood", Area: d("-5"), Complexity: d("50")}},
		{"zero complexity", calc, Request{Service: models.ServiceEngraving, Material: "wood", Area: d("100"), Complexity: d("0")}},
		{"complexity over 100", calc, Request{Service: models.ServiceEngraving, Material: "wood", Area: d("100"), Complexity: d("101")}},
		{"unknown engraving material", calc, Request{Service: models.ServiceEngraving, Material: "gold", Area: d("100"), Complexity: d("10")}},
		{"zero quantity", fixed, Request{Service: models.ServiceEngraving, Tier: "logo_small"}},
		{"unknown tier", fixed, Request{Service: models.ServiceEngraving, Tier: "huge", Quantity: 1}},
		{"zero length", calc, Request{Service: models.ServiceCutting, Material: "plywood3"}},
		{"negative details", calc, Request{Service: models.ServiceCutting, Material: "plywood3", Length: d("1"), DetailCount: -1}},
		{"unknown cutting material", calc, Request{Service: models.ServiceCutting, Material: "steel", Length: d("1")}},
		{"empty shop", calc, Request{Service: models.ServiceShop}},
		{"unknown service", calc, Request{Service: "welding"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.calc.Quote(tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput), "got %v", err)
		})
	}
}

func TestConsultationIsNotQuotable(t *testing.T) {
	calc := NewCalculator(testRules(ModeFixed))
	_, err := calc.Quote(Request{Service: models.ServiceConsultation})
	assert.ErrorIs(t, err, ErrNotQuotable)
}

func TestSettleCallerPricing(t *testing.T) {
	calc := NewCalculator(testRules(ModeFixed))

	q, err := calc.Settle(models.ServiceConsultation, d("1000"), d("250"))
	require.NoError(t, err)
	assertMoney(t, "1000", q.Floored)
	assertMoney(t, "250", q.Discount)
	assertMoney(t, "25", q.DiscountPercent)
	assertMoney(t, "750", q.Total)
	assert.Equal(t, "UAH", q.Currency)

	q, err = calc.Settle(models.ServiceConsultation, d("100"), d("0"))
	require.NoError(t, err)
	assert.True(t, q.MinimumApplied)
	assertMoney(t, "150", q.Total)

	q, err = calc.Settle(models.ServiceConsultation, d("160"), d("100"))
	require.NoError(t, err)
	assertMoney(t, "150", q.Total)
	assertMoney(t, "10", q.Discount)

	_, err = calc.Settle(models.ServiceConsultation, d("100"), d("101"))
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = calc.Settle(models.ServiceConsultation, decimal.Zero, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = calc.Settle(models.ServiceConsultation, d("300"), d("-1"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestQuoteIsDeterministic(t *testing.T) {
	calc := NewCalculator(testRules(ModeArea))
	req := Request{Service: models.ServiceCutting, Material: "plywood3", Length: d("42.7"), DetailCount: 3}

	first, err := calc.Quote(req)
	require.NoError(t, err)
	second, err := calc.Quote(req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestQuotePricingSnapshot(t *testing.T) {
	calc := NewCalculator(testRules(ModeFixed))
	q, err := calc.Quote(Request{Service: models.ServiceCutting, Material: "plywood3", Length: d("600"), DetailCount: 10})
	require.NoError(t, err)

	p := q.Pricing()
	assertMoney(t, "8951", p.BasePrice)
	assertMoney(t, "7608.35", p.TotalPrice)
	assert.True(t, p.BasePrice.Sub(p.Discount).Equal(p.TotalPrice))
	assert.Equal(t, "UAH", p.Currency)
}

func TestRequestFromDetails(t *testing.T) {
	req, err := RequestFromDetails(models.CuttingDetails{Material: "plywood3", Length: d("3"), DetailCount: 2})
	require.NoError(t, err)
	assert.Equal(t, models.ServiceCutting, req.Service)
	assert.Equal(t, 2, req.DetailCount)

	req, err = RequestFromDetails(models.EngravingDetails{Material: "wood", Size: "logo_small", Quantity: 7})
	require.NoError(t, err)
	assert.Equal(t, "logo_small", req.Tier)
	assert.Equal(t, 7, req.Quantity)

	_, err = RequestFromDetails(models.ConsultationDetails{})
	assert.ErrorIs(t, err, ErrNotQuotable)

	_, err = RequestFromDetails(nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
