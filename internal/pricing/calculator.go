package pricing

import (
	"errors"
	"fmt"

	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInput = errors.New("invalid quote input")
	ErrNotQuotable  = errors.New("service has no automatic quote")
)

var hundred = decimal.NewFromInt(100)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

type Request struct {
	Service     models.ServiceType `json:"service" validate:"required"`
	Material    string             `json:"material,omitempty"`
	Tier        string             `json:"tier,omitempty"`
	Quantity    int                `json:"quantity,omitempty"`
	Area        decimal.Decimal    `json:"area"`
	Complexity  decimal.Decimal    `json:"complexity"`
	Length      decimal.Decimal    `json:"length"`
	DetailCount int                `json:"detailCount,omitempty"`
	Items       []models.ShopItem  `json:"items,omitempty"`
}

// Quote is the price breakdown for a job.
type Quote struct {
	Service         models.ServiceType `json:"service"`
	Mode            Mode               `json:"mode,omitempty"`
	Material        string             `json:"material,omitempty"`
	Tier            string             `json:"tier,omitempty"`
	TimeMinutes     decimal.Decimal    `json:"timeMinutes"`
	TimeCost        decimal.Decimal    `json:"timeCost"`
	MarginCost      decimal.Decimal    `json:"marginCost"`
	UnitPrice       decimal.Decimal    `json:"unitPrice"`
	DetailCost      decimal.Decimal    `json:"detailCost"`
	Preliminary     decimal.Decimal    `json:"preliminary"`
	Floored         decimal.Decimal    `json:"floored"`
	MinimumApplied  bool               `json:"minimumApplied"`
	DiscountPercent decimal.Decimal    `json:"discountPercent"`
	Discount        decimal.Decimal    `json:"discount"`
	Total           decimal.Decimal    `json:"totalPrice"`
	Currency        string             `json:"currency"`
}

// Pricing converts the quote into the snapshot stored on an order.
func (q Quote) Pricing() models.Pricing {
	return models.Pricing{
		BasePrice:       q.Floored,
		Discount:        q.Discount,
		DiscountPercent: q.DiscountPercent,
		TotalPrice:      q.Total,
		Currency:        q.Currency,
	}
}

// EngravingStrategy prices an engraving job up to, but not including, the
// minimum-order floor and volume discount.
type EngravingStrategy interface {
	Mode() Mode
	Estimate(rules Rules, req Request) (q Quote, volume bool, err error)
}

type Calculator struct {
	rules     Rules
	engraving EngravingStrategy
}

func NewCalculator(rules Rules) *Calculator {
	c := &Calculator{rules: rules}
	switch rules.Engraving.Mode {
	case ModeArea:
		c.engraving = AreaStrategy{}
	default:
		c.engraving = FixedTierStrategy{}
	}
	return c
}

// LoadCalculator builds a calculator from the rules file at path, or the
// embedded defaults when path is empty. A non-empty mode overrides the
// engraving mode of the table.
func LoadCalculator(path, mode string) (*Calculator, error) {
	rules := DefaultRules()
	if path != "" {
		loaded, err := LoadRules(path)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}
	if mode != "" {
		withMode, err := rules.WithEngravingMode(Mode(mode))
		if err != nil {
			return nil, err
		}
		rules = withMode
	}
	return NewCalculator(rules), nil
}

func (c *Calculator) Rules() Rules {
	return c.rules
}

func (c *Calculator) EngravingMode() Mode {
	return c.engraving.Mode()
}

func (c *Calculator) Quote(req Request) (Quote, error) {
	var (
		q      Quote
		volume bool
		err    error
	)

	switch req.Service {
	case models.ServiceEngraving:
		q, volume, err = c.engraving.Estimate(c.rules, req)
	case models.ServiceCutting:
		q, volume, err = c.cutting(req)
	case models.ServiceDesign:
		q = Quote{Preliminary: c.rules.Design.BasePrice}
	case models.ServiceShop:
		q, err = c.shop(req)
	case models.ServiceConsultation:
		return Quote{}, ErrNotQuotable
	default:
		return Quote{}, invalid("unknown service %q", req.Service)
	}
	if err != nil {
		return Quote{}, err
	}

	q.Service = req.Service
	c.finish(&q, volume)
	return q, nil
}

// finish applies the minimum-order floor and then, on the floored value, the
// volume discount. The discounted total is not floored again.
func (c *Calculator) finish(q *Quote, volume bool) {
	q.Currency = c.rules.Currency
	q.Preliminary = q.Preliminary.Round(2)

	q.Floored = q.Preliminary
	if q.Preliminary.LessThan(c.rules.MinimumOrder) {
		q.Floored = c.rules.MinimumOrder
		q.MinimumApplied = true
	}

	q.Total = q.Floored
	q.Discount = decimal.Zero
	q.DiscountPercent = decimal.Zero
	if volume && c.rules.VolumeDiscountPercent.IsPositive() {
		rate := decimal.NewFromInt(1).Sub(c.rules.VolumeDiscountPercent.Div(hundred))
		q.Total = q.Floored.Mul(rate).Round(2)
		q.Discount = q.Floored.Sub(q.Total)
		q.DiscountPercent = c.rules.VolumeDiscountPercent
	}
}

// Settle normalises caller-supplied pricing for services without an
// automatic quote. The base is floored at the minimum order and the total is
// base minus discount, clamped to the minimum.
func (c *Calculator) Settle(service models.ServiceType, base, discount decimal.Decimal) (Quote, error) {
	if !base.IsPositive() {
		return Quote{}, invalid("basePrice must be positive")
	}
	if discount.IsNegative() {
		return Quote{}, invalid("discount must not be negative")
	}
	if discount.GreaterThan(base) {
		return Quote{}, invalid("discount %s exceeds basePrice %s", discount.StringFixed(2), base.StringFixed(2))
	}

	q := Quote{Service: service, Currency: c.rules.Currency, Preliminary: base.Round(2)}
	q.Floored = q.Preliminary
	if q.Floored.LessThan(c.rules.MinimumOrder) {
		q.Floored = c.rules.MinimumOrder
		q.MinimumApplied = true
	}

	q.Total = decimal.Max(c.rules.MinimumOrder, q.Floored.Sub(discount.Round(2)))
	q.Discount = q.Floored.Sub(q.Total)
	q.DiscountPercent = decimal.Zero
	if q.Discount.IsPositive() {
		q.DiscountPercent = q.Discount.Div(q.Floored).Mul(hundred).Round(2)
	}
	return q, nil
}

func (c *Calculator) cutting(req Request) (Quote, bool, error) {
	material, ok := c.rules.Cutting.Materials[req.Material]
	if !ok {
		return Quote{}, false, invalid("unknown cutting material %q", req.Material)
	}
	if !req.Length.IsPositive() {
		return Quote{}, false, invalid("length must be positive")
	}
	if req.DetailCount < 0 {
		return Quote{}, false, invalid("detail count must not be negative")
	}

	// The per-metre rate is quoted to the kopeck.
	perMeter := c.rules.HourlyCost.Mul(material.TimePerMeter).Add(material.MarginPerMeter).Round(2)
	cuttingCost := perMeter.Mul(req.Length)
	detailCost := c.rules.Cutting.PerDetailCost.Mul(decimal.NewFromInt(int64(req.DetailCount)))

	q := Quote{
		Material:    req.Material,
		TimeMinutes: material.TimePerMeter.Mul(req.Length),
		TimeCost:    c.rules.HourlyCost.Mul(material.TimePerMeter).Mul(req.Length).Round(2),
		MarginCost:  material.MarginPerMeter.Mul(req.Length).Round(2),
		UnitPrice:   perMeter,
		DetailCost:  detailCost,
		Preliminary: cuttingCost.Add(detailCost),
	}
	return q, req.Length.GreaterThanOrEqual(c.rules.Cutting.DiscountLength), nil
}

func (c *Calculator) shop(req Request) (Quote, error) {
	if len(req.Items) == 0 {
		return Quote{}, invalid("shop order has no items")
	}
	total := decimal.Zero
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return Quote{}, invalid("quantity for %q must be positive", item.Name)
		}
		if item.Price.IsNegative() {
			return Quote{}, invalid("price for %q must not be negative", item.Name)
		}
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return Quote{Preliminary: total}, nil
}

// AreaStrategy prices engraving from the engraved area, the material
// coefficients and a complexity percentage.
type AreaStrategy struct{}

func (AreaStrategy) Mode() Mode { return ModeArea }

func (AreaStrategy) Estimate(rules Rules, req Request) (Quote, bool, error) {
	material, ok := rules.Engraving.Materials[req.Material]
	if !ok {
		return Quote{}, false, invalid("unknown engraving material %q", req.Material)
	}
	if !req.Area.IsPositive() {
		return Quote{}, false, invalid("area must be positive")
	}
	if !req.Complexity.IsPositive() || req.Complexity.GreaterThan(hundred) {
		return Quote{}, false, invalid("complexity must be within (0, 100]")
	}

	minutes := req.Area.Mul(material.TimePerUnit).Mul(req.Complexity).Div(hundred)
	timeCost := rules.HourlyCost.Mul(minutes)
	marginCost := material.MarginPerUnit.Mul(req.Area)

	q := Quote{
		Mode:        ModeArea,
		Material:    req.Material,
		TimeMinutes: minutes,
		TimeCost:    timeCost.Round(2),
		MarginCost:  marginCost.Round(2),
		Preliminary: timeCost.Add(marginCost),
	}
	return q, req.Area.GreaterThanOrEqual(rules.Engraving.DiscountArea), nil
}

// FixedTierStrategy prices engraving from a fixed per-piece price for a
// product size tier.
type FixedTierStrategy struct{}

func (FixedTierStrategy) Mode() Mode { return ModeFixed }

func (FixedTierStrategy) Estimate(rules Rules, req Request) (Quote, bool, error) {
	tier, ok := rules.Engraving.Tiers[req.Tier]
	if !ok {
		return Quote{}, false, invalid("unknown engraving size %q", req.Tier)
	}
	if req.Quantity <= 0 {
		return Quote{}, false, invalid("quantity must be positive")
	}
	if req.Material != "" {
		if _, ok := rules.Engraving.Materials[req.Material]; !ok {
			return Quote{}, false, invalid("unknown engraving material %q", req.Material)
		}
	}

	q := Quote{
		Mode:        ModeFixed,
		Material:    req.Material,
		Tier:        req.Tier,
		UnitPrice:   tier.UnitPrice,
		Preliminary: tier.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity))),
	}
	return q, req.Quantity >= rules.Engraving.DiscountQuantity, nil
}

// RequestFromDetails builds a calculator request from an order's service
// payload.
func RequestFromDetails(details models.Details) (Request, error) {
	switch d := details.(type) {
	case models.EngravingDetails:
		return Request{
			Service:    models.ServiceEngraving,
			Material:   d.Material,
			Tier:       d.Size,
			Quantity:   d.Quantity,
			Area:       d.Area,
			Complexity: d.Complexity,
		}, nil
	case models.CuttingDetails:
		return Request{
			Service:     models.ServiceCutting,
			Material:    d.Material,
			Length:      d.Length,
			DetailCount: d.DetailCount,
		}, nil
	case models.DesignDetails:
		return Request{Service: models.ServiceDesign}, nil
	case models.ShopDetails:
		return Request{Service: models.ServiceShop, Items: d.Items}, nil
	case models.ConsultationDetails:
		return Request{}, ErrNotQuotable
	case nil:
		return Request{}, invalid("service details are missing")
	default:
		return Request{}, invalid("unsupported service details %T", details)
	}
}
