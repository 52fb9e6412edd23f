package pricing

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

type Mode string

const (
	ModeArea  Mode = "area"
	ModeFixed Mode = "fixed"
)

type EngravingMaterial struct {
	Name          string
	TimePerUnit   decimal.Decimal // machine minutes per mm²
	MarginPerUnit decimal.Decimal // UAH per mm²
}

type Tier struct {
	Name       string
	Area       decimal.Decimal
	Complexity decimal.Decimal
	UnitPrice  decimal.Decimal
}

type CuttingMaterial struct {
	Name           string
	TimePerMeter   decimal.Decimal
	MarginPerMeter decimal.Decimal
}

type EngravingRules struct {
	Mode             Mode
	DiscountArea     decimal.Decimal
	DiscountQuantity int
	Materials        map[string]EngravingMaterial
	Tiers            map[string]Tier
}

type CuttingRules struct {
	DiscountLength decimal.Decimal
	PerDetailCost  decimal.Decimal
	Materials      map[string]CuttingMaterial
}

type DesignRules struct {
	BasePrice decimal.Decimal
}

// Rules is the pricing table. It is loaded once at start-up and treated as
// read-only afterwards.
type Rules struct {
	Currency              string
	HourlyCost            decimal.Decimal // UAH per machine minute
	MinimumOrder          decimal.Decimal
	VolumeDiscountPercent decimal.Decimal
	Engraving             EngravingRules
	Cutting               CuttingRules
	Design                DesignRules
}

type rulesFile struct {
	Currency              string  `yaml:"currency"`
	HourlyCost            float64 `yaml:"hourly_cost"`
	MinimumOrder          float64 `yaml:"minimum_order"`
	VolumeDiscountPercent float64 `yaml:"volume_discount_percent"`
	Engraving             struct {
		Mode             string  `yaml:"mode"`
		DiscountArea     float64 `yaml:"discount_area"`
		DiscountQuantity int     `yaml:"discount_quantity"`
		Materials        map[string]struct {
			Name          string  `yaml:"name"`
			TimePerUnit   float64 `yaml:"time_per_unit"`
			MarginPerUnit float64 `yaml:"margin_per_unit"`
		} `yaml:"materials"`
		Tiers map[string]struct {
			Name       string  `yaml:"name"`
			Area       float64 `yaml:"area"`
			Complexity float64 `yaml:"complexity"`
			UnitPrice  float64 `yaml:"unit_price"`
		} `yaml:"tiers"`
	} `yaml:"engraving"`
	Cutting struct {
		DiscountLength float64 `yaml:"discount_length"`
		PerDetailCost  float64 `yaml:"per_detail_cost"`
		Materials      map[string]struct {
			Name           string  `yaml:"name"`
			TimePerMeter   float64 `yaml:"time_per_meter"`
			MarginPerMeter float64 `yaml:"margin_per_meter"`
		} `yaml:"materials"`
	} `yaml:"cutting"`
	Design struct {
		BasePrice float64 `yaml:"base_price"`
	} `yaml:"design"`
}

// LoadRules reads the pricing table from path, or the built-in table when
// path is empty.
func LoadRules(path string) (Rules, error) {
	data := defaultRules
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Rules{}, fmt.Errorf("failed to read pricing rules: %w", err)
		}
		data = raw
	}
	return ParseRules(data)
}

func DefaultRules() Rules {
	rules, err := ParseRules(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("built-in pricing rules are invalid: %v", err))
	}
	return rules
}

func ParseRules(data []byte) (Rules, error) {
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Rules{}, fmt.Errorf("failed to parse pricing rules: %w", err)
	}

	rules := Rules{
		Currency:              file.Currency,
		HourlyCost:            decimal.NewFromFloat(file.HourlyCost),
		MinimumOrder:          decimal.NewFromFloat(file.MinimumOrder),
		VolumeDiscountPercent: decimal.NewFromFloat(file.VolumeDiscountPercent),
		Engraving: EngravingRules{
			Mode:             Mode(file.Engraving.Mode),
			DiscountArea:     decimal.NewFromFloat(file.Engraving.DiscountArea),
			DiscountQuantity: file.Engraving.DiscountQuantity,
			Materials:        make(map[string]EngravingMaterial, len(file.Engraving.Materials)),
			Tiers:            make(map[string]Tier, len(file.Engraving.Tiers)),
		},
		Cutting: CuttingRules{
			DiscountLength: decimal.NewFromFloat(file.Cutting.DiscountLength),
			PerDetailCost:  decimal.NewFromFloat(file.Cutting.PerDetailCost),
			Materials:      make(map[string]CuttingMaterial, len(file.Cutting.Materials)),
		},
		Design: DesignRules{BasePrice: decimal.NewFromFloat(file.Design.BasePrice)},
	}
	if rules.Currency == "" {
		rules.Currency = "UAH"
	}
	for key, m := range file.Engraving.Materials {
		rules.Engraving.Materials[key] = EngravingMaterial{
			Name:          m.Name,
			TimePerUnit:   decimal.NewFromFloat(m.TimePerUnit),
			MarginPerUnit: decimal.NewFromFloat(m.MarginPerUnit),
		}
	}
	for key, t := range file.Engraving.Tiers {
		rules.Engraving.Tiers[key] = Tier{
			Name:       t.Name,
			Area:       decimal.NewFromFloat(t.Area),
			Complexity: decimal.NewFromFloat(t.Complexity),
			UnitPrice:  decimal.NewFromFloat(t.UnitPrice),
		}
	}
	for key, m := range file.Cutting.Materials {
		rules.Cutting.Materials[key] = CuttingMaterial{
			Name:           m.Name,
			TimePerMeter:   decimal.NewFromFloat(m.TimePerMeter),
			MarginPerMeter: decimal.NewFromFloat(m.MarginPerMeter),
		}
	}

	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

func (r Rules) Validate() error {
	if !r.HourlyCost.IsPositive() {
		return fmt.Errorf("pricing rules: hourly_cost must be positive")
	}
	if !r.MinimumOrder.IsPositive() {
		return fmt.Errorf("pricing rules: minimum_order must be positive")
	}
	if r.VolumeDiscountPercent.IsNegative() || r.VolumeDiscountPercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("pricing rules: volume_discount_percent must be in [0, 100)")
	}
	switch r.Engraving.Mode {
	case ModeArea:
		if len(r.Engraving.Materials) == 0 {
			return fmt.Errorf("pricing rules: area mode needs engraving materials")
		}
	case ModeFixed:
		if len(r.Engraving.Tiers) == 0 {
			return fmt.Errorf("pricing rules: fixed mode needs engraving tiers")
		}
	default:
		return fmt.Errorf("pricing rules: unknown engraving mode %q", r.Engraving.Mode)
	}
	for key, t := range r.Engraving.Tiers {
		if !t.UnitPrice.IsPositive() {
			return fmt.Errorf("pricing rules: tier %s has no unit price", key)
		}
	}
	if !r.Cutting.DiscountLength.IsPositive() || !r.Engraving.DiscountArea.IsPositive() || r.Engraving.DiscountQuantity <= 0 {
		return fmt.Errorf("pricing rules: discount thresholds must be positive")
	}
	if r.Cutting.PerDetailCost.IsNegative() {
		return fmt.Errorf("pricing rules: per_detail_cost must not be negative")
	}
	if !r.Design.BasePrice.IsPositive() {
		return fmt.Errorf("pricing rules: design base_price must be positive")
	}
	return nil
}

// WithEngravingMode returns a copy of the rules using the given engraving
// strategy.
func (r Rules) WithEngravingMode(mode Mode) (Rules, error) {
	r.Engraving.Mode = mode
	if err := r.Validate(); err != nil {
		return Rules{}, err
	}
	return r, nil
}

type Option struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

func (r Rules) EngravingMaterials() []Option {
	options := make([]Option, 0, len(r.Engraving.Materials))
	for key, m := range r.Engraving.Materials {
		options = append(options, Option{Key: key, Name: m.Name})
	}
	return sortOptions(options)
}

func (r Rules) EngravingTiers() []Option {
	options := make([]Option, 0, len(r.Engraving.Tiers))
	for key, t := range r.Engraving.Tiers {
		options = append(options, Option{Key: key, Name: t.Name})
	}
	return sortOptions(options)
}

func (r Rules) CuttingMaterials() []Option {
	options := make([]Option, 0, len(r.Cutting.Materials))
	for key, m := range r.Cutting.Materials {
		options = append(options, Option{Key: key, Name: m.Name})
	}
	return sortOptions(options)
}

func sortOptions(options []Option) []Option {
	sort.Slice(options, func(i, j int) bool { return options[i].Key < options[j].Key })
	return options
}
