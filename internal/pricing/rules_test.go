package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRulesLoad(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)

	assert.Equal(t, ModeFixed, rules.Engraving.Mode)
	assert.Equal(t, "UAH", rules.Currency)
	assertMoney(t, "150", rules.MinimumOrder)
	assertMoney(t, "0.83", rules.HourlyCost)

	plywood, ok := rules.Cutting.Materials["plywood3"]
	require.True(t, ok)
	assertMoney(t, "8.33", plywood.TimePerMeter)
	assertMoney(t, "8", plywood.MarginPerMeter)

	assert.NotEmpty(t, rules.EngravingTiers())
	assert.NotEmpty(t, rules.EngravingMaterials())
	options := rules.CuttingMaterials()
	for i := 1; i < len(options); i++ {
		assert.Less(t, options[i-1].Key, options[i].Key)
	}
}

func TestLoadRulesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
hourly_cost: 1
minimum_order: 200
volume_discount_percent: 10
engraving:
  mode: area
  discount_area: 1000
  discount_quantity: 10
  materials:
    wood: {name: Wood, time_per_unit: 0.001, margin_per_unit: 0.01}
cutting:
  discount_length: 100
  per_detail_cost: 1
  materials:
    mdf: {name: MDF, time_per_meter: 5, margin_per_meter: 5}
design:
  base_price: 300
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, ModeArea, rules.Engraving.Mode)
	assertMoney(t, "200", rules.MinimumOrder)
	assert.Equal(t, "UAH", rules.Currency)
}

func TestRulesValidation(t *testing.T) {
	_, err := ParseRules([]byte(`hourly_cost: 0`))
	assert.Error(t, err)

	rules := DefaultRules()
	_, err = rules.WithEngravingMode("laser-magic")
	assert.Error(t, err)

	area, err := rules.WithEngravingMode(ModeArea)
	require.NoError(t, err)
	assert.Equal(t, ModeArea, area.Engraving.Mode)
	assert.Equal(t, ModeFixed, rules.Engraving.Mode, "original rules must not change")
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadCalculator(t *testing.T) {
	calc, err := LoadCalculator("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultRules().Engraving.Mode, calc.EngravingMode())

	calc, err = LoadCalculator("", string(ModeArea))
	require.NoError(t, err)
	assert.Equal(t, ModeArea, calc.EngravingMode())

	_, err = LoadCalculator("", "laser-guess")
	assert.Error(t, err)

	_, err = LoadCalculator(filepath.Join(t.TempDir(), "absent.yaml"), "")
	assert.Error(t, err)
}
