package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsawler/sqextract/model"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"25,000.00", 25000},
		{"₹ 25,000", 25000},
		{"Rs. 1,500/-", 1500},
		{"INR25000", 25000},
		{"$ 12.50", 12.5},
		{"€1 200", 1200},
		{": 4,500.00", 4500},
		{"4,500.00 (18%)", 4500},
		{"(1,200.00)", -1200},
		{"500-", -500},
		{"-500", -500},
		{".5", 0.5},
		{"1,00,000", 100000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNumber(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNumber_Errors(t *testing.T) {
	for _, in := range []string{"", "Rs.", "12abc", "one", "1.2.3"} {
		_, err := ParseNumber(in)
		assert.ErrorIs(t, err, ErrUnparseable, in)

		var fe *FormatError
		require.ErrorAs(t, err, &fe, in)
		assert.Equal(t, model.TypeNumber, fe.Type)
	}
}

func TestParseInteger(t *testing.T) {
	for in, want := range map[string]int64{"3": 3, "3.": 3, "(3)": 3, " 12 ": 12} {
		got, err := ParseInteger(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseInteger("2.5")
	assert.ErrorIs(t, err, ErrUnparseable)
	_, err = ParseInteger("a")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestParseDimensions(t *testing.T) {
	tests := []struct {
		in   string
		want model.Dimensions
	}{
		{"1200x600x2100mm", model.Dimensions{Width: 1200, Depth: 600, Height: 2100, Unit: "mm"}},
		{"1200 x 600 x 2100", model.Dimensions{Width: 1200, Depth: 600, Height: 2100, Unit: "mm"}},
		{"120cm × 60cm × 210cm", model.Dimensions{Width: 120, Depth: 60, Height: 210, Unit: "cm"}},
		{"4*2*7 ft", model.Dimensions{Width: 4, Depth: 2, Height: 7, Unit: "ft"}},
		{"1.2X0.6X2.1M", model.Dimensions{Width: 1.2, Depth: 0.6, Height: 2.1, Unit: "m"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDimensions(tt.in, "mm")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDimensions_Errors(t *testing.T) {
	_, err := ParseDimensions("120cm x 600mm x 2100mm", "mm")
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "mixed units", fe.Reason)

	_, err = ParseDimensions("1200 x 600", "mm")
	assert.ErrorIs(t, err, ErrUnparseable)

	assert.True(t, LooksLikeDimensions("Dia 450 x 900"))
	assert.False(t, LooksLikeDimensions("as per site"))
}

func TestParseArea(t *testing.T) {
	tests := []struct {
		in   string
		n    float64
		unit string
	}{
		{"0.72m2", 0.72, "sqm"},
		{"12 sq.m", 12, "sqm"},
		{"12 Sq. Mtr", 12, "sqm"},
		{"1,250 sqft", 1250, "sqft"},
		{"40 sq ft", 40, "sqft"},
		{"9 m²", 9, "sqm"},
		{"7.5", 7.5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, unit, err := ParseArea(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.n, n)
			assert.Equal(t, tt.unit, unit)
		})
	}

	_, _, err := ParseArea("large")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestParseDate(t *testing.T) {
	tests := map[string]string{
		"2024-03-01":    "2024-03-01",
		"01/03/2024":    "2024-03-01",
		"1/3/2024":      "2024-03-01",
		"01.03.2024":    "2024-03-01",
		"01/03/24":      "2024-03-01",
		"1 Mar 2024":    "2024-03-01",
		"1 March 2024":  "2024-03-01",
		"01-Mar-2024":   "2024-03-01",
		"March 1, 2024": "2024-03-01",
		"1  Mar  2024.": "2024-03-01",
	}
	for in, want := range tests {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDate("13/13/2024")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestNormalize(t *testing.T) {
	f := model.NewField("amount", model.TypeCurrency)
	require.NoError(t, normalize(f, "  Rs.  2,500 ", "mm"))
	assert.Equal(t, 2500.0, *f.Number)

	f = model.NewField("dimensions", model.TypeDimensions)
	require.NoError(t, normalize(f, "Dia 450 x 900", "mm"))
	assert.Nil(t, f.Dimensions)
	assert.Equal(t, "Dia 450 x 900", *f.Text)

	f = model.NewField("area", model.TypeArea)
	require.NoError(t, normalize(f, "30 sqft", "mm"))
	assert.Equal(t, "sqft", f.Unit)

	f = model.NewField("tax", model.TypeCurrency)
	err := normalize(f, "n/a", "mm")
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, model.TypeCurrency, fe.Type)
	assert.False(t, f.Resolved())

	f = model.NewField("name", model.TypeText)
	require.NoError(t, normalize(f, "Wardrobe\t 3-door", "mm"))
	assert.Equal(t, "Wardrobe 3-door", *f.Text)
}
