package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsawler/sqextract/model"
)

func num(name string, typ model.ValueType, n float64) *model.Field {
	f := model.NewField(name, typ)
	f.Number = &n
	f.Source = model.SourceDirectText
	f.SetConfidence(0.99)
	return f
}

func text(name, s string) *model.Field {
	f := model.NewField(name, model.TypeText)
	f.Text = &s
	f.Source = model.SourceDirectText
	f.SetConfidence(0.99)
	return f
}

func required(f *model.Field) *model.Field {
	f.Required = true
	return f
}

func row(i int, qty, price, amount float64) *model.Row {
	r := model.NewRow(i)
	r.Source = model.SourceDirectText
	r.Set(required(num(model.FieldSerial, model.TypeInteger, float64(i+1))))
	r.Set(required(text(model.FieldName, "Wardrobe 3-door")))
	dims := model.NewField(model.FieldDimensions, model.TypeDimensions)
	dims.Dimensions = &model.Dimensions{Width: 1200, Depth: 600, Height: 2100, Unit: "mm"}
	dims.SetConfidence(0.99)
	r.Set(dims)
	area := num(model.FieldArea, model.TypeArea, 0.72)
	area.Unit = "sqm"
	r.Set(area)
	r.Set(required(num(model.FieldQty, model.TypeNumber, qty)))
	r.Set(required(num(model.FieldUnitPrice, model.TypeCurrency, price)))
	r.Set(required(num(model.FieldAmount, model.TypeCurrency, amount)))
	return r
}

func extraction(rows ...*model.Row) *model.Extraction {
	sum := 0.0
	for _, r := range rows {
		a, _ := r.Get(model.FieldAmount).Float()
		sum += a
	}
	return &model.Extraction{
		DocumentID: "doc-1",
		Header: []*model.Field{
			required(text(model.FieldProjectName, "Acme Wardrobe Project")),
			text(model.FieldClientName, "Acme Corp"),
		},
		Rows: rows,
		Summary: []*model.Field{
			required(num(model.FieldSubtotal, model.TypeCurrency, sum)),
			num(model.FieldTax, model.TypeCurrency, sum*0.18),
			required(num(model.FieldGrandTotal, model.TypeCurrency, sum*1.18)),
		},
		SummaryStatus: model.StatusOK,
	}
}

func validate(ex *model.Extraction) *model.Extraction {
	New(DefaultConfig()).Validate(ex)
	return ex
}

func kinds(ex *model.Extraction) []model.IssueKind {
	var out []model.IssueKind
	for _, iss := range ex.Issues {
		out = append(out, iss.Kind)
	}
	return out
}

func TestValidator_Validate_Clean(t *testing.T) {
	ex := validate(extraction(row(0, 1, 25000, 25000), row(1, 2, 1500, 3000)))

	assert.Empty(t, ex.Issues)
	assert.False(t, ex.RequiresReview)
	assert.Equal(t, model.StatusOK, ex.SummaryStatus)
	for _, r := range ex.Rows {
		assert.Equal(t, model.StatusOK, r.Status)
	}
}

func TestValidator_Validate_ArithmeticMismatch(t *testing.T) {
	ex := extraction(row(0, 1, 24000, 25000), row(1, 2, 1500, 3000))
	ex.Summary[0] = required(num(model.FieldSubtotal, model.TypeCurrency, 28000))
	ex.Summary[1] = num(model.FieldTax, model.TypeCurrency, 5040)
	ex.Summary[2] = required(num(model.FieldGrandTotal, model.TypeCurrency, 33040))
	validate(ex)

	require.Len(t, ex.Issues, 1)
	iss := ex.Issues[0]
	assert.Equal(t, "products[0].amount", iss.FieldPath)
	assert.Equal(t, model.IssueArithmeticMismatch, iss.Kind)
	assert.Contains(t, iss.Message, "24000.00")

	assert.Equal(t, model.StatusFlagged, ex.Rows[0].Status)
	assert.Equal(t, model.StatusFlagged, ex.Rows[0].Get(model.FieldAmount).Status)
	assert.Equal(t, model.StatusOK, ex.Rows[0].Get(model.FieldQty).Status)
	assert.Equal(t, model.StatusOK, ex.Rows[1].Status)
	assert.False(t, ex.RequiresReview, "a flagged row alone does not require review")

	// the printed value is kept
	amount, _ := ex.Rows[0].Get(model.FieldAmount).Float()
	assert.Equal(t, 25000.0, amount)
}

func TestValidator_Validate_ArithmeticTolerance(t *testing.T) {
	// 0.5% off is within tolerance
	ex := validate(extraction(row(0, 3, 333.33, 1005)))
	assert.NotContains(t, kinds(ex), model.IssueArithmeticMismatch)
}

func TestValidator_Validate_DimensionsFormat(t *testing.T) {
	r := row(0, 1, 25000, 25000)
	dims := model.NewField(model.FieldDimensions, model.TypeDimensions)
	s := "Dia 450 x 900"
	dims.Text = &s
	dims.SetConfidence(0.99)
	r.Set(dims)

	ex := validate(extraction(r))
	assert.Equal(t, []model.IssueKind{model.IssueFormat}, kinds(ex))
	assert.Equal(t, "products[0].dimensions", ex.Issues[0].FieldPath)
	assert.Equal(t, model.StatusFlagged, dims.Status)
	assert.Equal(t, model.StatusFlagged, r.Status)
}

func TestValidator_Validate_Area(t *testing.T) {
	tests := []struct {
		name     string
		area     float64
		unit     string
		mismatch bool
	}{
		{"matching sqm", 0.72, "sqm", false},
		{"within 5%", 0.74, "sqm", false},
		{"matching sqft", 7.75, "sqft", false},
		{"unit-less against sqm", 0.72, "", false},
		{"unit-less against sqft", 7.75, "", false},
		{"mismatch", 1.5, "sqm", true},
		{"sqm value labelled sqft", 0.72, "sqft", true},
		{"zero", 0, "sqm", true},
		{"negative", -1, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := row(0, 1, 25000, 25000)
			area := num(model.FieldArea, model.TypeArea, tt.area)
			area.Unit = tt.unit
			r.Set(area)

			ex := validate(extraction(r))
			if tt.mismatch {
				assert.Equal(t, []model.IssueKind{model.IssueAreaMismatch}, kinds(ex))
				assert.Equal(t, model.StatusFlagged, area.Status)
			} else {
				assert.Empty(t, ex.Issues)
			}
		})
	}
}

func TestValidator_Validate_Totals(t *testing.T) {
	ex := extraction(row(0, 1, 25000, 25000))
	ex.Summary[0] = required(num(model.FieldSubtotal, model.TypeCurrency, 26000))
	ex.Summary[2] = required(num(model.FieldGrandTotal, model.TypeCurrency, 40000))
	validate(ex)

	assert.Equal(t, []model.IssueKind{model.IssueTotalMismatch, model.IssueTotalMismatch}, kinds(ex))
	assert.Equal(t, "summary.subtotal", ex.Issues[0].FieldPath)
	assert.Equal(t, "summary.grand_total", ex.Issues[1].FieldPath)
	assert.Equal(t, model.StatusFlagged, ex.SummaryStatus)
	assert.False(t, ex.RequiresReview)
}

func TestValidator_Validate_TotalsWithoutTax(t *testing.T) {
	ex := extraction(row(0, 1, 25000, 25000))
	ex.Summary = []*model.Field{
		required(num(model.FieldSubtotal, model.TypeCurrency, 25000)),
		required(num(model.FieldGrandTotal, model.TypeCurrency, 25000)),
	}
	validate(ex)
	assert.Empty(t, ex.Issues)
}

func TestValidator_Validate_Serials(t *testing.T) {
	r := row(1, 1, 1500, 1500)
	r.Set(required(num(model.FieldSerial, model.TypeInteger, 3)))

	ex := validate(extraction(row(0, 1, 25000, 25000), r))
	require.Equal(t, []model.IssueKind{model.IssueSegmentation}, kinds(ex))
	assert.Equal(t, "products", ex.Issues[0].FieldPath)
	assert.Contains(t, ex.Issues[0].Message, "row 2 has 3.00")
	assert.True(t, ex.RequiresReview)
}

func TestValidator_Validate_NoRows(t *testing.T) {
	ex := extraction()
	ex.Summary = nil
	validate(ex)
	assert.Equal(t, []model.IssueKind{model.IssueSegmentation}, kinds(ex))
	assert.True(t, ex.RequiresReview)
}

func TestValidator_Validate_RequiredFailed(t *testing.T) {
	r := row(0, 1, 25000, 25000)
	r.Get(model.FieldQty).Fail("no value found")

	ex := validate(extraction(r))
	require.Equal(t, []model.IssueKind{model.IssueExtractionFailure}, kinds(ex))
	assert.Equal(t, "products[0].qty", ex.Issues[0].FieldPath)
	assert.Contains(t, ex.Issues[0].Message, "no value found")
	assert.Equal(t, model.StatusFailed, r.Status)
	assert.True(t, ex.RequiresReview)
}

func TestValidator_Validate_OptionalFailed(t *testing.T) {
	ex := extraction(row(0, 1, 25000, 25000))
	ex.Header[1].Fail("unexpected characters")
	validate(ex)

	assert.Empty(t, ex.Issues)
	assert.True(t, ex.RequiresReview, "any failed field requires review")
}

func TestValidator_Validate_LowConfidence(t *testing.T) {
	r := row(0, 1, 25000, 25000)
	r.Get(model.FieldName).SetConfidence(0.45)

	ex := validate(extraction(r))
	require.Equal(t, []model.IssueKind{model.IssueLowConfidence}, kinds(ex))
	assert.Equal(t, "products[0].name", ex.Issues[0].FieldPath)
	assert.Equal(t, model.StatusFlagged, r.Get(model.FieldName).Status)
	assert.Equal(t, model.StatusFlagged, r.Status)
	assert.False(t, ex.RequiresReview)
}

func TestValidator_Validate_KeepsUpstreamIssues(t *testing.T) {
	ex := extraction(row(0, 1, 25000, 25000))
	ex.AddIssue("products", model.IssueSegmentation, "table layout is ambiguous")
	validate(ex)

	assert.Equal(t, []model.IssueKind{model.IssueSegmentation}, kinds(ex))
	assert.True(t, ex.RequiresReview)
}
