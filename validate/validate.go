// Package validate cross-checks resolved quotation values.
//
// Validation never removes data. Each rule raises the status of whatever it
// concerns and records an issue explaining why:
//
//   - amount must equal qty × unit price within ArithmeticTolerance
//   - dimensions must read as W × D × H with one unit
//   - area must be positive and match width × depth within AreaTolerance
//   - the subtotal must equal the sum of amounts, and the grand total the
//     subtotal plus tax, within TotalTolerance
//   - serial numbers must run 1..N
//   - required fields must resolve
//   - values below ReviewConfidence are flagged
//
// Any failed field, and any segmentation, recognition or extraction issue,
// marks the extraction as requiring review.
package validate

import (
	"fmt"
	"math"
	"sort"

	"github.com/tsawler/sqextract/model"
)

// Config holds validation tolerances
type Config struct {
	// ArithmeticTolerance is the relative tolerance of amount against
	// qty × unit price (default: 0.01)
	ArithmeticTolerance float64

	// AreaTolerance is the relative tolerance of area against width × depth
	// (default: 0.05)
	AreaTolerance float64

	// TotalTolerance is the relative tolerance of the summary totals
	// (default: 0.01)
	TotalTolerance float64

	// ReviewConfidence flags resolved values with a lower confidence
	// (default: 0.6)
	ReviewConfidence float64
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		ArithmeticTolerance: 0.01,
		AreaTolerance:       0.05,
		TotalTolerance:      0.01,
		ReviewConfidence:    0.6,
	}
}

// Validator applies the validation rules. It is safe for concurrent use.
type Validator struct {
	config Config
}

// New creates a validator
func New(config Config) *Validator {
	return &Validator{config: config}
}

// Validate annotates ex in place. Running it twice on the same extraction
// adds duplicate issues; it is meant to run once per extraction.
func (v *Validator) Validate(ex *model.Extraction) {
	for _, f := range ex.Header {
		v.checkField(ex, f, model.HeaderPath(f.Name))
	}

	for i, row := range ex.Rows {
		v.checkRow(ex, i, row)
	}
	v.checkSerials(ex)

	ex.SummaryStatus = model.StatusOK
	for _, f := range ex.Summary {
		v.checkField(ex, f, model.SummaryPath(f.Name))
	}
	v.checkTotals(ex)
	for _, f := range ex.Summary {
		ex.SummaryStatus = ex.SummaryStatus.Worse(f.Status)
	}

	ex.RequiresReview = requiresReview(ex)
}

// checkField applies the per-field rules: required values must resolve and
// resolved values need enough confidence.
func (v *Validator) checkField(ex *model.Extraction, f *model.Field, path string) {
	if f == nil {
		return
	}
	if f.Status == model.StatusFailed {
		if f.Required {
			ex.AddIssue(path, model.IssueExtractionFailure, failureMessage(f))
		}
		return
	}
	if f.Resolved() && f.Status == model.StatusOK && f.Confidence < v.config.ReviewConfidence {
		msg := fmt.Sprintf("confidence %.2f is below %.2f", f.Confidence, v.config.ReviewConfidence)
		f.Flag(msg)
		ex.AddIssue(path, model.IssueLowConfidence, msg)
	}
}

func (v *Validator) checkRow(ex *model.Extraction, i int, row *model.Row) {
	for _, name := range fieldNames(row) {
		v.checkField(ex, row.Fields[name], model.RowPath(i, name))
	}
	v.checkArithmetic(ex, i, row)
	v.checkDimensions(ex, i, row)
	v.checkArea(ex, i, row)

	status := model.StatusOK
	for _, f := range row.Fields {
		switch {
		case f.Status == model.StatusFailed && f.Required:
			status = model.StatusFailed
		case f.Status != model.StatusOK:
			status = status.Worse(model.StatusFlagged)
		}
	}
	row.Status = row.Status.Worse(status)
}

func (v *Validator) checkArithmetic(ex *model.Extraction, i int, row *model.Row) {
	qty, ok1 := row.Get(model.FieldQty).Float()
	price, ok2 := row.Get(model.FieldUnitPrice).Float()
	amount, ok3 := row.Get(model.FieldAmount).Float()
	if !ok1 || !ok2 || !ok3 {
		return
	}
	expected := qty * price
	if within(amount, expected, v.config.ArithmeticTolerance) {
		return
	}
	msg := fmt.Sprintf("amount %s does not equal qty × unit price (%s)", format(amount), format(expected))
	row.Get(model.FieldAmount).Flag(msg)
	ex.AddIssue(model.RowPath(i, model.FieldAmount), model.IssueArithmeticMismatch, msg)
}

func (v *Validator) checkDimensions(ex *model.Extraction, i int, row *model.Row) {
	f := row.Get(model.FieldDimensions)
	if f == nil || f.Dimensions != nil || f.Text == nil {
		return
	}
	msg := fmt.Sprintf("dimensions %q are not in W x D x H form", *f.Text)
	f.Flag(msg)
	ex.AddIssue(model.RowPath(i, model.FieldDimensions), model.IssueFormat, msg)
}

func (v *Validator) checkArea(ex *model.Extraction, i int, row *model.Row) {
	f := row.Get(model.FieldArea)
	area, ok := f.Float()
	if !ok {
		return
	}
	path := model.RowPath(i, model.FieldArea)
	if area <= 0 {
		msg := fmt.Sprintf("area %s is not positive", format(area))
		f.Flag(msg)
		ex.AddIssue(path, model.IssueAreaMismatch, msg)
		return
	}

	d := row.Get(model.FieldDimensions)
	if d == nil || d.Dimensions == nil {
		return
	}
	sqm, ok := footprint(*d.Dimensions)
	if !ok {
		return
	}

	var candidates []float64
	switch f.Unit {
	case "sqm":
		candidates = []float64{sqm}
	case "sqft":
		candidates = []float64{sqm / sqmPerSqft}
	default:
		candidates = []float64{sqm, sqm / sqmPerSqft}
	}
	for _, c := range candidates {
		if within(area, c, v.config.AreaTolerance) {
			return
		}
	}
	msg := fmt.Sprintf("area %s does not match width × depth (%s)", format(area), format(candidates[0]))
	f.Flag(msg)
	ex.AddIssue(path, model.IssueAreaMismatch, msg)
}

func (v *Validator) checkSerials(ex *model.Extraction) {
	if len(ex.Rows) == 0 {
		ex.AddIssue("products", model.IssueSegmentation, "no product rows found")
		return
	}
	for i, row := range ex.Rows {
		n, ok := row.Get(model.FieldSerial).Float()
		if !ok || n != float64(i+1) {
			ex.AddIssue("products", model.IssueSegmentation,
				fmt.Sprintf("serial numbers do not run 1..%d: row %d has %s", len(ex.Rows), i+1, serialText(row)))
			return
		}
	}
}

func (v *Validator) checkTotals(ex *model.Extraction) {
	subtotalField := ex.SummaryField(model.FieldSubtotal)
	subtotal, hasSubtotal := subtotalField.Float()

	if hasSubtotal && len(ex.Rows) > 0 {
		sum, complete := 0.0, true
		for _, row := range ex.Rows {
			a, ok := row.Get(model.FieldAmount).Float()
			if !ok {
				complete = false
				break
			}
			sum += a
		}
		if complete && !within(subtotal, sum, v.config.TotalTolerance) {
			msg := fmt.Sprintf("subtotal %s does not equal the sum of amounts (%s)", format(subtotal), format(sum))
			subtotalField.Flag(msg)
			ex.AddIssue(model.SummaryPath(model.FieldSubtotal), model.IssueTotalMismatch, msg)
		}
	}

	grandField := ex.SummaryField(model.FieldGrandTotal)
	grand, ok := grandField.Float()
	if !ok || !hasSubtotal {
		return
	}
	tax, _ := ex.SummaryField(model.FieldTax).Float()
	if !within(grand, subtotal+tax, v.config.TotalTolerance) {
		msg := fmt.Sprintf("grand total %s does not equal subtotal plus tax (%s)", format(grand), format(subtotal+tax))
		grandField.Flag(msg)
		ex.AddIssue(model.SummaryPath(model.FieldGrandTotal), model.IssueTotalMismatch, msg)
	}
}

func requiresReview(ex *model.Extraction) bool {
	for _, iss := range ex.Issues {
		switch iss.Kind {
		case model.IssueSegmentation, model.IssueRecognitionError, model.IssueExtractionFailure:
			return true
		}
	}
	for _, f := range ex.Fields() {
		if f.Status == model.StatusFailed {
			return true
		}
	}
	return false
}

// within reports whether got is within a relative tolerance of want.
func within(got, want, tolerance float64) bool {
	diff := math.Abs(got - want)
	if diff < 0.005 {
		return true
	}
	return diff <= tolerance*math.Max(math.Abs(got), math.Abs(want))
}

const sqmPerSqft = 0.09290304

var metresPer = map[string]float64{
	"mm": 0.001,
	"cm": 0.01,
	"m":  1,
	"in": 0.0254,
	"ft": 0.3048,
}

// footprint returns width × depth in square metres.
func footprint(d model.Dimensions) (float64, bool) {
	f, ok := metresPer[d.Unit]
	if !ok {
		return 0, false
	}
	return d.Width * f * d.Depth * f, true
}

func fieldNames(row *model.Row) []string {
	names := make([]string, 0, len(row.Fields))
	for name := range row.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func failureMessage(f *model.Field) string {
	if len(f.Messages) > 0 {
		return fmt.Sprintf("required field %s: %s", f.Name, f.Messages[len(f.Messages)-1])
	}
	return fmt.Sprintf("required field %s could not be extracted", f.Name)
}

func serialText(row *model.Row) string {
	f := row.Get(model.FieldSerial)
	if n, ok := f.Float(); ok {
		return format(n)
	}
	if f != nil && f.Raw != "" {
		return fmt.Sprintf("%q", f.Raw)
	}
	return "no serial number"
}

func format(n float64) string {
	return fmt.Sprintf("%.2f", n)
}
