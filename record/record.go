// Package record assembles validated extractions into StructuredRecords,
// the fixed-schema output of the engine, and exports them.
package record

import (
	"github.com/tsawler/sqextract/model"
)

// Status is the overall state of a record
type Status string

const (
	StatusOK             Status = "ok"
	StatusRequiresReview Status = "requires_review"
	StatusUnmatched      Status = "unmatched"
)

// StructuredRecord is the output for one quotation document. Unresolved
// values are nil and serialize as null.
type StructuredRecord struct {
	DocumentID string        `json:"document_id"`
	Status     Status        `json:"status"`
	Confidence float64       `json:"confidence"`
	Template   *TemplateInfo `json:"template"`

	Project  Project   `json:"project"`
	Products []Product `json:"products"`
	Summary  Summary   `json:"summary"`

	Issues     []model.Issue         `json:"issues"`
	Provenance map[string]Provenance `json:"provenance"`
}

// TemplateInfo identifies the matched template variant.
type TemplateInfo struct {
	Name            string  `json:"name"`
	Version         string  `json:"version"`
	MatchConfidence float64 `json:"match_confidence"`
}

// Project is the quotation header block.
type Project struct {
	ProjectName *string `json:"project_name"`
	ClientName  *string `json:"client_name"`
	QuotationNo *string `json:"quotation_no"`
	Date        *string `json:"date"`
	PreparedBy  *string `json:"prepared_by"`
}

// Product is one row of the quotation table.
type Product struct {
	SrNo        *int64            `json:"sr_no"`
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	Dimensions  *model.Dimensions `json:"dimensions"`
	Area        *float64          `json:"area"`
	Material    *string           `json:"material"`
	Finish      *string           `json:"finish"`
	Qty         *float64          `json:"qty"`
	UnitPrice   *float64          `json:"unit_price"`
	Amount      *float64          `json:"amount"`
	Images      []model.ImageRef  `json:"images"`

	Confidence float64      `json:"confidence"`
	Status     model.Status `json:"status"`
}

// Summary is the totals block.
type Summary struct {
	Subtotal   *float64     `json:"subtotal"`
	Tax        *float64     `json:"tax"`
	GrandTotal *float64     `json:"grand_total"`
	Confidence float64      `json:"confidence"`
	Status     model.Status `json:"status"`
}

// Provenance records where a value came from.
type Provenance struct {
	Raw        string       `json:"raw"`
	Source     model.Source `json:"source"`
	Confidence float64      `json:"confidence"`
	Status     model.Status `json:"status"`
	Page       int          `json:"page"`
	Region     Region       `json:"region"`
}

// Region is a page rectangle in points, origin top-left.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Aggregation selects how field confidences combine
type Aggregation string

const (
	AggregateMin      Aggregation = "min"
	AggregateMean     Aggregation = "mean"
	AggregateWeighted Aggregation = "weighted"
)

// Options controls record assembly
type Options struct {
	// Aggregation combines field confidences (default: min)
	Aggregation Aggregation

	// Weights are per-field-name weights for AggregateWeighted; fields not
	// listed weigh 1
	Weights map[string]float64
}

// DefaultOptions returns sensible default options
func DefaultOptions() Options {
	return Options{Aggregation: AggregateMin}
}

// Build assembles a record from a validated extraction.
func Build(ex *model.Extraction, opts Options) *StructuredRecord {
	r := &StructuredRecord{
		DocumentID: ex.DocumentID,
		Status:     StatusOK,
		Template: &TemplateInfo{
			Name:            ex.Template.Name,
			Version:         ex.Template.Version,
			MatchConfidence: ex.Template.Confidence,
		},
		Products:   make([]Product, 0, len(ex.Rows)),
		Issues:     append(make([]model.Issue, 0, len(ex.Issues)), ex.Issues...),
		Provenance: make(map[string]Provenance),
	}
	if ex.RequiresReview {
		r.Status = StatusRequiresReview
	}

	for _, f := range ex.Header {
		r.Provenance[model.HeaderPath(f.Name)] = provenance(f)
		switch f.Name {
		case model.FieldProjectName:
			r.Project.ProjectName = f.Text
		case model.FieldClientName:
			r.Project.ClientName = f.Text
		case model.FieldQuotationNo:
			r.Project.QuotationNo = f.Text
		case model.FieldDate:
			r.Project.Date = f.Text
		case model.FieldPreparedBy:
			r.Project.PreparedBy = f.Text
		}
	}

	// fields in a fixed order so aggregates are reproducible
	all := append([]*model.Field(nil), ex.Header...)
	for i, row := range ex.Rows {
		var fields []*model.Field
		for _, name := range sortedNames(row) {
			f := row.Fields[name]
			fields = append(fields, f)
			r.Provenance[model.RowPath(i, name)] = provenance(f)
		}
		r.Products = append(r.Products, product(row, aggregate(fields, opts)))
		all = append(all, fields...)
	}
	all = append(all, ex.Summary...)

	for _, f := range ex.Summary {
		r.Provenance[model.SummaryPath(f.Name)] = provenance(f)
		switch f.Name {
		case model.FieldSubtotal:
			r.Summary.Subtotal = f.Number
		case model.FieldTax:
			r.Summary.Tax = f.Number
		case model.FieldGrandTotal:
			r.Summary.GrandTotal = f.Number
		}
	}
	r.Summary.Confidence = aggregate(ex.Summary, opts)
	r.Summary.Status = ex.SummaryStatus
	if r.Summary.Status == "" {
		r.Summary.Status = model.StatusOK
	}

	r.Confidence = aggregate(all, opts)
	return r
}

// Unmatched returns the record for a document that matched no template: no
// template, no products, and a single no_template_match issue.
func Unmatched(documentID, reason string) *StructuredRecord {
	return &StructuredRecord{
		DocumentID: documentID,
		Status:     StatusUnmatched,
		Products:   []Product{},
		Summary:    Summary{Status: model.StatusFailed},
		Issues: []model.Issue{{
			FieldPath: "",
			Kind:      model.IssueNoTemplateMatch,
			Message:   reason,
		}},
		Provenance: map[string]Provenance{},
	}
}

func product(row *model.Row, confidence float64) Product {
	p := Product{
		Name:        text(row.Get(model.FieldName)),
		Description: text(row.Get(model.FieldDescription)),
		Area:        number(row.Get(model.FieldArea)),
		Material:    text(row.Get(model.FieldMaterial)),
		Finish:      text(row.Get(model.FieldFinish)),
		Qty:         number(row.Get(model.FieldQty)),
		UnitPrice:   number(row.Get(model.FieldUnitPrice)),
		Amount:      number(row.Get(model.FieldAmount)),
		Images:      append(make([]model.ImageRef, 0, len(row.Images)), row.Images...),
		Confidence:  confidence,
		Status:      row.Status,
	}
	if f := row.Get(model.FieldDimensions); f != nil {
		p.Dimensions = f.Dimensions
	}
	if n, ok := row.Get(model.FieldSerial).Float(); ok {
		sr := int64(n)
		p.SrNo = &sr
	}
	if p.Status == "" {
		p.Status = model.StatusOK
	}
	return p
}

func text(f *model.Field) *string {
	if f == nil {
		return nil
	}
	return f.Text
}

func number(f *model.Field) *float64 {
	if f == nil {
		return nil
	}
	return f.Number
}

func provenance(f *model.Field) Provenance {
	return Provenance{
		Raw:        f.Raw,
		Source:     f.Source,
		Confidence: f.Confidence,
		Status:     f.Status,
		Page:       f.Page,
		Region:     Region{X: f.Region.X, Y: f.Region.Y, Width: f.Region.Width, Height: f.Region.Height},
	}
}
