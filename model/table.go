package model

import "fmt"

// IssueKind classifies a validation or extraction finding
type IssueKind string

const (
	IssueArithmeticMismatch IssueKind = "arithmetic_mismatch"
	IssueFormat             IssueKind = "format"
	IssueAreaMismatch       IssueKind = "area_mismatch"
	IssueTotalMismatch      IssueKind = "total_mismatch"
	IssueSegmentation       IssueKind = "segmentation"
	IssueExtractionFailure  IssueKind = "extraction_failure"
	IssueRecognitionError   IssueKind = "recognition_error"
	IssueLowConfidence      IssueKind = "low_confidence"
	IssueNoTemplateMatch    IssueKind = "no_template_match"
)

// Issue is a finding attached to a field path such as "products[2].amount".
type Issue struct {
	FieldPath string    `json:"field_path"`
	Kind      IssueKind `json:"kind"`
	Message   string    `json:"message"`
}

// Row is one product line of the quotation table.
type Row struct {
	Index  int // 0-based position in the table
	Fields map[string]*Field
	Images []ImageRef
	Status Status
	Source Source

	// Page and BBox locate the row band the fields were cut from.
	Page int
	BBox BBox
}

// NewRow creates an empty row at index i
func NewRow(i int) *Row {
	return &Row{Index: i, Fields: make(map[string]*Field), Status: StatusOK}
}

// Get returns the named field or nil
func (r *Row) Get(name string) *Field {
	if r == nil {
		return nil
	}
	return r.Fields[name]
}

// Set stores a field under its own name
func (r *Row) Set(f *Field) {
	r.Fields[f.Name] = f
}

// TemplateRef identifies the template variant a document was matched to.
type TemplateRef struct {
	Name       string
	Version    string
	Confidence float64
}

// Extraction is the resolved, validated content of one document before it is
// assembled into an output record.
type Extraction struct {
	DocumentID string
	Template   TemplateRef

	Header        []*Field
	Rows          []*Row
	Summary       []*Field
	SummaryStatus Status

	Issues         []Issue
	RequiresReview bool
}

// HeaderField returns the named header field or nil
func (e *Extraction) HeaderField(name string) *Field {
	return findField(e.Header, name)
}

// SummaryField returns the named summary field or nil
func (e *Extraction) SummaryField(name string) *Field {
	return findField(e.Summary, name)
}

// AddIssue appends a finding
func (e *Extraction) AddIssue(path string, kind IssueKind, msg string) {
	e.Issues = append(e.Issues, Issue{FieldPath: path, Kind: kind, Message: msg})
}

// Fields returns every field of the extraction: header, rows, then summary.
func (e *Extraction) Fields() []*Field {
	out := append([]*Field(nil), e.Header...)
	for _, r := range e.Rows {
		for _, f := range r.Fields {
			out = append(out, f)
		}
	}
	return append(out, e.Summary...)
}

func findField(fields []*Field, name string) *Field {
	for _, f := range fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// HeaderPath returns the field path of a header field, e.g. "project.date".
func HeaderPath(name string) string {
	return "project." + name
}

// RowPath returns the field path of a row field, e.g. "products[2].amount".
// An empty name yields the path of the row itself.
func RowPath(index int, name string) string {
	p := fmt.Sprintf("products[%d]", index)
	if name == "" {
		return p
	}
	return p + "." + name
}

// SummaryPath returns the field path of a summary field.
func SummaryPath(name string) string {
	return "summary." + name
}

// Standard field names of the output record. Template variants map their
// columns and anchors onto these.
const (
	FieldProjectName = "project_name"
	FieldClientName  = "client_name"
	FieldQuotationNo = "quotation_no"
	FieldDate        = "date"
	FieldPreparedBy  = "prepared_by"

	FieldSerial      = "sr_no"
	FieldName        = "name"
	FieldDescription = "description"
	FieldDimensions  = "dimensions"
	FieldArea        = "area"
	FieldMaterial    = "material"
	FieldFinish      = "finish"
	FieldQty         = "qty"
	FieldUnitPrice   = "unit_price"
	FieldAmount      = "amount"

	FieldSubtotal   = "subtotal"
	FieldTax        = "tax"
	FieldGrandTotal = "grand_total"
)
