package model

import (
	"fmt"
	"math"
)

// Source identifies how a field value was produced
type Source string

const (
	SourceNone       Source = ""
	SourceDirectText Source = "direct_text"
	SourceOCR        Source = "ocr"
	SourceTableAI    Source = "table_ai"
)

// Status is the validation state of a field, row or summary block
type Status string

const (
	StatusOK      Status = "ok"
	StatusFlagged Status = "flagged"
	StatusFailed  Status = "failed"
)

// Worse returns the more severe of two statuses.
func (s Status) Worse(other Status) Status {
	if s.rank() >= other.rank() {
		return s
	}
	return other
}

func (s Status) rank() int {
	switch s {
	case StatusFailed:
		return 2
	case StatusFlagged:
		return 1
	default:
		return 0
	}
}

// ValueType is the declared type of a mapped field
type ValueType string

const (
	TypeText       ValueType = "text"
	TypeNumber     ValueType = "number"
	TypeCurrency   ValueType = "currency"
	TypeInteger    ValueType = "integer"
	TypeDimensions ValueType = "dimensions"
	TypeArea       ValueType = "area"
	TypeDate       ValueType = "date"

	// TypeImage marks a table column that holds pictures, not text.
	TypeImage ValueType = "image"
)

// IsNumeric reports whether values of this type normalize to Field.Number.
func (t ValueType) IsNumeric() bool {
	switch t {
	case TypeNumber, TypeCurrency, TypeInteger, TypeArea:
		return true
	}
	return false
}

// Dimensions is a normalized W×D×H measurement with one shared unit.
type Dimensions struct {
	Width  float64 `json:"width"`
	Depth  float64 `json:"depth"`
	Height float64 `json:"height"`
	Unit   string  `json:"unit"`
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%gx%gx%g %s", d.Width, d.Depth, d.Height, d.Unit)
}

// Field is one extracted value with its provenance. A nil normalized value
// (Text, Number and Dimensions all nil) means the value is unresolved.
type Field struct {
	Name     string
	Type     ValueType
	Required bool

	// Raw is the text as recovered from the document before normalization.
	Raw string

	Text       *string
	Number     *float64
	Dimensions *Dimensions
	// Unit carries the unit of an area value ("sqm", "sqft") when stated.
	Unit string

	Confidence float64
	Source     Source
	Status     Status
	Messages   []string

	Page   int
	Region BBox
}

// NewField creates an unresolved field of the given name and type
func NewField(name string, typ ValueType) *Field {
	return &Field{Name: name, Type: typ, Status: StatusOK}
}

// Resolved reports whether the field carries a normalized value.
func (f *Field) Resolved() bool {
	return f != nil && (f.Text != nil || f.Number != nil || f.Dimensions != nil)
}

// Value returns the normalized value as an interface, or nil when unresolved.
func (f *Field) Value() any {
	switch {
	case f == nil:
		return nil
	case f.Dimensions != nil:
		return *f.Dimensions
	case f.Number != nil:
		return *f.Number
	case f.Text != nil:
		return *f.Text
	}
	return nil
}

// SetConfidence stores c clamped to [0, 1].
func (f *Field) SetConfidence(c float64) {
	if math.IsNaN(c) {
		c = 0
	}
	f.Confidence = math.Max(0, math.Min(1, c))
}

// Fail clears the normalized value and marks the field failed.
func (f *Field) Fail(msg string) {
	f.Text, f.Number, f.Dimensions = nil, nil, nil
	f.Confidence = 0
	f.Status = StatusFailed
	if msg != "" {
		f.Messages = append(f.Messages, msg)
	}
}

// Flag raises the field to flagged (never lowers a failure) and records msg.
func (f *Field) Flag(msg string) {
	f.Status = f.Status.Worse(StatusFlagged)
	if msg != "" {
		f.Messages = append(f.Messages, msg)
	}
}

// Float returns the numeric value and whether it is set.
func (f *Field) Float() (float64, bool) {
	if f == nil || f.Number == nil {
		return 0, false
	}
	return *f.Number, true
}

// Anchor is a located template anchor on a page.
type Anchor struct {
	Name       string
	Label      string // the label variant that matched
	Page       int
	BBox       BBox
	Confidence float64
	Tokens     []Token
}
