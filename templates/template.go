package templates

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/tsawler/sqextract/model"
)

// Region is a rectangle in reference coordinates. For a field bound to an
// anchor it is relative to the anchor's top-left corner; otherwise it is in
// the variant's page space.
type Region struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Width  float64 `yaml:"width" validate:"gt=0"`
	Height float64 `yaml:"height" validate:"gt=0"`
}

// BBox returns the region as a box
func (r Region) BBox() model.BBox {
	return model.NewBBox(r.X, r.Y, r.Width, r.Height)
}

// Anchor is a fixed label whose position in the reference layout is known.
type Anchor struct {
	Name string `yaml:"name" validate:"required"`

	// Labels are the accepted spellings; the first is canonical.
	Labels []string `yaml:"labels" validate:"required,min=1,dive,required"`

	Page int     `yaml:"page" validate:"gte=0"`
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`

	Required bool `yaml:"required"`

	// Floating anchors move vertically with the table length (the totals
	// block). They are located on x only and never used for the fit.
	Floating bool `yaml:"floating"`
}

// Position returns the reference top-left of the label
func (a Anchor) Position() model.Point {
	return model.Point{X: a.X, Y: a.Y}
}

// FieldMapping binds an output field to a region of the page.
type FieldMapping struct {
	Field      string          `yaml:"field" validate:"required"`
	Type       model.ValueType `yaml:"type" validate:"required,oneof=text number currency integer dimensions area date"`
	Anchor     string          `yaml:"anchor"`
	Region     Region          `yaml:"region"`
	Required   bool            `yaml:"required"`
	StripLabel bool            `yaml:"strip_label"`
}

// Column is one product table column with its reference boundaries.
type Column struct {
	Field    string          `yaml:"field" validate:"required"`
	Type     model.ValueType `yaml:"type" validate:"required,oneof=text number currency integer dimensions area date image"`
	Headers  []string        `yaml:"headers"`
	Left     float64         `yaml:"left"`
	Right    float64         `yaml:"right" validate:"gtfield=Left"`
	Required bool            `yaml:"required"`
}

// Width returns the reference column width
func (c Column) Width() float64 {
	return c.Right - c.Left
}

// TableSpec describes the product table of a variant.
type TableSpec struct {
	// HeaderAnchor names the anchor on the table header row. A variant only
	// matches when this anchor is located.
	HeaderAnchor string `yaml:"header_anchor" validate:"required"`

	// EndAnchor names the anchor that closes the table (totals block).
	EndAnchor string `yaml:"end_anchor"`

	// HeaderHeight is the reference height of the header row.
	HeaderHeight float64 `yaml:"header_height" validate:"gte=0"`

	SerialField      string `yaml:"serial_field"`
	NameField        string `yaml:"name_field"`
	DescriptionField string `yaml:"description_field"`

	Columns []Column `yaml:"columns" validate:"required,min=1,dive"`
}

// Column returns the column for a field
func (t TableSpec) Column(field string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Field == field {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the table has a column for field
func (t TableSpec) HasColumn(field string) bool {
	_, ok := t.Column(field)
	return field != "" && ok
}

// Bounds returns the reference left and right edges of the table
func (t TableSpec) Bounds() (left, right float64) {
	left, right = math.Inf(1), math.Inf(-1)
	for _, c := range t.Columns {
		left = math.Min(left, c.Left)
		right = math.Max(right, c.Right)
	}
	return left, right
}

// Variant is one known layout of the quotation template. Variants are
// immutable reference data.
type Variant struct {
	Name       string  `yaml:"name" validate:"required"`
	Version    string  `yaml:"version" validate:"required"`
	PageWidth  float64 `yaml:"page_width" validate:"gt=0"`
	PageHeight float64 `yaml:"page_height" validate:"gt=0"`

	Anchors []Anchor       `yaml:"anchors" validate:"required,min=1,dive"`
	Header  []FieldMapping `yaml:"header" validate:"dive"`
	Summary []FieldMapping `yaml:"summary" validate:"dive"`
	Table   TableSpec      `yaml:"table"`
}

// Anchor returns the named anchor
func (v *Variant) Anchor(name string) (Anchor, bool) {
	for _, a := range v.Anchors {
		if a.Name == name {
			return a, true
		}
	}
	return Anchor{}, false
}

// Diagonal returns the reference page diagonal
func (v *Variant) Diagonal() float64 {
	return math.Hypot(v.PageWidth, v.PageHeight)
}

// Validate checks struct constraints and cross references between anchors,
// fields and the table.
func (v *Variant) Validate() error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("variant %q: %w", v.Name, err)
	}

	names := make(map[string]bool, len(v.Anchors))
	for _, a := range v.Anchors {
		if names[a.Name] {
			return fmt.Errorf("variant %q: duplicate anchor %q", v.Name, a.Name)
		}
		names[a.Name] = true
	}

	fields := make(map[string]bool)
	check := func(kind string, m FieldMapping) error {
		if fields[m.Field] {
			return fmt.Errorf("variant %q: duplicate field %q", v.Name, m.Field)
		}
		fields[m.Field] = true
		if m.Anchor != "" && !names[m.Anchor] {
			return fmt.Errorf("variant %q: %s field %q references unknown anchor %q", v.Name, kind, m.Field, m.Anchor)
		}
		return nil
	}
	for _, m := range v.Header {
		if err := check("header", m); err != nil {
			return err
		}
	}
	for _, m := range v.Summary {
		if err := check("summary", m); err != nil {
			return err
		}
	}

	if !names[v.Table.HeaderAnchor] {
		return fmt.Errorf("variant %q: table header anchor %q is not defined", v.Name, v.Table.HeaderAnchor)
	}
	if v.Table.EndAnchor != "" && !names[v.Table.EndAnchor] {
		return fmt.Errorf("variant %q: table end anchor %q is not defined", v.Name, v.Table.EndAnchor)
	}
	for _, f := range []string{v.Table.SerialField, v.Table.NameField} {
		if f != "" && !v.Table.HasColumn(f) {
			return fmt.Errorf("variant %q: table has no column %q", v.Name, f)
		}
	}
	return nil
}

var validate = validator.New()
