// Package extract cuts the raw content of a matched document into fields.
//
// Header and summary fields are read from regions placed relative to their
// anchors. The product table is read from the region between the table
// header and the end anchor, possibly over several pages, and segmented into
// rows and columns with package tables. Nothing is normalized here; values
// stay raw text with their tokens and regions attached.
package extract

import (
	"errors"
	"math"
	"strings"

	"github.com/tsawler/sqextract/anchor"
	"github.com/tsawler/sqextract/match"
	"github.com/tsawler/sqextract/model"
	"github.com/tsawler/sqextract/tables"
	"github.com/tsawler/sqextract/templates"
)

// ErrNoMatch is returned when Extract is called without a matched variant.
var ErrNoMatch = errors.New("extract: no matched variant")

// Config holds configuration for field extraction
type Config struct {
	// LineTolerance is the top-edge difference under which tokens share a
	// line (default: 3)
	LineTolerance float64

	// ToleranceRatio is used when stripping labels (default: 0.2)
	ToleranceRatio float64

	Tables tables.Config
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		LineTolerance:  3.0,
		ToleranceRatio: 0.2,
		Tables:         tables.DefaultConfig(),
	}
}

// RawField is the unnormalized content of one field.
type RawField struct {
	Name     string
	Type     model.ValueType
	Required bool

	// Text is the concatenated token text, label removed when requested.
	Text   string
	Tokens []model.Token

	Page   int
	Region model.BBox

	// Located is false when the field's region could not be placed, for
	// example when its floating anchor was not found.
	Located bool
}

// RawRow is one product row before normalization.
type RawRow struct {
	Index  int
	Page   int
	BBox   model.BBox
	Fields map[string]*RawField
	Order  []string // field names in column order
	Images []model.ImageRef
}

// Get returns the named field or nil
func (r *RawRow) Get(name string) *RawField {
	return r.Fields[name]
}

// Region is a rectangle on one page.
type Region struct {
	Page int
	BBox model.BBox
}

// Result is the raw extraction of one document.
type Result struct {
	DocumentID string
	Variant    *templates.Variant
	Template   model.TemplateRef
	Transform  model.Transform

	Header  []*RawField
	Summary []*RawField
	Rows    []*RawRow

	// TableRegions cover the table including its header row, one per page.
	TableRegions []Region

	// Layout is the rule-based segmentation the rows were built from.
	Layout *tables.Layout

	// Ambiguous reports that the rule-based segmentation is uncertain and a
	// table recognizer should be consulted.
	Ambiguous bool
}

// Extractor extracts raw fields from matched documents. It is safe for
// concurrent use.
type Extractor struct {
	config Config
}

// New creates an extractor
func New(config Config) *Extractor {
	return &Extractor{config: config}
}

// Extract reads the header, summary and table of doc using the matched
// variant and transform.
func (e *Extractor) Extract(doc *model.Document, m *match.Result) (*Result, error) {
	if m == nil || m.Variant == nil {
		return nil, ErrNoMatch
	}
	v := m.Variant

	res := &Result{
		DocumentID: doc.ID,
		Variant:    v,
		Template:   model.TemplateRef{Name: v.Name, Version: v.Version, Confidence: m.Confidence},
		Transform:  m.Transform,
	}

	ix := NewIndex(doc)
	for _, fm := range v.Header {
		res.Header = append(res.Header, e.field(ix, v, m, fm))
	}
	for _, fm := range v.Summary {
		res.Summary = append(res.Summary, e.field(ix, v, m, fm))
	}

	e.table(doc, v, m, res)
	return res, nil
}

// place maps a field region into document space. It returns false when the
// region cannot be placed.
func place(v *templates.Variant, m *match.Result, fm templates.FieldMapping) (int, model.BBox, bool) {
	t := m.Transform
	r := fm.Region.BBox()
	if fm.Anchor == "" {
		return 0, t.ApplyBox(r), true
	}

	if got := m.Anchor(fm.Anchor); got != nil {
		origin := got.BBox.TopLeft()
		return got.Page, model.NewBBox(
			origin.X+r.X*t.ScaleX,
			origin.Y+r.Y*t.ScaleY,
			r.Width*t.ScaleX,
			r.Height*t.ScaleY,
		), true
	}

	ref, ok := v.Anchor(fm.Anchor)
	if !ok || ref.Floating {
		// a floating anchor has no fixed position to fall back to
		return 0, model.BBox{}, false
	}
	r.X += ref.X
	r.Y += ref.Y
	return ref.Page, t.ApplyBox(r), true
}

func (e *Extractor) field(ix *Index, v *templates.Variant, m *match.Result, fm templates.FieldMapping) *RawField {
	f := &RawField{Name: fm.Field, Type: fm.Type, Required: fm.Required}

	page, box, ok := place(v, m, fm)
	if !ok {
		return f
	}
	f.Located, f.Page, f.Region = true, page, box

	f.Tokens = ix.Search(page, box)
	model.SortReadingOrder(f.Tokens, e.config.LineTolerance)
	f.Text = joinTokens(f.Tokens)

	if fm.StripLabel && fm.Anchor != "" {
		labels := []string{}
		if got := m.Anchor(fm.Anchor); got != nil {
			labels = append(labels, got.Label)
		}
		if ref, ok := v.Anchor(fm.Anchor); ok {
			labels = append(labels, ref.Labels...)
		}
		f.Text, _ = anchor.StripLabel(f.Text, labels, e.config.ToleranceRatio)
	}
	return f
}

func joinTokens(tokens []model.Token) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if s := strings.TrimSpace(t.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// table segments the product table into raw rows.
func (e *Extractor) table(doc *model.Document, v *templates.Variant, m *match.Result, res *Result) {
	hdr := m.Anchor(v.Table.HeaderAnchor)
	if hdr == nil {
		return
	}
	t := m.Transform

	seeds := make([]tables.Seed, len(v.Table.Columns))
	left, right := math.Inf(1), math.Inf(-1)
	for i, c := range v.Table.Columns {
		seeds[i] = tables.Seed{Field: c.Field, Left: t.ApplyX(c.Left), Right: t.ApplyX(c.Right)}
		left = math.Min(left, seeds[i].Left)
		right = math.Max(right, seeds[i].Right)
	}

	startPage := doc.GetPage(hdr.Page)
	if startPage == nil {
		return
	}
	snap := e.config.Tables.SnapRatio * startPage.Width
	left, right = left-snap, right+snap

	endPage, endY := doc.PageCount()-1, math.Inf(1)
	if end := m.Anchor(v.Table.EndAnchor); end != nil && end.Page >= hdr.Page {
		endPage, endY = end.Page, end.BBox.Top()
	}

	headerHeight := v.Table.HeaderHeight * t.ScaleY
	var bands []tables.Band
	for p := hdr.Page; p <= endPage; p++ {
		page := doc.GetPage(p)
		if page == nil {
			continue
		}
		top, regionTop, headerBottom := 0.0, 0.0, 0.0
		if p == hdr.Page {
			top, regionTop = hdr.BBox.Bottom(), hdr.BBox.Top()
			headerBottom = hdr.BBox.Top() + headerHeight
		} else if rep, ok := repeatedHeader(page, hdr.Label, left, right); ok {
			top, regionTop = rep.Bottom(), rep.Top()
			headerBottom = rep.Top() + headerHeight
		}
		bottom := page.Height
		if p == endPage && endY < bottom {
			bottom = endY
		}
		if bottom <= top {
			continue
		}

		bands = append(bands, tables.Band{
			Page:         p,
			Region:       model.NewBBox(left, top, right-left, bottom-top),
			HeaderBottom: headerBottom,
			Tokens:       page.Tokens,
		})
		res.TableRegions = append(res.TableRegions, Region{
			Page: p,
			BBox: model.NewBBox(left, regionTop, right-left, bottom-regionTop),
		})
	}

	seg := tables.NewSegmenter(e.config.Tables)
	layout := seg.Segment(bands, seeds, v.Table.SerialField, startPage.Width)
	res.Layout = layout
	res.Ambiguous = layout.Ambiguous

	for _, row := range layout.Rows {
		res.Rows = append(res.Rows, rawRow(v, row))
	}
}

// repeatedHeader finds the table header label repeated at the top of a
// continuation page.
func repeatedHeader(page *model.Page, label string, left, right float64) (model.BBox, bool) {
	want := anchor.Normalize(label)
	if want == "" {
		return model.BBox{}, false
	}
	for _, t := range page.TextTokens() {
		if t.BBox.Left() < left || t.BBox.Right() > right {
			continue
		}
		if n := anchor.Normalize(t.Text); n == want || strings.HasPrefix(n, want+" ") {
			return t.BBox, true
		}
	}
	return model.BBox{}, false
}

// rawRow converts a segmented row into raw fields. The first line of the
// name column is the name; its continuation lines become the description
// when the table has no column of its own for it.
func rawRow(v *templates.Variant, row *tables.Row) *RawRow {
	r := &RawRow{
		Index:  row.Index,
		Page:   row.Page,
		BBox:   row.BBox,
		Fields: make(map[string]*RawField),
	}
	for _, img := range row.Images {
		r.Images = append(r.Images, model.NewImageRef(img.Page, img.BBox))
	}

	spec := v.Table
	splitName := spec.NameField != "" && spec.DescriptionField != "" && !spec.HasColumn(spec.DescriptionField)

	for _, c := range spec.Columns {
		if c.Type == model.TypeImage {
			continue
		}
		cell := row.Cell(c.Field)
		f := &RawField{Name: c.Field, Type: c.Type, Required: c.Required, Page: row.Page, Located: true}
		if cell != nil {
			f.Text = cell.Text()
			f.Tokens = cell.Tokens
			f.Region = cell.BBox
		}
		r.Fields[c.Field] = f
		r.Order = append(r.Order, c.Field)

		if splitName && c.Field == spec.NameField {
			desc := &RawField{Name: spec.DescriptionField, Type: model.TypeText, Page: row.Page, Region: f.Region, Located: true}
			if cell != nil && len(cell.Lines) > 1 {
				f.Text = cell.Lines[0]
				desc.Text = strings.Join(cell.Lines[1:], " ")
			}
			r.Fields[desc.Name] = desc
			r.Order = append(r.Order, desc.Name)
		}
	}
	return r
}
