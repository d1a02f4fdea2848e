package tables

import (
	"math"
	"sort"
	"strings"

	"github.com/tsawler/sqextract/model"
)

// Column is a table column after snapping to the drawn rules.
type Column struct {
	Field       string
	Left, Right float64
	Snapped     bool
}

// Contains reports whether x falls inside the column
func (c Column) Contains(x float64) bool {
	return x >= c.Left && x <= c.Right
}

// Cell is the content of one column within one logical row.
type Cell struct {
	Field  string
	Tokens []model.Token

	// Lines holds the text of each visual line of the cell, top to bottom.
	Lines []string

	// BBox is the column span times the row band.
	BBox model.BBox
}

// Text returns the cell's lines joined with spaces.
func (c *Cell) Text() string {
	if c == nil {
		return ""
	}
	return strings.Join(c.Lines, " ")
}

// Row is one logical table row.
type Row struct {
	Index  int
	Page   int
	BBox   model.BBox
	Cells  map[string]*Cell
	Images []model.Token
}

// Cell returns the named cell or nil
func (r *Row) Cell(field string) *Cell {
	return r.Cells[field]
}

// Layout is the result of segmenting a table.
type Layout struct {
	Columns []Column
	Rows    []*Row
	Mode    RowMode

	// Ambiguous is set when column boundaries could not be placed with
	// confidence; Reasons explains why.
	Ambiguous bool
	Reasons   []string
}

// builder accumulates visual lines into one row.
type builder struct {
	page  int
	top   float64
	limit float64 // lowest possible bottom on the starting page
	cols  []Column
	imgs  []model.Token
	lines int
	row   *Row
}

func newBuilder(page int, cols []Column, top, limit float64, images []model.Token) *builder {
	b := &builder{
		page:  page,
		top:   top,
		limit: limit,
		cols:  cols,
		imgs:  images,
		row:   &Row{Page: page, Cells: make(map[string]*Cell, len(cols))},
	}
	for _, c := range cols {
		b.row.Cells[c.Field] = &Cell{Field: c.Field}
	}
	return b
}

// add distributes a visual line over the columns.
func (b *builder) add(l line) {
	b.lines++
	parts := make(map[string][]model.Token)
	for _, t := range l.tokens {
		if col, ok := assign(b.cols, t.BBox); ok {
			parts[col] = append(parts[col], t)
		}
	}
	for field, toks := range parts {
		sort.SliceStable(toks, func(i, j int) bool { return toks[i].BBox.X < toks[j].BBox.X })
		texts := make([]string, len(toks))
		for i, t := range toks {
			texts[i] = t.Text
		}
		cell := b.row.Cells[field]
		cell.Tokens = append(cell.Tokens, toks...)
		cell.Lines = append(cell.Lines, strings.Join(texts, " "))
	}
}

// finish closes the row at bottom and collects the images whose centre lies
// in the row band.
func (b *builder) finish(bottom float64) *Row {
	if bottom < b.top {
		bottom = b.top
	}
	r := b.row
	r.BBox = model.NewBBox(b.cols[0].Left, b.top, b.cols[len(b.cols)-1].Right-b.cols[0].Left, bottom-b.top)
	for _, c := range b.cols {
		r.Cells[c.Field].BBox = model.NewBBox(c.Left, b.top, c.Right-c.Left, bottom-b.top)
	}
	for _, img := range b.imgs {
		if y := img.BBox.Center().Y; img.Page == b.page && y >= b.top && y < bottom {
			r.Images = append(r.Images, img)
		}
	}
	return r
}

// assign picks the column holding the token's centre, falling back to the
// column it overlaps most.
func assign(cols []Column, box model.BBox) (string, bool) {
	cx := box.Center().X
	for _, c := range cols {
		if c.Contains(cx) {
			return c.Field, true
		}
	}
	best, bestOverlap := "", 0.0
	for _, c := range cols {
		o := math.Min(box.Right(), c.Right) - math.Max(box.Left(), c.Left)
		if o > bestOverlap {
			best, bestOverlap = c.Field, o
		}
	}
	return best, best != ""
}
