package templates

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/tsawler/sqextract/model"
	"github.com/xuri/excelize/v2"
)

// ErrNoTableHeader is returned when a workbook has no serial-number header
// cell to anchor the product table.
var ErrNoTableHeader = errors.New("no table header row found")

// Excel widths are in characters of the default font; this converts them to
// points.
const pointsPerChar = 5.6

// headerLabels maps header block labels to output fields. Order matters:
// longer labels are tried first.
var headerLabels = []struct {
	label, field string
}{
	{"quotation no", "quotation_no"},
	{"project name", "project_name"},
	{"client name", "client_name"},
	{"prepared by", "prepared_by"},
	{"date", "date"},
}

// columnLabels maps product table headers to output fields.
var columnLabels = []struct {
	label, field string
	typ          model.ValueType
}{
	{"s.no", "sr_no", model.TypeInteger},
	{"sr no", "sr_no", model.TypeInteger},
	{"product description", "name", model.TypeText},
	{"size / dimensions", "dimensions", model.TypeDimensions},
	{"dimensions", "dimensions", model.TypeDimensions},
	{"description", "name", model.TypeText},
	{"size", "dimensions", model.TypeDimensions},
	{"area", "area", model.TypeArea},
	{"material", "material", model.TypeText},
	{"finish", "finish", model.TypeText},
	{"quantity", "qty", model.TypeNumber},
	{"qty", "qty", model.TypeNumber},
	{"unit price", "unit_price", model.TypeCurrency},
	{"rate", "unit_price", model.TypeCurrency},
	{"amount", "amount", model.TypeCurrency},
	{"reference image", "images", model.TypeImage},
	{"image", "images", model.TypeImage},
}

var serialLabels = []string{"s.no", "s.no.", "s. no.", "sr no", "sr.no", "sr. no."}

var summaryLabels = []struct {
	label, anchor, field string
}{
	{"grand total", "grand_total", "grand_total"},
	{"sub total", "sub_total", "subtotal"},
	{"subtotal", "sub_total", "subtotal"},
	{"tax", "tax", "tax"},
	{"gst", "tax", "tax"},
}

// ImportOptions configures ImportXLSX
type ImportOptions struct {
	Name    string
	Version string

	// Sheet to read; the active sheet when empty.
	Sheet string

	// PageWidth and PageHeight of the reference page (default A4 portrait).
	PageWidth  float64
	PageHeight float64

	// Margin is the left/top page margin the sheet is placed at (default 36).
	Margin float64
}

func (o *ImportOptions) defaults() {
	if o.Name == "" {
		o.Name = "sq-imported"
	}
	if o.Version == "" {
		o.Version = "1"
	}
	if o.PageWidth <= 0 {
		o.PageWidth = 595
	}
	if o.PageHeight <= 0 {
		o.PageHeight = 842
	}
	if o.Margin <= 0 {
		o.Margin = 36
	}
}

// sheetGeometry converts 1-based cell coordinates to page points.
type sheetGeometry struct {
	colX []float64 // colX[c] is the left edge of column c; colX[0] unused
	rowY []float64 // rowY[r] is the top edge of row r
}

func (g sheetGeometry) x(col int) float64 {
	if col >= len(g.colX) {
		return g.colX[len(g.colX)-1]
	}
	return g.colX[col]
}

func (g sheetGeometry) y(row int) float64 {
	if row >= len(g.rowY) {
		return g.rowY[len(g.rowY)-1]
	}
	return g.rowY[row]
}

func (g sheetGeometry) height(row int) float64 {
	return g.y(row+1) - g.y(row)
}

// ImportXLSX derives a template variant from a sample quotation workbook.
// Header labels become anchors whose value sits in the next cell, the row
// holding a serial-number header becomes the table header, and column
// widths and row heights give the reference coordinates.
func ImportXLSX(r io.Reader, opts ImportOptions) (*Variant, error) {
	opts.defaults()

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	maxCols := 0
	for _, row := range rows {
		maxCols = max(maxCols, len(row))
	}
	geo, err := measureSheet(f, sheet, len(rows), maxCols, opts)
	if err != nil {
		return nil, err
	}

	v := &Variant{
		Name:       opts.Name,
		Version:    opts.Version,
		PageWidth:  opts.PageWidth,
		PageHeight: opts.PageHeight,
	}

	headerRow := findSerialRow(rows)
	if headerRow == 0 {
		return nil, ErrNoTableHeader
	}

	importHeaderBlock(v, rows[:headerRow-1], geo)
	if err := importTable(v, rows, headerRow, geo); err != nil {
		return nil, err
	}
	importSummary(v, rows, headerRow, geo)

	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// ImportXLSXFile imports a sample workbook from disk. Without a name the
// variant is named after the file.
func ImportXLSXFile(path string, opts ImportOptions) (*Variant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample %s: %w", path, err)
	}
	defer f.Close()

	if opts.Name == "" {
		opts.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	v, err := ImportXLSX(f, opts)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", path, err)
	}
	return v, nil
}

func measureSheet(f *excelize.File, sheet string, nRows, nCols int, opts ImportOptions) (sheetGeometry, error) {
	geo := sheetGeometry{
		colX: make([]float64, nCols+2),
		rowY: make([]float64, nRows+2),
	}

	widths := make([]float64, nCols+1)
	var total float64
	for c := 1; c <= nCols; c++ {
		name, err := excelize.ColumnNumberToName(c)
		if err != nil {
			return geo, err
		}
		w, err := f.GetColWidth(sheet, name)
		if err != nil {
			return geo, err
		}
		widths[c] = w * pointsPerChar
		total += widths[c]
	}

	// Shrink to the printable width, the way a print-to-PDF would.
	scale := 1.0
	if printable := opts.PageWidth - 2*opts.Margin; total > printable && total > 0 {
		scale = printable / total
	}

	geo.colX[1] = opts.Margin
	for c := 1; c <= nCols; c++ {
		geo.colX[c+1] = geo.colX[c] + widths[c]*scale
	}

	geo.rowY[1] = opts.Margin
	for r := 1; r <= nRows; r++ {
		h, err := f.GetRowHeight(sheet, r)
		if err != nil {
			return geo, err
		}
		geo.rowY[r+1] = geo.rowY[r] + h*scale
	}
	return geo, nil
}

func normalizeCell(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimRight(strings.TrimSpace(s), ":"))), " ")
}

func findSerialRow(rows [][]string) int {
	for r, row := range rows {
		for _, cell := range row {
			n := normalizeCell(cell)
			for _, l := range serialLabels {
				if n == l {
					return r + 1
				}
			}
		}
	}
	return 0
}

func importHeaderBlock(v *Variant, rows [][]string, geo sheetGeometry) {
	seen := make(map[string]bool)
	for r, row := range rows {
		for c, cell := range row {
			n := normalizeCell(cell)
			if n == "" {
				continue
			}
			for _, hl := range headerLabels {
				if seen[hl.field] || !(n == hl.label || strings.HasPrefix(n, hl.label+" ")) {
					continue
				}
				seen[hl.field] = true

				row1, col1 := r+1, c+1
				label := strings.TrimRight(strings.TrimSpace(cell), ":")
				v.Anchors = append(v.Anchors, Anchor{
					Name:     hl.field,
					Labels:   []string{label},
					X:        geo.x(col1) + 2,
					Y:        geo.y(row1) + 2,
					Required: hl.field == "project_name" || hl.field == "quotation_no",
				})

				typ := model.TypeText
				if hl.field == "date" {
					typ = model.TypeDate
				}
				// label cell plus the value cell to its right
				v.Header = append(v.Header, FieldMapping{
					Field:  hl.field,
					Type:   typ,
					Anchor: hl.field,
					Region: Region{
						X:      -4,
						Y:      -4,
						Width:  geo.x(col1+2) - geo.x(col1) + 4,
						Height: math.Max(geo.height(row1), 12) + 4,
					},
					Required:   hl.field == "project_name" || hl.field == "quotation_no",
					StripLabel: true,
				})
				break
			}
		}
	}
}

func importTable(v *Variant, rows [][]string, headerRow int, geo sheetGeometry) error {
	seen := make(map[string]bool)
	var serialCol int

	for c, cell := range rows[headerRow-1] {
		n := normalizeCell(cell)
		if n == "" {
			continue
		}
		for _, cl := range columnLabels {
			if seen[cl.field] || !strings.Contains(n, cl.label) {
				continue
			}
			seen[cl.field] = true
			col1 := c + 1
			if cl.field == "sr_no" {
				serialCol = col1
			}
			v.Table.Columns = append(v.Table.Columns, Column{
				Field:    cl.field,
				Type:     cl.typ,
				Headers:  []string{strings.TrimSpace(cell)},
				Left:     geo.x(col1),
				Right:    geo.x(col1 + 1),
				Required: cl.field == "sr_no" || cl.field == "qty" || cl.field == "amount",
			})
			break
		}
	}
	if serialCol == 0 {
		return ErrNoTableHeader
	}

	v.Anchors = append(v.Anchors, Anchor{
		Name:     "table_header",
		Labels:   []string{strings.TrimSpace(rows[headerRow-1][serialCol-1])},
		X:        geo.x(serialCol) + 2,
		Y:        geo.y(headerRow) + 2,
		Required: true,
	})
	v.Table.HeaderAnchor = "table_header"
	v.Table.HeaderHeight = geo.height(headerRow)
	v.Table.SerialField = "sr_no"
	if seen["name"] {
		v.Table.NameField = "name"
		v.Table.DescriptionField = "description"
	}
	return nil
}

func importSummary(v *Variant, rows [][]string, headerRow int, geo sheetGeometry) {
	seen := make(map[string]bool)
	_, tableRight := v.Table.Bounds()

	for r := headerRow; r < len(rows); r++ {
		for c, cell := range rows[r] {
			n := normalizeCell(cell)
			if n == "" {
				continue
			}
			for _, sl := range summaryLabels {
				if seen[sl.anchor] || !(n == sl.label || strings.HasPrefix(n, sl.label+" ")) {
					continue
				}
				seen[sl.anchor] = true

				row1, col1 := r+1, c+1
				x := geo.x(col1) + 2
				v.Anchors = append(v.Anchors, Anchor{
					Name:     sl.anchor,
					Labels:   []string{strings.TrimRight(strings.TrimSpace(cell), ":")},
					X:        x,
					Y:        geo.y(row1) + 2,
					Floating: true,
				})
				v.Summary = append(v.Summary, FieldMapping{
					Field:  sl.field,
					Type:   model.TypeCurrency,
					Anchor: sl.anchor,
					Region: Region{
						X:      -4,
						Y:      -4,
						Width:  math.Max(tableRight-x, geo.x(col1+2)-geo.x(col1)) + 4,
						Height: math.Max(geo.height(row1), 12) + 4,
					},
					Required:   sl.field != "tax",
					StripLabel: true,
				})
				if sl.anchor == "sub_total" {
					v.Table.EndAnchor = sl.anchor
				}
				break
			}
		}
	}

	if v.Table.EndAnchor == "" && seen["grand_total"] {
		v.Table.EndAnchor = "grand_total"
	}
}
