package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/tsawler/sqextract/anchor"
	"github.com/tsawler/sqextract/extract"
	"github.com/tsawler/sqextract/model"
	"github.com/tsawler/sqextract/recognition"
	"github.com/tsawler/sqextract/templates"
)

// arbitrate chooses between the rule-based rows and rows read by the table
// recognizer. The candidate whose serial numbers run 1..N wins; when both
// or neither do, the recognizer's rows win. A recognizer failure keeps the
// rule-based rows.
func (r *Resolver) arbitrate(ctx context.Context, doc *model.Document, raw *extract.Result, ruleRows []*model.Row) ([]*model.Row, []model.Issue, error) {
	reason := "table layout is ambiguous"
	if raw.Layout != nil && len(raw.Layout.Reasons) > 0 {
		reason += ": " + strings.Join(raw.Layout.Reasons, "; ")
	}
	if !r.rec.HasTable() || raw.Variant == nil {
		return ruleRows, []model.Issue{{FieldPath: "products", Kind: model.IssueSegmentation, Message: reason}}, nil
	}

	var grids []recognition.Grid
	for _, region := range raw.TableRegions {
		img := recognition.Render(doc, region.Page, region.BBox, r.rec.Config().Scale)
		grid, err := r.rec.RecognizeTable(ctx, img)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			return ruleRows, []model.Issue{
				{FieldPath: "products", Kind: model.IssueSegmentation, Message: reason},
				{FieldPath: "products", Kind: model.IssueRecognitionError, Message: err.Error()},
			}, nil
		}
		grids = append(grids, grid)
	}

	tableRows := r.gridRows(raw.Variant, grids, ruleRows)
	serial := raw.Variant.Table.SerialField
	if contiguous(ruleRows, serial) && !contiguous(tableRows, serial) {
		return ruleRows, nil, nil
	}
	return tableRows, nil, nil
}

// contiguous reports whether the serial numbers of rows run 1..N.
func contiguous(rows []*model.Row, serial string) bool {
	if serial == "" || len(rows) == 0 {
		return false
	}
	for i, row := range rows {
		n, ok := row.Get(serial).Float()
		if !ok || n != float64(i+1) {
			return false
		}
	}
	return true
}

// gridRows maps recognized grids onto the variant's columns.
func (r *Resolver) gridRows(v *templates.Variant, grids []recognition.Grid, ruleRows []*model.Row) []*model.Row {
	spec := v.Table
	var cols []templates.Column
	for _, c := range spec.Columns {
		if c.Type != model.TypeImage {
			cols = append(cols, c)
		}
	}
	splitName := spec.NameField != "" && spec.DescriptionField != "" && !spec.HasColumn(spec.DescriptionField)

	var rows []*model.Row
	for _, grid := range grids {
		conf := grid.Confidence
		if conf <= 0 {
			conf = r.config.TableConfidence
		}

		data := grid.Rows
		mapping := r.headerMapping(cols, grid)
		if mapping != nil {
			data = data[1:]
		} else {
			mapping = make([]int, len(cols))
			for j := range mapping {
				mapping[j] = j
			}
		}

		for _, cells := range data {
			if blank(cells) {
				continue
			}
			row := model.NewRow(len(rows))
			row.Source = model.SourceTableAI
			for ci, c := range cols {
				text := ""
				if j := indexOf(mapping, ci); j >= 0 && j < len(cells) {
					text = cells[j]
				}

				var desc string
				if splitName && c.Field == spec.NameField {
					lines := strings.Split(text, "\n")
					text, desc = lines[0], strings.Join(lines[1:], " ")
				}
				row.Set(r.cell(c.Field, c.Type, c.Required, text, conf))
				if splitName && c.Field == spec.NameField {
					row.Set(r.cell(spec.DescriptionField, model.TypeText, false, desc, conf))
				}
			}
			rows = append(rows, row)
		}
	}

	attachGeometry(rows, ruleRows, spec.SerialField)
	return rows
}

// headerMapping matches the first grid row to column headers. It returns,
// for each column, the grid column holding it (-1 when absent), or nil when
// the first row is not a header row.
func (r *Resolver) headerMapping(cols []templates.Column, grid recognition.Grid) []int {
	if len(grid.Rows) == 0 {
		return nil
	}
	header := grid.Rows[0]

	mapping := make([]int, len(cols))
	matched, filled := 0, 0
	for i := range mapping {
		mapping[i] = -1
	}
	for j, cell := range header {
		cell = cleanText(cell)
		if cell == "" {
			continue
		}
		filled++
		for ci, c := range cols {
			if mapping[ci] >= 0 {
				continue
			}
			labels := append([]string{c.Field}, c.Headers...)
			if rest, ok := anchor.StripLabel(cell, labels, r.config.HeaderTolerance); ok && rest == "" {
				mapping[ci] = j
				matched++
				break
			}
		}
	}
	if matched < 2 || matched*2 < filled {
		return nil
	}
	return mapping
}

// cell resolves the text of one recognized cell.
func (r *Resolver) cell(name string, typ model.ValueType, required bool, text string, conf float64) *model.Field {
	f := model.NewField(name, typ)
	f.Required = required
	f.Raw = cleanText(text)
	f.Source = model.SourceTableAI
	switch {
	case f.Raw != "":
		if err := normalize(f, f.Raw, r.config.DefaultDimensionUnit); err != nil {
			f.Fail(err.Error())
			return f
		}
		f.SetConfidence(conf)
	case required:
		f.Fail("no value found")
	}
	return f
}

// attachGeometry copies page, band and images from the rule-based rows,
// pairing rows by serial number, or by position when the counts agree.
func attachGeometry(rows, ruleRows []*model.Row, serial string) {
	bySerial := make(map[string]*model.Row)
	for _, rr := range ruleRows {
		if n, ok := rr.Get(serial).Float(); ok {
			bySerial[fmt.Sprint(n)] = rr
		}
	}
	for i, row := range rows {
		var src *model.Row
		if n, ok := row.Get(serial).Float(); ok {
			src = bySerial[fmt.Sprint(n)]
		}
		if src == nil && len(rows) == len(ruleRows) {
			src = ruleRows[i]
		}
		if src == nil {
			continue
		}
		row.Page, row.BBox = src.Page, src.BBox
		row.Images = append([]model.ImageRef(nil), src.Images...)
		for _, f := range row.Fields {
			f.Page = src.Page
		}
	}
}

func indexOf(mapping []int, ci int) int {
	if ci < len(mapping) {
		return mapping[ci]
	}
	return -1
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
