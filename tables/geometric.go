package tables

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tsawler/sqextract/model"
)

// Config holds segmentation configuration
type Config struct {
	// Tolerance for grouping aligned rules (points)
	AlignmentTolerance float64

	// Top-edge difference under which tokens share a visual line (points)
	LineTolerance float64

	// Fraction of the table width a horizontal rule must cover to separate
	// rows
	MinRuleCoverage float64

	// Without rules or serial numbers, a gap wider than GapFactor times the
	// median line pitch starts a new row
	GapFactor float64

	// Seeds snap to vertical rules within SnapRatio of the page width, capped
	// at half the narrowest column
	SnapRatio float64

	// Text crossing a column boundary by more than StraddleMargin on both
	// sides makes the segmentation ambiguous (points)
	StraddleMargin float64
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		AlignmentTolerance: 3.0,
		LineTolerance:      3.0,
		MinRuleCoverage:    0.5,
		GapFactor:          1.5,
		SnapRatio:          0.03,
		StraddleMargin:     2.0,
	}
}

// Seed is an expected column in document coordinates.
type Seed struct {
	Field       string
	Left, Right float64
}

// Band is the part of the table region on one page.
type Band struct {
	Page   int
	Region model.BBox

	// HeaderBottom is the y below which data rows start on the page holding
	// the header row; zero on continuation pages.
	HeaderBottom float64

	// Tokens are the text, rule and image tokens of the page. Only those in
	// Region are used.
	Tokens []model.Token
}

// RowMode records how rows were separated.
type RowMode string

const (
	RowsByRules  RowMode = "rules"
	RowsBySerial RowMode = "serial"
	RowsByGap    RowMode = "gap"
)

// Segmenter splits a table region into rows and columns using rule lines,
// serial numbers and whitespace.
type Segmenter struct {
	config Config
}

// NewSegmenter creates a segmenter
func NewSegmenter(config Config) *Segmenter {
	return &Segmenter{config: config}
}

// line is a cluster of text tokens sharing a top edge
type line struct {
	page   int
	top    float64
	bottom float64
	tokens []model.Token
}

func (l line) center() float64 {
	return (l.top + l.bottom) / 2
}

// Segment cuts the bands into logical rows. serialField names the serial
// column, or is empty when the table has none.
func (s *Segmenter) Segment(bands []Band, seeds []Seed, serialField string, pageWidth float64) *Layout {
	layout := &Layout{}
	if len(seeds) == 0 {
		return layout
	}

	tableLeft, tableRight := seeds[0].Left, seeds[0].Right
	for _, sd := range seeds[1:] {
		tableLeft = math.Min(tableLeft, sd.Left)
		tableRight = math.Max(tableRight, sd.Right)
	}

	var pending *builder
	for bi, band := range bands {
		text, rules, images := s.split(band)

		cols, reasons := s.snapColumns(seeds, rules, band.Region, pageWidth)
		layout.Ambiguous = layout.Ambiguous || len(reasons) > 0
		layout.Reasons = append(layout.Reasons, reasons...)
		if bi == 0 {
			layout.Columns = cols
		}

		lines := s.clusterLines(text, band.Page)
		if straddle := s.straddling(lines, cols); len(straddle) > 0 {
			layout.Ambiguous = true
			layout.Reasons = append(layout.Reasons, straddle...)
		}

		serialCol, hasSerial := columnFor(cols, serialField)
		separators := s.separators(rules, band.Region, tableLeft, tableRight)
		if splitsLines(separators, lines) {
			layout.Mode = RowsByRules
			if pending != nil {
				layout.Rows = append(layout.Rows, pending.finish(pending.limit))
				pending = nil
			}
			layout.Rows = append(layout.Rows, s.rowsByRules(band, lines, separators, cols, images, serialCol, hasSerial)...)
			continue
		}

		if hasSerial && hasSerialLine(lines, serialCol) {
			layout.Mode = RowsBySerial
		} else if layout.Mode != RowsBySerial {
			layout.Mode = RowsByGap
		}
		gap := s.config.GapFactor * medianPitch(lines)

		for i, l := range lines {
			var start bool
			if layout.Mode == RowsBySerial {
				start = lineHasSerial(l, serialCol)
				if pending == nil && !start {
					// text above the first serial number belongs to no row
					continue
				}
			} else {
				start = pending == nil || i == 0 || (gap > 0 && l.top-lines[i-1].top > gap)
			}
			if start {
				if pending != nil {
					bottom := pending.limit
					if pending.page == l.page {
						bottom = l.top
					}
					layout.Rows = append(layout.Rows, pending.finish(bottom))
				}
				pending = newBuilder(band.Page, cols, l.top, band.Region.Bottom(), images)
			}
			pending.add(l)
		}
	}
	if pending != nil {
		layout.Rows = append(layout.Rows, pending.finish(pending.limit))
	}

	for i, r := range layout.Rows {
		r.Index = i
	}
	return layout
}

// split separates the band's tokens by kind, keeping those inside the
// region and below the header row.
func (s *Segmenter) split(b Band) (text, rules, images []model.Token) {
	for _, t := range b.Tokens {
		if t.Page != b.Page || !t.BBox.Intersects(b.Region) {
			continue
		}
		c := t.BBox.Center()
		switch t.Kind {
		case model.TokenKindText:
			if b.Region.Contains(c) && c.Y > b.HeaderBottom {
				text = append(text, t)
			}
		case model.TokenKindRule:
			rules = append(rules, t)
		case model.TokenKindImage:
			if c.Y > b.HeaderBottom {
				images = append(images, t)
			}
		}
	}
	return text, rules, images
}

// clusterLines groups tokens into visual lines, top to bottom.
func (s *Segmenter) clusterLines(tokens []model.Token, page int) []line {
	if len(tokens) == 0 {
		return nil
	}
	sorted := make([]model.Token, len(tokens))
	copy(sorted, tokens)
	model.SortReadingOrder(sorted, s.config.LineTolerance)

	var lines []line
	for _, t := range sorted {
		n := len(lines)
		if n > 0 && math.Abs(t.BBox.Top()-lines[n-1].top) <= s.config.LineTolerance {
			lines[n-1].tokens = append(lines[n-1].tokens, t)
			lines[n-1].bottom = math.Max(lines[n-1].bottom, t.BBox.Bottom())
			continue
		}
		lines = append(lines, line{page: page, top: t.BBox.Top(), bottom: t.BBox.Bottom(), tokens: []model.Token{t}})
	}
	return lines
}

// separators returns the y positions of horizontal rules that span enough
// of the table width, top to bottom.
func (s *Segmenter) separators(rules []model.Token, region model.BBox, left, right float64) []float64 {
	var ys []float64
	for _, g := range GroupRules(rules, true, s.config.AlignmentTolerance) {
		if g.Position < region.Top() || g.Position > region.Bottom() {
			continue
		}
		if g.Coverage(left, right) >= s.config.MinRuleCoverage {
			ys = append(ys, g.Position)
		}
	}
	return ys
}

// splitsLines reports whether any separator lies between two text lines.
func splitsLines(separators []float64, lines []line) bool {
	for _, y := range separators {
		above, below := false, false
		for _, l := range lines {
			if l.center() < y {
				above = true
			} else {
				below = true
			}
		}
		if above && below {
			return true
		}
	}
	return false
}

// rowsByRules cuts rows at the separators. Inside one ruled band a second
// serial number still starts a new row.
func (s *Segmenter) rowsByRules(band Band, lines []line, separators []float64, cols []Column, images []model.Token, serialCol Column, hasSerial bool) []*Row {
	edges := append([]float64{band.Region.Top()}, separators...)
	edges = append(edges, band.Region.Bottom())

	var rows []*Row
	for i := 0; i+1 < len(edges); i++ {
		top, bottom := edges[i], edges[i+1]
		var b *builder
		serialSeen := false
		for _, l := range lines {
			if c := l.center(); c < top || c >= bottom {
				continue
			}
			serial := hasSerial && lineHasSerial(l, serialCol)
			if b != nil && serial && serialSeen {
				rows = append(rows, b.finish(l.top))
				b = newBuilder(band.Page, cols, l.top, bottom, images)
			}
			if b == nil {
				b = newBuilder(band.Page, cols, top, bottom, images)
			}
			serialSeen = serialSeen || serial
			b.add(l)
		}
		if b != nil {
			rows = append(rows, b.finish(bottom))
		}
	}
	return rows
}

// straddling lists text tokens crossing an inner column boundary.
func (s *Segmenter) straddling(lines []line, cols []Column) []string {
	var out []string
	m := s.config.StraddleMargin
	for _, l := range lines {
		for _, t := range l.tokens {
			for _, c := range cols[1:] {
				if t.BBox.Left() < c.Left-m && t.BBox.Right() > c.Left+m {
					out = append(out, fmt.Sprintf("text %q straddles the boundary at x=%.1f", t.Text, c.Left))
				}
			}
		}
	}
	return out
}

// snapColumns moves seed boundaries onto nearby vertical rules. The snap
// radius is at most half the narrowest seed.
func (s *Segmenter) snapColumns(seeds []Seed, rules []model.Token, region model.BBox, pageWidth float64) ([]Column, []string) {
	snap := s.config.SnapRatio * pageWidth
	for _, sd := range seeds {
		if w := sd.Right - sd.Left; w > 0 {
			snap = math.Min(snap, w/2)
		}
	}
	var groups []RuleGroup
	for _, g := range GroupRules(rules, false, s.config.AlignmentTolerance) {
		if g.Overlaps(region.Top(), region.Bottom()) {
			groups = append(groups, g)
		}
	}

	var reasons []string
	snapped := make(map[float64]float64)
	snapEdge := func(x float64) float64 {
		if v, ok := snapped[x]; ok {
			return v
		}
		best, near := x, 0
		bestDist := math.Inf(1)
		for _, g := range groups {
			d := math.Abs(g.Position - x)
			if d > snap {
				continue
			}
			near++
			if d < bestDist {
				best, bestDist = g.Position, d
			}
		}
		if near >= 2 {
			reasons = append(reasons, fmt.Sprintf("%d rules near the boundary at x=%.1f", near, x))
		}
		snapped[x] = best
		return best
	}

	cols := make([]Column, len(seeds))
	for i, sd := range seeds {
		left, right := snapEdge(sd.Left), snapEdge(sd.Right)
		cols[i] = Column{
			Field:   sd.Field,
			Left:    left,
			Right:   right,
			Snapped: left != sd.Left || right != sd.Right,
		}
	}
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Left < cols[j].Left })
	return cols, reasons
}

func columnFor(cols []Column, field string) (Column, bool) {
	if field == "" {
		return Column{}, false
	}
	for _, c := range cols {
		if c.Field == field {
			return c, true
		}
	}
	return Column{}, false
}

func hasSerialLine(lines []line, col Column) bool {
	for _, l := range lines {
		if lineHasSerial(l, col) {
			return true
		}
	}
	return false
}

// lineHasSerial reports whether the line carries a serial number in col.
func lineHasSerial(l line, col Column) bool {
	for _, t := range l.tokens {
		if x := t.BBox.Center().X; x >= col.Left && x <= col.Right && IsSerial(t.Text) {
			return true
		}
	}
	return false
}

// IsSerial reports whether text is a row serial number such as "3", "3." or
// "(3)".
func IsSerial(text string) bool {
	text = strings.Trim(strings.TrimSpace(text), ".)(")
	if text == "" || len(text) > 4 {
		return false
	}
	n, err := strconv.Atoi(text)
	return err == nil && n > 0
}

// medianPitch returns the median distance between consecutive line tops.
func medianPitch(lines []line) float64 {
	if len(lines) < 2 {
		return 0
	}
	pitches := make([]float64, 0, len(lines)-1)
	for i := 1; i < len(lines); i++ {
		pitches = append(pitches, lines[i].top-lines[i-1].top)
	}
	return median(pitches)
}

// Utility functions

// median returns the median of values.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
