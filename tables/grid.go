package tables

import (
	"math"
	"sort"

	"github.com/tsawler/sqextract/model"
)

// RuleGroup is a set of rule tokens aligned on one axis
type RuleGroup struct {
	// Position on the alignment axis (Y for horizontal rules, X for vertical)
	Position float64

	// Rules in this group
	Rules []model.Token

	// Total length of the rules
	TotalLength float64

	// Span of the rules on the perpendicular axis
	MinExtent float64
	MaxExtent float64

	horizontal bool
}

// extent returns the span of a rule along its length.
func extent(r model.Token, horizontal bool) (lo, hi float64) {
	if horizontal {
		return r.BBox.Left(), r.BBox.Right()
	}
	return r.BBox.Top(), r.BBox.Bottom()
}

// position returns the coordinate of a rule across its length.
func position(r model.Token, horizontal bool) float64 {
	c := r.BBox.Center()
	if horizontal {
		return c.Y
	}
	return c.X
}

// GroupRules groups rules whose positions lie within tolerance of each
// other. Horizontal selects which kind of rule is grouped; rules of the
// other orientation are ignored. Groups are sorted by position.
func GroupRules(rules []model.Token, horizontal bool, tolerance float64) []RuleGroup {
	var lines []model.Token
	for _, r := range rules {
		if (horizontal && r.IsHorizontalRule()) || (!horizontal && r.IsVerticalRule()) {
			lines = append(lines, r)
		}
	}
	if len(lines) == 0 {
		return nil
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return position(lines[i], horizontal) < position(lines[j], horizontal)
	})

	var groups []RuleGroup
	current := RuleGroup{Position: position(lines[0], horizontal), Rules: lines[:1:1], horizontal: horizontal}
	for _, r := range lines[1:] {
		pos := position(r, horizontal)
		if pos-current.Position <= tolerance {
			n := float64(len(current.Rules))
			current.Rules = append(current.Rules, r)
			current.Position = (current.Position*n + pos) / (n + 1)
			continue
		}
		current.finalize()
		groups = append(groups, current)
		current = RuleGroup{Position: pos, Rules: []model.Token{r}, horizontal: horizontal}
	}
	current.finalize()
	return append(groups, current)
}

func (g *RuleGroup) finalize() {
	g.TotalLength = 0
	g.MinExtent = math.MaxFloat64
	g.MaxExtent = -math.MaxFloat64
	for _, r := range g.Rules {
		lo, hi := extent(r, g.horizontal)
		g.TotalLength += hi - lo
		g.MinExtent = math.Min(g.MinExtent, lo)
		g.MaxExtent = math.Max(g.MaxExtent, hi)
	}
}

// Coverage returns the fraction of [lo, hi] covered by the union of the
// group's rules.
func (g RuleGroup) Coverage(lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	type span struct{ a, b float64 }
	spans := make([]span, 0, len(g.Rules))
	for _, r := range g.Rules {
		a, b := extent(r, g.horizontal)
		a, b = math.Max(a, lo), math.Min(b, hi)
		if b > a {
			spans = append(spans, span{a, b})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].a < spans[j].a })

	var covered, end float64
	end = lo
	for _, s := range spans {
		if s.b <= end {
			continue
		}
		covered += s.b - math.Max(s.a, end)
		end = s.b
	}
	return covered / (hi - lo)
}

// Overlaps reports whether the group's extent overlaps [lo, hi].
func (g RuleGroup) Overlaps(lo, hi float64) bool {
	return math.Min(g.MaxExtent, hi) > math.Max(g.MinExtent, lo)
}
