// Package anchor locates template labels among a document's text tokens.
//
// Labels match fuzzily: after normalization, a candidate (a text token, or
// a token joined with its right-hand neighbour on the same line) must start
// with a word-bounded prefix within a bounded Levenshtein distance of the
// label. When a label matches in several places, unambiguous anchors are
// resolved first and the rest pick the candidate closest to where the
// resolved anchors predict it.
package anchor

import (
	"math"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	"github.com/tsawler/sqextract/model"
	"github.com/tsawler/sqextract/templates"
)

// Config holds configuration for anchor location
type Config struct {
	// ToleranceRatio is the accepted edit distance as a fraction of the
	// normalized label length, rounded down (default: 0.2)
	ToleranceRatio float64

	// LineTolerance is the top-edge difference, in points, under which two
	// tokens are on the same line (default: 3)
	LineTolerance float64
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		ToleranceRatio: 0.2,
		LineTolerance:  3.0,
	}
}

// Locator finds anchors in a document. A Locator is immutable; option
// methods return modified copies.
type Locator struct {
	config      Config
	tableHeader string
}

// New creates a locator
func New(config Config) *Locator {
	return &Locator{config: config}
}

// WithTableHeader names the anchor that marks the table header. Floating
// anchors are only accepted below it once it is located.
func (l *Locator) WithTableHeader(name string) *Locator {
	c := *l
	c.tableHeader = name
	return &c
}

// candidate is one place a label matched.
type candidate struct {
	order  int // reading order position in the document
	page   int
	box    model.BBox
	tokens []model.Token
	label  string
	dist   int
	tol    int
}

func (c candidate) confidence() float64 {
	return 1 - float64(c.dist)/float64(c.tol+1)
}

func (c candidate) anchor(name string) *model.Anchor {
	return &model.Anchor{
		Name:       name,
		Label:      c.label,
		Page:       c.page,
		BBox:       c.box,
		Confidence: c.confidence(),
		Tokens:     c.tokens,
	}
}

// Locate finds every anchor in doc. The result has an entry for each anchor
// name; absent anchors map to nil.
func (l *Locator) Locate(doc *model.Document, anchors []templates.Anchor) map[string]*model.Anchor {
	result := make(map[string]*model.Anchor, len(anchors))
	cands := make(map[string][]candidate, len(anchors))
	texts := l.candidateTexts(doc)

	for _, a := range anchors {
		result[a.Name] = nil
		cands[a.Name] = l.match(texts, a)
	}

	// positions of resolved non-floating anchors, for prediction
	var refs, obs []model.Point
	resolve := func(a templates.Anchor, c candidate) {
		result[a.Name] = c.anchor(a.Name)
		if !a.Floating {
			refs = append(refs, a.Position())
			obs = append(obs, c.box.TopLeft())
		}
	}

	// unambiguous first
	for _, a := range anchors {
		if !a.Floating && len(cands[a.Name]) == 1 {
			resolve(a, cands[a.Name][0])
		}
	}

	for _, a := range anchors {
		if a.Floating || result[a.Name] != nil || len(cands[a.Name]) == 0 {
			continue
		}
		predicted := predict(a.Position(), refs, obs)
		resolve(a, nearest(cands[a.Name], func(c candidate) float64 {
			return c.box.TopLeft().Distance(predicted)
		}))
	}

	header := result[l.tableHeader]
	for _, a := range anchors {
		if !a.Floating || len(cands[a.Name]) == 0 {
			continue
		}
		below := cands[a.Name]
		if header != nil {
			below = below[:0:0]
			for _, c := range cands[a.Name] {
				if c.page > header.Page || (c.page == header.Page && c.box.Top() >= header.BBox.Bottom()) {
					below = append(below, c)
				}
			}
		}
		if len(below) == 0 {
			continue
		}
		predicted := predict(a.Position(), refs, obs)
		resolve(a, nearest(below, func(c candidate) float64 {
			return math.Abs(c.box.X - predicted.X)
		}))
	}

	return result
}

// predict maps a reference position through the mean translation of the
// resolved anchors.
func predict(ref model.Point, refs, obs []model.Point) model.Point {
	if len(refs) == 0 {
		return ref
	}
	var dx, dy float64
	for i := range refs {
		dx += obs[i].X - refs[i].X
		dy += obs[i].Y - refs[i].Y
	}
	n := float64(len(refs))
	return model.Point{X: ref.X + dx/n, Y: ref.Y + dy/n}
}

// nearest returns the candidate with the lowest deviation; ties go to the
// earlier one in reading order.
func nearest(cands []candidate, deviation func(candidate) float64) candidate {
	best := cands[0]
	bestDev := deviation(best)
	for _, c := range cands[1:] {
		d := deviation(c)
		if d < bestDev-1e-9 || (math.Abs(d-bestDev) <= 1e-9 && c.order < best.order) {
			best, bestDev = c, d
		}
	}
	return best
}

// candidateText is a normalized token, optionally joined with its right
// neighbour.
type candidateText struct {
	order     int
	page      int
	first     model.Token
	next      *model.Token
	firstNorm string
	joined    string
}

func (l *Locator) candidateTexts(doc *model.Document) []candidateText {
	var out []candidateText
	order := 0
	for _, page := range doc.Pages {
		tokens := page.TextTokens()
		for i, tok := range tokens {
			ct := candidateText{
				order:     order,
				page:      page.Index,
				first:     tok,
				firstNorm: Normalize(tok.Text),
			}
			ct.joined = ct.firstNorm
			if i+1 < len(tokens) && math.Abs(tokens[i+1].BBox.Top()-tok.BBox.Top()) <= l.config.LineTolerance &&
				tokens[i+1].BBox.X > tok.BBox.X {
				next := tokens[i+1]
				ct.next = &next
				ct.joined = ct.firstNorm + " " + Normalize(next.Text)
			}
			order++
			if ct.firstNorm != "" {
				out = append(out, ct)
			}
		}
	}
	return out
}

// match returns every place one of the anchor's labels matches.
func (l *Locator) match(texts []candidateText, a templates.Anchor) []candidate {
	var out []candidate
	for _, ct := range texts {
		if !a.Floating && ct.page != a.Page {
			continue
		}

		var best *candidate
		for _, label := range a.Labels {
			norm := Normalize(label)
			if norm == "" {
				continue
			}
			n := utf8.RuneCountInString(norm)
			tol := Tolerance(n, l.config.ToleranceRatio)

			dist, prefixLen, ok := matchPrefix(ct.joined, norm, tol)
			if !ok {
				continue
			}
			c := candidate{
				order:  ct.order,
				page:   ct.page,
				box:    ct.first.BBox,
				tokens: []model.Token{ct.first},
				label:  label,
				dist:   dist,
				tol:    tol,
			}
			if ct.next != nil && prefixLen > len(ct.firstNorm) {
				c.box = c.box.Union(ct.next.BBox)
				c.tokens = append(c.tokens, *ct.next)
			}
			if best == nil || c.confidence() > best.confidence() ||
				(c.confidence() == best.confidence() && len(norm) > len(Normalize(best.label))) {
				best = &c
			}
		}
		if best != nil {
			out = append(out, *best)
		}
	}
	return out
}

// matchPrefix finds the word-bounded prefix of text closest to label. It
// returns the distance and the prefix length in bytes.
func matchPrefix(text, label string, tol int) (dist, prefixLen int, ok bool) {
	labelLen := utf8.RuneCountInString(label)
	best := -1

	runes := 0
	for i, r := range text + " " {
		if r == ' ' && i > 0 {
			if abs(runes-labelLen) <= tol {
				d := levenshtein.Distance(text[:i], label, nil)
				if d <= tol && (best < 0 || d < best) {
					best, prefixLen = d, i
				}
			}
			if runes > labelLen+tol {
				break
			}
		}
		runes++
	}
	if best < 0 {
		return 0, 0, false
	}
	return best, prefixLen, true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
