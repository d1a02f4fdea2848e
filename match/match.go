// Package match selects the template variant a document follows and fits
// the transform from the variant's reference coordinates to the document.
//
// Every variant in a catalog is scored independently. The score combines
// anchor coverage with the geometric consistency of the located anchors
// after a least-squares fit, so a layout that drifted as a whole still
// scores as well as an undisturbed one.
package match

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tsawler/sqextract/anchor"
	"github.com/tsawler/sqextract/model"
	"github.com/tsawler/sqextract/templates"
)

// ErrNoTemplateMatch is returned when no variant in the catalog is eligible.
var ErrNoTemplateMatch = errors.New("no template match")

// NoMatchError describes why the best candidate variant was rejected.
type NoMatchError struct {
	// Variant is the highest scoring candidate, eligible or not. Empty when
	// the catalog had no variants.
	Variant string

	// Missing lists the required anchors of Variant that were not located,
	// with the table header first when it is missing.
	Missing []string

	RequiredCoverage float64
}

func (e *NoMatchError) Error() string {
	if e.Variant == "" {
		return ErrNoTemplateMatch.Error()
	}
	return fmt.Sprintf("%s: best candidate %q (required coverage %.2f) is missing anchors [%s]",
		ErrNoTemplateMatch, e.Variant, e.RequiredCoverage, strings.Join(e.Missing, ", "))
}

func (e *NoMatchError) Unwrap() error {
	return ErrNoTemplateMatch
}

// Config holds configuration for template matching
type Config struct {
	// MinRequiredCoverage is the fraction of required anchors that must be
	// located for a variant to be eligible (default: 0.5)
	MinRequiredCoverage float64

	// ConsistencyRatio is the fraction of the reference page diagonal at
	// which the fit residual drives consistency to zero (default: 0.05)
	ConsistencyRatio float64

	// CoverageWeight and ConsistencyWeight combine into the score
	// (defaults: 0.6 and 0.4)
	CoverageWeight    float64
	ConsistencyWeight float64

	Anchor anchor.Config
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		MinRequiredCoverage: 0.5,
		ConsistencyRatio:    0.05,
		CoverageWeight:      0.6,
		ConsistencyWeight:   0.4,
		Anchor:              anchor.DefaultConfig(),
	}
}

// Candidate is the evaluation of one variant against a document.
type Candidate struct {
	Variant   *templates.Variant
	Transform model.Transform
	Anchors   map[string]*model.Anchor

	Coverage         float64
	RequiredCoverage float64
	Consistency      float64
	Residual         float64
	Score            float64

	// Eligible is false when required coverage is too low or the table
	// header anchor was not located.
	Eligible bool
}

// Missing returns the names of required anchors that were not located,
// plus the table header anchor when it is absent.
func (c Candidate) Missing() []string {
	var out []string
	header := c.Variant.Table.HeaderAnchor
	if c.Anchors[header] == nil {
		out = append(out, header)
	}
	for _, a := range c.Variant.Anchors {
		if a.Required && a.Name != header && c.Anchors[a.Name] == nil {
			out = append(out, a.Name)
		}
	}
	return out
}

// Result is the selected variant with its fitted transform.
type Result struct {
	Variant    *templates.Variant
	Transform  model.Transform
	Confidence float64
	Anchors    map[string]*model.Anchor

	// Candidates holds every evaluated variant in catalog order.
	Candidates []Candidate
}

// Anchor returns the located anchor with the given name, or nil.
func (r *Result) Anchor(name string) *model.Anchor {
	return r.Anchors[name]
}

// Matcher scores catalog variants against documents. It holds no per-document
// state and is safe for concurrent use.
type Matcher struct {
	config Config
}

// New creates a matcher
func New(config Config) *Matcher {
	return &Matcher{config: config}
}

// Match evaluates every variant of catalog against doc and returns the
// highest scoring eligible one. Ties go to the variant listed first. When no
// variant is eligible the error wraps ErrNoTemplateMatch as a *NoMatchError.
func (m *Matcher) Match(doc *model.Document, catalog *templates.Catalog) (*Result, error) {
	if catalog == nil || len(catalog.Variants) == 0 {
		return nil, &NoMatchError{}
	}

	cands := make([]Candidate, len(catalog.Variants))
	for i, v := range catalog.Variants {
		cands[i] = m.Evaluate(doc, v)
	}

	best := -1
	for i, c := range cands {
		if c.Eligible && (best < 0 || c.Score > cands[best].Score) {
			best = i
		}
	}

	if best < 0 {
		// report the closest miss
		order := make([]int, len(cands))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			ca, cb := cands[order[a]], cands[order[b]]
			if ca.RequiredCoverage != cb.RequiredCoverage {
				return ca.RequiredCoverage > cb.RequiredCoverage
			}
			return ca.Score > cb.Score
		})
		c := cands[order[0]]
		return &Result{Candidates: cands}, &NoMatchError{
			Variant:          c.Variant.Name,
			Missing:          c.Missing(),
			RequiredCoverage: c.RequiredCoverage,
		}
	}

	c := cands[best]
	return &Result{
		Variant:    c.Variant,
		Transform:  c.Transform,
		Confidence: c.Score,
		Anchors:    c.Anchors,
		Candidates: cands,
	}, nil
}

// Evaluate locates the anchors of one variant and scores the fit.
func (m *Matcher) Evaluate(doc *model.Document, v *templates.Variant) Candidate {
	loc := anchor.New(m.config.Anchor).WithTableHeader(v.Table.HeaderAnchor)
	located := loc.Locate(doc, v.Anchors)

	c := Candidate{Variant: v, Anchors: located, Transform: model.IdentityTransform()}

	var found, required, requiredFound int
	var refs, obs []model.Point
	for _, a := range v.Anchors {
		got := located[a.Name]
		if a.Required {
			required++
		}
		if got == nil {
			continue
		}
		found++
		if a.Required {
			requiredFound++
		}
		if !a.Floating {
			refs = append(refs, a.Position())
			obs = append(obs, got.BBox.TopLeft())
		}
	}

	c.Coverage = float64(found) / float64(len(v.Anchors))
	c.RequiredCoverage = 1
	if required > 0 {
		c.RequiredCoverage = float64(requiredFound) / float64(required)
	}

	if len(refs) > 0 {
		c.Transform = model.Fit(refs, obs)
		c.Residual = c.Transform.Residual(refs, obs)
		limit := m.config.ConsistencyRatio * v.Diagonal()
		c.Consistency = 1
		if limit > 0 {
			c.Consistency = 1 - math.Min(1, c.Residual/limit)
		}
	}

	c.Score = m.config.CoverageWeight*c.Coverage + m.config.ConsistencyWeight*c.Consistency
	c.Eligible = c.RequiredCoverage >= m.config.MinRequiredCoverage && located[v.Table.HeaderAnchor] != nil
	return c
}
