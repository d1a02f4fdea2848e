package match

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsawler/sqextract/model"
	"github.com/tsawler/sqextract/templates"
)

// values are what follows each anchor's label in the synthetic documents
// below.
var values = map[string]string{
	"project_name": "Acme Wardrobe Project",
	"client_name":  "Acme Corp",
	"quotation_no": "SQ-1001",
	"date":         "2024-03-01",
	"prepared_by":  "R. Iyer",
	"sub_total":    "25,000.00",
	"tax":          "4,500.00",
	"grand_total":  "29,500.00",
}

// render places one label token per anchor of v, mapped through t. Floating
// anchors are pulled up to just below a short table. Anchors listed in skip
// are left out.
func render(v *templates.Variant, t model.Transform, skip ...string) *model.Document {
	doc := model.NewDocument("test")
	page := model.NewPage(0, 595, 842)
	doc.AddPage(page)

	omit := make(map[string]bool)
	for _, s := range skip {
		omit[s] = true
	}

	header, _ := v.Anchor(v.Table.HeaderAnchor)
	for i, a := range v.Anchors {
		if omit[a.Name] {
			continue
		}
		text := a.Labels[0]
		if val, ok := values[a.Name]; ok {
			text += ": " + val
		}
		pos := a.Position()
		if a.Floating {
			pos.Y = header.Y + 120 + float64(i)*18
		}
		p := t.Apply(pos)
		page.AddToken(model.Token{
			Kind:     model.TokenKindText,
			Text:     text,
			FontSize: 10,
			BBox:     model.NewBBox(p.X, p.Y, float64(len(text))*5, 10),
		})
	}
	model.SortReadingOrder(page.Tokens, 3)
	return doc
}

func TestMatcher_Match_Exact(t *testing.T) {
	catalog := templates.Default()
	std := catalog.Variant("sq-standard")

	res, err := New(DefaultConfig()).Match(render(std, model.IdentityTransform()), catalog)
	require.NoError(t, err)
	assert.Equal(t, "sq-standard", res.Variant.Name)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.InDelta(t, 1.0, res.Transform.ScaleX, 1e-9)
	assert.InDelta(t, 0.0, res.Transform.TY, 1e-9)
	require.NotNil(t, res.Anchor("grand_total"))
	require.Len(t, res.Candidates, 2)
	assert.Greater(t, res.Candidates[0].Score, res.Candidates[1].Score)
}

func TestMatcher_Match_Drift(t *testing.T) {
	catalog := templates.Default()
	std := catalog.Variant("sq-standard")

	tests := []struct {
		name string
		t    model.Transform
	}{
		{"shift 20% of page", model.Transform{ScaleX: 1, ScaleY: 1, TX: 0.2 * 595, TY: 0.2 * 842}},
		{"shift back", model.Transform{ScaleX: 1, ScaleY: 1, TX: -30, TY: -60}},
		{"scaled", model.Transform{ScaleX: 1.1, ScaleY: 0.9, TX: 10, TY: 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(DefaultConfig()).Match(render(std, tt.t), catalog)
			require.NoError(t, err)
			assert.Equal(t, "sq-standard", res.Variant.Name)
			assert.Greater(t, res.Confidence, 0.9)
			assert.InDelta(t, tt.t.ScaleX, res.Transform.ScaleX, 1e-6)
			assert.InDelta(t, tt.t.ScaleY, res.Transform.ScaleY, 1e-6)
			assert.InDelta(t, tt.t.TX, res.Transform.TX, 1e-6)
			assert.InDelta(t, tt.t.TY, res.Transform.TY, 1e-6)
		})
	}
}

func TestMatcher_Match_MissingTableHeader(t *testing.T) {
	catalog := templates.Default()
	std := catalog.Variant("sq-standard")

	res, err := New(DefaultConfig()).Match(render(std, model.IdentityTransform(), "table_header"), catalog)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoTemplateMatch))

	var nm *NoMatchError
	require.ErrorAs(t, err, &nm)
	assert.Equal(t, "sq-standard", nm.Variant)
	assert.Equal(t, []string{"table_header"}, nm.Missing)
	assert.InDelta(t, 0.75, nm.RequiredCoverage, 1e-9)
	assert.Contains(t, err.Error(), "table_header")

	require.NotNil(t, res)
	assert.Nil(t, res.Variant)
	assert.Len(t, res.Candidates, 2)
}

func TestMatcher_Match_LowRequiredCoverage(t *testing.T) {
	catalog := templates.Default()
	std := catalog.Variant("sq-standard")

	doc := render(std, model.IdentityTransform(), "project_name", "client_name", "quotation_no")
	_, err := New(DefaultConfig()).Match(doc, catalog)
	require.ErrorIs(t, err, ErrNoTemplateMatch)
}

func TestMatcher_Match_SelectsLegacy(t *testing.T) {
	catalog := templates.Default()
	legacy := catalog.Variant("sq-legacy")

	res, err := New(DefaultConfig()).Match(render(legacy, model.IdentityTransform()), catalog)
	require.NoError(t, err)
	assert.Equal(t, "sq-legacy", res.Variant.Name)
	assert.False(t, res.Candidates[0].Eligible)
}

func TestMatcher_Match_TieGoesToCatalogOrder(t *testing.T) {
	std := templates.Default().Variant("sq-standard")
	first := *std
	first.Name = "first"
	second := *std
	second.Name = "second"
	catalog, err := templates.NewCatalog(&first, &second)
	require.NoError(t, err)

	res, err := New(DefaultConfig()).Match(render(std, model.IdentityTransform()), catalog)
	require.NoError(t, err)
	assert.Equal(t, "first", res.Variant.Name)
}

func TestMatcher_Match_EmptyCatalog(t *testing.T) {
	_, err := New(DefaultConfig()).Match(model.NewDocument("x"), nil)
	require.ErrorIs(t, err, ErrNoTemplateMatch)
}

func TestMatcher_Evaluate_Scores(t *testing.T) {
	std := templates.Default().Variant("sq-standard")
	doc := render(std, model.IdentityTransform(), "prepared_by", "tax")

	c := New(DefaultConfig()).Evaluate(doc, std)
	assert.True(t, c.Eligible)
	assert.InDelta(t, 7.0/9.0, c.Coverage, 1e-9)
	assert.Equal(t, 1.0, c.RequiredCoverage)
	assert.InDelta(t, 1.0, c.Consistency, 1e-9)
	assert.InDelta(t, 0.6*7.0/9.0+0.4, c.Score, 1e-9)
	assert.Nil(t, c.Anchors["tax"])
	assert.Empty(t, c.Missing())
}
