package tables

import (
	"math"
	"testing"

	"github.com/tsawler/sqextract/model"
)

// Helper to create horizontal rules
func makeHRule(page int, y, x1, x2 float64) model.Token {
	return model.Token{Kind: model.TokenKindRule, Page: page, BBox: model.NewBBox(x1, y-0.25, x2-x1, 0.5)}
}

// Helper to create vertical rules
func makeVRule(page int, x, y1, y2 float64) model.Token {
	return model.Token{Kind: model.TokenKindRule, Page: page, BBox: model.NewBBox(x-0.25, y1, 0.5, y2-y1)}
}

func TestGroupRules(t *testing.T) {
	rules := []model.Token{
		makeHRule(0, 100, 0, 100),
		makeHRule(0, 150, 0, 200),
		makeHRule(0, 101.5, 100, 200),
		makeVRule(0, 50, 100, 150),
	}

	groups := GroupRules(rules, true, 3)
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}
	if len(groups[0].Rules) != 2 {
		t.Errorf("Expected 2 rules in first group, got %d", len(groups[0].Rules))
	}
	if math.Abs(groups[0].Position-100.75) > 1e-9 {
		t.Errorf("Expected position 100.75, got %f", groups[0].Position)
	}
	if groups[0].MinExtent != 0 || groups[0].MaxExtent != 200 {
		t.Errorf("Expected extent 0-200, got %f-%f", groups[0].MinExtent, groups[0].MaxExtent)
	}
	if groups[0].TotalLength != 200 {
		t.Errorf("Expected total length 200, got %f", groups[0].TotalLength)
	}

	vertical := GroupRules(rules, false, 3)
	if len(vertical) != 1 || vertical[0].Position != 50 {
		t.Errorf("Expected one vertical group at 50, got %+v", vertical)
	}
}

func TestGroupRules_Empty(t *testing.T) {
	if groups := GroupRules(nil, true, 3); groups != nil {
		t.Errorf("Expected nil, got %v", groups)
	}
}

func TestRuleGroup_Coverage(t *testing.T) {
	tests := []struct {
		name   string
		rules  []model.Token
		lo, hi float64
		want   float64
	}{
		{"full", []model.Token{makeHRule(0, 10, 0, 100)}, 0, 100, 1},
		{"overlapping", []model.Token{makeHRule(0, 10, 0, 50), makeHRule(0, 10, 25, 75)}, 0, 100, 0.75},
		{"clipped", []model.Token{makeHRule(0, 10, -50, 50)}, 0, 100, 0.5},
		{"per-cell borders", []model.Token{
			makeHRule(0, 10, 0, 20), makeHRule(0, 10, 20, 60), makeHRule(0, 10, 60, 100),
		}, 0, 100, 1},
		{"outside", []model.Token{makeHRule(0, 10, 200, 300)}, 0, 100, 0},
		{"empty span", []model.Token{makeHRule(0, 10, 0, 100)}, 50, 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := GroupRules(tt.rules, true, 3)
			if len(groups) != 1 {
				t.Fatalf("Expected 1 group, got %d", len(groups))
			}
			if got := groups[0].Coverage(tt.lo, tt.hi); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Coverage() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestRuleGroup_Overlaps(t *testing.T) {
	g := GroupRules([]model.Token{makeVRule(0, 40, 100, 200)}, false, 3)[0]
	if !g.Overlaps(150, 300) {
		t.Error("Expected overlap with 150-300")
	}
	if g.Overlaps(200, 300) {
		t.Error("Expected no overlap with 200-300")
	}
}
