package extract

import (
	"sort"

	"github.com/tidwall/rtree"
	"github.com/tsawler/sqextract/model"
)

// Index is a per-page spatial index over the text tokens of a document.
type Index struct {
	pages  map[int]*rtree.RTreeG[int]
	tokens []model.Token
}

// NewIndex indexes every text token of doc. Token order in the document is
// kept as the tie-break for query results.
func NewIndex(doc *model.Document) *Index {
	ix := &Index{pages: make(map[int]*rtree.RTreeG[int], len(doc.Pages))}
	for _, page := range doc.Pages {
		tr := &rtree.RTreeG[int]{}
		for _, t := range page.Tokens {
			if !t.IsText() {
				continue
			}
			tr.Insert(
				[2]float64{t.BBox.Left(), t.BBox.Top()},
				[2]float64{t.BBox.Right(), t.BBox.Bottom()},
				len(ix.tokens),
			)
			ix.tokens = append(ix.tokens, t)
		}
		ix.pages[page.Index] = tr
	}
	return ix
}

// Search returns the text tokens on page that overlap region horizontally
// and whose vertical centre lies inside it, in reading order.
func (ix *Index) Search(page int, region model.BBox) []model.Token {
	tr, ok := ix.pages[page]
	if !ok || region.IsEmpty() {
		return nil
	}

	var hits []int
	tr.Search(
		[2]float64{region.Left(), region.Top()},
		[2]float64{region.Right(), region.Bottom()},
		func(_, _ [2]float64, i int) bool {
			b := ix.tokens[i].BBox
			cy := b.Center().Y
			if b.Right() > region.Left() && b.Left() < region.Right() && cy >= region.Top() && cy <= region.Bottom() {
				hits = append(hits, i)
			}
			return true
		},
	)
	sort.Ints(hits)

	out := make([]model.Token, len(hits))
	for i, h := range hits {
		out[i] = ix.tokens[h]
	}
	return out
}
