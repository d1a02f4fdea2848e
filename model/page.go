package model

import (
	"math"
	"sort"
)

// Page represents a single tokenized page
type Page struct {
	Index  int     // 0-indexed page number
	Width  float64 // Page width in points
	Height float64 // Page height in points
	Tokens []Token // Tokens in reading order
}

// NewPage creates a new page with given dimensions
func NewPage(index int, width, height float64) *Page {
	return &Page{
		Index:  index,
		Width:  width,
		Height: height,
		Tokens: make([]Token, 0),
	}
}

// AddToken appends a token, stamping it with the page index
func (p *Page) AddToken(tok Token) {
	tok.Page = p.Index
	p.Tokens = append(p.Tokens, tok)
}

// Diagonal returns the page diagonal length
func (p *Page) Diagonal() float64 {
	return math.Hypot(p.Width, p.Height)
}

// TextTokens returns the text tokens on the page in reading order
func (p *Page) TextTokens() []Token {
	return p.filter(func(t Token) bool { return t.IsText() })
}

// Rules returns the rule-line tokens on the page
func (p *Page) Rules() []Token {
	return p.filter(func(t Token) bool { return t.Kind == TokenKindRule })
}

// Images returns the image tokens on the page
func (p *Page) Images() []Token {
	return p.filter(func(t Token) bool { return t.Kind == TokenKindImage })
}

// TokensInRegion returns tokens whose bounding boxes intersect bbox
func (p *Page) TokensInRegion(bbox BBox) []Token {
	return p.filter(func(t Token) bool { return bbox.Intersects(t.BBox) })
}

func (p *Page) filter(keep func(Token) bool) []Token {
	var out []Token
	for _, t := range p.Tokens {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// SortReadingOrder orders tokens top-to-bottom then left-to-right. Tokens
// whose tops are within lineTolerance of each other are on the same line and
// are ordered by x, then y.
func SortReadingOrder(tokens []Token, lineTolerance float64) {
	sort.SliceStable(tokens, func(i, j int) bool {
		a, b := tokens[i].BBox, tokens[j].BBox
		if tokens[i].Page != tokens[j].Page {
			return tokens[i].Page < tokens[j].Page
		}
		if math.Abs(a.Y-b.Y) > lineTolerance {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
}
