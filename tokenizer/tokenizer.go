package tokenizer

import (
	"math"
	"sort"
	"strings"

	"github.com/tsawler/sqextract/model"
)

// Glyph boxes are built from the baseline using these fractions of the
// font size.
const (
	ascentRatio  = 0.75
	descentRatio = 0.25

	// fallbackAdvance is the glyph width, as a fraction of font size, used
	// for fonts that carry no width table.
	fallbackAdvance = 0.5
)

// Config holds configuration for tokenization
type Config struct {
	// RunGapFactor is the largest horizontal gap between glyphs of one run,
	// as a multiple of font size (default: 1.0)
	RunGapFactor float64

	// BaselineTolerance is the baseline difference allowed within a run, as
	// a fraction of font size (default: 0.5)
	BaselineTolerance float64

	// SpaceFactor is the gap, as a fraction of font size, above which a
	// space is inserted between merged glyphs that carry none (default: 0.15)
	SpaceFactor float64

	// MaxRuleThickness is the thickest stroke or rectangle still treated as
	// a rule line, in points (default: 2)
	MaxRuleThickness float64

	// MinRuleLength is the shortest rule kept, in points (default: 3)
	MinRuleLength float64

	// LineTolerance is the top-edge difference, in points, under which two
	// tokens are on the same line for reading order (default: 3)
	LineTolerance float64
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		RunGapFactor:      1.0,
		BaselineTolerance: 0.5,
		SpaceFactor:       0.15,
		MaxRuleThickness:  2.0,
		MinRuleLength:     3.0,
		LineTolerance:     3.0,
	}
}

// Tokenizer converts decoded pages into positioned tokens.
type Tokenizer struct {
	config Config
}

// New creates a tokenizer with the given configuration
func New(config Config) *Tokenizer {
	return &Tokenizer{config: config}
}

// Tokenize converts raw pages into a Document using the default
// configuration.
func Tokenize(id string, pages []RawPage) *model.Document {
	return New(DefaultConfig()).Tokenize(id, pages)
}

// TokenizeBytes decodes PDF bytes and tokenizes them. The document ID is
// derived from the bytes.
func (t *Tokenizer) TokenizeBytes(data []byte) (*model.Document, error) {
	pages, err := DecodePDF(data)
	if err != nil {
		return nil, err
	}
	return t.Tokenize(model.DocumentID(data), pages), nil
}

// Tokenize converts raw pages into a Document. Coordinates are flipped to a
// top-left origin and tokens are sorted into reading order.
func (t *Tokenizer) Tokenize(id string, pages []RawPage) *model.Document {
	doc := model.NewDocument(id)
	for _, raw := range pages {
		page := model.NewPage(raw.Index, raw.Width, raw.Height)

		var tokens []model.Token
		tokens = append(tokens, t.textRuns(raw)...)
		tokens = append(tokens, t.rules(raw)...)
		tokens = append(tokens, t.images(raw)...)

		model.SortReadingOrder(tokens, t.config.LineTolerance)
		for _, tok := range tokens {
			page.AddToken(tok)
		}
		doc.AddPage(page)
	}
	return doc
}

// flipY converts a user-space y coordinate to top-left page space.
func flipY(raw RawPage, y float64) float64 {
	return raw.Height - (y - raw.OriginY)
}

// glyphLine is a set of glyphs sharing a baseline.
type glyphLine struct {
	baseline float64 // top-left space
	glyphs   []Glyph
}

// textRuns merges glyphs into text runs: glyphs are grouped by baseline,
// then consecutive glyphs closer than RunGapFactor × font size are joined.
func (t *Tokenizer) textRuns(raw RawPage) []model.Token {
	if len(raw.Glyphs) == 0 {
		return nil
	}

	glyphs := make([]Glyph, 0, len(raw.Glyphs))
	for _, g := range raw.Glyphs {
		if g.S == "" {
			continue
		}
		if g.FontSize <= 0 {
			g.FontSize = 10
		}
		glyphs = append(glyphs, g)
	}
	sort.SliceStable(glyphs, func(i, j int) bool {
		if glyphs[i].Y != glyphs[j].Y {
			return glyphs[i].Y > glyphs[j].Y
		}
		return glyphs[i].X < glyphs[j].X
	})

	var lines []*glyphLine
	for _, g := range glyphs {
		base := flipY(raw, g.Y)
		var target *glyphLine
		for _, l := range lines {
			if math.Abs(l.baseline-base) <= t.config.BaselineTolerance*g.FontSize {
				target = l
				break
			}
		}
		if target == nil {
			target = &glyphLine{baseline: base}
			lines = append(lines, target)
		}
		target.glyphs = append(target.glyphs, g)
	}

	var tokens []model.Token
	for _, l := range lines {
		sort.SliceStable(l.glyphs, func(i, j int) bool { return l.glyphs[i].X < l.glyphs[j].X })
		tokens = append(tokens, t.mergeLine(raw, l)...)
	}
	return tokens
}

func (t *Tokenizer) mergeLine(raw RawPage, l *glyphLine) []model.Token {
	var tokens []model.Token
	var sb strings.Builder
	var box model.BBox
	var size float64
	var font string
	var right, lastX float64

	flush := func() {
		text := strings.Join(strings.Fields(sb.String()), " ")
		if text != "" {
			tokens = append(tokens, model.Token{
				Kind:     model.TokenKindText,
				Page:     raw.Index,
				BBox:     box,
				Text:     text,
				FontSize: size,
				FontName: font,
			})
		}
		sb.Reset()
		box = model.BBox{}
	}

	for _, g := range l.glyphs {
		x := g.X - raw.OriginX
		width := g.W
		if width <= 0 {
			width = fallbackAdvance * g.FontSize
			// Without widths the decoder does not advance the pen, so
			// consecutive glyphs of one string share an origin.
			if sb.Len() > 0 && math.Abs(x-lastX) < 0.01 {
				x = right
			}
		}
		lastX = g.X - raw.OriginX
		gbox := model.BBox{
			X:      x,
			Y:      l.baseline - ascentRatio*g.FontSize,
			Width:  width,
			Height: (ascentRatio + descentRatio) * g.FontSize,
		}

		if sb.Len() > 0 {
			gap := x - right
			if gap > t.config.RunGapFactor*size {
				flush()
			} else if gap > t.config.SpaceFactor*size && !strings.HasSuffix(sb.String(), " ") && g.S != " " {
				sb.WriteByte(' ')
			}
		}

		if sb.Len() == 0 {
			if strings.TrimSpace(g.S) == "" {
				continue
			}
			size, font = g.FontSize, g.Font
			box = gbox
		} else {
			box = box.Union(gbox)
			size = math.Max(size, g.FontSize)
		}
		sb.WriteString(g.S)
		right = gbox.Right()
	}
	flush()
	return tokens
}

// rules converts thin strokes and rectangles into rule tokens. Stroked
// rectangles wider than a rule contribute their four edges.
func (t *Tokenizer) rules(raw RawPage) []model.Token {
	seen := make(map[[4]int]bool)
	var tokens []model.Token

	add := func(b model.BBox) {
		// b is in user space; flip to top-left
		top := flipY(raw, b.Y+b.Height)
		box := model.BBox{X: b.X - raw.OriginX, Y: top, Width: b.Width, Height: b.Height}
		if math.Max(box.Width, box.Height) < t.config.MinRuleLength {
			return
		}
		key := [4]int{int(math.Round(box.X * 10)), int(math.Round(box.Y * 10)),
			int(math.Round(box.Width * 10)), int(math.Round(box.Height * 10))}
		if seen[key] {
			return
		}
		seen[key] = true
		tokens = append(tokens, model.Token{Kind: model.TokenKindRule, Page: raw.Index, BBox: box})
	}

	for _, s := range raw.Segments {
		if s.Width > t.config.MaxRuleThickness {
			continue
		}
		thick := math.Max(s.Width, 0.5)
		dx, dy := s.End.X-s.Start.X, s.End.Y-s.Start.Y
		switch {
		case math.Abs(dy) < 0.5:
			add(model.BBox{X: math.Min(s.Start.X, s.End.X), Y: s.Start.Y - thick/2, Width: math.Abs(dx), Height: thick})
		case math.Abs(dx) < 0.5:
			add(model.BBox{X: s.Start.X - thick/2, Y: math.Min(s.Start.Y, s.End.Y), Width: thick, Height: math.Abs(dy)})
		}
	}

	for _, r := range raw.Rects {
		b := r.BBox
		switch {
		case b.Height <= t.config.MaxRuleThickness:
			add(b)
		case b.Width <= t.config.MaxRuleThickness:
			add(b)
		case r.Stroked && r.Width <= t.config.MaxRuleThickness:
			thick := math.Max(r.Width, 0.5)
			add(model.BBox{X: b.X, Y: b.Y - thick/2, Width: b.Width, Height: thick})
			add(model.BBox{X: b.X, Y: b.Y + b.Height - thick/2, Width: b.Width, Height: thick})
			add(model.BBox{X: b.X - thick/2, Y: b.Y, Width: thick, Height: b.Height})
			add(model.BBox{X: b.X + b.Width - thick/2, Y: b.Y, Width: thick, Height: b.Height})
		}
	}
	return tokens
}

func (t *Tokenizer) images(raw RawPage) []model.Token {
	var tokens []model.Token
	for _, p := range raw.Placements {
		b := p.BBox
		if b.IsEmpty() {
			continue
		}
		tokens = append(tokens, model.Token{
			Kind:  model.TokenKindImage,
			Page:  raw.Index,
			BBox:  model.BBox{X: b.X - raw.OriginX, Y: flipY(raw, b.Y+b.Height), Width: b.Width, Height: b.Height},
			Image: p.Image,
		})
	}
	return tokens
}
