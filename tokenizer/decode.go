package tokenizer

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/ledongthuc/pdf"
	"github.com/tsawler/sqextract/model"
)

// ErrUnreadableDocument is returned when the input does not decode as a PDF.
var ErrUnreadableDocument = errors.New("unreadable document")

// Default page size (A4 portrait) used when a page carries no MediaBox.
const (
	defaultPageWidth  = 595.0
	defaultPageHeight = 842.0
)

// Glyph is one shown character in PDF user space (origin bottom-left).
type Glyph struct {
	X, Y     float64 // baseline start
	W        float64 // advance width
	FontSize float64
	Font     string
	S        string
}

// Segment is a stroked straight path segment in PDF user space.
type Segment struct {
	Start, End model.Point
	Width      float64
}

// Rect is a rectangular path in PDF user space. Y is the bottom edge.
type Rect struct {
	BBox    model.BBox
	Stroked bool
	Filled  bool
	Width   float64
}

// Placement is an image XObject drawn on the page. BBox is in PDF user
// space. Image is nil when the stream's filter is not supported.
type Placement struct {
	Name  string
	BBox  model.BBox
	Image image.Image
}

// RawPage is the decoded content of one page before tokenization.
type RawPage struct {
	Index            int
	Width, Height    float64
	OriginX, OriginY float64

	Glyphs     []Glyph
	Segments   []Segment
	Rects      []Rect
	Placements []Placement
}

// DecodePDF decodes PDF bytes into raw pages. Any decoder failure,
// including a panic inside the PDF library, yields ErrUnreadableDocument.
func DecodePDF(data []byte) (pages []RawPage, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrUnreadableDocument, r)
		}
	}()

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrUnreadableDocument)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}

	n := r.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("%w: no pages", ErrUnreadableDocument)
	}

	pages = make([]RawPage, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pages = append(pages, decodePage(p, i-1))
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no readable pages", ErrUnreadableDocument)
	}
	return pages, nil
}

func decodePage(p pdf.Page, index int) RawPage {
	raw := RawPage{Index: index}
	raw.OriginX, raw.OriginY, raw.Width, raw.Height = mediaBox(p)

	content := p.Content()
	raw.Glyphs = make([]Glyph, 0, len(content.Text))
	for _, t := range content.Text {
		raw.Glyphs = append(raw.Glyphs, Glyph{
			X:        t.X,
			Y:        t.Y,
			W:        t.W,
			FontSize: t.FontSize,
			Font:     t.Font,
			S:        t.S,
		})
	}

	g := newGraphicsInterpreter(p.Resources())
	g.runContents(p.V.Key("Contents"))
	raw.Segments = g.segments
	raw.Rects = g.rects
	raw.Placements = g.placements
	return raw
}

// mediaBox returns the page origin and size, walking up the page tree for
// an inherited box.
func mediaBox(p pdf.Page) (x, y, w, h float64) {
	v := p.V
	for i := 0; i < 10 && !v.IsNull(); i++ {
		box := v.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			x0, y0 := box.Index(0).Float64(), box.Index(1).Float64()
			x1, y1 := box.Index(2).Float64(), box.Index(3).Float64()
			if x1 < x0 {
				x0, x1 = x1, x0
			}
			if y1 < y0 {
				y0, y1 = y1, y0
			}
			if x1-x0 > 0 && y1-y0 > 0 {
				return x0, y0, x1 - x0, y1 - y0
			}
		}
		v = v.Key("Parent")
	}
	return 0, 0, defaultPageWidth, defaultPageHeight
}
