package tokenizer

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsawler/sqextract/model"
)

func buildPDF(t *testing.T, draw func(pdf *fpdf.Fpdf)) []byte {
	t.Helper()
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.AddPage()
	draw(pdf)

	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func findText(doc *model.Document, text string) (model.Token, bool) {
	for _, tok := range doc.TextTokens() {
		if tok.Text == text {
			return tok, true
		}
	}
	return model.Token{}, false
}

func TestDecodePDF_Unreadable(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("this is not a pdf at all")},
		{"truncated header", []byte("%PDF-1.4\n1 0 obj\n<<")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := DecodePDF(tt.data)
			require.ErrorIs(t, err, ErrUnreadableDocument)
			assert.Nil(t, pages)
		})
	}
}

func TestTokenizer_TokenizeBytes_Text(t *testing.T) {
	data := buildPDF(t, func(pdf *fpdf.Fpdf) {
		pdf.Text(50, 100, "Quotation No: SQ-1001")
		pdf.Text(400, 100, "Date")
		pdf.Text(50, 140, "Acme Wardrobe")
	})

	doc, err := New(DefaultConfig()).TokenizeBytes(data)
	require.NoError(t, err)
	require.Equal(t, 1, doc.PageCount())

	page := doc.GetPage(0)
	assert.InDelta(t, 595.28, page.Width, 0.5)
	assert.InDelta(t, 841.89, page.Height, 0.5)

	q, ok := findText(doc, "Quotation No: SQ-1001")
	require.True(t, ok, "tokens: %+v", doc.TextTokens())
	assert.InDelta(t, 50, q.BBox.X, 1)
	// baseline at 100 from the top; the box sits above it
	assert.InDelta(t, 100, q.BBox.Y+ascentRatio*q.FontSize, 1)
	assert.Greater(t, q.BBox.Width, 50.0)

	_, ok = findText(doc, "Date")
	assert.True(t, ok, "separate run expected for distant text")

	texts := doc.TextTokens()
	require.Len(t, texts, 3)
	assert.Equal(t, "Quotation No: SQ-1001", texts[0].Text)
	assert.Equal(t, "Date", texts[1].Text)
	assert.Equal(t, "Acme Wardrobe", texts[2].Text)
}

func TestTokenizer_TokenizeBytes_Rules(t *testing.T) {
	data := buildPDF(t, func(pdf *fpdf.Fpdf) {
		pdf.SetLineWidth(0.5)
		pdf.Line(50, 200, 450, 200)
		pdf.Line(100, 220, 100, 400)
		pdf.Rect(50, 500, 200, 40, "D")
	})

	doc, err := New(DefaultConfig()).TokenizeBytes(data)
	require.NoError(t, err)

	rules := doc.GetPage(0).Rules()
	var horizontal, vertical int
	for _, r := range rules {
		if r.IsHorizontalRule() {
			horizontal++
		} else {
			vertical++
		}
	}
	// one free line plus the rectangle's top and bottom edges
	assert.Equal(t, 3, horizontal)
	// one free line plus the rectangle's left and right edges
	assert.Equal(t, 3, vertical)

	var found bool
	for _, r := range rules {
		if r.IsHorizontalRule() && r.BBox.Width > 390 {
			found = true
			assert.InDelta(t, 200, r.BBox.Center().Y, 1)
			assert.InDelta(t, 50, r.BBox.X, 1)
		}
	}
	assert.True(t, found)
}

func TestTokenizer_TokenizeBytes_Image(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.Gray{Y: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	data := buildPDF(t, func(pdf *fpdf.Fpdf) {
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("swatch", opts, &buf)
		pdf.ImageOptions("swatch", 300, 300, 60, 40, false, opts, 0, "")
	})

	doc, err := New(DefaultConfig()).TokenizeBytes(data)
	require.NoError(t, err)

	images := doc.GetPage(0).Images()
	require.Len(t, images, 1)
	assert.InDelta(t, 300, images[0].BBox.X, 1)
	assert.InDelta(t, 300, images[0].BBox.Y, 1)
	assert.InDelta(t, 60, images[0].BBox.Width, 1)
	assert.InDelta(t, 40, images[0].BBox.Height, 1)
}

func TestTokenizer_Tokenize_RunMerging(t *testing.T) {
	raw := RawPage{
		Index:  0,
		Width:  600,
		Height: 800,
		Glyphs: []Glyph{
			// "Qty" with real widths, then a gap wider than the font size
			{X: 100, Y: 700, W: 6, FontSize: 10, S: "Q"},
			{X: 106, Y: 700, W: 5, FontSize: 10, S: "t"},
			{X: 111, Y: 700.2, W: 5, FontSize: 10, S: "y"},
			{X: 140, Y: 700, W: 6, FontSize: 10, S: "2"},
			// small gap without a space glyph becomes a space
			{X: 200, Y: 650, W: 5, FontSize: 10, S: "a"},
			{X: 207, Y: 650, W: 5, FontSize: 10, S: "b"},
		},
	}

	doc := Tokenize("doc", []RawPage{raw})
	texts := doc.TextTokens()
	require.Len(t, texts, 3)

	assert.Equal(t, "Qty", texts[0].Text)
	assert.InDelta(t, 100, texts[0].BBox.X, 0.01)
	assert.InDelta(t, 16, texts[0].BBox.Width, 0.01)
	assert.InDelta(t, 100-ascentRatio*10, texts[0].BBox.Y, 0.3)

	assert.Equal(t, "2", texts[1].Text)
	assert.Equal(t, "a b", texts[2].Text)
}

func TestTokenizer_Tokenize_RulesAreNotText(t *testing.T) {
	raw := RawPage{
		Width:  600,
		Height: 800,
		Glyphs: []Glyph{{X: 100, Y: 700, W: 5, FontSize: 10, S: "x"}},
		Segments: []Segment{
			{Start: model.Point{X: 50, Y: 690}, End: model.Point{X: 550, Y: 690}, Width: 1},
			// too thick to be a rule
			{Start: model.Point{X: 50, Y: 600}, End: model.Point{X: 550, Y: 600}, Width: 5},
			// diagonal
			{Start: model.Point{X: 50, Y: 500}, End: model.Point{X: 150, Y: 400}, Width: 1},
		},
		Rects: []Rect{
			{BBox: model.BBox{X: 50, Y: 300, Width: 500, Height: 1}, Filled: true},
			{BBox: model.BBox{X: 50, Y: 100, Width: 500, Height: 100}, Filled: true},
		},
	}

	doc := Tokenize("doc", []RawPage{raw})
	page := doc.GetPage(0)
	assert.Len(t, page.TextTokens(), 1)

	rules := page.Rules()
	require.Len(t, rules, 2)
	for _, r := range rules {
		assert.True(t, r.IsHorizontalRule())
		assert.Empty(t, r.Text)
	}
	assert.InDelta(t, 110, rules[0].BBox.Center().Y, 0.01)
	assert.InDelta(t, 499.5, rules[1].BBox.Center().Y, 0.01)
}

func TestTokenizer_Tokenize_ZeroWidthGlyphs(t *testing.T) {
	raw := RawPage{
		Width:  600,
		Height: 800,
		Glyphs: []Glyph{
			{X: 100, Y: 700, FontSize: 10, S: "S"},
			{X: 100, Y: 700, FontSize: 10, S: "Q"},
			{X: 100, Y: 700, FontSize: 10, S: "1"},
		},
	}

	doc := Tokenize("doc", []RawPage{raw})
	texts := doc.TextTokens()
	require.Len(t, texts, 1)
	assert.Equal(t, "SQ1", texts[0].Text)
	assert.InDelta(t, 15, texts[0].BBox.Width, 0.01)
}

func TestTokenizer_Tokenize_OriginOffset(t *testing.T) {
	raw := RawPage{
		Width:   600,
		Height:  800,
		OriginX: 10,
		OriginY: 20,
		Glyphs:  []Glyph{{X: 110, Y: 720, W: 5, FontSize: 10, S: "x"}},
	}

	tok := Tokenize("doc", []RawPage{raw}).TextTokens()[0]
	assert.InDelta(t, 100, tok.BBox.X, 0.01)
	assert.InDelta(t, 100-ascentRatio*10, tok.BBox.Y, 0.01)
}
