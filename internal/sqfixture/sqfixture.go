// Package sqfixture renders synthetic sales quotations in the sq-standard
// layout, either directly as tokenized documents or as PDF bytes.
package sqfixture

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
	"github.com/tsawler/sqextract/model"
)

const (
	PageWidth  = 595.0
	PageHeight = 842.0

	headerSize = 10.0
	tableSize  = 8.0

	tableLeft  = 40.0
	tableRight = 560.0
	headerTop  = 169.0 // first page table header row
	contTop    = 40.0  // table header row on continuation pages
	rowHeight  = 20.0
	lineGap    = 11.0
)

// column boundaries of the sq-standard table
var boundaries = []float64{40, 62, 180, 258, 292, 345, 392, 420, 465, 515, 560}

var headers = []string{"S.No", "Product Description", "Size / Dimensions", "Area", "Material",
	"Finish", "Qty", "Rate", "Amount", "Image"}

// Item is one product line.
type Item struct {
	Serial      string
	Name        string
	Description string // printed on a second line under the name
	Dimensions  string
	Area        string
	Material    string
	Finish      string
	Qty         string
	Rate        string
	Amount      string
	Image       bool
}

func (it Item) cells() []string {
	return []string{it.Serial, it.Name, it.Dimensions, it.Area, it.Material, it.Finish, it.Qty, it.Rate, it.Amount}
}

// Quotation describes a document to render.
type Quotation struct {
	Project    string
	Client     string
	Number     string
	Date       string
	PreparedBy string

	Items []Item

	SubTotal   string
	Tax        string
	GrandTotal string

	// Ruled draws the table grid.
	Ruled bool

	// OmitTableHeader leaves out the table header row.
	OmitTableHeader bool

	// RowsPerPage breaks the table onto a new page after this many rows;
	// zero keeps it on one page.
	RowsPerPage int

	// Drift moves every element; the zero value means no drift.
	Drift model.Transform
}

// AcmeWardrobe returns a clean one-row quotation.
func AcmeWardrobe() Quotation {
	return Quotation{
		Project:    "Acme Wardrobe Project",
		Client:     "Acme Corp",
		Number:     "SQ-1001",
		Date:       "2024-03-01",
		PreparedBy: "R. Iyer",
		Items: []Item{{
			Serial:     "1",
			Name:       "Wardrobe 3-door",
			Dimensions: "1200x600x2100mm",
			Area:       "0.72m2",
			Material:   "Plywood",
			Finish:     "Laminate",
			Qty:        "1",
			Rate:       "25,000.00",
			Amount:     "25,000.00",
		}},
		SubTotal:   "25,000.00",
		Tax:        "4,500.00",
		GrandTotal: "29,500.00",
		Ruled:      true,
	}
}

type text struct {
	page      int
	x, top    float64
	size      float64
	s         string
}

type rule struct {
	page           int
	x1, y1, x2, y2 float64
}

type picture struct {
	page       int
	x, y, w, h float64
}

type layout struct {
	pages    int
	texts    []text
	rules    []rule
	pictures []picture
}

// Width returns the width a text run is given in rendered documents.
func Width(s string, size float64) float64 {
	return float64(utf8.RuneCountInString(s)) * 0.5 * size
}

func (q Quotation) drift() model.Transform {
	if q.Drift == (model.Transform{}) {
		return model.IdentityTransform()
	}
	return q.Drift
}

func (q Quotation) layout() layout {
	var l layout
	l.pages = 1
	add := func(page int, x, top, size float64, s string) {
		if s != "" {
			l.texts = append(l.texts, text{page: page, x: x, top: top, size: size, s: s})
		}
	}

	add(0, 40, 50, 14, "SALES QUOTATION")
	add(0, 40, 90, headerSize, "Project Name: "+q.Project)
	add(0, 40, 108, headerSize, "Client Name: "+q.Client)
	add(0, 320, 90, headerSize, "Quotation No: "+q.Number)
	add(0, 320, 108, headerSize, "Date: "+q.Date)
	add(0, 320, 126, headerSize, "Prepared By: "+q.PreparedBy)

	page, top := 0, headerTop
	tableTop := top
	grid := func(page int, from, to float64, rows []float64) {
		if !q.Ruled {
			return
		}
		for _, y := range rows {
			l.rules = append(l.rules, rule{page, tableLeft, y, tableRight, y})
		}
		for _, x := range boundaries {
			l.rules = append(l.rules, rule{page, x, from, x, to})
		}
	}
	header := func(page int, y float64) {
		if q.OmitTableHeader {
			return
		}
		for i, h := range headers {
			add(page, boundaries[i]+2, y+3, tableSize, h)
		}
	}

	header(page, top)
	top += rowHeight
	ys := []float64{tableTop, top}

	for i, it := range q.Items {
		if q.RowsPerPage > 0 && i > 0 && i%q.RowsPerPage == 0 {
			grid(page, tableTop, top, ys)
			page++
			l.pages++
			top, tableTop = contTop, contTop
			header(page, top)
			top += rowHeight
			ys = []float64{tableTop, top}
		}

		h := rowHeight
		if it.Description != "" {
			h += lineGap
		}
		for c, s := range it.cells() {
			add(page, boundaries[c]+2, top+5, tableSize, s)
		}
		add(page, boundaries[1]+2, top+5+lineGap, tableSize, it.Description)
		if it.Image {
			l.pictures = append(l.pictures, picture{page, boundaries[9] + 4, top + 2, 36, h - 4})
		}
		top += h
		ys = append(ys, top)
	}
	grid(page, tableTop, top, ys)

	s := top + 14
	add(page, 340, s, headerSize, "Sub Total")
	add(page, 470, s, headerSize, q.SubTotal)
	add(page, 340, s+18, headerSize, "Tax")
	add(page, 470, s+18, headerSize, q.Tax)
	add(page, 340, s+36, headerSize, "Grand Total")
	add(page, 470, s+36, headerSize, q.GrandTotal)
	return l
}

// Document renders the quotation as an already tokenized document. Text
// runs are as wide as Width reports.
func (q Quotation) Document(id string) *model.Document {
	l := q.layout()
	t := q.drift()

	doc := model.NewDocument(id)
	for i := 0; i < l.pages; i++ {
		doc.AddPage(model.NewPage(i, PageWidth, PageHeight))
	}

	for _, tx := range l.texts {
		p := t.Apply(model.Point{X: tx.x, Y: tx.top})
		size := tx.size * t.ScaleY
		doc.Pages[tx.page].AddToken(model.Token{
			Kind:     model.TokenKindText,
			Text:     tx.s,
			FontSize: size,
			FontName: "Helvetica",
			BBox:     model.NewBBox(p.X, p.Y, Width(tx.s, tx.size)*t.ScaleX, size),
		})
	}
	for _, r := range l.rules {
		a := t.Apply(model.Point{X: r.x1, Y: r.y1})
		b := t.Apply(model.Point{X: r.x2, Y: r.y2})
		box := model.NewBBoxFromPoints(a, b)
		if box.Height < 0.5 {
			box.Y -= 0.25
			box.Height = 0.5
		}
		if box.Width < 0.5 {
			box.X -= 0.25
			box.Width = 0.5
		}
		doc.Pages[r.page].AddToken(model.Token{Kind: model.TokenKindRule, BBox: box})
	}
	for _, pic := range l.pictures {
		box := t.ApplyBox(model.NewBBox(pic.x, pic.y, pic.w, pic.h))
		doc.Pages[pic.page].AddToken(model.Token{Kind: model.TokenKindImage, BBox: box, Image: swatch()})
	}

	for _, p := range doc.Pages {
		model.SortReadingOrder(p.Tokens, 3)
	}
	return doc
}

// PDF renders the quotation with fpdf using the core Helvetica font.
func (q Quotation) PDF() ([]byte, error) {
	l := q.layout()
	t := q.drift()

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetLineWidth(0.5)

	var imgName string
	if len(l.pictures) > 0 {
		var buf bytes.Buffer
		if err := png.Encode(&buf, swatch()); err != nil {
			return nil, err
		}
		imgName = "swatch"
		pdf.RegisterImageOptionsReader(imgName, fpdf.ImageOptions{ImageType: "PNG"}, &buf)
	}

	for page := 0; page < l.pages; page++ {
		pdf.AddPage()
		for _, tx := range l.texts {
			if tx.page != page {
				continue
			}
			size := tx.size * t.ScaleY
			p := t.Apply(model.Point{X: tx.x, Y: tx.top})
			pdf.SetFont("Helvetica", "", size)
			// the baseline sits three quarters of the size below the top
			pdf.Text(p.X, p.Y+0.75*size, tx.s)
		}
		for _, r := range l.rules {
			if r.page != page {
				continue
			}
			a := t.Apply(model.Point{X: r.x1, Y: r.y1})
			b := t.Apply(model.Point{X: r.x2, Y: r.y2})
			pdf.Line(a.X, a.Y, b.X, b.Y)
		}
		for _, pic := range l.pictures {
			if pic.page != page {
				continue
			}
			box := t.ApplyBox(model.NewBBox(pic.x, pic.y, pic.w, pic.h))
			pdf.ImageOptions(imgName, box.X, box.Y, box.Width, box.Height, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
		}
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// swatch is a small grey product picture.
func swatch() image.Image {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(64 + 16*x)})
		}
	}
	return img
}
