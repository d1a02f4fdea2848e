package recognition

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/tsawler/sqextract/model"
)

// maxSide caps the pixel size of a rendered region.
const maxSide = 8000

// HasImage reports whether region overlaps an image placed on page.
func HasImage(doc *model.Document, page int, region model.BBox) bool {
	p := doc.GetPage(page)
	if p == nil {
		return false
	}
	for _, t := range p.Images() {
		if !t.BBox.Intersection(region).IsEmpty() {
			return true
		}
	}
	return false
}

// Crop renders region of page from the decoded images placed on it, at
// scale pixels per point. Parts of the region not covered by an image are
// white. It returns ErrNoImage when no decoded image overlaps the region.
func Crop(doc *model.Document, page int, region model.BBox, scale float64) (RegionImage, error) {
	out := RegionImage{Page: page, BBox: region}
	p := doc.GetPage(page)
	if p == nil || region.IsEmpty() {
		return out, ErrNoImage
	}
	if scale <= 0 {
		scale = 1
	}

	w := int(math.Ceil(region.Width * scale))
	h := int(math.Ceil(region.Height * scale))
	if w > maxSide || h > maxSide {
		f := float64(maxSide) / math.Max(float64(w), float64(h))
		w, h, scale = int(float64(w)*f), int(float64(h)*f), scale*f
	}
	if w < 1 || h < 1 {
		return out, ErrNoImage
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	drawn := false
	for _, t := range p.Images() {
		if t.Image == nil {
			continue
		}
		isect := t.BBox.Intersection(region)
		if isect.IsEmpty() {
			continue
		}
		src := sourceRect(t.Image.Bounds(), t.BBox, isect)
		if src.Empty() {
			continue
		}
		dr := image.Rect(
			int(math.Floor((isect.Left()-region.Left())*scale)),
			int(math.Floor((isect.Top()-region.Top())*scale)),
			int(math.Ceil((isect.Right()-region.Left())*scale)),
			int(math.Ceil((isect.Bottom()-region.Top())*scale)),
		).Intersect(dst.Bounds())
		if dr.Empty() {
			continue
		}
		draw.CatmullRom.Scale(dst, dr, t.Image, src, draw.Over, nil)
		drawn = true
	}
	if !drawn {
		return out, ErrNoImage
	}
	out.Image = dst
	return out, nil
}

// Render returns region of page with the text tokens inside it and, when
// decoded images cover it, its pixels.
func Render(doc *model.Document, page int, region model.BBox, scale float64) RegionImage {
	out, err := Crop(doc, page, region, scale)
	if err != nil {
		out = RegionImage{Page: page, BBox: region}
	}
	if p := doc.GetPage(page); p != nil {
		for _, t := range p.TextTokens() {
			if region.Contains(t.BBox.Center()) {
				out.Tokens = append(out.Tokens, t)
			}
		}
	}
	return out
}

// sourceRect maps part of an image's placement box onto its pixel bounds.
func sourceRect(b image.Rectangle, placed, part model.BBox) image.Rectangle {
	sx := float64(b.Dx()) / placed.Width
	sy := float64(b.Dy()) / placed.Height
	return image.Rect(
		b.Min.X+int(math.Floor((part.Left()-placed.Left())*sx)),
		b.Min.Y+int(math.Floor((part.Top()-placed.Top())*sy)),
		b.Min.X+int(math.Ceil((part.Right()-placed.Left())*sx)),
		b.Min.Y+int(math.Ceil((part.Bottom()-placed.Top())*sy)),
	).Intersect(b)
}
