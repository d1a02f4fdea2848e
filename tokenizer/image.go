package tokenizer

import (
	"image"
	"io"

	"github.com/ledongthuc/pdf"
)

// maxImagePixels caps decoded image size.
const maxImagePixels = 25_000_000

// decodeImage decodes an image XObject holding raw 8-bit samples in a
// device colour space. It returns nil for anything else (DCT/JPX streams,
// masks, indexed or ICC colour, malformed data); the placement is still
// reported without pixels.
func decodeImage(xobj pdf.Value) (img image.Image) {
	defer func() {
		if recover() != nil {
			img = nil
		}
	}()

	if xobj.Key("ImageMask").Bool() {
		return nil
	}
	if !supportedFilter(xobj.Key("Filter")) {
		return nil
	}
	if p := xobj.Key("DecodeParms").Key("Predictor").Int64(); p > 1 {
		return nil
	}

	w := int(xobj.Key("Width").Int64())
	h := int(xobj.Key("Height").Int64())
	if w <= 0 || h <= 0 || w*h > maxImagePixels {
		return nil
	}
	if bpc := xobj.Key("BitsPerComponent").Int64(); bpc != 0 && bpc != 8 {
		return nil
	}

	var components int
	switch xobj.Key("ColorSpace").Name() {
	case "DeviceGray":
		components = 1
	case "DeviceRGB":
		components = 3
	case "DeviceCMYK":
		components = 4
	default:
		return nil
	}

	rc := xobj.Reader()
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, int64(w*h*components)))
	if err != nil || len(data) < w*h*components {
		return nil
	}

	rect := image.Rect(0, 0, w, h)
	switch components {
	case 1:
		gray := image.NewGray(rect)
		copy(gray.Pix, data)
		return gray
	case 3:
		rgba := image.NewRGBA(rect)
		for i := 0; i < w*h; i++ {
			rgba.Pix[i*4+0] = data[i*3+0]
			rgba.Pix[i*4+1] = data[i*3+1]
			rgba.Pix[i*4+2] = data[i*3+2]
			rgba.Pix[i*4+3] = 0xff
		}
		return rgba
	default:
		cmyk := image.NewCMYK(rect)
		copy(cmyk.Pix, data)
		return cmyk
	}
}

// supportedFilter reports whether the stream decodes to raw samples.
func supportedFilter(f pdf.Value) bool {
	switch f.Kind() {
	case pdf.Null:
		return true
	case pdf.Name:
		return f.Name() == "FlateDecode"
	case pdf.Array:
		for i := 0; i < f.Len(); i++ {
			if f.Index(i).Name() != "FlateDecode" {
				return false
			}
		}
		return true
	}
	return false
}
