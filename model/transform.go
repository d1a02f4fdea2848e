package model

import "math"

// Scale bounds for a fitted transform. Anything outside this range is not
// layout drift but a different document.
const (
	MinFitScale = 0.5
	MaxFitScale = 2.0
)

// Transform maps reference template coordinates to observed document
// coordinates with an independent scale and translation per axis:
//
//	x' = ScaleX*x + TX
//	y' = ScaleY*y + TY
type Transform struct {
	ScaleX, ScaleY float64
	TX, TY         float64
}

// IdentityTransform returns the transform that leaves points unchanged.
func IdentityTransform() Transform {
	return Transform{ScaleX: 1, ScaleY: 1}
}

// Apply maps a reference point into document space.
func (t Transform) Apply(p Point) Point {
	return Point{X: t.ScaleX*p.X + t.TX, Y: t.ScaleY*p.Y + t.TY}
}

// ApplyBox maps a reference box into document space.
func (t Transform) ApplyBox(b BBox) BBox {
	tl := t.Apply(b.TopLeft())
	return BBox{X: tl.X, Y: tl.Y, Width: b.Width * t.ScaleX, Height: b.Height * t.ScaleY}
}

// ApplyX maps a reference x coordinate.
func (t Transform) ApplyX(x float64) float64 {
	return t.ScaleX*x + t.TX
}

// Fit computes the least-squares Transform mapping reference points onto
// observed points. The slices are paired by index. With a single pair, or
// when an axis has no spread in the reference points, that axis is fitted
// as a pure translation. Fitted scales are clamped to
// [MinFitScale, MaxFitScale] and the translation recomputed for the clamped
// scale.
func Fit(reference, observed []Point) Transform {
	n := len(reference)
	if len(observed) < n {
		n = len(observed)
	}
	if n == 0 {
		return IdentityTransform()
	}

	rx := make([]float64, n)
	ry := make([]float64, n)
	ox := make([]float64, n)
	oy := make([]float64, n)
	for i := 0; i < n; i++ {
		rx[i], ry[i] = reference[i].X, reference[i].Y
		ox[i], oy[i] = observed[i].X, observed[i].Y
	}

	sx, tx := fitAxis(rx, ox)
	sy, ty := fitAxis(ry, oy)
	return Transform{ScaleX: sx, ScaleY: sy, TX: tx, TY: ty}
}

// fitAxis solves o = s*r + t by ordinary least squares.
func fitAxis(r, o []float64) (scale, offset float64) {
	n := float64(len(r))
	meanR := mean(r)
	meanO := mean(o)

	var sxx, sxy float64
	for i := range r {
		dr := r[i] - meanR
		sxx += dr * dr
		sxy += dr * (o[i] - meanO)
	}

	// Spread below one point per sample cannot determine a scale.
	if len(r) < 2 || sxx < n {
		return 1, meanO - meanR
	}

	scale = sxy / sxx
	if scale < MinFitScale || scale > MaxFitScale || math.IsNaN(scale) {
		scale = math.Max(MinFitScale, math.Min(MaxFitScale, scale))
		if math.IsNaN(scale) {
			scale = 1
		}
	}
	return scale, meanO - scale*meanR
}

// Residual returns the root-mean-square distance between the transformed
// reference points and the observed points.
func (t Transform) Residual(reference, observed []Point) float64 {
	n := len(reference)
	if len(observed) < n {
		n = len(observed)
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := t.Apply(reference[i]).Distance(observed[i])
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}

// mean computes the arithmetic mean of a slice of float64 values.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
