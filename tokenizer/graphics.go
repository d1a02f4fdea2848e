package tokenizer

import (
	"math"

	"github.com/ledongthuc/pdf"
	"github.com/tsawler/sqextract/model"
)

// maxFormDepth bounds recursion through nested form XObjects.
const maxFormDepth = 8

// graphicsState is the subset of the PDF graphics state needed to place
// paths and images.
type graphicsState struct {
	ctm       model.Matrix
	lineWidth float64
}

type pathOp int

const (
	pathMoveTo pathOp = iota
	pathLineTo
	pathClose
)

type pathSegment struct {
	op pathOp
	pt model.Point
}

// graphicsInterpreter walks a content stream collecting stroked segments,
// rectangles and image placements in user space.
type graphicsInterpreter struct {
	resources pdf.Value
	state     graphicsState
	stack     []graphicsState
	path      []pathSegment
	depth     int

	segments   []Segment
	rects      []Rect
	placements []Placement
}

func newGraphicsInterpreter(resources pdf.Value) *graphicsInterpreter {
	return &graphicsInterpreter{
		resources: resources,
		state:     graphicsState{ctm: model.Identity(), lineWidth: 1},
	}
}

// runContents interprets a page's Contents entry, which is either a single
// stream or an array of streams. Malformed streams abandon the graphics pass
// for the page; text extracted separately is unaffected.
func (g *graphicsInterpreter) runContents(contents pdf.Value) {
	defer func() {
		_ = recover()
	}()

	if contents.Kind() == pdf.Array {
		for i := 0; i < contents.Len(); i++ {
			g.run(contents.Index(i))
		}
		return
	}
	g.run(contents)
}

func (g *graphicsInterpreter) run(strm pdf.Value) {
	if strm.IsNull() {
		return
	}
	pdf.Interpret(strm, func(stk *pdf.Stack, op string) {
		n := stk.Len()
		args := make([]pdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		g.apply(op, args)
	})
}

func (g *graphicsInterpreter) apply(op string, args []pdf.Value) {
	switch op {
	case "q":
		g.stack = append(g.stack, g.state)
	case "Q":
		if len(g.stack) > 0 {
			g.state = g.stack[len(g.stack)-1]
			g.stack = g.stack[:len(g.stack)-1]
		}
	case "cm":
		if m, ok := matrixArgs(args); ok {
			g.state.ctm = m.Multiply(g.state.ctm)
		}
	case "w":
		if len(args) == 1 {
			g.state.lineWidth = args[0].Float64()
		}
	case "m":
		if len(args) == 2 {
			g.path = append(g.path, pathSegment{op: pathMoveTo, pt: point(args[0], args[1])})
		}
	case "l":
		if len(args) == 2 {
			g.path = append(g.path, pathSegment{op: pathLineTo, pt: point(args[0], args[1])})
		}
	case "c", "v", "y":
		// Curves are never table rules; keep only the end point so the
		// current point stays correct.
		if len(args) >= 2 {
			g.path = append(g.path, pathSegment{op: pathMoveTo, pt: point(args[len(args)-2], args[len(args)-1])})
		}
	case "h":
		g.path = append(g.path, pathSegment{op: pathClose})
	case "re":
		if len(args) == 4 {
			x, y := args[0].Float64(), args[1].Float64()
			w, h := args[2].Float64(), args[3].Float64()
			g.path = append(g.path,
				pathSegment{op: pathMoveTo, pt: model.Point{X: x, Y: y}},
				pathSegment{op: pathLineTo, pt: model.Point{X: x + w, Y: y}},
				pathSegment{op: pathLineTo, pt: model.Point{X: x + w, Y: y + h}},
				pathSegment{op: pathLineTo, pt: model.Point{X: x, Y: y + h}},
				pathSegment{op: pathClose},
			)
		}
	case "S":
		g.paint(true, false)
	case "s":
		g.path = append(g.path, pathSegment{op: pathClose})
		g.paint(true, false)
	case "f", "F", "f*":
		g.paint(false, true)
	case "B", "B*":
		g.paint(true, true)
	case "b", "b*":
		g.path = append(g.path, pathSegment{op: pathClose})
		g.paint(true, true)
	case "n":
		g.path = g.path[:0]
	case "Do":
		if len(args) == 1 {
			g.doXObject(args[0].Name())
		}
	}
}

// paint turns the current path into rectangles or stroked segments.
func (g *graphicsInterpreter) paint(stroked, filled bool) {
	defer func() { g.path = g.path[:0] }()
	if len(g.path) == 0 {
		return
	}

	if box, ok := g.rectangle(); ok {
		g.rects = append(g.rects, Rect{BBox: box, Stroked: stroked, Filled: filled, Width: g.lineWidth()})
		return
	}
	if !stroked {
		return
	}

	var current, start model.Point
	for _, seg := range g.path {
		switch seg.op {
		case pathMoveTo:
			current = g.state.ctm.Transform(seg.pt)
			start = current
		case pathLineTo:
			end := g.state.ctm.Transform(seg.pt)
			g.segments = append(g.segments, Segment{Start: current, End: end, Width: g.lineWidth()})
			current = end
		case pathClose:
			if current.Distance(start) > 0.1 {
				g.segments = append(g.segments, Segment{Start: current, End: start, Width: g.lineWidth()})
			}
			current = start
		}
	}
}

// rectangle reports whether the path is a single axis-aligned rectangle and
// returns its box in user space.
func (g *graphicsInterpreter) rectangle() (model.BBox, bool) {
	var corners []model.Point
	for i, seg := range g.path {
		switch seg.op {
		case pathMoveTo:
			if i != 0 {
				return model.BBox{}, false
			}
			corners = append(corners, seg.pt)
		case pathLineTo:
			corners = append(corners, seg.pt)
		}
	}
	if len(corners) == 5 && corners[0].Distance(corners[4]) < 0.1 {
		corners = corners[:4]
	}
	if len(corners) != 4 {
		return model.BBox{}, false
	}

	for i := 0; i < 4; i++ {
		a, b := corners[i], corners[(i+1)%4]
		if math.Abs(a.X-b.X) > 0.5 && math.Abs(a.Y-b.Y) > 0.5 {
			return model.BBox{}, false
		}
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		d := g.state.ctm.Transform(c)
		minX, maxX = math.Min(minX, d.X), math.Max(maxX, d.X)
		minY, maxY = math.Min(minY, d.Y), math.Max(maxY, d.Y)
	}
	return model.BBox{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, true
}

// lineWidth returns the stroke width scaled by the CTM.
func (g *graphicsInterpreter) lineWidth() float64 {
	m := g.state.ctm
	scale := math.Sqrt(math.Abs(m[0]*m[3] - m[1]*m[2]))
	if scale == 0 {
		scale = 1
	}
	return g.state.lineWidth * scale
}

func (g *graphicsInterpreter) doXObject(name string) {
	xobj := g.resources.Key("XObject").Key(name)
	if xobj.IsNull() {
		return
	}

	switch xobj.Key("Subtype").Name() {
	case "Image":
		g.placements = append(g.placements, Placement{
			Name:  name,
			BBox:  g.unitSquare(),
			Image: decodeImage(xobj),
		})
	case "Form":
		if g.depth >= maxFormDepth {
			return
		}
		g.runForm(xobj)
	}
}

func (g *graphicsInterpreter) runForm(form pdf.Value) {
	saved, savedStack, savedRes, savedPath := g.state, g.stack, g.resources, g.path
	defer func() {
		g.state, g.stack, g.resources, g.path = saved, savedStack, savedRes, savedPath
		g.depth--
	}()
	g.depth++

	if m, ok := matrixValue(form.Key("Matrix")); ok {
		g.state.ctm = m.Multiply(g.state.ctm)
	}
	if res := form.Key("Resources"); !res.IsNull() {
		g.resources = res
	}
	g.stack = nil
	g.path = nil
	g.run(form)
}

// unitSquare maps the image space unit square through the CTM.
func (g *graphicsInterpreter) unitSquare() model.BBox {
	ctm := g.state.ctm
	corners := []model.Point{
		ctm.Transform(model.Point{X: 0, Y: 0}),
		ctm.Transform(model.Point{X: 1, Y: 0}),
		ctm.Transform(model.Point{X: 0, Y: 1}),
		ctm.Transform(model.Point{X: 1, Y: 1}),
	}
	box := model.NewBBoxFromPoints(corners[0], corners[3])
	for _, c := range corners[1:3] {
		box = box.Union(model.BBox{X: c.X, Y: c.Y})
	}
	return box
}

func point(x, y pdf.Value) model.Point {
	return model.Point{X: x.Float64(), Y: y.Float64()}
}

func matrixArgs(args []pdf.Value) (model.Matrix, bool) {
	if len(args) != 6 {
		return model.Matrix{}, false
	}
	var m model.Matrix
	for i := range m {
		m[i] = args[i].Float64()
	}
	return m, true
}

func matrixValue(v pdf.Value) (model.Matrix, bool) {
	if v.Kind() != pdf.Array || v.Len() != 6 {
		return model.Matrix{}, false
	}
	var m model.Matrix
	for i := range m {
		m[i] = v.Index(i).Float64()
	}
	return m, true
}
