// Package resolve turns raw extracted text into typed field values.
//
// Each field is resolved on its own: text read directly from the document
// wins when it parses as the field's type; otherwise, when the field's
// region lies on a scanned image, the region is recognized through OCR.
// When the rule-based table segmentation is ambiguous, a table recognizer
// provides a competing set of rows and a single arbitration rule picks one.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tsawler/sqextract/extract"
	"github.com/tsawler/sqextract/model"
	"github.com/tsawler/sqextract/recognition"
)

// Config holds configuration for value resolution
type Config struct {
	// DirectTextConfidence is the confidence of a value read from the
	// document's text layer (default: 0.99)
	DirectTextConfidence float64

	// OCRConfidenceScale multiplies the recognizer's confidence (default: 0.9)
	OCRConfidenceScale float64

	// TableConfidence is used for table recognizer cells when the recognizer
	// reports no confidence of its own (default: 0.85)
	TableConfidence float64

	// DefaultDimensionUnit applies to dimensions without a unit (default: "mm")
	DefaultDimensionUnit string

	// Concurrency bounds the fields resolved at once (default: 8)
	Concurrency int

	// HeaderTolerance is the edit distance ratio used to match table
	// recognizer header cells to column headers (default: 0.2)
	HeaderTolerance float64
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		DirectTextConfidence: 0.99,
		OCRConfidenceScale:   0.9,
		TableConfidence:      0.85,
		DefaultDimensionUnit: "mm",
		Concurrency:          8,
		HeaderTolerance:      0.2,
	}
}

// Resolver resolves raw extraction results. It is safe for concurrent use.
type Resolver struct {
	config Config
	rec    *recognition.Client
}

// New creates a resolver. rec may be nil, in which case nothing is
// recognized and fields without usable direct text fail.
func New(config Config, rec *recognition.Client) *Resolver {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &Resolver{config: config, rec: rec}
}

// job resolves one raw field into a slot.
type job struct {
	raw  *extract.RawField
	path string
	dst  **model.Field
	perr error // direct text parse failure, kept for the recognition step
}

// Resolve normalizes every field of raw. Recognition failures are recorded
// on the affected fields; the only error returned is the context's.
func (r *Resolver) Resolve(ctx context.Context, doc *model.Document, raw *extract.Result) (*model.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ex, cells, queued := r.plan(doc, raw)

	// issues are kept per job so their order does not depend on scheduling
	issues := make([][]model.Issue, len(queued))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Concurrency)
	for i, j := range queued {
		i, j := i, j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			issues[i] = r.recognize(gctx, doc, j, *j.dst)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, iss := range issues {
		ex.Issues = append(ex.Issues, iss...)
	}

	rows := make([]*model.Row, len(raw.Rows))
	for i, rr := range raw.Rows {
		row := newRow(i, rr, model.SourceDirectText)
		for _, f := range cells[i] {
			row.Set(f)
			if f.Source == model.SourceOCR {
				row.Source = model.SourceOCR
			}
		}
		rows[i] = row
	}
	ex.Rows = rows

	if raw.Ambiguous {
		chosen, iss, err := r.arbitrate(ctx, doc, raw, rows)
		if err != nil {
			return nil, err
		}
		ex.Rows = chosen
		ex.Issues = append(ex.Issues, iss...)
	}
	return ex, nil
}

// plan resolves every field that needs no recognition and returns the
// jobs still waiting for OCR, in document order.
func (r *Resolver) plan(doc *model.Document, raw *extract.Result) (*model.Extraction, [][]*model.Field, []job) {
	ex := &model.Extraction{
		DocumentID:    raw.DocumentID,
		Template:      raw.Template,
		Header:        make([]*model.Field, len(raw.Header)),
		Summary:       make([]*model.Field, len(raw.Summary)),
		SummaryStatus: model.StatusOK,
	}

	var jobs []job
	for i, f := range raw.Header {
		jobs = append(jobs, job{raw: f, path: model.HeaderPath(f.Name), dst: &ex.Header[i]})
	}
	for i, f := range raw.Summary {
		jobs = append(jobs, job{raw: f, path: model.SummaryPath(f.Name), dst: &ex.Summary[i]})
	}
	cells := make([][]*model.Field, len(raw.Rows))
	for i, rr := range raw.Rows {
		cells[i] = make([]*model.Field, len(rr.Order))
		for k, name := range rr.Order {
			jobs = append(jobs, job{raw: rr.Fields[name], path: model.RowPath(i, name), dst: &cells[i][k]})
		}
	}

	var queued []job
	for _, j := range jobs {
		f, done, perr := r.direct(doc, j.raw)
		*j.dst = f
		if !done {
			j.perr = perr
			queued = append(queued, j)
		}
	}
	return ex, cells, queued
}

func newRow(i int, rr *extract.RawRow, src model.Source) *model.Row {
	row := model.NewRow(i)
	row.Source = src
	row.Page = rr.Page
	row.BBox = rr.BBox
	row.Images = append([]model.ImageRef(nil), rr.Images...)
	return row
}

// direct resolves a field from the document's text layer. done is false
// when the field's region lies on an image that a recognizer may read.
func (r *Resolver) direct(doc *model.Document, raw *extract.RawField) (f *model.Field, done bool, perr error) {
	f = model.NewField(raw.Name, raw.Type)
	f.Required = raw.Required
	f.Raw = cleanText(raw.Text)
	f.Page = raw.Page
	f.Region = raw.Region

	if !raw.Located {
		if raw.Required {
			f.Fail("anchor not found")
		}
		return f, true, nil
	}

	if f.Raw != "" {
		if perr = normalize(f, f.Raw, r.config.DefaultDimensionUnit); perr == nil {
			f.Source = model.SourceDirectText
			f.SetConfidence(r.config.DirectTextConfidence)
			return f, true, nil
		}
	}

	if r.rec.HasText() && recognition.HasImage(doc, raw.Page, raw.Region) {
		return f, false, perr
	}
	settle(f, model.SourceDirectText, perr, raw.Required)
	return f, true, perr
}

// recognize finishes a field that direct left open.
func (r *Resolver) recognize(ctx context.Context, doc *model.Document, j job, f *model.Field) []model.Issue {
	src, perr := model.SourceDirectText, j.perr

	text, conf, err := r.ocr(ctx, doc, j.raw)
	text = cleanText(text)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil
	case errors.Is(err, recognition.ErrNoImage):
		// placed image without decodable pixels
	case err != nil:
		f.Source = model.SourceOCR
		f.Fail(err.Error())
		return []model.Issue{{FieldPath: j.path, Kind: model.IssueRecognitionError, Message: err.Error()}}
	case text != "":
		if err := normalize(f, text, r.config.DefaultDimensionUnit); err == nil {
			f.Raw = text
			f.Source = model.SourceOCR
			f.SetConfidence(conf * r.config.OCRConfidenceScale)
			return nil
		} else if perr == nil {
			src, perr, f.Raw = model.SourceOCR, err, text
		}
	}

	settle(f, src, perr, j.raw.Required)
	return nil
}

// settle marks a field that got no usable value.
func settle(f *model.Field, src model.Source, perr error, required bool) {
	switch {
	case perr != nil:
		f.Source = src
		f.Fail(perr.Error())
	case required:
		f.Fail("no value found")
	}
}

func (r *Resolver) ocr(ctx context.Context, doc *model.Document, raw *extract.RawField) (string, float64, error) {
	img, err := recognition.Crop(doc, raw.Page, raw.Region, r.rec.Config().Scale)
	if err != nil {
		return "", 0, err
	}
	text, conf, err := r.rec.RecognizeText(ctx, img)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", raw.Name, err)
	}
	return text, conf, nil
}
