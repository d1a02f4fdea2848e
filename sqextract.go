// Package sqextract converts sales quotation PDFs that follow a known
// template family into validated structured records.
//
// Basic usage:
//
//	rec, err := sqextract.New().Process(ctx, pdfBytes)
//	if err != nil {
//	    // handle error
//	}
//	data, _ := rec.JSON()
//
// With options:
//
//	engine := sqextract.New().
//	    WithCatalog(catalog).
//	    WithTextRecognizer(ocrClient).
//	    Concurrency(8).
//	    EmitUnmatched()
//	results, err := engine.ProcessBatch(ctx, inputs)
//
// From a configuration file:
//
//	cfg, err := sqextract.LoadFromFiles("sqextract.toml")
//	if err != nil {
//	    // handle error
//	}
//	engine := sqextract.Must(sqextract.FromConfig(cfg))
//
// The stages are available as separate packages (tokenizer, match,
// extract, resolve, validate, record) for callers that need to inspect
// intermediate results.
package sqextract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/tsawler/sqextract/extract"
	"github.com/tsawler/sqextract/match"
	"github.com/tsawler/sqextract/model"
	"github.com/tsawler/sqextract/recognition"
	"github.com/tsawler/sqextract/record"
	"github.com/tsawler/sqextract/resolve"
	"github.com/tsawler/sqextract/templates"
	"github.com/tsawler/sqextract/tokenizer"
	"github.com/tsawler/sqextract/validate"
)

// Engine runs the extraction pipeline. An Engine is immutable: option
// methods return a modified copy, and one Engine may process any number of
// documents concurrently.
type Engine struct {
	options engineOptions
	err     error // first error from an option method

	stages func() *stages
}

// stages are the pipeline components built from an Engine's options. They
// hold no per-document state.
type stages struct {
	tokenizer  *tokenizer.Tokenizer
	matcher    *match.Matcher
	extractor  *extract.Extractor
	resolver   *resolve.Resolver
	validator  *validate.Validator
	recognizer *recognition.Client
}

// New creates an engine with the built-in template catalog, no recognition
// providers and a console logger at info level.
//
// Example:
//
//	rec, err := sqextract.New().Process(ctx, pdfBytes)
func New() *Engine {
	return newEngine(defaultOptions(), nil)
}

// FromConfig creates an engine from a configuration. The catalog file and
// sample workbooks, when named, are loaded once here; swap the catalog
// later through Registry.
func FromConfig(cfg *Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := defaultOptions()
	cfg.apply(&opts)
	opts.logger = NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	if cfg.Catalog != "" || len(cfg.Samples) > 0 {
		catalog, err := loadCatalog(cfg)
		if err != nil {
			return nil, err
		}
		registry, err := templates.NewRegistry(catalog)
		if err != nil {
			return nil, err
		}
		opts.registry = registry
	}
	return newEngine(opts, nil), nil
}

// loadCatalog reads the configured catalog and appends a variant for each
// sample workbook.
func loadCatalog(cfg *Config) (*templates.Catalog, error) {
	catalog := templates.Default()
	if cfg.Catalog != "" {
		var err error
		if catalog, err = templates.LoadCatalogFile(cfg.Catalog); err != nil {
			return nil, err
		}
	}
	if len(cfg.Samples) == 0 {
		return catalog, nil
	}

	variants := make([]*templates.Variant, 0, len(cfg.Samples))
	for _, path := range cfg.Samples {
		v, err := templates.ImportXLSXFile(path, templates.ImportOptions{})
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return catalog.With(variants...)
}

func newEngine(opts engineOptions, err error) *Engine {
	if opts.registry == nil && err == nil {
		opts.registry, err = templates.NewRegistry(templates.Default())
	}
	e := &Engine{options: opts, err: err}
	e.stages = sync.OnceValue(e.build)
	return e
}

// clone creates a copy of the engine with fresh pipeline stages.
func (e *Engine) clone() *Engine {
	return newEngine(e.options.clone(), e.err)
}

func (e *Engine) build() *stages {
	o := e.options

	rc := o.recognition
	user := rc.OnRetry
	rc.OnRetry = func(ctx context.Context, op string, page int, err error) {
		logRetry(ctx, op, page, err)
		if user != nil {
			user(ctx, op, page, err)
		}
	}

	var rec *recognition.Client
	if o.text != nil || o.table != nil {
		rec = recognition.NewClient(o.text, o.table, rc)
	}
	return &stages{
		tokenizer:  tokenizer.New(o.tokenizer),
		matcher:    match.New(o.match),
		extractor:  extract.New(o.extract),
		resolver:   resolve.New(o.resolve, rec),
		validator:  validate.New(o.validate),
		recognizer: rec,
	}
}

// Err returns the first error recorded by an option method, if any.
func (e *Engine) Err() error {
	return e.err
}

// Registry returns the template registry. Swapping its catalog affects
// runs that start afterwards.
func (e *Engine) Registry() *templates.Registry {
	return e.options.registry
}

// Process extracts one PDF. It returns ErrUnreadableDocument when the bytes
// cannot be decoded and ErrNoTemplateMatch when no variant fits; with
// EmitUnmatched the latter also comes with an unmatched record.
func (e *Engine) Process(ctx context.Context, pdf []byte) (*record.StructuredRecord, error) {
	if e.err != nil {
		return nil, e.err
	}
	catalog := e.options.registry.Catalog()

	doc, err := e.stages().tokenizer.TokenizeBytes(pdf)
	if err != nil {
		e.options.logger.Error().Err(err).Int("bytes", len(pdf)).Msg("document unreadable")
		return nil, err
	}
	return e.process(ctx, doc, catalog)
}

// ProcessFile reads and extracts a PDF file.
func (e *Engine) ProcessFile(ctx context.Context, path string) (*record.StructuredRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return e.Process(ctx, data)
}

// ProcessDocument extracts an already tokenized document.
func (e *Engine) ProcessDocument(ctx context.Context, doc *model.Document) (*record.StructuredRecord, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.process(ctx, doc, e.options.registry.Catalog())
}

func (e *Engine) process(ctx context.Context, doc *model.Document, catalog *templates.Catalog) (*record.StructuredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st := e.stages()
	dl := docLogger{logger: e.options.logger, documentID: doc.ID}
	dl.Debug().Int("pages", doc.PageCount()).Int("tokens", doc.TokenCount()).Msg("tokenized")

	m, err := st.matcher.Match(doc, catalog)
	if err != nil {
		dl.Error().Err(err).Msg("template match failed")
		if e.options.emitUnmatched && errors.Is(err, ErrNoTemplateMatch) {
			return record.Unmatched(doc.ID, err.Error()), err
		}
		return nil, err
	}
	dl.template = m.Variant.Name
	dl.Debug().Float64("confidence", m.Confidence).Msg("template matched")

	raw, err := st.extractor.Extract(doc, m)
	if err != nil {
		dl.Error().Err(err).Msg("extraction failed")
		return nil, err
	}
	dl.Debug().Int("rows", len(raw.Rows)).Bool("ambiguous", raw.Ambiguous).Msg("fields extracted")

	ex, err := st.resolver.Resolve(withDocLogger(ctx, dl), doc, raw)
	if err != nil {
		dl.Error().Err(err).Msg("resolution aborted")
		return nil, err
	}
	dl.Debug().Int("rows", len(ex.Rows)).Msg("fields resolved")

	st.validator.Validate(ex)
	dl.issues(ex)

	rec := record.Build(ex, e.options.record)
	dl.Info().Str("status", string(rec.Status)).Float64("confidence", rec.Confidence).
		Int("products", len(rec.Products)).Int("issues", len(rec.Issues)).Msg("document processed")
	return rec, nil
}

// Result is the outcome of one document of a batch.
type Result struct {
	Record *record.StructuredRecord
	Err    error
}

// ProcessBatch extracts documents in parallel, at most Concurrency at a
// time. Results are in input order and carry per-document errors. The
// returned error is non-nil only when ctx was cancelled.
func (e *Engine) ProcessBatch(ctx context.Context, inputs [][]byte) ([]Result, error) {
	if e.err != nil {
		return nil, e.err
	}
	catalog := e.options.registry.Catalog()
	results := make([]Result, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.options.concurrency, 1))
	for i, data := range inputs {
		i, data := i, data
		g.Go(func() error {
			doc, err := e.stages().tokenizer.TokenizeBytes(data)
			if err != nil {
				e.options.logger.Error().Err(err).Int("input", i).Msg("document unreadable")
				results[i] = Result{Err: err}
				return nil
			}
			rec, err := e.process(gctx, doc, catalog)
			results[i] = Result{Record: rec, Err: err}
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// WithLogger sets the logger.
//
// Example:
//
//	engine := sqextract.New().WithLogger(sqextract.NewLogger("debug", "json", os.Stderr))
func (e *Engine) WithLogger(logger *log.Logger) *Engine {
	newEng := e.clone()
	if logger == nil {
		logger = DiscardLogger()
	}
	newEng.options.logger = logger
	return newEng
}

// WithCatalog replaces the template catalog with a new registry holding
// catalog. An invalid catalog is reported by Err and by every Process call.
func (e *Engine) WithCatalog(catalog *templates.Catalog) *Engine {
	registry, err := templates.NewRegistry(catalog)
	if err != nil {
		newEng := e.clone()
		if newEng.err == nil {
			newEng.err = err
		}
		return newEng
	}
	return e.WithRegistry(registry)
}

// WithRegistry shares a registry, so catalog swaps reach every engine
// holding it.
func (e *Engine) WithRegistry(registry *templates.Registry) *Engine {
	newEng := e.clone()
	newEng.options.registry = registry
	return newEng
}

// WithTextRecognizer injects the OCR provider used for regions without a
// text layer.
//
// Example:
//
//	client, err := ocr.New()
//	if err != nil {
//	    // handle error
//	}
//	defer client.Close()
//	engine := sqextract.New().WithTextRecognizer(client)
func (e *Engine) WithTextRecognizer(r recognition.TextRecognizer) *Engine {
	newEng := e.clone()
	newEng.options.text = r
	return newEng
}

// WithTableRecognizer injects the table recognition provider consulted when
// rule-based row segmentation is ambiguous.
func (e *Engine) WithTableRecognizer(r recognition.TableRecognizer) *Engine {
	newEng := e.clone()
	newEng.options.table = r
	return newEng
}

// WithRecognitionConfig sets timeouts, retries and rate limits of
// recognition calls.
func (e *Engine) WithRecognitionConfig(config recognition.Config) *Engine {
	newEng := e.clone()
	newEng.options.recognition = config
	return newEng
}

// WithMatchConfig sets the template matching thresholds.
func (e *Engine) WithMatchConfig(config match.Config) *Engine {
	newEng := e.clone()
	newEng.options.match = config
	return newEng
}

// WithValidationConfig sets the validation tolerances.
func (e *Engine) WithValidationConfig(config validate.Config) *Engine {
	newEng := e.clone()
	newEng.options.validate = config
	return newEng
}

// Concurrency bounds the documents ProcessBatch runs at once.
func (e *Engine) Concurrency(n int) *Engine {
	newEng := e.clone()
	newEng.options.concurrency = max(n, 1)
	return newEng
}

// EmitUnmatched makes Process return an unmatched record alongside
// ErrNoTemplateMatch.
func (e *Engine) EmitUnmatched() *Engine {
	newEng := e.clone()
	newEng.options.emitUnmatched = true
	return newEng
}

// Aggregation selects how field confidences combine into the record
// confidence. weights apply to record.AggregateWeighted.
//
// Example:
//
//	engine := sqextract.New().Aggregation(record.AggregateWeighted, map[string]float64{"amount": 3})
func (e *Engine) Aggregation(method record.Aggregation, weights map[string]float64) *Engine {
	newEng := e.clone()
	newEng.options.record.Aggregation = method
	newEng.options.record.Weights = weights
	newEng.options = newEng.options.clone()
	return newEng
}
