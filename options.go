package sqextract

import (
	"maps"

	"github.com/phuslu/log"

	"github.com/tsawler/sqextract/extract"
	"github.com/tsawler/sqextract/match"
	"github.com/tsawler/sqextract/recognition"
	"github.com/tsawler/sqextract/record"
	"github.com/tsawler/sqextract/resolve"
	"github.com/tsawler/sqextract/templates"
	"github.com/tsawler/sqextract/tokenizer"
	"github.com/tsawler/sqextract/validate"
)

// engineOptions holds the configuration of an Engine.
type engineOptions struct {
	logger   *log.Logger
	registry *templates.Registry

	// Injected recognition providers; nil disables that kind.
	text  recognition.TextRecognizer
	table recognition.TableRecognizer

	// Batch processing
	concurrency   int
	emitUnmatched bool

	// Stage configuration
	tokenizer   tokenizer.Config
	match       match.Config
	extract     extract.Config
	recognition recognition.Config
	resolve     resolve.Config
	validate    validate.Config
	record      record.Options
}

// defaultOptions returns the default engine options. The registry is left
// nil and filled with the built-in catalog on first use.
func defaultOptions() engineOptions {
	return engineOptions{
		logger:      defaultLogger(),
		concurrency: 4,
		tokenizer:   tokenizer.DefaultConfig(),
		match:       match.DefaultConfig(),
		extract:     extract.DefaultConfig(),
		recognition: recognition.DefaultConfig(),
		resolve:     resolve.DefaultConfig(),
		validate:    validate.DefaultConfig(),
		record:      record.DefaultOptions(),
	}
}

// clone creates a deep copy of engineOptions. The registry, logger and
// recognizers are shared.
func (o engineOptions) clone() engineOptions {
	newOpts := o
	if o.record.Weights != nil {
		newOpts.record.Weights = maps.Clone(o.record.Weights)
	}
	return newOpts
}
