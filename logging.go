package sqextract

import (
	"context"
	"io"
	"os"

	"github.com/phuslu/log"

	"github.com/tsawler/sqextract/model"
)

// defaultLogger writes human readable entries at info level to stderr.
func defaultLogger() *log.Logger {
	return &log.Logger{
		Level:  log.InfoLevel,
		Writer: &log.ConsoleWriter{Writer: os.Stderr},
	}
}

// NewLogger creates a logger for the given level and format ("console" or
// "json") writing to w.
func NewLogger(level, format string, w io.Writer) *log.Logger {
	logger := &log.Logger{Level: log.ParseLevel(level)}
	if format == "json" {
		logger.Writer = &log.IOWriter{Writer: w}
	} else {
		logger.Writer = &log.ConsoleWriter{Writer: w}
	}
	return logger
}

// DiscardLogger returns a logger that drops every entry.
func DiscardLogger() *log.Logger {
	return &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}

// docLogger tags entries with the document and template they concern.
type docLogger struct {
	logger     *log.Logger
	documentID string
	template   string
}

func (d docLogger) with(e *log.Entry) *log.Entry {
	return e.Str("document_id", d.documentID).Str("template", d.template)
}

func (d docLogger) Debug() *log.Entry { return d.with(d.logger.Debug()) }
func (d docLogger) Info() *log.Entry  { return d.with(d.logger.Info()) }
func (d docLogger) Warn() *log.Entry  { return d.with(d.logger.Warn()) }
func (d docLogger) Error() *log.Entry { return d.with(d.logger.Error()) }

// issues logs the findings that need a reviewer's attention.
func (d docLogger) issues(ex *model.Extraction) {
	for _, iss := range ex.Issues {
		switch iss.Kind {
		case model.IssueExtractionFailure, model.IssueRecognitionError, model.IssueSegmentation:
			d.Warn().Str("field", iss.FieldPath).Str("kind", string(iss.Kind)).Msg(iss.Message)
		default:
			d.Debug().Str("field", iss.FieldPath).Str("kind", string(iss.Kind)).Msg(iss.Message)
		}
	}
}

type docLoggerKey struct{}

func withDocLogger(ctx context.Context, d docLogger) context.Context {
	return context.WithValue(ctx, docLoggerKey{}, d)
}

// logRetry is installed as the recognition retry hook.
func logRetry(ctx context.Context, op string, page int, err error) {
	d, ok := ctx.Value(docLoggerKey{}).(docLogger)
	if !ok {
		return
	}
	d.Warn().Str("op", op).Int("page", page).Err(err).Msg("recognition failed, retrying")
}
