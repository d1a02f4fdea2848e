package sqextract

import (
	"errors"

	"github.com/tsawler/sqextract/match"
	"github.com/tsawler/sqextract/tokenizer"
)

var (
	// ErrUnreadableDocument is returned when the input is not a readable
	// PDF. No record is produced.
	ErrUnreadableDocument = tokenizer.ErrUnreadableDocument

	// ErrNoTemplateMatch is returned when no catalog variant fits the
	// document. Use errors.As with *match.NoMatchError for the details.
	ErrNoTemplateMatch = match.ErrNoTemplateMatch

	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Must is a helper that wraps a call to a function returning (T, error)
// and panics if the error is non-nil. It is intended for use in program
// initialization where errors are fatal.
//
// Example:
//
//	engine := sqextract.Must(sqextract.FromConfig(cfg))
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}
