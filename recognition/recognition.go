// Package recognition defines the boundary to external text and table
// recognizers and the client that calls them.
//
// Providers are injected. The Client bounds every call with a timeout,
// retries a failed call once after a short backoff, and rate limits calls
// across all goroutines sharing it.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"golang.org/x/time/rate"

	"github.com/tsawler/sqextract/model"
)

var (
	// ErrTimeout is returned when a recognizer does not answer in time.
	ErrTimeout = errors.New("recognition: timed out")

	// ErrNoProvider is returned when no recognizer of the requested kind was
	// configured.
	ErrNoProvider = errors.New("recognition: no provider configured")

	// ErrNoImage is returned when a region has no content to recognize.
	ErrNoImage = errors.New("recognition: region has no image content")
)

// RegionImage is the content of a page region: its pixels when the region
// lies on a decoded image, and the text tokens inside it.
type RegionImage struct {
	Page   int
	BBox   model.BBox
	Image  image.Image
	Tokens []model.Token
}

// Grid is the cell text of a recognized table, row by row. The first row is
// the header row when the recognizer found one.
type Grid struct {
	Rows       [][]string
	Confidence float64
}

// TextRecognizer turns a region image into text with a confidence in [0, 1].
type TextRecognizer interface {
	RecognizeText(ctx context.Context, region RegionImage) (string, float64, error)
}

// TableRecognizer turns a region image into a grid of cell text.
type TableRecognizer interface {
	RecognizeTable(ctx context.Context, region RegionImage) (Grid, error)
}

// TextRecognizerFunc adapts a function to TextRecognizer.
type TextRecognizerFunc func(ctx context.Context, region RegionImage) (string, float64, error)

// RecognizeText calls f.
func (f TextRecognizerFunc) RecognizeText(ctx context.Context, region RegionImage) (string, float64, error) {
	return f(ctx, region)
}

// TableRecognizerFunc adapts a function to TableRecognizer.
type TableRecognizerFunc func(ctx context.Context, region RegionImage) (Grid, error)

// RecognizeTable calls f.
func (f TableRecognizerFunc) RecognizeTable(ctx context.Context, region RegionImage) (Grid, error) {
	return f(ctx, region)
}

// Error is a failed recognition call after all attempts.
type Error struct {
	Op       string // "text" or "table"
	Page     int
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("recognition: %s on page %d failed after %d attempt(s): %v", e.Op, e.Page, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config holds configuration for recognition calls
type Config struct {
	// Timeout bounds each attempt (default: 10s)
	Timeout time.Duration

	// Retries is the number of extra attempts after a failure (default: 1)
	Retries int

	// RetryBackoff is the wait before a retry (default: 250ms)
	RetryBackoff time.Duration

	// RateLimit is the sustained number of calls per second; zero disables
	// limiting (default: 0)
	RateLimit float64
	Burst     int

	// Scale is the pixel density, in pixels per point, that region images
	// are upscaled to before recognition (default: 300/72)
	Scale float64

	// OnRetry, when set, is called after a failed attempt that will be
	// retried.
	OnRetry func(ctx context.Context, op string, page int, err error)
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Timeout:      10 * time.Second,
		Retries:      1,
		RetryBackoff: 250 * time.Millisecond,
		Burst:        1,
		Scale:        300.0 / 72.0,
	}
}

// Client calls the configured recognizers. It is safe for concurrent use.
type Client struct {
	text    TextRecognizer
	table   TableRecognizer
	config  Config
	limiter *rate.Limiter
}

// NewClient creates a client. Either recognizer may be nil.
func NewClient(text TextRecognizer, table TableRecognizer, config Config) *Client {
	c := &Client{text: text, table: table, config: config}
	if config.RateLimit > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}
	return c
}

// HasText reports whether a text recognizer is configured
func (c *Client) HasText() bool {
	return c != nil && c.text != nil
}

// HasTable reports whether a table recognizer is configured
func (c *Client) HasTable() bool {
	return c != nil && c.table != nil
}

// Config returns the client configuration
func (c *Client) Config() Config {
	return c.config
}

// RecognizeText recognizes the text of region.
func (c *Client) RecognizeText(ctx context.Context, region RegionImage) (string, float64, error) {
	if !c.HasText() {
		return "", 0, &Error{Op: "text", Page: region.Page, Err: ErrNoProvider}
	}
	type result struct {
		text string
		conf float64
	}
	res, err := call(ctx, c, "text", region, func(ctx context.Context) (result, error) {
		text, conf, err := c.text.RecognizeText(ctx, region)
		return result{text: text, conf: conf}, err
	})
	if err != nil {
		return "", 0, err
	}
	return res.text, clamp(res.conf), nil
}

// RecognizeTable recognizes the cell grid of region.
func (c *Client) RecognizeTable(ctx context.Context, region RegionImage) (Grid, error) {
	if !c.HasTable() {
		return Grid{}, &Error{Op: "table", Page: region.Page, Err: ErrNoProvider}
	}
	grid, err := call(ctx, c, "table", region, func(ctx context.Context) (Grid, error) {
		return c.table.RecognizeTable(ctx, region)
	})
	if err != nil {
		return Grid{}, err
	}
	grid.Confidence = clamp(grid.Confidence)
	return grid, nil
}

// call runs fn with a per-attempt timeout and retries it after a backoff.
// Cancellation of ctx stops retrying and is returned unwrapped.
func call[T any](ctx context.Context, c *Client, op string, region RegionImage, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if region.Image == nil && len(region.Tokens) == 0 {
		return zero, &Error{Op: op, Page: region.Page, Err: ErrNoImage}
	}

	var last error
	attempts := 0
	for attempt := 0; attempt <= c.config.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(c.config.RetryBackoff):
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return zero, ctx.Err()
				}
				return zero, &Error{Op: op, Page: region.Page, Attempts: attempts, Err: err}
			}
		}

		attempts++
		var v T
		v, last = runAttempt(ctx, c.config.Timeout, fn)
		if last == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt < c.config.Retries && c.config.OnRetry != nil {
			c.config.OnRetry(ctx, op, region.Page, last)
		}
	}
	return zero, &Error{Op: op, Page: region.Page, Attempts: attempts, Err: last}
}

type outcome[T any] struct {
	value T
	err   error
}

// runAttempt runs one attempt. A provider that ignores its context keeps
// running after the timeout; its result goes to a channel nobody reads.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn(actx)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, fmt.Errorf("%w: %v", ErrTimeout, o.err)
		}
		return o.value, o.err
	case <-actx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, ErrTimeout
	}
}

func clamp(c float64) float64 {
	switch {
	case c != c, c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
