//go:build ocr

// Package ocr recognizes the text of scanned document regions with the
// Tesseract OCR engine via gosseract. It requires Tesseract to be installed
// on the system. On macOS, install via:
//
//	brew install tesseract
//
// On Ubuntu/Debian:
//
//	apt-get install tesseract-ocr
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/tsawler/sqextract/recognition"
)

// PageSegMode controls how Tesseract analyzes the layout of an image.
type PageSegMode = gosseract.PageSegMode

// Page segmentation modes used for field regions.
const (
	PSM_AUTO         = gosseract.PSM_AUTO
	PSM_SINGLE_BLOCK = gosseract.PSM_SINGLE_BLOCK
	PSM_SINGLE_LINE  = gosseract.PSM_SINGLE_LINE
	PSM_SPARSE_TEXT  = gosseract.PSM_SPARSE_TEXT
)

// Client wraps Tesseract and implements recognition.TextRecognizer. Calls
// are serialized; the underlying engine is not safe for concurrent use.
type Client struct {
	mu     sync.Mutex
	client *gosseract.Client
}

var _ recognition.TextRecognizer = (*Client)(nil)

// New creates a new OCR client.
// The client should be closed when no longer needed to release resources.
func New() (*Client, error) {
	client := gosseract.NewClient()
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	return &Client{client: client}, nil
}

// Close releases OCR resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.client.Close()
	c.client = nil
	return err
}

// RecognizeText performs OCR on a region image. The confidence is the mean
// word confidence reported by Tesseract, scaled to [0, 1]. Tesseract itself
// cannot be interrupted; ctx is only checked before the call starts.
func (c *Client) RecognizeText(ctx context.Context, region recognition.RegionImage) (string, float64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	if region.Image == nil {
		return "", 0, recognition.ErrNoImage
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, region.Image); err != nil {
		return "", 0, fmt.Errorf("failed to encode region: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", 0, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := c.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return "", 0, fmt.Errorf("OCR failed: %w", err)
	}

	words := make([]string, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		w := strings.TrimSpace(b.Word)
		if w == "" {
			continue
		}
		words = append(words, w)
		sum += b.Confidence / 100
	}
	if len(words) == 0 {
		return "", 0, nil
	}
	return strings.Join(words, " "), sum / float64(len(words)), nil
}

// SetLanguage sets the language(s) for OCR recognition.
// Multiple languages can be specified (e.g., "eng", "hin").
// Default is "eng" (English).
func (c *Client) SetLanguage(langs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.SetLanguage(langs...)
}

// SetPageSegMode sets the page segmentation mode.
func (c *Client) SetPageSegMode(mode PageSegMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.SetPageSegMode(mode)
}
