//go:build !ocr

// Package ocr recognizes the text of scanned document regions with the
// Tesseract OCR engine.
//
// This is the stub implementation used when the "ocr" build tag is not set.
// All functions return ErrOCRNotEnabled.
//
// To enable OCR, rebuild with the "ocr" build tag:
//
//	go build -tags ocr
//
// This requires Tesseract to be installed. On macOS:
//
//	brew install tesseract
//
// On Ubuntu/Debian:
//
//	apt-get install tesseract-ocr
package ocr

import (
	"context"
	"errors"

	"github.com/tsawler/sqextract/recognition"
)

// ErrOCRNotEnabled is returned when OCR functions are called but OCR support
// was not compiled in. Rebuild with -tags ocr to enable OCR support.
var ErrOCRNotEnabled = errors.New("OCR support not enabled; rebuild with -tags ocr")

// PageSegMode represents page segmentation modes for OCR.
type PageSegMode int

// Page segmentation modes (matching the OCR-enabled implementation).
const (
	PSM_AUTO         PageSegMode = 3  // Fully automatic (default)
	PSM_SINGLE_BLOCK PageSegMode = 6  // Single uniform block of text
	PSM_SINGLE_LINE  PageSegMode = 7  // Single text line
	PSM_SPARSE_TEXT  PageSegMode = 11 // Find as much text as possible
)

// Client is a stub OCR client that returns errors for all operations.
type Client struct{}

var _ recognition.TextRecognizer = (*Client)(nil)

// New returns an error indicating OCR support is not enabled.
// To enable OCR, rebuild with: go build -tags ocr
func New() (*Client, error) {
	return nil, ErrOCRNotEnabled
}

// Close is a no-op for the stub client.
// It is safe to call on a nil client.
func (c *Client) Close() error {
	return nil
}

// RecognizeText returns an error indicating OCR support is not enabled.
func (c *Client) RecognizeText(ctx context.Context, region recognition.RegionImage) (string, float64, error) {
	return "", 0, ErrOCRNotEnabled
}

// SetLanguage returns an error indicating OCR support is not enabled.
func (c *Client) SetLanguage(langs ...string) error {
	return ErrOCRNotEnabled
}

// SetPageSegMode returns an error indicating OCR support is not enabled.
func (c *Client) SetPageSegMode(mode PageSegMode) error {
	return ErrOCRNotEnabled
}
