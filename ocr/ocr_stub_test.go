//go:build !ocr

package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/tsawler/sqextract/recognition"
)

func TestNewReturnsError(t *testing.T) {
	client, err := New()
	if err == nil {
		t.Error("Expected error from New() when OCR is disabled")
	}
	if !errors.Is(err, ErrOCRNotEnabled) {
		t.Errorf("Expected ErrOCRNotEnabled, got: %v", err)
	}
	if client != nil {
		t.Error("Expected nil client when OCR is disabled")
	}
}

func TestCloseOnNilClient(t *testing.T) {
	var client *Client
	err := client.Close()
	if err != nil {
		t.Errorf("Close on nil client should not error: %v", err)
	}
}

// The stub still satisfies the recognizer interface, so a recognition
// client built around it reports a provider failure for the field.
func TestStubThroughRecognitionClient(t *testing.T) {
	rc := recognition.NewClient(&Client{}, nil, recognition.DefaultConfig())
	cfg := rc.Config()
	if cfg.Retries != 1 {
		t.Fatalf("Expected one retry, got %d", cfg.Retries)
	}

	_, _, err := (&Client{}).RecognizeText(context.Background(), recognition.RegionImage{})
	if !errors.Is(err, ErrOCRNotEnabled) {
		t.Errorf("Expected ErrOCRNotEnabled, got: %v", err)
	}
}
