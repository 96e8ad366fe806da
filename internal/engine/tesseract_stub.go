//go:build !cgo || !ocr

package engine

import (
	"context"
	"time"
)

// TesseractConfig configures the secondary engine.
type TesseractConfig struct {
	// Languages are the default tesseract language codes (e.g. "eng").
	Languages []string
}

// TesseractEngine is a stub for environments built without Tesseract/CGO
// support. It reports a well-formed soft failure so the cascade still
// produces a normalized result.
type TesseractEngine struct{}

// NewTesseractEngine creates the stub engine.
func NewTesseractEngine(cfg TesseractConfig) *TesseractEngine {
	return &TesseractEngine{}
}

// Name returns the engine identifier.
func (e *TesseractEngine) Name() string { return "tesseract" }

// Device describes the execution target.
func (e *TesseractEngine) Device() string { return "unavailable" }

// Initialize always succeeds so the stub can report its unavailability as a
// soft failure instead of a hard error.
func (e *TesseractEngine) Initialize(ctx context.Context) error { return nil }

// Extract reports the engine as unavailable.
func (e *TesseractEngine) Extract(ctx context.Context, imagePath, language string, sink ProgressSink) (*Result, error) {
	start := time.Now()
	sink.Progress("Initializing Tesseract...", 0)
	return &Result{
		Language:       language,
		Engine:         e.Name(),
		ProcessingTime: time.Since(start).Seconds(),
		Success:        false,
		Error:          "tesseract engine unavailable: built without Tesseract support",
	}, nil
}

// Close is a no-op.
func (e *TesseractEngine) Close() error { return nil }
