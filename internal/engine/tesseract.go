//go:build cgo && ocr

package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog/log"
)

// TesseractConfig configures the secondary engine.
type TesseractConfig struct {
	// Languages are the default tesseract language codes (e.g. "eng").
	Languages []string
}

// TesseractEngine extracts text with a local Tesseract installation through
// gosseract. The cgo call is blocking and non-cancellable, which is exactly
// the shape the deadline-bounded invoker exists for.
type TesseractEngine struct {
	cfg           TesseractConfig
	tesseractPath string
}

// NewTesseractEngine creates the secondary engine.
func NewTesseractEngine(cfg TesseractConfig) *TesseractEngine {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"eng"}
	}
	return &TesseractEngine{cfg: cfg}
}

// Name returns the engine identifier.
func (e *TesseractEngine) Name() string { return "tesseract" }

// Device describes the execution target.
func (e *TesseractEngine) Device() string { return "cpu" }

// Initialize checks that the tesseract binary is present.
func (e *TesseractEngine) Initialize(ctx context.Context) error {
	path, err := exec.LookPath("tesseract")
	if err != nil {
		return fmt.Errorf("tesseract not found in PATH: %w", err)
	}
	e.tesseractPath = path

	log.Info().
		Str("tesseract_path", path).
		Strs("languages", e.cfg.Languages).
		Msg("Tesseract engine initialized")
	return nil
}

// Extract runs Tesseract on the image. Expected failures (missing file,
// OCR failure) are captured as a soft-failure result.
func (e *TesseractEngine) Extract(ctx context.Context, imagePath, language string, sink ProgressSink) (*Result, error) {
	start := time.Now()
	sink.Progress("Initializing Tesseract...", 0)

	if _, err := os.Stat(imagePath); err != nil {
		return e.failure(fmt.Sprintf("failed to load image: %v", err), language, start), nil
	}

	sink.Progress("Loading Tesseract model...", 20)
	client := gosseract.NewClient()
	defer client.Close()

	lang := tesseractLanguage(language, e.cfg.Languages)
	if err := client.SetLanguage(lang); err != nil {
		return e.failure(fmt.Sprintf("failed to set language %q: %v", lang, err), language, start), nil
	}

	sink.Progress("Processing image...", 50)
	if err := client.SetImage(imagePath); err != nil {
		return e.failure(fmt.Sprintf("failed to set image: %v", err), language, start), nil
	}

	sink.Progress("Running OCR analysis...", 70)
	text, err := client.Text()
	if err != nil {
		return e.failure(fmt.Sprintf("OCR failed: %v", err), language, start), nil
	}

	sink.Progress("Processing OCR results...", 90)
	text = strings.TrimSpace(text)
	confidence := estimateConfidence(text)
	sink.Progress("OCR completed", 100)

	return &Result{
		Text:           text,
		Confidence:     confidence,
		Language:       language,
		Engine:         e.Name(),
		WordCount:      WordCount(text),
		ProcessingTime: time.Since(start).Seconds(),
		Success:        true,
	}, nil
}

// Close is a no-op; gosseract clients are per-call.
func (e *TesseractEngine) Close() error { return nil }

func (e *TesseractEngine) failure(msg, language string, start time.Time) *Result {
	return &Result{
		Language:       language,
		Engine:         e.Name(),
		ProcessingTime: time.Since(start).Seconds(),
		Success:        false,
		Error:          msg,
	}
}

// tesseractLanguage picks the tesseract language code for a request hint,
// falling back to the configured defaults.
func tesseractLanguage(hint string, defaults []string) string {
	if hint != "" {
		return hint
	}
	return strings.Join(defaults, "+")
}

// estimateConfidence scores OCR output 0-100 from the ratio of printable
// runes, the same heuristic used for text-quality checks elsewhere.
func estimateConfidence(text string) float64 {
	if len(text) == 0 {
		return 0
	}

	printable := 0
	total := 0
	for _, r := range text {
		total++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	if total == 0 {
		return 0
	}
	return 100 * float64(printable) / float64(total)
}
