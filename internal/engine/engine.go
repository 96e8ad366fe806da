// Package engine contains the resilient multi-engine OCR invocation layer:
// the engine adapter contract, the deadline-bounded invoker, the outcome
// classifier and the fallback orchestrator.
package engine

import (
	"context"
)

// SelectionMode determines which engines are attempted for a request.
type SelectionMode string

const (
	// SelectPrimary runs only the configured primary engine.
	SelectPrimary SelectionMode = "primary"
	// SelectSecondary runs only the configured secondary engine.
	SelectSecondary SelectionMode = "secondary"
	// SelectAuto tries the primary first and falls back to the secondary.
	SelectAuto SelectionMode = "auto"
)

// ParseSelectionMode maps the wire value of the engine selector to a mode.
// Engine IDs are accepted as aliases so clients can say engine=vlm or
// engine=tesseract directly.
func ParseSelectionMode(s string) (SelectionMode, bool) {
	switch s {
	case "", "auto":
		return SelectAuto, true
	case "primary", "vlm":
		return SelectPrimary, true
	case "secondary", "tesseract":
		return SelectSecondary, true
	default:
		return "", false
	}
}

// Request describes one extraction submission.
type Request struct {
	ImagePath string
	Language  string
	Mode      SelectionMode

	// Release, when set, is called once every attempt has finished with
	// ImagePath - including a timed-out orphan still running after the
	// cascade returned. The file must stay readable until then.
	Release func()
}

// Result is the normalized outcome of an extraction attempt.
// Success=false always carries a non-empty Error; Success=true never does.
type Result struct {
	Text                string  `json:"text"`
	Confidence          float64 `json:"confidence"`
	Language            string  `json:"language"`
	Engine              string  `json:"engine"`
	WordCount           int     `json:"word_count"`
	ProcessingTime      float64 `json:"processing_time"`
	Success             bool    `json:"success"`
	Error               string  `json:"error,omitempty"`
	TimeoutOccurred     bool    `json:"timeout_occurred,omitempty"`
	FallbackRecommended bool    `json:"fallback_recommended,omitempty"`
}

// ProgressSink receives coarse progress milestones while an extraction is
// in flight. Percent is 0-100 and non-decreasing within one attempt.
type ProgressSink interface {
	Progress(message string, percent int)
}

// ProgressFunc adapts a function to the ProgressSink interface.
type ProgressFunc func(message string, percent int)

// Progress implements ProgressSink.
func (f ProgressFunc) Progress(message string, percent int) {
	f(message, percent)
}

// NopSink discards progress events.
var NopSink ProgressSink = ProgressFunc(func(string, int) {})

// Engine is the uniform capability every extraction backend exposes.
//
// Extract must capture expected failure modes (missing model, unreadable
// image, empty output) and return them as a Result with Success=false and a
// nil error. Only truly exceptional conditions are returned as errors.
type Engine interface {
	// Name returns the engine identifier used in results and metrics.
	Name() string

	// Device describes where the engine runs (e.g. "cpu", "api").
	Device() string

	// Initialize prepares the engine handle. It is idempotent; the registry
	// guarantees concurrent callers share one underlying initialization.
	Initialize(ctx context.Context) error

	// Extract performs OCR on the image at imagePath, emitting progress
	// milestones to sink as it goes.
	Extract(ctx context.Context, imagePath, language string, sink ProgressSink) (*Result, error)

	// Close releases engine resources.
	Close() error
}

// WordCount counts whitespace-separated words, matching the word_count
// field callers receive.
func WordCount(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			inWord = false
		default:
			if !inWord {
				n++
				inWord = true
			}
		}
	}
	return n
}
