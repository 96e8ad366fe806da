package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/wordlens/wordlens/internal/imaging"
)

// VLM defaults. The candidate list is ordered by preference; the adapter
// walks it until one model produces output.
var defaultVLMModels = []string{
	"gemini-1.5-flash",
	"gemini-1.5-pro",
}

// vlmConfidence is the fixed confidence reported for vision-language
// extractions; the API exposes no per-token scores.
const vlmConfidence = 90.0

// VLMConfig configures the vision-language engine.
type VLMConfig struct {
	APIKey string
	// Models is the ordered list of model candidates tried per extraction.
	Models []string
	// MaxImageDimension is the largest width/height sent to the model;
	// bigger images are downscaled first.
	MaxImageDimension int
}

// VLMEngine extracts text with a hosted vision-language model. The
// underlying generation call is opaque and cannot be interrupted once
// started; the orchestrator bounds how long it waits through the invoker.
type VLMEngine struct {
	cfg     VLMConfig
	client  *genai.Client
	resizer *imaging.Resizer
}

// NewVLMEngine creates the primary engine. The API client is built lazily
// in Initialize so a misconfigured key does not poison process startup.
func NewVLMEngine(cfg VLMConfig, resizer *imaging.Resizer) *VLMEngine {
	if len(cfg.Models) == 0 {
		cfg.Models = defaultVLMModels
	}
	if cfg.MaxImageDimension <= 0 {
		cfg.MaxImageDimension = 1024
	}
	return &VLMEngine{cfg: cfg, resizer: resizer}
}

// Name returns the engine identifier.
func (e *VLMEngine) Name() string { return "vlm" }

// Device describes the execution target.
func (e *VLMEngine) Device() string { return "api" }

// Initialize builds the API client. Idempotent; the registry single-flights
// concurrent callers and retries on the next use after a failure.
func (e *VLMEngine) Initialize(ctx context.Context) error {
	if e.client != nil {
		return nil
	}
	if e.cfg.APIKey == "" {
		return fmt.Errorf("vlm: api key not configured")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(e.cfg.APIKey))
	if err != nil {
		return fmt.Errorf("vlm: create client: %w", err)
	}
	e.client = client

	log.Info().
		Strs("models", e.cfg.Models).
		Int("max_image_dimension", e.cfg.MaxImageDimension).
		Msg("Vision-language engine initialized")
	return nil
}

// Extract runs OCR through the vision-language model. Expected failures
// (unreadable image, exhausted model candidates) come back as a soft-failure
// result, not an error.
func (e *VLMEngine) Extract(ctx context.Context, imagePath, language string, sink ProgressSink) (*Result, error) {
	start := time.Now()
	sink.Progress("Initializing vision-language model...", 0)

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return e.failure(fmt.Sprintf("failed to load image: %v", err), language, start), nil
	}

	format := imageFormat(imagePath)
	if format == "" {
		return e.failure(fmt.Sprintf("unsupported image format: %s", filepath.Ext(imagePath)), language, start), nil
	}

	sink.Progress("Preparing image...", 20)
	if e.resizer != nil {
		scaled, scaledFormat, err := e.resizer.Downscale(data, e.cfg.MaxImageDimension)
		if err != nil {
			log.Warn().Err(err).Str("image", imagePath).Msg("Image downscale failed, sending original")
		} else {
			data = scaled
			format = scaledFormat
		}
	}

	prompt := ocrPrompt(language)
	sink.Progress("Generating text...", 40)

	var lastErr error
	for _, modelName := range e.cfg.Models {
		text, err := e.generate(ctx, modelName, format, data, prompt)
		if err != nil {
			log.Warn().Err(err).Str("model", modelName).Msg("Model candidate failed, trying next")
			lastErr = err
			continue
		}

		sink.Progress("Decoding output...", 80)
		text = strings.TrimSpace(text)
		sink.Progress("OCR completed", 100)

		return &Result{
			Text:           text,
			Confidence:     vlmConfidence,
			Language:       language,
			Engine:         e.Name(),
			WordCount:      WordCount(text),
			ProcessingTime: time.Since(start).Seconds(),
			Success:        true,
		}, nil
	}

	return e.failure(fmt.Sprintf("all model candidates failed: %v", lastErr), language, start), nil
}

// generate runs one model candidate.
func (e *VLMEngine) generate(ctx context.Context, modelName, format string, data []byte, prompt string) (string, error) {
	model := e.client.GenerativeModel(modelName)
	resp, err := model.GenerateContent(ctx,
		genai.ImageData(format, data),
		genai.Text(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("generate with %s: %w", modelName, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

// Close releases the API client.
func (e *VLMEngine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

func (e *VLMEngine) failure(msg, language string, start time.Time) *Result {
	return &Result{
		Text:           "",
		Confidence:     0,
		Language:       language,
		Engine:         e.Name(),
		WordCount:      0,
		ProcessingTime: time.Since(start).Seconds(),
		Success:        false,
		Error:          msg,
	}
}

// ocrPrompt builds the transcription prompt. Arabic-script languages get an
// explicit nudge, matching observed model behavior.
func ocrPrompt(language string) string {
	switch language {
	case "urd", "ara":
		return "What is the text written in this image? Please transcribe all text accurately, including any Arabic or Urdu text."
	default:
		return "What is the text written in this image? Please transcribe all text accurately."
	}
}

// imageFormat maps a file extension to the wire format label the model API
// expects. Empty means unsupported.
func imageFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".png":
		return "png"
	case ".webp":
		return "webp"
	case ".tif", ".tiff":
		return "tiff"
	default:
		return ""
	}
}
