package api

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wordlens/wordlens/internal/config"
	"github.com/wordlens/wordlens/internal/engine"
	"github.com/wordlens/wordlens/internal/observability"
	"github.com/wordlens/wordlens/internal/storage"
)

// Processor runs an extraction cascade for one request. Satisfied by
// engine.Orchestrator; narrowed to an interface so handler tests can
// substitute a fake.
type Processor interface {
	Process(ctx context.Context, req engine.Request, sink engine.ProgressSink) *engine.Result
}

// SinkFactory builds the progress sink for a submission.
type SinkFactory func(jobID string) engine.ProgressSink

// allowedExtensions lists image types accepted for upload. Checked before
// any engine work so unsupported input is rejected cheaply.
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".tif":  true,
	".tiff": true,
}

// OCRHandler handles text extraction submissions
type OCRHandler struct {
	processor Processor
	spool     *storage.Spool
	metrics   *observability.Metrics
	sinks     SinkFactory
	maxUpload int64
}

// NewOCRHandler creates a new OCR handler
func NewOCRHandler(p Processor, spool *storage.Spool, cfg *config.Config, m *observability.Metrics) *OCRHandler {
	return &OCRHandler{
		processor: p,
		spool:     spool,
		metrics:   m,
		maxUpload: cfg.Storage.MaxUploadSize,
	}
}

// SetSinkFactory wires progress delivery into submissions.
func (h *OCRHandler) SetSinkFactory(f SinkFactory) {
	h.sinks = f
}

// extractResponse is the wire shape of a finished submission. The embedded
// result keeps the engine-level field names (text, confidence, word_count,
// processing_time, success, error, timeout_occurred, fallback_recommended).
type extractResponse struct {
	JobID string `json:"job_id"`
	engine.Result
}

// HandleExtract accepts a multipart image upload and runs the extraction
// cascade synchronously. Failed extractions still return 200 with
// success=false so clients get the structured failure detail.
func (h *OCRHandler) HandleExtract(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing file upload field 'file'")
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedExtensions[ext] {
		return fiber.NewError(fiber.StatusBadRequest,
			"unsupported image type "+ext+" (accepted: jpg, jpeg, png, webp, tif, tiff)")
	}

	if h.maxUpload > 0 && fileHeader.Size > h.maxUpload {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "uploaded file exceeds size limit")
	}

	mode, ok := engine.ParseSelectionMode(c.FormValue("engine"))
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest,
			"unknown engine selector (accepted: auto, vlm, tesseract)")
	}

	language := c.FormValue("language")
	if language == "" {
		language = "eng"
	}

	src, err := fileHeader.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "unable to read uploaded file")
	}
	defer src.Close()

	jobID, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)

	ctx, span := observability.StartExtractionSpan(c.Context(), jobID, language, string(mode))
	defer span.End()

	imagePath, cleanup, err := h.spool.Save(ctx, fileHeader.Filename, src)
	if err != nil {
		observability.RecordError(ctx, err)
		log.Error().Err(err).Msg("Failed to spool uploaded image")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to store uploaded image")
	}
	observability.AddSpanEvent(ctx, "image.spooled",
		attribute.String("image.ext", ext),
		attribute.Int64("image.bytes", fileHeader.Size),
	)

	sink := engine.NopSink
	if h.sinks != nil {
		sink = h.sinks(jobID)
	}

	// The cascade owns the spooled file's lifetime: a timed-out attempt may
	// still be reading it after this handler has returned.
	result := h.processor.Process(ctx, engine.Request{
		ImagePath: imagePath,
		Language:  language,
		Mode:      mode,
		Release:   cleanup,
	}, sink)

	observability.SetSpanAttributes(ctx,
		attribute.String("ocr.engine", result.Engine),
		attribute.Bool("ocr.success", result.Success),
	)

	if h.metrics != nil {
		h.metrics.RecordRequest(result.Engine, result.Success)
	}

	log.Info().
		Str("job_id", jobID).
		Str("engine", result.Engine).
		Bool("success", result.Success).
		Float64("processing_time", result.ProcessingTime).
		Msg("Extraction finished")

	return c.JSON(extractResponse{JobID: jobID, Result: *result})
}
