// Package imaging downscales oversized images before they are handed to an
// extraction engine. Large inputs inflate model memory use and latency
// without improving recognition, so anything over the configured dimension
// is scaled down preserving aspect ratio.
package imaging

import (
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/rs/zerolog/log"
)

// Startup initializes the vips library. Call once at application startup.
func Startup() {
	vips.LoggingSettings(nil, vips.LogLevelError)
	vips.Startup(nil)
}

// Shutdown releases vips resources. Call once at application shutdown.
func Shutdown() {
	vips.Shutdown()
}

// Resizer scales images down to a bounded dimension.
type Resizer struct{}

// NewResizer creates a resizer. Requires Startup to have been called.
func NewResizer() *Resizer {
	return &Resizer{}
}

// Downscale returns the image scaled so its largest dimension does not
// exceed maxDim, re-encoded as JPEG, along with the output format label.
// Images already within bounds are returned unchanged with their original
// format.
func (r *Resizer) Downscale(data []byte, maxDim int) ([]byte, string, error) {
	if maxDim <= 0 {
		return data, "", fmt.Errorf("invalid max dimension: %d", maxDim)
	}

	image, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	defer image.Close()

	width := image.Width()
	height := image.Height()
	scale := ScaleFactor(width, height, maxDim)
	if scale >= 1 {
		return data, formatLabel(image.Format()), nil
	}

	if err := image.Resize(scale, vips.KernelLanczos3); err != nil {
		return nil, "", fmt.Errorf("resize image: %w", err)
	}

	out, _, err := image.ExportJpeg(vips.NewJpegExportParams())
	if err != nil {
		return nil, "", fmt.Errorf("encode image: %w", err)
	}

	log.Debug().
		Int("orig_width", width).
		Int("orig_height", height).
		Int("width", image.Width()).
		Int("height", image.Height()).
		Msg("Image downscaled for extraction")

	return out, "jpeg", nil
}

// ScaleFactor computes the scale that fits w x h inside maxDim, capped at 1
// so images are never upscaled.
func ScaleFactor(w, h, maxDim int) float64 {
	if w <= 0 || h <= 0 || maxDim <= 0 {
		return 1
	}
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxDim {
		return 1
	}
	return float64(maxDim) / float64(longest)
}

// formatLabel maps a vips image type to the wire format label used by the
// vision-language API.
func formatLabel(t vips.ImageType) string {
	switch t {
	case vips.ImageTypeJPEG:
		return "jpeg"
	case vips.ImageTypePNG:
		return "png"
	case vips.ImageTypeWEBP:
		return "webp"
	case vips.ImageTypeTIFF:
		return "tiff"
	default:
		return "jpeg"
	}
}
