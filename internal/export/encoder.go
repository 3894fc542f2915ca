// Package export rasterizes the processed photo plus active adjustments
// into the final encoded file. Export is score-gated: below the acceptance
// threshold no file is produced.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"github.com/ymiah/passportpro/internal/adjust"
	"github.com/ymiah/passportpro/internal/compliance"
)

// AcceptanceThreshold is the minimum compliance score required to export.
// It is enforced here in addition to the pipeline so a caller bypassing the
// lifecycle still cannot produce a failing photo.
const AcceptanceThreshold = 90

// Format selects the output encoding.
type Format string

const (
	// FormatJPEG is the lossy encoding; transparency is flattened onto
	// opaque white.
	FormatJPEG Format = "jpeg"
	// FormatPNG is the lossless encoding.
	FormatPNG Format = "png"
)

// Config selects the output encoding and, for JPEG, the quality in (0, 1].
type Config struct {
	Format  Format  `json:"format"`
	Quality float64 `json:"quality"`
}

// Validate checks the export configuration.
func (c Config) Validate() error {
	switch c.Format {
	case FormatJPEG:
		if c.Quality <= 0 || c.Quality > 1 {
			return fmt.Errorf("quality must be in (0, 1], got %v", c.Quality)
		}
	case FormatPNG:
		// Quality is meaningless for the lossless encoding.
	default:
		return fmt.Errorf("unsupported format %q", c.Format)
	}
	return nil
}

// ErrBelowThreshold reports a refused export. This is a hard gate, not a
// warning: no file is produced.
var ErrBelowThreshold = errors.New("compliance score below acceptance threshold")

// File is an encoded export ready for download.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Encode produces the final file from the processed result and the current
// adjustment state. The processed image is decoded at its natural
// dimensions (never the display size), adjustments are applied at full
// resolution, and the output is named deterministically from the score.
func Encode(result *compliance.Result, state adjust.State, cfg Config) (*File, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if result.Score < AcceptanceThreshold {
		return nil, fmt.Errorf("%w: score %d < %d", ErrBelowThreshold, result.Score, AcceptanceThreshold)
	}

	src, err := imaging.Decode(bytes.NewReader(result.Image))
	if err != nil {
		return nil, fmt.Errorf("failed to decode processed image: %w", err)
	}

	rendered := adjust.Render(src, state)

	var (
		buf  bytes.Buffer
		ext  string
		mime string
	)
	switch cfg.Format {
	case FormatJPEG:
		flattened := flattenOnWhite(rendered)
		quality := int(cfg.Quality*100 + 0.5)
		if err := imaging.Encode(&buf, flattened, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, fmt.Errorf("failed to encode JPEG: %w", err)
		}
		ext, mime = "jpg", "image/jpeg"
	case FormatPNG:
		if err := imaging.Encode(&buf, rendered, imaging.PNG); err != nil {
			return nil, fmt.Errorf("failed to encode PNG: %w", err)
		}
		ext, mime = "png", "image/png"
	}

	file := &File{
		Name:     fmt.Sprintf("passportpro-%d.%s", result.Score, ext),
		MIMEType: mime,
		Data:     buf.Bytes(),
	}

	log.Info().
		Str("name", file.Name).
		Str("format", string(cfg.Format)).
		Int("bytes", len(file.Data)).
		Int("score", result.Score).
		Msg("Export encoded")

	return file, nil
}

// flattenOnWhite composites the image over an opaque white background for
// encodings without an alpha channel.
func flattenOnWhite(img *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Over)
	return out
}
