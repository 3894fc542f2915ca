// Package intake accepts and validates user uploads before they enter the
// processing pipeline. A rejected upload never advances pipeline state.
package intake

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"github.com/ymiah/passportpro/internal/crop"
)

// ErrImageDecode reports bytes that sniffed as an image but failed to
// decode (truncated file, unsupported codec).
var ErrImageDecode = errors.New("image decode failed")

// ValidationError reports an upload rejected by validation (wrong type,
// oversize, undersized raster). It is recoverable: the caller surfaces the
// message and stays in place.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// SourceImage is an accepted upload: the original encoded bytes plus the
// decoded raster. The bytes are immutable once accepted.
type SourceImage struct {
	Data     []byte
	MIMEType string
	Image    image.Image
}

// Width returns the decoded pixel width.
func (s *SourceImage) Width() int { return s.Image.Bounds().Dx() }

// Height returns the decoded pixel height.
func (s *SourceImage) Height() int { return s.Image.Bounds().Dy() }

// Accept validates and decodes an uploaded image. maxBytes caps the upload
// size. The decode applies EXIF auto-orientation so that the crop stage
// always sees upright pixels.
//
// Failure modes:
//   - non-image, oversize, or sub-frame upload: *ValidationError
//   - undecodable image data: error wrapping ErrImageDecode
func Accept(data []byte, maxBytes int64) (*SourceImage, error) {
	if len(data) == 0 {
		return nil, &ValidationError{Reason: "empty upload"}
	}
	if int64(len(data)) > maxBytes {
		return nil, &ValidationError{Reason: fmt.Sprintf("file too large: %d bytes (limit %d)", len(data), maxBytes)}
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, &ValidationError{Reason: fmt.Sprintf("unsupported file type %q: expected an image", mimeType)}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	// Anything smaller than the passport frame itself cannot be cropped.
	if w, h := img.Bounds().Dx(), img.Bounds().Dy(); w < crop.AspectWidth || h < crop.AspectHeight {
		return nil, &ValidationError{Reason: fmt.Sprintf(
			"image too small: %dx%d (minimum %dx%d)", w, h, crop.AspectWidth, crop.AspectHeight)}
	}

	log.Debug().
		Str("mime", mimeType).
		Int("bytes", len(data)).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("Upload accepted")

	return &SourceImage{Data: data, MIMEType: mimeType, Image: img}, nil
}
