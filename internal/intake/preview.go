package intake

import (
	"bytes"
	"fmt"
	"image"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
)

// DefaultPreviewMaxDimension is the maximum dimension (width or height) for
// display previews served to the browser.
const DefaultPreviewMaxDimension = 1024

// PreviewMIMEType is the MIME type of encoded previews.
const PreviewMIMEType = "image/webp"

// EncodePreview scales img so its longest side is at most maxDimension and
// encodes it as lossy WebP. Previews are display-only: export always
// re-renders from the full-resolution source.
func EncodePreview(img image.Image, maxDimension int) ([]byte, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w > maxDimension || h > maxDimension {
		scale := float64(maxDimension) / float64(w)
		if h > w {
			scale = float64(maxDimension) / float64(h)
		}
		dstW := int(float64(w) * scale)
		dstH := int(float64(h) * scale)
		dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
