// Package crop selects and rasterizes the passport crop frame. The target
// aspect ratio is fixed at 35:45, the physical proportions of a UK passport
// photo (35mm x 45mm).
package crop

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
)

// Passport frame proportions in millimetres.
const (
	AspectWidth  = 35
	AspectHeight = 45
)

// 35:45 reduced to lowest terms; the pixel quantum for window-derived
// selections.
const (
	unitWidth  = 7
	unitHeight = 9
)

// Zoom bounds for the interactive crop window. The upper bound guarantees
// the window stays meaningfully inside the source; the lower bound prevents
// the window from exceeding the source frame.
const (
	MinZoom = 1.0
	MaxZoom = 3.0
)

// aspectTolerance absorbs integer rounding when a selection is derived from
// a zoomed window.
const aspectTolerance = 0.01

var (
	// ErrOutOfBounds reports a selection extending past the source frame.
	ErrOutOfBounds = errors.New("crop selection exceeds source bounds")

	// ErrAspectMismatch reports a selection that is not 35:45 within
	// rounding tolerance.
	ErrAspectMismatch = errors.New("crop selection is not 35:45")
)

// TargetAspect returns the width/height ratio of the passport frame.
func TargetAspect() float64 {
	return float64(AspectWidth) / float64(AspectHeight)
}

// Selection is a pixel rectangle in source-image coordinates. The rasterized
// crop has exactly these dimensions: there is no resampling and no upscale.
type Selection struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Validate checks the selection against the source bounds and the fixed
// target aspect ratio.
func (s Selection) Validate(srcW, srcH int) error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: selection %dx%d has no area", ErrOutOfBounds, s.Width, s.Height)
	}
	if s.X < 0 || s.Y < 0 || s.X+s.Width > srcW || s.Y+s.Height > srcH {
		return fmt.Errorf("%w: selection (%d,%d %dx%d) vs source %dx%d",
			ErrOutOfBounds, s.X, s.Y, s.Width, s.Height, srcW, srcH)
	}
	ratio := float64(s.Width) / float64(s.Height)
	if math.Abs(ratio-TargetAspect()) > aspectTolerance {
		return fmt.Errorf("%w: got %.4f, want %.4f", ErrAspectMismatch, ratio, TargetAspect())
	}
	return nil
}

// Window models the interactive pan/zoom crop control. CenterX and CenterY
// are the window center as fractions of the source dimensions (0.5, 0.5 is
// dead center); Zoom magnifies the subject by shrinking the window.
type Window struct {
	CenterX float64 `json:"centerX"`
	CenterY float64 `json:"centerY"`
	Zoom    float64 `json:"zoom"`
}

// Selection converts the window into a concrete pixel selection for a source
// of the given dimensions. Zoom is clamped to [MinZoom, MaxZoom] and the
// window is clamped inside the source. Dimensions are built from whole 7:9
// units (35:45 reduced), so the selection ratio is exact at any size and the
// result always validates for sources of at least 7x9 pixels.
func (w Window) Selection(srcW, srcH int) Selection {
	zoom := math.Min(math.Max(w.Zoom, MinZoom), MaxZoom)

	// Largest whole number of 7x9 units that fits the source at zoom 1.
	maxUnits := srcH / unitHeight
	if u := srcW / unitWidth; u < maxUnits {
		maxUnits = u
	}
	if maxUnits < 1 {
		maxUnits = 1
	}

	units := int(math.Round(float64(maxUnits) / zoom))
	if units < 1 {
		units = 1
	}
	width := units * unitWidth
	height := units * unitHeight

	x := int(math.Round(w.CenterX*float64(srcW) - float64(width)/2))
	y := int(math.Round(w.CenterY*float64(srcH) - float64(height)/2))
	x = clampInt(x, 0, srcW-width)
	y = clampInt(y, 0, srcH-height)

	return Selection{X: x, Y: y, Width: width, Height: height}
}

// Apply rasterizes exactly the selected rectangle into a new image buffer at
// the selection's pixel dimensions.
func Apply(src image.Image, sel Selection) (*image.NRGBA, error) {
	bounds := src.Bounds()
	if err := sel.Validate(bounds.Dx(), bounds.Dy()); err != nil {
		return nil, err
	}

	rect := image.Rect(
		bounds.Min.X+sel.X,
		bounds.Min.Y+sel.Y,
		bounds.Min.X+sel.X+sel.Width,
		bounds.Min.Y+sel.Y+sel.Height,
	)
	out := imaging.Crop(src, rect)

	log.Debug().
		Int("x", sel.X).
		Int("y", sel.Y).
		Int("width", sel.Width).
		Int("height", sel.Height).
		Msg("Crop applied")

	return out, nil
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
