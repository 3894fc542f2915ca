// Package adjust applies non-destructive display adjustments to a processed
// photo. Rendering is a pure function of (source image, state): the stored
// source pixels are never mutated, and every render starts from them.
package adjust

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Parameter domain. Values are integer percentages; 100 is identity.
const (
	Min     = 50
	Max     = 150
	Default = 100
)

// State holds the four adjustment parameters.
type State struct {
	Brightness int `json:"brightness"`
	Contrast   int `json:"contrast"`
	Exposure   int `json:"exposure"`
	Saturation int `json:"saturation"`
}

// Neutral returns the identity state.
func Neutral() State {
	return State{Brightness: Default, Contrast: Default, Exposure: Default, Saturation: Default}
}

// Presets bundle all four parameters; applying one overwrites the whole
// state, never a subset.
var presets = map[string]State{
	"neutral": {Brightness: 100, Contrast: 100, Exposure: 100, Saturation: 100},
	"studio":  {Brightness: 110, Contrast: 105, Exposure: 105, Saturation: 95},
	"highkey": {Brightness: 115, Contrast: 95, Exposure: 110, Saturation: 90},
}

// Preset returns the named preset state. The second result is false for an
// unknown name.
func Preset(name string) (State, bool) {
	s, ok := presets[name]
	return s, ok
}

// PresetNames lists the available preset names.
func PresetNames() []string {
	return []string{"neutral", "studio", "highkey"}
}

// Clamp returns a copy of s with every parameter forced into [Min, Max].
func (s State) Clamp() State {
	return State{
		Brightness: clamp(s.Brightness),
		Contrast:   clamp(s.Contrast),
		Exposure:   clamp(s.Exposure),
		Saturation: clamp(s.Saturation),
	}
}

// IsNeutral reports whether the state is the identity parameter set.
func (s State) IsNeutral() bool {
	return s == Neutral()
}

// Render produces a new image with the adjustment stack applied. The filter
// order matches the display filter chain: brightness, then contrast, then
// saturation, then exposure as a second brightness multiplier. Exposure and
// brightness deliberately compose; they are not redundant controls.
//
// The identity state reproduces the source pixels exactly.
func Render(src image.Image, s State) *image.NRGBA {
	s = s.Clamp()
	if s.IsNeutral() {
		return imaging.Clone(src)
	}

	brightness := float64(s.Brightness) / 100
	contrast := float64(s.Contrast) / 100
	saturation := float64(s.Saturation) / 100
	exposure := float64(s.Exposure) / 100

	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		r := float64(c.R) * brightness
		g := float64(c.G) * brightness
		b := float64(c.B) * brightness

		r = (r-127.5)*contrast + 127.5
		g = (g-127.5)*contrast + 127.5
		b = (b-127.5)*contrast + 127.5

		// Luminance-relative saturation (Rec. 709 weights).
		lum := 0.213*r + 0.715*g + 0.072*b
		r = lum + (r-lum)*saturation
		g = lum + (g-lum)*saturation
		b = lum + (b-lum)*saturation

		r *= exposure
		g *= exposure
		b *= exposure

		return color.NRGBA{R: clampByte(r), G: clampByte(g), B: clampByte(b), A: c.A}
	})
}

func clamp(v int) int {
	if v < Min {
		return Min
	}
	if v > Max {
		return Max
	}
	return v
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
