// Package visualization renders the change between a fixed scan and its
// registered counterpart as a color-coded overlay.
package visualization

import (
	"image"
	"image/color"
	"math"

	"mrichange/internal/models"
	"mrichange/pkg/imageops"
	"mrichange/pkg/scanerr"
)

const (
	// baseWeight scales the fixed image's normalized intensity
	baseWeight = 128.0

	// diffWeight scales the red/blue difference channels
	diffWeight = 0.7
)

// Visualize returns an RGB overlay of the signed difference between
// registered and fixed. Increases are drawn in red and decreases in blue,
// both proportional to the magnitude normalized by the largest absolute
// difference, over a half-intensity grayscale copy of fixed. When diff is
// nil it is computed as registered - fixed. The result carries three 8-bit
// color channels; alpha is always fully opaque.
func Visualize(fixed, registered, diff *models.Image) (*image.RGBA, error) {
	const op = "visualize"

	if fixed.Empty() {
		return nil, scanerr.Shape(op, "fixed image is empty")
	}
	base := imageops.Grayscale(fixed)

	var d []float64
	if diff != nil {
		if diff.Empty() || !diff.SameSize(base) {
			return nil, scanerr.Shape(op, "difference image must be %dx%d", base.Width, base.Height)
		}
		d = imageops.Grayscale(diff).Data
	} else {
		if registered.Empty() || !registered.SameSize(base) {
			return nil, scanerr.Shape(op, "registered image must be %dx%d", base.Width, base.Height)
		}
		reg := imageops.Grayscale(registered)
		d = make([]float64, base.Pixels())
		for i := range d {
			d[i] = reg.Data[i] - base.Data[i]
		}
	}

	peak := 0.0
	for _, v := range d[:base.Pixels()] {
		peak = math.Max(peak, math.Abs(v))
	}
	scale := peak + imageops.Epsilon

	out := image.NewRGBA(image.Rect(0, 0, base.Width, base.Height))
	for y := 0; y < base.Height; y++ {
		for x := 0; x < base.Width; x++ {
			i := y*base.Width + x
			n := d[i] / scale

			var red, blue float64
			if n > 0 {
				red = math.Floor(math.Abs(n) * 255)
			} else if n < 0 {
				blue = math.Floor(math.Abs(n) * 255)
			}

			g := base.Data[i] / 255 * baseWeight
			out.SetRGBA(x, y, color.RGBA{
				R: channel(g + red*diffWeight),
				G: channel(g),
				B: channel(g + blue*diffWeight),
				A: 255,
			})
		}
	}
	return out, nil
}

// channel clips to the display range before truncating to 8 bits.
func channel(v float64) uint8 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
