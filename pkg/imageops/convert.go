// Package imageops converts between Go images and the float grids used by
// the registration and metrics code, and provides the preprocessing steps
// shared by every comparison: grayscale reduction, high-quality resizing and
// intensity normalization.
package imageops

import (
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/floats"

	"mrichange/internal/models"
)

// Epsilon guards normalization denominators against flat images.
const Epsilon = 1e-8

// FromImage converts a decoded image into a float grid with samples in
// 0..255. Gray images yield one channel, everything else three.
func FromImage(img image.Image) *models.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	switch src := img.(type) {
	case *image.Gray:
		out := models.NewImage(width, height, 1)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				out.Data[y*width+x] = float64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
		return out
	case *image.Gray16:
		out := models.NewImage(width, height, 1)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				out.Data[y*width+x] = float64(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y) / 257.0
			}
		}
		return out
	}

	out := models.NewImage(width, height, 3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := (y*width + x) * 3
			out.Data[i] = float64(r >> 8)
			out.Data[i+1] = float64(g >> 8)
			out.Data[i+2] = float64(b >> 8)
		}
	}
	return out
}

// Grayscale reduces an image to one channel by averaging its channels.
// A grayscale input is copied.
func Grayscale(img *models.Image) *models.Image {
	if img.Channels <= 1 {
		return img.Clone()
	}
	n := img.Pixels()
	out := models.NewImage(img.Width, img.Height, 1)
	for i := 0; i < n; i++ {
		sum := 0.0
		for c := 0; c < img.Channels; c++ {
			sum += img.Data[i*img.Channels+c]
		}
		out.Data[i] = sum / float64(img.Channels)
	}
	return out
}

// Normalize min-max scales a grayscale image into [0, scale]. The
// denominator carries Epsilon so flat images map to zero instead of NaN.
func Normalize(img *models.Image, scale float64) *models.Image {
	lo, hi := minMax(img.Data)
	out := models.NewImage(img.Width, img.Height, img.Channels)
	den := hi - lo + Epsilon
	for i, v := range img.Data {
		out.Data[i] = (v - lo) / den * scale
	}
	return out
}

// Quantize8 truncates samples to 8-bit integers, clipping to 0..255.
func Quantize8(img *models.Image) *models.Image {
	out := models.NewImage(img.Width, img.Height, img.Channels)
	for i, v := range img.Data {
		out.Data[i] = math.Floor(clamp255(v))
	}
	return out
}

// Round8 rounds samples to the nearest 8-bit integer, clipping to 0..255.
func Round8(img *models.Image) *models.Image {
	out := models.NewImage(img.Width, img.Height, img.Channels)
	for i, v := range img.Data {
		out.Data[i] = math.Round(clamp255(v))
	}
	return out
}

// ToGray renders a grayscale grid as an 8-bit image. Samples are clipped to
// 0..255 and truncated.
func ToGray(img *models.Image) *image.Gray {
	gray := img
	if img.Channels > 1 {
		gray = Grayscale(img)
	}
	out := image.NewGray(image.Rect(0, 0, img.Width, img.Height))
	for i, v := range gray.Data[:img.Pixels()] {
		out.Pix[i] = uint8(clamp255(v))
	}
	return out
}

// ToRGBA renders a grid as an opaque 8-bit RGBA image, replicating a single
// channel across red, green and blue.
func ToRGBA(img *models.Image) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			var r, g, b uint8
			if img.Channels >= 3 {
				r = uint8(clamp255(img.At(x, y, 0)))
				g = uint8(clamp255(img.At(x, y, 1)))
				b = uint8(clamp255(img.At(x, y, 2)))
			} else {
				r = uint8(clamp255(img.At(x, y, 0)))
				g, b = r, r
			}
			out.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return out
}

// MaskFromImage reads an 8-bit mask from a decoded image. Color masks are
// averaged to one channel.
func MaskFromImage(img image.Image) *models.Mask {
	gray := Grayscale(FromImage(img))
	return &models.Mask{
		Data:     gray.Data,
		Width:    gray.Width,
		Height:   gray.Height,
		Channels: 1,
		Depth:    models.Depth8,
	}
}

// MaskToGray renders a mask for export. Confidence masks are scaled by 255.
func MaskToGray(mask *models.Mask) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, mask.Width, mask.Height))
	scale := 1.0
	if mask.Depth == models.DepthFloat {
		scale = 255
	}
	for i := 0; i < mask.Width*mask.Height; i++ {
		out.Pix[i] = uint8(clamp255(mask.Data[i*max(mask.Channels, 1)] * scale))
	}
	return out
}

func minMax(data []float64) (lo, hi float64) {
	if len(data) == 0 {
		return 0, 0
	}
	return floats.Min(data), floats.Max(data)
}

func clamp255(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
