package imageops

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"mrichange/internal/models"
)

// Resize resamples every channel to width x height with Catmull-Rom
// interpolation. Samples are carried through a 16-bit intermediate spanning
// the image's own value range, so precision is kept for any input scale.
func Resize(img *models.Image, width, height int) *models.Image {
	if img.Width == width && img.Height == height {
		return img.Clone()
	}

	lo, hi := minMax(img.Data)
	span := hi - lo
	channels := max(img.Channels, 1)
	out := models.NewImage(width, height, channels)

	src := image.NewGray16(image.Rect(0, 0, img.Width, img.Height))
	dst := image.NewGray16(image.Rect(0, 0, width, height))

	for c := 0; c < channels; c++ {
		for i := 0; i < img.Pixels(); i++ {
			v := 0.0
			if span > 0 {
				v = (img.Data[i*channels+c] - lo) / span
			}
			q := uint16(math.Round(v * 65535))
			src.Pix[2*i] = uint8(q >> 8)
			src.Pix[2*i+1] = uint8(q)
		}

		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

		for i := 0; i < width*height; i++ {
			q := uint16(dst.Pix[2*i])<<8 | uint16(dst.Pix[2*i+1])
			out.Data[i*channels+c] = lo + float64(q)/65535*span
		}
	}

	return out
}

// Resize8 resizes an 8-bit scale image the way scans are resized before
// comparison: samples are truncated to 8-bit levels, resampled, and
// truncated again.
func Resize8(img *models.Image, width, height int) *models.Image {
	return Quantize8(Resize(Quantize8(img), width, height))
}

// ResizeMask resamples a mask with the same high-quality filter used for
// images. 8-bit masks are rounded back to integer levels.
func ResizeMask(mask *models.Mask, width, height int) *models.Mask {
	if mask.Width == width && mask.Height == height {
		data := make([]float64, len(mask.Data))
		copy(data, mask.Data)
		return &models.Mask{Data: data, Width: width, Height: height, Channels: mask.Channels, Depth: mask.Depth}
	}

	resized := Resize(&models.Image{
		Data:     mask.Data,
		Width:    mask.Width,
		Height:   mask.Height,
		Channels: max(mask.Channels, 1),
	}, width, height)

	if mask.Depth == models.Depth8 {
		for i, v := range resized.Data {
			resized.Data[i] = math.Round(clamp255(v))
		}
	}

	return &models.Mask{
		Data:     resized.Data,
		Width:    width,
		Height:   height,
		Channels: resized.Channels,
		Depth:    mask.Depth,
	}
}

// Preprocess prepares an image for registration: it is reduced to
// grayscale, optionally resized to size (a zero size keeps the original
// dimensions) and, when normalize is set, min-max scaled to 0..255 and
// rounded so the brightest pixel lands on 255. Every stage yields 8-bit
// levels.
func Preprocess(img *models.Image, size image.Point, normalize bool) *models.Image {
	gray := Grayscale(img)

	if size != (image.Point{}) && (size.X != gray.Width || size.Y != gray.Height) {
		gray = Resize8(gray, size.X, size.Y)
	}

	if normalize {
		gray = Round8(Normalize(gray, 255))
	}

	return gray
}
