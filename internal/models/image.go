package models

// Image is a 2-D grid of intensity samples stored row-major with interleaved
// channels. Grayscale images have one channel, color images have three.
type Image struct {
	// Data holds Width*Height*Channels samples
	Data []float64

	// Width is the number of columns in pixels
	Width int

	// Height is the number of rows in pixels
	Height int

	// Channels is 1 for grayscale and 3 for RGB
	Channels int
}

// NewImage allocates a zero-filled image.
func NewImage(width, height, channels int) *Image {
	if channels < 1 {
		channels = 1
	}
	return &Image{
		Data:     make([]float64, width*height*channels),
		Width:    width,
		Height:   height,
		Channels: channels,
	}
}

// NewGray wraps a row-major grayscale buffer without copying it.
func NewGray(data []float64, width, height int) *Image {
	return &Image{Data: data, Width: width, Height: height, Channels: 1}
}

// Empty reports whether the image has no pixels or inconsistent storage.
func (img *Image) Empty() bool {
	return img == nil || img.Width <= 0 || img.Height <= 0 ||
		len(img.Data) < img.Width*img.Height*max(img.Channels, 1)
}

// Pixels returns Width*Height.
func (img *Image) Pixels() int {
	return img.Width * img.Height
}

// At returns the sample of channel c at (x, y).
func (img *Image) At(x, y, c int) float64 {
	return img.Data[(y*img.Width+x)*img.Channels+c]
}

// Set writes the sample of channel c at (x, y).
func (img *Image) Set(x, y, c int, v float64) {
	img.Data[(y*img.Width+x)*img.Channels+c] = v
}

// SameSize reports whether both images share pixel dimensions.
func (img *Image) SameSize(other *Image) bool {
	return img.Width == other.Width && img.Height == other.Height
}

// Clone returns a deep copy.
func (img *Image) Clone() *Image {
	data := make([]float64, len(img.Data))
	copy(data, img.Data)
	return &Image{Data: data, Width: img.Width, Height: img.Height, Channels: img.Channels}
}
