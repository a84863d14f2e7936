package models

// MaskDepth records the sample representation a mask arrived in. The
// binarization threshold depends on it.
type MaskDepth int

const (
	// Depth8 masks hold 8-bit values in 0..255
	Depth8 MaskDepth = iota

	// DepthFloat masks hold real values, usually confidences in [0,1]
	DepthFloat
)

const (
	// Threshold8 is the mid-scale cut for 8-bit masks
	Threshold8 = 127.0

	// ThresholdFloat is the cut for floating-point masks
	ThresholdFloat = 0.5
)

// String returns the depth name.
func (d MaskDepth) String() string {
	if d == DepthFloat {
		return "float"
	}
	return "uint8"
}

// Mask is a 2-D grid aligned to an image's pixel grid. It is only meaningful
// in the coordinate frame of the image it was derived from until re-projected.
type Mask struct {
	// Data is row-major with interleaved channels
	Data []float64

	// Width, Height are the pixel dimensions of the mask
	Width, Height int

	// Channels is usually 1; multi-channel masks are averaged before use
	Channels int

	// Depth selects the binarization rule
	Depth MaskDepth
}

// NewMask allocates a zero-filled single-channel mask.
func NewMask(width, height int, depth MaskDepth) *Mask {
	return &Mask{
		Data:     make([]float64, width*height),
		Width:    width,
		Height:   height,
		Channels: 1,
		Depth:    depth,
	}
}

// Empty reports whether the mask has unusable dimensions.
func (m *Mask) Empty() bool {
	return m == nil || m.Width <= 0 || m.Height <= 0 ||
		len(m.Data) < m.Width*m.Height*max(m.Channels, 1)
}

// Threshold returns the binarization cut for the mask's depth.
func (m *Mask) Threshold() float64 {
	if m.Depth == DepthFloat {
		return ThresholdFloat
	}
	return Threshold8
}

// Inside reports whether pixel i of a single-channel mask is in-region.
func (m *Mask) Inside(i int) bool {
	return m.Data[i] > m.Threshold()
}

// Area counts in-region pixels of a single-channel mask.
func (m *Mask) Area() int {
	n := 0
	for i := 0; i < m.Width*m.Height; i++ {
		if m.Inside(i) {
			n++
		}
	}
	return n
}
