package masks

import "mrichange/internal/models"

// Reduce averages a multi-channel mask down to one channel. Single-channel
// masks are returned unchanged.
func Reduce(mask *models.Mask) *models.Mask {
	if mask.Channels <= 1 {
		return mask
	}
	n := mask.Width * mask.Height
	out := models.NewMask(mask.Width, mask.Height, mask.Depth)
	for i := 0; i < n; i++ {
		sum := 0.0
		for c := 0; c < mask.Channels; c++ {
			sum += mask.Data[i*mask.Channels+c]
		}
		out.Data[i] = sum / float64(mask.Channels)
	}
	return out
}

// Binarize applies the depth-dependent rule: 8-bit masks are in-region above
// 127, floating-point masks above 0.5.
func Binarize(mask *models.Mask) []bool {
	m := Reduce(mask)
	n := m.Width * m.Height
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = m.Inside(i)
	}
	return out
}

// Count returns the number of set pixels.
func Count(binary []bool) int {
	n := 0
	for _, b := range binary {
		if b {
			n++
		}
	}
	return n
}
