package registration

import "math"

// Interpolator selects how off-grid samples are read.
type Interpolator int

const (
	// Linear blends the four surrounding pixels
	Linear Interpolator = iota

	// NearestNeighbor copies the closest pixel, preserving discrete labels
	NearestNeighbor
)

// Resample pulls src (sw x sh, one channel) into a dw x dh grid through t.
// Destination pixels whose source position falls outside src receive fill.
func Resample(src []float64, sw, sh int, t *Transform, dw, dh int, interp Interpolator, fill float64) []float64 {
	out := make([]float64, dw*dh)
	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			mx, my := t.Map(float64(x), float64(y))
			if !inside(mx, my, sw, sh) {
				out[y*dw+x] = fill
				continue
			}
			if interp == NearestNeighbor {
				out[y*dw+x] = nearest(src, sw, sh, mx, my)
			} else {
				out[y*dw+x] = bilinear(src, sw, sh, mx, my)
			}
		}
	}
	return out
}

// inside treats each pixel as covering half a pixel on every side of its
// centre.
func inside(x, y float64, width, height int) bool {
	return x >= -0.5 && x < float64(width)-0.5 && y >= -0.5 && y < float64(height)-0.5
}

func nearest(data []float64, width, height int, x, y float64) float64 {
	ix := clampIndex(int(math.Floor(x+0.5)), width)
	iy := clampIndex(int(math.Floor(y+0.5)), height)
	return data[iy*width+ix]
}

func bilinear(data []float64, width, height int, x, y float64) float64 {
	x0f, y0f := math.Floor(x), math.Floor(y)
	fx, fy := x-x0f, y-y0f
	x0 := clampIndex(int(x0f), width)
	y0 := clampIndex(int(y0f), height)
	x1 := clampIndex(int(x0f)+1, width)
	y1 := clampIndex(int(y0f)+1, height)

	top := data[y0*width+x0]*(1-fx) + data[y0*width+x1]*fx
	bottom := data[y1*width+x0]*(1-fx) + data[y1*width+x1]*fx
	return top*(1-fy) + bottom*fy
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// gradient computes central differences along x and y, falling back to
// one-sided differences on the border.
func gradient(data []float64, width, height int) (gx, gy []float64) {
	gx = make([]float64, width*height)
	gy = make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			switch {
			case width == 1:
			case x == 0:
				gx[i] = data[i+1] - data[i]
			case x == width-1:
				gx[i] = data[i] - data[i-1]
			default:
				gx[i] = (data[i+1] - data[i-1]) / 2
			}
			switch {
			case height == 1:
			case y == 0:
				gy[i] = data[i+width] - data[i]
			case y == height-1:
				gy[i] = data[i] - data[i-width]
			default:
				gy[i] = (data[i+width] - data[i-width]) / 2
			}
		}
	}
	return gx, gy
}
