package models

// BoundingBox is an axis-aligned box in pixel coordinates of a specific
// image. Boxes come from the detector and are never assumed to be clamped.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width is the horizontal extent, never negative.
func (b BoundingBox) Width() float64 {
	return max(0, b.X2-b.X1)
}

// Height is the vertical extent, never negative.
func (b BoundingBox) Height() float64 {
	return max(0, b.Y2-b.Y1)
}

// Area is Width*Height.
func (b BoundingBox) Area() float64 {
	return b.Width() * b.Height()
}

// Center returns the box midpoint.
func (b BoundingBox) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Detection is a single detector output.
type Detection struct {
	Box        BoundingBox `json:"box"`
	Confidence float64     `json:"confidence"`
	Label      string      `json:"label,omitempty"`
}

// Boxes splits detections into parallel box and confidence slices.
func Boxes(detections []Detection) ([]BoundingBox, []float64) {
	boxes := make([]BoundingBox, len(detections))
	confidences := make([]float64, len(detections))
	for i, d := range detections {
		boxes[i] = d.Box
		confidences[i] = d.Confidence
	}
	return boxes, confidences
}
