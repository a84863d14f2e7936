// Package masks turns detector bounding boxes into raster masks, applies the
// binarization rule shared by every mask consumer, and projects masks
// through an estimated registration transform.
package masks

import (
	"fmt"
	"math"

	"mrichange/internal/models"
	"mrichange/pkg/scanerr"
)

// DefaultCutoff is the confidence below which boxes are left out of binary masks.
const DefaultCutoff = 0.5

// Type selects the mask representation built from detections.
type Type string

const (
	Binary     Type = "binary"
	Confidence Type = "confidence"
)

// ParseType converts "binary" or "confidence" into a Type.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case Binary, "":
		return Binary, nil
	case Confidence:
		return Confidence, nil
	default:
		return Binary, fmt.Errorf("unknown mask type %q", s)
	}
}

// Converter rasterizes boxes with a configurable confidence cutoff.
type Converter struct {
	Cutoff float64
}

// NewConverter returns a converter using cutoff for binary masks.
func NewConverter(cutoff float64) *Converter {
	return &Converter{Cutoff: cutoff}
}

// ToBinaryMask rasterizes boxes into an 8-bit mask using DefaultCutoff.
func ToBinaryMask(boxes []models.BoundingBox, confidences []float64, width, height int) (*models.Mask, error) {
	return NewConverter(DefaultCutoff).ToBinaryMask(boxes, confidences, width, height)
}

// ToConfidenceMask rasterizes boxes into a confidence-weighted mask.
func ToConfidenceMask(boxes []models.BoundingBox, confidences []float64, width, height int) (*models.Mask, error) {
	return NewConverter(DefaultCutoff).ToConfidenceMask(boxes, confidences, width, height)
}

// ToBinaryMask fills each box with 255 on a zero canvas of width x height.
// When confidences is non-nil, boxes scoring below the cutoff are skipped.
// Box corners are clamped to the canvas independently, so partially
// out-of-frame boxes are clipped rather than dropped.
func (c *Converter) ToBinaryMask(boxes []models.BoundingBox, confidences []float64, width, height int) (*models.Mask, error) {
	if err := checkShape("binary mask", width, height); err != nil {
		return nil, err
	}
	if confidences != nil && len(confidences) != len(boxes) {
		return nil, scanerr.New(scanerr.InvalidArgument, "binary mask",
			"%d boxes but %d confidences", len(boxes), len(confidences))
	}

	mask := models.NewMask(width, height, models.Depth8)
	for i, box := range boxes {
		if confidences != nil && confidences[i] < c.Cutoff {
			continue
		}
		x1, y1, x2, y2 := clampBox(box, width, height)
		for y := y1; y < y2; y++ {
			for x := x1; x < x2; x++ {
				mask.Data[y*width+x] = 255
			}
		}
	}
	return mask, nil
}

// ToConfidenceMask writes each box's confidence over its area. Where boxes
// overlap the pixel keeps the highest confidence.
func (c *Converter) ToConfidenceMask(boxes []models.BoundingBox, confidences []float64, width, height int) (*models.Mask, error) {
	if err := checkShape("confidence mask", width, height); err != nil {
		return nil, err
	}
	if len(confidences) != len(boxes) {
		return nil, scanerr.New(scanerr.InvalidArgument, "confidence mask",
			"%d boxes but %d confidences", len(boxes), len(confidences))
	}

	mask := models.NewMask(width, height, models.DepthFloat)
	for i, box := range boxes {
		conf := confidences[i]
		x1, y1, x2, y2 := clampBox(box, width, height)
		for y := y1; y < y2; y++ {
			for x := x1; x < x2; x++ {
				if conf > mask.Data[y*width+x] {
					mask.Data[y*width+x] = conf
				}
			}
		}
	}
	return mask, nil
}

// FromDetections builds a mask of the requested type for a width x height image.
func (c *Converter) FromDetections(detections []models.Detection, kind Type, width, height int) (*models.Mask, error) {
	boxes, confidences := models.Boxes(detections)
	if kind == Confidence {
		return c.ToConfidenceMask(boxes, confidences, width, height)
	}
	return c.ToBinaryMask(boxes, confidences, width, height)
}

// clampBox truncates box coordinates to integers and clamps each to
// [0, dimension-1]. The filled region is [x1,x2) x [y1,y2).
func clampBox(box models.BoundingBox, width, height int) (x1, y1, x2, y2 int) {
	x1 = clamp(int(math.Trunc(box.X1)), width-1)
	y1 = clamp(int(math.Trunc(box.Y1)), height-1)
	x2 = clamp(int(math.Trunc(box.X2)), width-1)
	y2 = clamp(int(math.Trunc(box.Y2)), height-1)
	return x1, y1, x2, y2
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}

func checkShape(op string, width, height int) error {
	if width <= 0 || height <= 0 {
		return scanerr.Shape(op, "mask shape %dx%d is not usable", width, height)
	}
	return nil
}
