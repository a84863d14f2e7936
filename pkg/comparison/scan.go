package comparison

import (
	"context"
	"errors"
	"image"

	"mrichange/internal/models"
	"mrichange/pkg/imageops"
	"mrichange/pkg/masks"
	"mrichange/pkg/scanerr"
)

// ScanResult is the detector output for a single scan and the mask built
// from it.
type ScanResult struct {
	NumDetections int                  `json:"num_detections"`
	Boxes         []models.BoundingBox `json:"boxes"`
	Confidences   []float64            `json:"confidences"`
	MaskType      masks.Type           `json:"mask_type"`
	ImageSize     [2]int               `json:"image_size"`

	// Mask is in the scan's own frame
	Mask *models.Mask `json:"-"`
}

// Scan runs the detector on img and rasterizes the detections into a mask
// of the configured type.
func (p *Pipeline) Scan(ctx context.Context, img image.Image) (*ScanResult, error) {
	if p.detector == nil {
		return nil, scanerr.Unavailable("scan", errors.New("no detector configured"))
	}
	if img == nil || img.Bounds().Empty() {
		return nil, scanerr.Shape("scan", "scan must be non-empty")
	}

	dets, err := p.detector.Detect(ctx, img, p.opts.Tumors.MinConfidence)
	if err != nil {
		return nil, err
	}
	p.log.Info("Found %d detections", len(dets))

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	mask, err := p.converter.FromDetections(dets, p.opts.MaskType, w, h)
	if err != nil {
		return nil, err
	}

	boxes, confidences := models.Boxes(dets)
	return &ScanResult{
		NumDetections: len(dets),
		Boxes:         boxes,
		Confidences:   confidences,
		MaskType:      p.opts.MaskType,
		ImageSize:     [2]int{w, h},
		Mask:          mask,
	}, nil
}

// MaskImage renders the scan mask for export. Confidence masks are scaled
// to 0..255.
func (r *ScanResult) MaskImage() *image.Gray {
	return imageops.MaskToGray(r.Mask)
}
