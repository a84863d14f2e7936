package masks

import (
	"mrichange/internal/models"
	"mrichange/pkg/imageops"
	"mrichange/pkg/registration"
	"mrichange/pkg/scanerr"
)

// Project carries a mask drawn on the moving image into the fixed frame
// using a transform already estimated between the images. Nearest-neighbor
// sampling keeps discrete mask values intact. A mask whose dimensions differ
// from target is first resized to them, matching the resize the aligner
// applies to the moving image. Out-of-frame samples are zero.
func Project(mask *models.Mask, transform *registration.Transform, target *models.Image) (*models.Mask, error) {
	if mask.Empty() {
		return nil, scanerr.Shape("project mask", "mask has unusable dimensions")
	}
	if target.Empty() {
		return nil, scanerr.Shape("project mask", "target frame has unusable dimensions")
	}

	m := Reduce(mask)
	if m.Width != target.Width || m.Height != target.Height {
		m = imageops.ResizeMask(m, target.Width, target.Height)
	}

	data := registration.Resample(m.Data, m.Width, m.Height, transform,
		target.Width, target.Height, registration.NearestNeighbor, 0)

	return &models.Mask{
		Data:     data,
		Width:    target.Width,
		Height:   target.Height,
		Channels: 1,
		Depth:    m.Depth,
	}, nil
}
