//go:build !gocv

package detection

import (
	"context"
	"errors"
	"image"

	"mrichange/internal/logger"
	"mrichange/internal/models"
	"mrichange/pkg/scanerr"
)

// DNNDetector is unavailable in builds without the gocv tag.
type DNNDetector struct{}

// NewDNNDetector always reports model_unavailable; rebuild with -tags gocv
// to enable OpenCV inference.
func NewDNNDetector(modelPath, configPath string, log *logger.Logger) (*DNNDetector, error) {
	return nil, scanerr.Unavailable("dnn detector", errors.New("built without gocv support"))
}

func (d *DNNDetector) Detect(ctx context.Context, img image.Image, minConfidence float64) ([]models.Detection, error) {
	return nil, scanerr.Unavailable("dnn detect", errors.New("built without gocv support"))
}

func (d *DNNDetector) Close() error { return nil }
