// Package detection wraps the object-detection collaborator that supplies
// tumor bounding boxes. Detectors are built once by their owner, shared
// read-only between comparisons and closed when the owner is done.
package detection

import (
	"context"
	"image"
	"io"

	"mrichange/internal/logger"
	"mrichange/internal/models"
	"mrichange/pkg/config"
	"mrichange/pkg/scanerr"
)

// Backend names accepted in configuration.
const (
	BackendNone = "none"
	BackendHTTP = "http"
	BackendDNN  = "dnn"
)

// Detector finds tumors in a single image. Implementations must be safe
// for concurrent use.
type Detector interface {
	// Detect returns detections scoring at least minConfidence, with boxes
	// in the pixel coordinates of img.
	Detect(ctx context.Context, img image.Image, minConfidence float64) ([]models.Detection, error)

	io.Closer
}

// New builds the detector selected by cfg. The "none" backend yields a nil
// detector and no error. A backend whose model cannot be reached returns a
// model_unavailable error so callers can carry on without masks.
func New(cfg *config.Config, log *logger.Logger) (Detector, error) {
	switch cfg.Detection.Backend {
	case BackendNone, "":
		return nil, nil
	case BackendHTTP:
		d, err := NewHTTPDetector(cfg.Detection.URL, cfg.Detection.Timeout, log)
		if err != nil {
			return nil, err
		}
		return d, nil
	case BackendDNN:
		d, err := NewDNNDetector(cfg.Detection.ModelPath, cfg.Detection.ConfigPath, log)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, scanerr.New(scanerr.InvalidArgument, "detector", "unknown backend %q", cfg.Detection.Backend)
	}
}

// filter drops detections under minConfidence.
func filter(dets []models.Detection, minConfidence float64) []models.Detection {
	out := dets[:0]
	for _, d := range dets {
		if d.Confidence >= minConfidence {
			out = append(out, d)
		}
	}
	return out
}
