//go:build gocv

package detection

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"mrichange/internal/logger"
	"mrichange/internal/models"
	"mrichange/pkg/scanerr"
)

const (
	// blobSize is the network input resolution
	blobSize = 300

	// detectionFields is the width of one SSD output row:
	// image id, class, confidence, x1, y1, x2, y2 (normalized)
	detectionFields = 7
)

// DNNDetector runs an SSD-style network through OpenCV's dnn module.
// gocv.Net is not safe for concurrent inference, so calls are serialized.
type DNNDetector struct {
	mu  sync.Mutex
	net gocv.Net
	log *logger.Logger
}

// NewDNNDetector loads the network from modelPath and configPath. Missing
// files or an unreadable network yield a model_unavailable error.
func NewDNNDetector(modelPath, configPath string, log *logger.Logger) (*DNNDetector, error) {
	const op = "dnn detector"

	if _, err := os.Stat(modelPath); err != nil {
		return nil, scanerr.Unavailable(op, fmt.Errorf("model file not found: %s", modelPath))
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, scanerr.Unavailable(op, fmt.Errorf("config file not found: %s", configPath))
		}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, scanerr.Unavailable(op, fmt.Errorf("failed to load network"))
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, scanerr.Unavailable(op, fmt.Errorf("failed to set preferable backend or target"))
	}

	log.Info("Detection network initialized from %s", modelPath)
	return &DNNDetector{net: net, log: log}, nil
}

// Detect runs one forward pass and converts normalized output rows to
// pixel boxes of img.
func (d *DNNDetector) Detect(ctx context.Context, img image.Image, minConfidence float64) ([]models.Detection, error) {
	const op = "dnn detect"

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, scanerr.Wrap(scanerr.InvalidArgument, op, fmt.Errorf("convert image: %w", err))
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, scanerr.Shape(op, "image is empty")
	}

	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(blobSize, blobSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	cols, rows := float32(mat.Cols()), float32(mat.Rows())
	reshaped := output.Reshape(1, output.Total()/detectionFields)
	defer reshaped.Close()

	var dets []models.Detection
	for i := 0; i < reshaped.Rows(); i++ {
		confidence := float64(reshaped.GetFloatAt(i, 2))
		if confidence < minConfidence {
			continue
		}
		dets = append(dets, models.Detection{
			Box: models.BoundingBox{
				X1: float64(reshaped.GetFloatAt(i, 3) * cols),
				Y1: float64(reshaped.GetFloatAt(i, 4) * rows),
				X2: float64(reshaped.GetFloatAt(i, 5) * cols),
				Y2: float64(reshaped.GetFloatAt(i, 6) * rows),
			},
			Confidence: confidence,
			Label:      fmt.Sprintf("class_%d", int(reshaped.GetFloatAt(i, 1))),
		})
	}

	d.log.Info("DNN detector found %d boxes", len(dets))
	return dets, nil
}

// Close frees the network.
func (d *DNNDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
