package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mrichange/internal/logger"
	"mrichange/internal/models"
	"mrichange/pkg/imageops"
	"mrichange/pkg/scanerr"
)

// HTTPDetector sends images to a remote inference service as multipart
// uploads. The service answers with parallel box and confidence lists:
//
//	{"boxes": [[x1, y1, x2, y2], ...], "confidences": [0.91, ...], "labels": ["tumor", ...]}
type HTTPDetector struct {
	url    string
	client *http.Client
	log    *logger.Logger
}

type inferenceResponse struct {
	Boxes       [][]float64 `json:"boxes"`
	Confidences []float64   `json:"confidences"`
	Labels      []string    `json:"labels"`
}

// NewHTTPDetector returns a detector posting to url. A zero timeout leaves
// requests bounded only by their context.
func NewHTTPDetector(url string, timeout time.Duration, log *logger.Logger) (*HTTPDetector, error) {
	if url == "" {
		return nil, scanerr.Unavailable("http detector", errors.New("no inference URL configured"))
	}
	return &HTTPDetector{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: timeout},
		log:    log,
	}, nil
}

// Detect uploads img as PNG and parses the returned boxes.
func (d *HTTPDetector) Detect(ctx context.Context, img image.Image, minConfidence float64) ([]models.Detection, error) {
	const op = "http detect"

	body := &bytes.Buffer{}
	contentType, err := writeUpload(body, img, minConfidence)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.Do(req)
	if err != nil {
		var netErr *net.OpError
		if errors.As(err, &netErr) {
			return nil, scanerr.Unavailable(op, err)
		}
		return nil, scanerr.Wrap(scanerr.IO, op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusNotFound:
		return nil, scanerr.Unavailable(op, fmt.Errorf("inference service returned status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, scanerr.New(scanerr.IO, op, "inference failed with status: %d", resp.StatusCode)
	}

	var result inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, scanerr.Wrap(scanerr.IO, op, fmt.Errorf("decode response: %w", err))
	}

	dets, err := result.detections()
	if err != nil {
		return nil, scanerr.Wrap(scanerr.IO, op, err)
	}
	dets = filter(dets, minConfidence)
	d.log.Info("Remote detector found %d boxes", len(dets))
	return dets, nil
}

// CheckHealth reports whether the inference service answers on /health.
func (d *HTTPDetector) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return scanerr.Unavailable("http health", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return scanerr.Unavailable("http health", fmt.Errorf("ml service unhealthy: %d", resp.StatusCode))
	}
	return nil
}

// Close releases idle connections.
func (d *HTTPDetector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

func (r inferenceResponse) detections() ([]models.Detection, error) {
	if len(r.Confidences) != len(r.Boxes) {
		return nil, fmt.Errorf("%d boxes but %d confidences", len(r.Boxes), len(r.Confidences))
	}
	dets := make([]models.Detection, 0, len(r.Boxes))
	for i, b := range r.Boxes {
		if len(b) != 4 {
			return nil, fmt.Errorf("box %d has %d coordinates", i, len(b))
		}
		det := models.Detection{
			Box:        models.BoundingBox{X1: b[0], Y1: b[1], X2: b[2], Y2: b[3]},
			Confidence: r.Confidences[i],
		}
		if i < len(r.Labels) {
			det.Label = r.Labels[i]
		}
		dets = append(dets, det)
	}
	return dets, nil
}

// writeUpload writes the multipart request body and returns its content type.
func writeUpload(w io.Writer, img image.Image, minConfidence float64) (string, error) {
	writer := multipart.NewWriter(w)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if err := imageops.EncodePNG(part, img); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	if err := writer.WriteField("conf", strconv.FormatFloat(minConfidence, 'f', -1, 64)); err != nil {
		return "", fmt.Errorf("write confidence field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}
	return writer.FormDataContentType(), nil
}
