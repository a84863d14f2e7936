// Package comparison runs the end-to-end scan comparison: preprocessing,
// registration, mask projection, change metrics and the change overlay.
// A Pipeline keeps no per-call state, so one instance may serve concurrent
// comparisons.
package comparison

import (
	"context"
	"image"

	"golang.org/x/sync/errgroup"

	"mrichange/internal/logger"
	"mrichange/internal/models"
	"mrichange/pkg/detection"
	"mrichange/pkg/imageops"
	"mrichange/pkg/masks"
	"mrichange/pkg/metrics"
	"mrichange/pkg/registration"
	"mrichange/pkg/scanerr"
	"mrichange/pkg/tumors"
	"mrichange/pkg/visualization"
)

// Pipeline wires the aligner with an optional detector. The detector is
// owned by the caller, who closes it.
type Pipeline struct {
	aligner   *registration.Aligner
	detector  detection.Detector
	converter *masks.Converter
	opts      Options
	log       *logger.Logger
}

// New returns a pipeline. detector may be nil, in which case masks are only
// used when supplied with the input.
func New(aligner *registration.Aligner, detector detection.Detector, opts Options, log *logger.Logger) *Pipeline {
	return &Pipeline{
		aligner:   aligner,
		detector:  detector,
		converter: masks.NewConverter(opts.Cutoff),
		opts:      opts,
		log:       log,
	}
}

// Input is one pair of scans. Masks are optional and, when present, must be
// drawn in the frame of their own scan.
type Input struct {
	Fixed, Moving         image.Image
	FixedMask, MovingMask *models.Mask
}

// Result is everything a comparison produces.
type Result struct {
	// Fixed is the preprocessed fixed scan that metrics are measured against
	Fixed *models.Image

	// Registered is the moving scan in the fixed frame, on a 0..255 scale
	Registered *models.Image

	Registration *registration.Result
	Metrics      *metrics.ChangeMetrics

	// Visualization is the red/blue change overlay
	Visualization *image.RGBA

	// FixedMask and RegisteredMask are the masks metrics were computed with
	FixedMask, RegisteredMask *models.Mask

	// Tumors is set when detections were available for both scans
	Tumors *tumors.Comparison
}

// Compare registers in.Moving onto in.Fixed and measures the change. When
// no masks are supplied and a detector is configured, both scans are run
// through it concurrently; an unavailable model leaves the comparison
// without masks rather than failing it.
func (p *Pipeline) Compare(ctx context.Context, in Input) (*Result, error) {
	if in.Fixed == nil || in.Moving == nil {
		return nil, scanerr.Shape("compare", "both scans are required")
	}

	fixedRaw := imageops.FromImage(in.Fixed)
	movingRaw := imageops.FromImage(in.Moving)
	if fixedRaw.Empty() || movingRaw.Empty() {
		return nil, scanerr.Shape("compare", "scans must be non-empty")
	}
	p.log.Info("Fixed image: %dx%d, moving image: %dx%d",
		fixedRaw.Width, fixedRaw.Height, movingRaw.Width, movingRaw.Height)

	fixedMask, movingMask := in.FixedMask, in.MovingMask
	var tumorReport *tumors.Comparison
	if fixedMask == nil && movingMask == nil && p.detector != nil {
		fixedDets, movingDets, err := p.detectPair(ctx, in.Fixed, in.Moving)
		switch {
		case scanerr.Is(err, scanerr.ModelUnavailable):
			p.log.Warning("Detector unavailable, continuing without masks: %v", err)
		case err != nil:
			return nil, err
		default:
			fixedMask, movingMask, err = p.buildMasks(fixedDets, movingDets, fixedRaw, movingRaw)
			if err != nil {
				return nil, err
			}
			tumorReport, err = tumors.Compare(fixedDets, movingDets,
				image.Pt(fixedRaw.Width, fixedRaw.Height), image.Pt(movingRaw.Width, movingRaw.Height),
				p.opts.Tumors, p.log)
			if err != nil {
				return nil, err
			}
		}
	}

	fixed := imageops.Preprocess(fixedRaw, image.Point{}, true)
	moving := imageops.Preprocess(movingRaw, image.Pt(fixed.Width, fixed.Height), true)

	if fixedMask != nil && (fixedMask.Width != fixed.Width || fixedMask.Height != fixed.Height) {
		fixedMask = imageops.ResizeMask(masks.Reduce(fixedMask), fixed.Width, fixed.Height)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reg, err := p.aligner.Align(fixed, moving, p.opts.Kind)
	if err != nil {
		p.log.Error("Registration failed: %v", err)
		return nil, err
	}
	p.log.Info("Registration: %s", reg)

	var registeredMask *models.Mask
	if movingMask != nil {
		registeredMask, err = masks.Project(movingMask, reg.Transform, fixed)
		if err != nil {
			return nil, err
		}
		p.log.Info("Mask registration successful")
	}

	p.log.Info("Computing change metrics...")
	cm, err := metrics.ComputeChangeMetrics(fixed, reg.Registered, fixedMask, registeredMask, p.opts.Threshold)
	if err != nil {
		return nil, err
	}
	if fixedMask != nil && registeredMask != nil {
		cm.AreaChange, err = metrics.ComputeAreaChange(fixedMask, registeredMask)
		if err != nil {
			return nil, err
		}
	}
	for _, w := range cm.Warnings {
		p.log.Warning("Degenerate region: %s", w)
	}

	overlay, err := visualization.Visualize(fixed, reg.Registered, nil)
	if err != nil {
		return nil, err
	}

	return &Result{
		Fixed:          fixed,
		Registered:     reg.Registered,
		Registration:   reg,
		Metrics:        cm,
		Visualization:  overlay,
		FixedMask:      fixedMask,
		RegisteredMask: registeredMask,
		Tumors:         tumorReport,
	}, nil
}

// Register aligns moving onto fixed without measuring change.
func (p *Pipeline) Register(ctx context.Context, fixedImg, movingImg image.Image) (*registration.Result, error) {
	if fixedImg == nil || movingImg == nil {
		return nil, scanerr.Shape("register", "both scans are required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fixed := imageops.Preprocess(imageops.FromImage(fixedImg), image.Point{}, true)
	moving := imageops.Preprocess(imageops.FromImage(movingImg), image.Point{}, true)
	return p.aligner.Align(fixed, moving, p.opts.Kind)
}

func (p *Pipeline) detectPair(ctx context.Context, fixed, moving image.Image) ([]models.Detection, []models.Detection, error) {
	var fixedDets, movingDets []models.Detection
	minConfidence := p.opts.Tumors.MinConfidence

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fixedDets, err = p.detector.Detect(ctx, fixed, minConfidence)
		return err
	})
	g.Go(func() error {
		var err error
		movingDets, err = p.detector.Detect(ctx, moving, minConfidence)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	p.log.Info("Found %d detections in fixed scan, %d in moving scan", len(fixedDets), len(movingDets))
	return fixedDets, movingDets, nil
}

func (p *Pipeline) buildMasks(fixedDets, movingDets []models.Detection, fixed, moving *models.Image) (*models.Mask, *models.Mask, error) {
	fixedMask, err := p.converter.FromDetections(fixedDets, p.opts.MaskType, fixed.Width, fixed.Height)
	if err != nil {
		return nil, nil, err
	}
	movingMask, err := p.converter.FromDetections(movingDets, p.opts.MaskType, moving.Width, moving.Height)
	if err != nil {
		return nil, nil, err
	}
	return fixedMask, movingMask, nil
}
