// Package metrics quantifies the change between a fixed scan and a scan
// already registered to it. Whole-image intensity statistics, thresholded
// pixel-change counts, per-mask region statistics, mask overlap and area
// change are gathered into a single JSON-serializable record.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"mrichange/internal/models"
	"mrichange/pkg/imageops"
	"mrichange/pkg/scanerr"
)

// DefaultThreshold is the absolute intensity difference above which a pixel
// counts as changed.
const DefaultThreshold = 10.0

// ChangeMetrics is the result of one comparison. Optional sections are nil
// when the masks they depend on were not supplied.
type ChangeMetrics struct {
	Overall      Overall      `json:"overall"`
	PixelChanges PixelChanges `json:"pixel_changes"`

	// MaskBased holds a summary per supplied mask, present only for
	// non-empty regions
	MaskBased *MaskBased `json:"mask_based,omitempty"`

	// FixedMaskRegion and RegisteredMaskRegion are zero-filled for empty regions
	FixedMaskRegion      *RegionStats `json:"fixed_mask_region,omitempty"`
	RegisteredMaskRegion *RegionStats `json:"registered_mask_region,omitempty"`

	// MaskOverlap is set when both masks are supplied
	MaskOverlap *Overlap `json:"mask_overlap,omitempty"`

	// AreaChange is filled in by callers through ComputeAreaChange
	AreaChange *AreaChange `json:"area_change,omitempty"`

	Similarity Similarity `json:"similarity"`

	// Warnings lists degenerate inputs that produced zero-filled sections
	Warnings []string `json:"warnings,omitempty"`
}

// Overall holds whole-image statistics.
type Overall struct {
	MeanIntensityFixed         float64 `json:"mean_intensity_fixed"`
	MeanIntensityRegistered    float64 `json:"mean_intensity_registered"`
	MeanIntensityChange        float64 `json:"mean_intensity_change"`
	MeanIntensityChangePercent float64 `json:"mean_intensity_change_percent"`
	MeanAbsoluteDifference     float64 `json:"mean_absolute_difference"`
	MaxAbsoluteDifference      float64 `json:"max_absolute_difference"`
	StdAbsoluteDifference      float64 `json:"std_absolute_difference"`
}

// PixelChanges counts pixels whose absolute difference exceeds the threshold.
type PixelChanges struct {
	TotalPixels            int     `json:"total_pixels"`
	ChangedPixels          int     `json:"changed_pixels"`
	UnchangedPixels        int     `json:"unchanged_pixels"`
	ChangeFraction         float64 `json:"change_fraction"`
	ChangePercentage       float64 `json:"change_percentage"`
	IntensityThresholdUsed float64 `json:"intensity_threshold_used"`
}

// ComputeChangeMetrics compares fixed against registered. Either mask may be
// nil. Color inputs are reduced to grayscale, and a registered image of a
// different size is resized to the fixed image first. Masks must share the
// fixed image's dimensions.
func ComputeChangeMetrics(fixed, registered *models.Image, fixedMask, registeredMask *models.Mask, threshold float64) (*ChangeMetrics, error) {
	const op = "change metrics"

	if fixed.Empty() || registered.Empty() {
		return nil, scanerr.Shape(op, "images must be non-empty")
	}
	if math.IsNaN(threshold) {
		return nil, scanerr.New(scanerr.InvalidArgument, op, "threshold is NaN")
	}

	f := imageops.Grayscale(fixed)
	r := imageops.Grayscale(registered)
	if !f.SameSize(r) {
		r = imageops.Resize8(r, f.Width, f.Height)
	}

	for _, m := range []*models.Mask{fixedMask, registeredMask} {
		if m == nil {
			continue
		}
		if m.Empty() || m.Width != f.Width || m.Height != f.Height {
			return nil, scanerr.Shape(op, "mask is %dx%d, image is %dx%d", m.Width, m.Height, f.Width, f.Height)
		}
	}

	fx := f.Data[:f.Pixels()]
	rx := r.Data[:r.Pixels()]

	cm := &ChangeMetrics{
		Overall:      overall(fx, rx),
		PixelChanges: pixelChanges(fx, rx, threshold),
		Similarity:   similarity(fx, rx),
	}

	var fixedRegion, registeredRegion []bool
	if fixedMask != nil {
		fixedRegion = binarize(fixedMask)
	}
	if registeredMask != nil {
		registeredRegion = binarize(registeredMask)
	}

	if fixedRegion != nil || registeredRegion != nil {
		cm.MaskBased = &MaskBased{}
	}
	if fixedRegion != nil {
		stats := regionStats(fx, rx, fixedRegion)
		cm.FixedMaskRegion = &stats
		if stats.PixelCount > 0 {
			cm.MaskBased.FixedMaskRegion = stats.summary()
		} else {
			cm.Warnings = append(cm.Warnings, "fixed mask region is empty")
		}
	}
	if registeredRegion != nil {
		stats := regionStats(fx, rx, registeredRegion)
		cm.RegisteredMaskRegion = &stats
		if stats.PixelCount > 0 {
			cm.MaskBased.RegisteredMaskRegion = stats.summary()
		} else {
			cm.Warnings = append(cm.Warnings, "registered mask region is empty")
		}
	}
	if fixedRegion != nil && registeredRegion != nil {
		cm.MaskOverlap = &Overlap{
			Dice: dice(fixedRegion, registeredRegion),
			IoU:  iou(fixedRegion, registeredRegion),
		}
	}

	return cm, nil
}

func overall(fixed, registered []float64) Overall {
	diff := make([]float64, len(fixed))
	floats.SubTo(diff, registered, fixed)
	for i, d := range diff {
		diff[i] = math.Abs(d)
	}

	meanFixed := stat.Mean(fixed, nil)
	meanRegistered := stat.Mean(registered, nil)
	meanDiff, stdDiff := popMeanStdDev(diff)
	change := meanRegistered - meanFixed

	return Overall{
		MeanIntensityFixed:         meanFixed,
		MeanIntensityRegistered:    meanRegistered,
		MeanIntensityChange:        change,
		MeanIntensityChangePercent: percent(change, meanFixed),
		MeanAbsoluteDifference:     meanDiff,
		MaxAbsoluteDifference:      floats.Max(diff),
		StdAbsoluteDifference:      stdDiff,
	}
}

func pixelChanges(fixed, registered []float64, threshold float64) PixelChanges {
	changed := 0
	for i := range fixed {
		if math.Abs(registered[i]-fixed[i]) > threshold {
			changed++
		}
	}
	total := len(fixed)
	fraction := float64(changed) / float64(total)

	return PixelChanges{
		TotalPixels:            total,
		ChangedPixels:          changed,
		UnchangedPixels:        total - changed,
		ChangeFraction:         fraction,
		ChangePercentage:       fraction * 100,
		IntensityThresholdUsed: threshold,
	}
}

// percent returns change relative to base, guarding a zero base with epsilon.
func percent(change, base float64) float64 {
	return change / (base + imageops.Epsilon) * 100
}
