package metrics

import (
	"gonum.org/v1/gonum/stat"

	"mrichange/internal/models"
	"mrichange/pkg/masks"
	"mrichange/pkg/scanerr"
)

// MaskBased summarizes each non-empty mask region.
type MaskBased struct {
	FixedMaskRegion      *RegionSummary `json:"fixed_mask_region,omitempty"`
	RegisteredMaskRegion *RegionSummary `json:"registered_mask_region,omitempty"`
}

// RegionSummary compares mean intensities inside one region.
type RegionSummary struct {
	MeanIntensityFixed      float64 `json:"mean_intensity_fixed"`
	MeanIntensityRegistered float64 `json:"mean_intensity_registered"`
	IntensityChange         float64 `json:"intensity_change"`
	IntensityChangePercent  float64 `json:"intensity_change_percent"`
	PixelCount              int     `json:"pixel_count"`
}

// RegionStats extends RegionSummary with per-image spread. An empty region
// leaves every field zero.
type RegionStats struct {
	PixelCount              int     `json:"pixel_count"`
	MeanIntensityFixed      float64 `json:"mean_intensity_fixed"`
	MeanIntensityRegistered float64 `json:"mean_intensity_registered"`
	IntensityChange         float64 `json:"intensity_change"`
	IntensityChangePercent  float64 `json:"intensity_change_percent"`
	StdIntensityFixed       float64 `json:"std_intensity_fixed"`
	StdIntensityRegistered  float64 `json:"std_intensity_registered"`
}

// Overlap of two binarized masks.
type Overlap struct {
	Dice float64 `json:"dice_coefficient"`
	IoU  float64 `json:"intersection_over_union"`
}

// AreaChange compares the in-region pixel counts of two masks.
type AreaChange struct {
	FixedAreaPixels      int     `json:"fixed_area_pixels"`
	RegisteredAreaPixels int     `json:"registered_area_pixels"`
	AreaChangePixels     int     `json:"area_change_pixels"`
	AreaChangePercent    float64 `json:"area_change_percent"`
	AreaGrowth           bool    `json:"area_growth"`
	AreaShrinkage        bool    `json:"area_shrinkage"`
}

// popMeanStdDev returns the mean and population standard deviation. A
// single sample has zero spread.
func popMeanStdDev(x []float64) (mean, std float64) {
	if len(x) < 2 {
		return stat.Mean(x, nil), 0
	}
	return stat.PopMeanStdDev(x, nil)
}

func (s RegionStats) summary() *RegionSummary {
	return &RegionSummary{
		MeanIntensityFixed:      s.MeanIntensityFixed,
		MeanIntensityRegistered: s.MeanIntensityRegistered,
		IntensityChange:         s.IntensityChange,
		IntensityChangePercent:  s.IntensityChangePercent,
		PixelCount:              s.PixelCount,
	}
}

func regionStats(fixed, registered []float64, region []bool) RegionStats {
	var fx, rx []float64
	for i, in := range region {
		if in {
			fx = append(fx, fixed[i])
			rx = append(rx, registered[i])
		}
	}
	if len(fx) == 0 {
		return RegionStats{}
	}

	meanFixed, stdFixed := popMeanStdDev(fx)
	meanRegistered, stdRegistered := popMeanStdDev(rx)
	change := meanRegistered - meanFixed

	return RegionStats{
		PixelCount:              len(fx),
		MeanIntensityFixed:      meanFixed,
		MeanIntensityRegistered: meanRegistered,
		IntensityChange:         change,
		IntensityChangePercent:  percent(change, meanFixed),
		StdIntensityFixed:       stdFixed,
		StdIntensityRegistered:  stdRegistered,
	}
}

// Dice returns 2|A∩B| / (|A|+|B|) over the binarized masks, or 0 when both
// are empty.
func Dice(a, b *models.Mask) (float64, error) {
	ab, bb, err := binarizePair("dice", a, b)
	if err != nil {
		return 0, err
	}
	return dice(ab, bb), nil
}

// IoU returns |A∩B| / |A∪B| over the binarized masks, or 0 when the union is empty.
func IoU(a, b *models.Mask) (float64, error) {
	ab, bb, err := binarizePair("iou", a, b)
	if err != nil {
		return 0, err
	}
	return iou(ab, bb), nil
}

// ComputeAreaChange reports how the in-region area of registered differs
// from fixed. The masks may have different dimensions. A zero change is
// neither growth nor shrinkage.
func ComputeAreaChange(fixed, registered *models.Mask) (*AreaChange, error) {
	if fixed.Empty() || registered.Empty() {
		return nil, scanerr.Shape("area change", "masks must be non-empty")
	}
	fixedArea := masks.Count(binarize(fixed))
	registeredArea := masks.Count(binarize(registered))
	change := registeredArea - fixedArea

	return &AreaChange{
		FixedAreaPixels:      fixedArea,
		RegisteredAreaPixels: registeredArea,
		AreaChangePixels:     change,
		AreaChangePercent:    percent(float64(change), float64(fixedArea)),
		AreaGrowth:           change > 0,
		AreaShrinkage:        change < 0,
	}, nil
}

func binarize(m *models.Mask) []bool {
	return masks.Binarize(m)
}

func binarizePair(op string, a, b *models.Mask) ([]bool, []bool, error) {
	if a.Empty() || b.Empty() {
		return nil, nil, scanerr.Shape(op, "masks must be non-empty")
	}
	if a.Width != b.Width || a.Height != b.Height {
		return nil, nil, scanerr.Shape(op, "mask sizes differ: %dx%d vs %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	return binarize(a), binarize(b), nil
}

func dice(a, b []bool) float64 {
	inter, sum := 0, 0
	for i := range a {
		if a[i] && b[i] {
			inter++
		}
		if a[i] {
			sum++
		}
		if b[i] {
			sum++
		}
	}
	if sum == 0 {
		return 0
	}
	return 2 * float64(inter) / float64(sum)
}

func iou(a, b []bool) float64 {
	inter, union := 0, 0
	for i := range a {
		if a[i] && b[i] {
			inter++
		}
		if a[i] || b[i] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
