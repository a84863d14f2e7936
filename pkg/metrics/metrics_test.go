package metrics

import (
	"encoding/json"
	"math"
	"testing"

	"mrichange/internal/models"
	"mrichange/pkg/scanerr"
)

func flatImage(width, height int, value float64) *models.Image {
	img := models.NewImage(width, height, 1)
	for i := range img.Data {
		img.Data[i] = value
	}
	return img
}

func rampImage(width, height int) *models.Image {
	img := models.NewImage(width, height, 1)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, 0, float64((x*7+y*3)%256))
		}
	}
	return img
}

func boxMask(width, height, x1, y1, x2, y2 int) *models.Mask {
	m := models.NewMask(width, height, models.Depth8)
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			m.Data[y*width+x] = 255
		}
	}
	return m
}

func TestChangeMetricsBlockScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping full-size scenario in short mode")
	}
	fixed := flatImage(512, 512, 150)
	moving := fixed.Clone()
	for y := 100; y < 200; y++ {
		for x := 100; x < 200; x++ {
			moving.Set(x, y, 0, 200)
		}
	}

	cm, err := ComputeChangeMetrics(fixed, moving, nil, nil, 10.0)
	if err != nil {
		t.Fatalf("ComputeChangeMetrics failed: %v", err)
	}

	if cm.PixelChanges.ChangedPixels != 10000 {
		t.Errorf("Expected 10000 changed pixels, got %d", cm.PixelChanges.ChangedPixels)
	}
	if cm.PixelChanges.TotalPixels != 262144 {
		t.Errorf("Expected 262144 total pixels, got %d", cm.PixelChanges.TotalPixels)
	}
	expected := 10000.0 * 50 / 262144
	if math.Abs(cm.Overall.MeanAbsoluteDifference-expected) > 1e-9 {
		t.Errorf("Expected MAD %v, got %v", expected, cm.Overall.MeanAbsoluteDifference)
	}
	if cm.Overall.MaxAbsoluteDifference != 50 {
		t.Errorf("Expected max difference 50, got %v", cm.Overall.MaxAbsoluteDifference)
	}
	if cm.MaskBased != nil || cm.MaskOverlap != nil {
		t.Error("Expected no mask sections without masks")
	}
}

func TestChangeMetricsIdentical(t *testing.T) {
	img := rampImage(40, 30)
	for _, threshold := range []float64{0.5, 10, 100} {
		cm, err := ComputeChangeMetrics(img, img, nil, nil, threshold)
		if err != nil {
			t.Fatalf("ComputeChangeMetrics failed: %v", err)
		}
		if cm.Overall.MeanIntensityChange != 0 {
			t.Errorf("Expected no intensity change, got %v", cm.Overall.MeanIntensityChange)
		}
		if cm.PixelChanges.ChangedPixels != 0 {
			t.Errorf("Expected 0 changed pixels at threshold %v, got %d", threshold, cm.PixelChanges.ChangedPixels)
		}
	}

	cm, _ := ComputeChangeMetrics(img, img, nil, nil, 10)
	if cm.Similarity.RMSE != 0 {
		t.Errorf("Expected RMSE 0, got %v", cm.Similarity.RMSE)
	}
	if math.Abs(cm.Similarity.SSIM-1) > 1e-9 {
		t.Errorf("Expected SSIM 1, got %v", cm.Similarity.SSIM)
	}
	if math.Abs(cm.Similarity.Correlation-1) > 1e-9 {
		t.Errorf("Expected correlation 1, got %v", cm.Similarity.Correlation)
	}
	if cm.Similarity.EntropyDifference != 0 {
		t.Errorf("Expected entropy difference 0, got %v", cm.Similarity.EntropyDifference)
	}
	if cm.Similarity.MutualInformation <= 0 {
		t.Errorf("Expected positive mutual information, got %v", cm.Similarity.MutualInformation)
	}
}

func TestChangeMetricsPercentOfZeroMean(t *testing.T) {
	fixed := flatImage(4, 4, 0)
	registered := flatImage(4, 4, 1)
	cm, err := ComputeChangeMetrics(fixed, registered, nil, nil, 10)
	if err != nil {
		t.Fatalf("ComputeChangeMetrics failed: %v", err)
	}
	if math.IsInf(cm.Overall.MeanIntensityChangePercent, 0) || math.IsNaN(cm.Overall.MeanIntensityChangePercent) {
		t.Errorf("Expected finite percentage, got %v", cm.Overall.MeanIntensityChangePercent)
	}
	if cm.Similarity.Correlation != 0 {
		t.Errorf("Expected correlation 0 for flat images, got %v", cm.Similarity.Correlation)
	}
	if _, err := json.Marshal(cm); err != nil {
		t.Errorf("Expected flat metrics to serialize, got %v", err)
	}
}

func TestChangeMetricsResizesRegistered(t *testing.T) {
	cm, err := ComputeChangeMetrics(flatImage(32, 32, 100), flatImage(16, 20, 100), nil, nil, 10)
	if err != nil {
		t.Fatalf("ComputeChangeMetrics failed: %v", err)
	}
	if cm.PixelChanges.TotalPixels != 32*32 {
		t.Errorf("Expected %d pixels, got %d", 32*32, cm.PixelChanges.TotalPixels)
	}
	if cm.PixelChanges.ChangedPixels != 0 {
		t.Errorf("Expected no change after resize, got %d", cm.PixelChanges.ChangedPixels)
	}
}

func TestChangeMetricsGrayscalesColor(t *testing.T) {
	color := models.NewImage(4, 4, 3)
	for i := 0; i < 16; i++ {
		color.Data[i*3] = 90
		color.Data[i*3+1] = 120
		color.Data[i*3+2] = 150
	}
	cm, err := ComputeChangeMetrics(color, flatImage(4, 4, 120), nil, nil, 1)
	if err != nil {
		t.Fatalf("ComputeChangeMetrics failed: %v", err)
	}
	if cm.Overall.MeanIntensityFixed != 120 {
		t.Errorf("Expected fixed mean 120, got %v", cm.Overall.MeanIntensityFixed)
	}
}

func TestChangeMetricsWithMasks(t *testing.T) {
	fixed := flatImage(20, 20, 100)
	registered := fixed.Clone()
	for y := 5; y < 10; y++ {
		for x := 5; x < 10; x++ {
			registered.Set(x, y, 0, 150)
		}
	}
	fixedMask := boxMask(20, 20, 5, 5, 10, 10)
	registeredMask := boxMask(20, 20, 5, 5, 15, 10)

	cm, err := ComputeChangeMetrics(fixed, registered, fixedMask, registeredMask, 10)
	if err != nil {
		t.Fatalf("ComputeChangeMetrics failed: %v", err)
	}

	if cm.FixedMaskRegion == nil || cm.FixedMaskRegion.PixelCount != 25 {
		t.Fatalf("Expected fixed region of 25 pixels, got %+v", cm.FixedMaskRegion)
	}
	if cm.FixedMaskRegion.IntensityChange != 50 {
		t.Errorf("Expected region change 50, got %v", cm.FixedMaskRegion.IntensityChange)
	}
	if math.Abs(cm.FixedMaskRegion.IntensityChangePercent-50) > 1e-6 {
		t.Errorf("Expected region change 50%%, got %v", cm.FixedMaskRegion.IntensityChangePercent)
	}
	if math.Abs(cm.RegisteredMaskRegion.StdIntensityRegistered-25) > 1e-9 {
		t.Errorf("Expected population std 25, got %v", cm.RegisteredMaskRegion.StdIntensityRegistered)
	}
	if cm.MaskBased == nil || cm.MaskBased.FixedMaskRegion == nil || cm.MaskBased.RegisteredMaskRegion.PixelCount != 50 {
		t.Errorf("Expected both mask_based summaries, got %+v", cm.MaskBased)
	}
	if cm.MaskOverlap == nil {
		t.Fatal("Expected overlap section")
	}
	if math.Abs(cm.MaskOverlap.Dice-2.0*25/75) > 1e-9 {
		t.Errorf("Expected Dice %v, got %v", 2.0*25/75, cm.MaskOverlap.Dice)
	}
	if math.Abs(cm.MaskOverlap.IoU-0.5) > 1e-9 {
		t.Errorf("Expected IoU 0.5, got %v", cm.MaskOverlap.IoU)
	}
}

func TestChangeMetricsEmptyRegion(t *testing.T) {
	img := flatImage(8, 8, 50)
	empty := models.NewMask(8, 8, models.Depth8)

	cm, err := ComputeChangeMetrics(img, img, empty, nil, 10)
	if err != nil {
		t.Fatalf("Expected empty region to be accepted, got %v", err)
	}
	if cm.FixedMaskRegion == nil || *cm.FixedMaskRegion != (RegionStats{}) {
		t.Errorf("Expected zero-filled region, got %+v", cm.FixedMaskRegion)
	}
	if cm.MaskBased == nil || cm.MaskBased.FixedMaskRegion != nil {
		t.Errorf("Expected mask_based without the empty region, got %+v", cm.MaskBased)
	}
	if len(cm.Warnings) != 1 {
		t.Errorf("Expected one warning, got %v", cm.Warnings)
	}
	if cm.RegisteredMaskRegion != nil || cm.MaskOverlap != nil {
		t.Error("Expected no registered or overlap sections")
	}
}

func TestChangeMetricsRejectsBadInput(t *testing.T) {
	img := flatImage(8, 8, 1)
	if _, err := ComputeChangeMetrics(&models.Image{}, img, nil, nil, 10); !scanerr.Is(err, scanerr.InputShape) {
		t.Errorf("Expected input_shape error, got %v", err)
	}
	if _, err := ComputeChangeMetrics(img, img, models.NewMask(4, 4, models.Depth8), nil, 10); !scanerr.Is(err, scanerr.InputShape) {
		t.Errorf("Expected input_shape error for mismatched mask, got %v", err)
	}
	if _, err := ComputeChangeMetrics(img, img, nil, nil, math.NaN()); !scanerr.Is(err, scanerr.InvalidArgument) {
		t.Errorf("Expected invalid_argument error, got %v", err)
	}
}

func TestChangeMetricsJSONKeys(t *testing.T) {
	img := flatImage(4, 4, 10)
	m := boxMask(4, 4, 0, 0, 2, 2)
	cm, _ := ComputeChangeMetrics(img, img, m, m, 10)

	raw, err := json.Marshal(cm)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded map[string]map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	checks := map[string][]string{
		"overall":           {"mean_intensity_change_percent", "std_absolute_difference"},
		"pixel_changes":     {"change_fraction", "intensity_threshold_used"},
		"mask_based":        {"fixed_mask_region", "registered_mask_region"},
		"mask_overlap":      {"dice_coefficient", "intersection_over_union"},
		"fixed_mask_region": {"std_intensity_fixed", "pixel_count"},
	}
	for section, keys := range checks {
		for _, key := range keys {
			if _, ok := decoded[section][key]; !ok {
				t.Errorf("Expected key %s.%s in JSON", section, key)
			}
		}
	}
}

func TestOverlapCoefficients(t *testing.T) {
	empty := models.NewMask(10, 10, models.Depth8)
	tests := []struct {
		name string
		a, b *models.Mask
		dice float64
		iou  float64
	}{
		{"identical", boxMask(10, 10, 2, 2, 7, 7), boxMask(10, 10, 2, 2, 7, 7), 1, 1},
		{"disjoint", boxMask(10, 10, 0, 0, 3, 3), boxMask(10, 10, 5, 5, 8, 8), 0, 0},
		{"both empty", empty, empty, 0, 0},
		{"one empty", boxMask(10, 10, 0, 0, 3, 3), empty, 0, 0},
		{"partial", boxMask(10, 10, 0, 0, 10, 5), boxMask(10, 10, 0, 3, 10, 8), 0.4, 0.25},
	}

	for _, tt := range tests {
		d, err := Dice(tt.a, tt.b)
		if err != nil {
			t.Fatalf("%s: Dice failed: %v", tt.name, err)
		}
		j, err := IoU(tt.a, tt.b)
		if err != nil {
			t.Fatalf("%s: IoU failed: %v", tt.name, err)
		}
		if math.Abs(d-tt.dice) > 1e-9 {
			t.Errorf("%s: expected Dice %v, got %v", tt.name, tt.dice, d)
		}
		if math.Abs(j-tt.iou) > 1e-9 {
			t.Errorf("%s: expected IoU %v, got %v", tt.name, tt.iou, j)
		}
		if j > d+1e-12 {
			t.Errorf("%s: expected IoU <= Dice, got %v > %v", tt.name, j, d)
		}
	}
}

func TestOverlapRejectsMismatchedMasks(t *testing.T) {
	if _, err := Dice(boxMask(10, 10, 0, 0, 2, 2), boxMask(8, 10, 0, 0, 2, 2)); !scanerr.Is(err, scanerr.InputShape) {
		t.Errorf("Expected input_shape error from Dice, got %v", err)
	}
	if _, err := IoU(boxMask(10, 10, 0, 0, 2, 2), &models.Mask{}); !scanerr.Is(err, scanerr.InputShape) {
		t.Errorf("Expected input_shape error from IoU, got %v", err)
	}
}

func TestComputeAreaChange(t *testing.T) {
	small := boxMask(10, 10, 0, 0, 5, 5)
	large := boxMask(10, 10, 0, 0, 10, 5)
	tests := []struct {
		name              string
		fixed, registered *models.Mask
		change            int
		percent           float64
		growth, shrinkage bool
	}{
		{"growth", small, large, 25, 100, true, false},
		{"shrinkage", large, small, -25, -50, false, true},
		{"unchanged", small, boxMask(10, 10, 5, 5, 10, 10), 0, 0, false, false},
	}

	for _, tt := range tests {
		ac, err := ComputeAreaChange(tt.fixed, tt.registered)
		if err != nil {
			t.Fatalf("%s: ComputeAreaChange failed: %v", tt.name, err)
		}
		if ac.AreaChangePixels != tt.change {
			t.Errorf("%s: expected change %d, got %d", tt.name, tt.change, ac.AreaChangePixels)
		}
		if math.Abs(ac.AreaChangePercent-tt.percent) > 1e-6 {
			t.Errorf("%s: expected %v%%, got %v%%", tt.name, tt.percent, ac.AreaChangePercent)
		}
		if ac.AreaGrowth != tt.growth || ac.AreaShrinkage != tt.shrinkage {
			t.Errorf("%s: expected growth=%v shrinkage=%v, got %v/%v",
				tt.name, tt.growth, tt.shrinkage, ac.AreaGrowth, ac.AreaShrinkage)
		}
	}

	if _, err := ComputeAreaChange(nil, small); !scanerr.Is(err, scanerr.InputShape) {
		t.Errorf("Expected input_shape error for a missing mask, got %v", err)
	}
}
