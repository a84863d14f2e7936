package visualization

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"mrichange/internal/models"
	"mrichange/pkg/scanerr"
)

func createFlatImage(width, height int, value float64) *models.Image {
	img := models.NewImage(width, height, 1)
	for i := range img.Data {
		img.Data[i] = value
	}
	return img
}

// TestVisualizeColors verifies increases are red and decreases are blue
func TestVisualizeColors(t *testing.T) {
	fixed := createFlatImage(3, 1, 100)
	registered := fixed.Clone()
	registered.Data[0] = 200 // increase
	registered.Data[2] = 50  // decrease

	out, err := Visualize(fixed, registered, nil)
	if err != nil {
		t.Fatalf("Visualize failed: %v", err)
	}

	gray := 100.0 / 255 * baseWeight
	base := uint8(gray)

	up := out.RGBAAt(0, 0)
	if up.R <= up.G || up.B != base {
		t.Errorf("Expected red increase, got %+v", up)
	}
	// |d| normalizes to just under 1, so the red level is 254
	if want := uint8(gray + 254*diffWeight); up.R != want {
		t.Errorf("Expected red %d, got %d", want, up.R)
	}

	same := out.RGBAAt(1, 0)
	if same.R != base || same.G != base || same.B != base {
		t.Errorf("Expected gray %d for unchanged pixel, got %+v", base, same)
	}

	down := out.RGBAAt(2, 0)
	if down.B <= down.G || down.R != base {
		t.Errorf("Expected blue decrease, got %+v", down)
	}
	if down.A != 255 {
		t.Errorf("Expected opaque output, got alpha %d", down.A)
	}
}

// TestVisualizeClipsBright verifies bright pixels saturate instead of wrapping
func TestVisualizeClipsBright(t *testing.T) {
	fixed := createFlatImage(2, 1, 255)
	registered := fixed.Clone()
	registered.Data[0] = 0
	fixed.Data[1] = 0
	registered.Data[1] = 255

	out, err := Visualize(fixed, registered, nil)
	if err != nil {
		t.Fatalf("Visualize failed: %v", err)
	}
	if got := out.RGBAAt(1, 0).R; got != 177 {
		t.Errorf("Expected red 177, got %d", got)
	}
	if got := out.RGBAAt(0, 0).B; got != 255 {
		t.Errorf("Expected blue to clip at 255, got %d", got)
	}
}

// TestVisualizeIdentical verifies identical inputs produce a plain gray overlay
func TestVisualizeIdentical(t *testing.T) {
	img := createFlatImage(4, 4, 200)
	out, err := Visualize(img, img, nil)
	if err != nil {
		t.Fatalf("Visualize failed: %v", err)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			c := out.RGBAAt(x, y)
			if c.R != c.G || c.G != c.B {
				t.Fatalf("Expected gray pixel at (%d,%d), got %+v", x, y, c)
			}
		}
	}
}

// TestVisualizeColorInput verifies the output is RGB for color inputs
func TestVisualizeColorInput(t *testing.T) {
	fixed := models.NewImage(5, 5, 3)
	out, err := Visualize(fixed, fixed, nil)
	if err != nil {
		t.Fatalf("Visualize failed: %v", err)
	}
	if out.Bounds().Dx() != 5 || out.Bounds().Dy() != 5 {
		t.Errorf("Expected 5x5 output, got %v", out.Bounds())
	}
}

// TestVisualizePrecomputedDiff verifies a supplied difference is used as-is
func TestVisualizePrecomputedDiff(t *testing.T) {
	fixed := createFlatImage(2, 1, 0)
	diff := models.NewGray([]float64{-3, 3}, 2, 1)

	out, err := Visualize(fixed, nil, diff)
	if err != nil {
		t.Fatalf("Visualize failed: %v", err)
	}
	if out.RGBAAt(0, 0).B == 0 || out.RGBAAt(1, 0).R == 0 {
		t.Errorf("Expected blue then red, got %+v %+v", out.RGBAAt(0, 0), out.RGBAAt(1, 0))
	}
}

// TestVisualizeRejectsMismatch verifies shape errors are reported
func TestVisualizeRejectsMismatch(t *testing.T) {
	_, err := Visualize(createFlatImage(4, 4, 0), createFlatImage(3, 4, 0), nil)
	if !scanerr.Is(err, scanerr.InputShape) {
		t.Errorf("Expected input_shape error, got %v", err)
	}
	_, err = Visualize(&models.Image{}, createFlatImage(3, 4, 0), nil)
	if !scanerr.Is(err, scanerr.InputShape) {
		t.Errorf("Expected input_shape error, got %v", err)
	}
}

// TestSavePanel verifies the side-by-side export
func TestSavePanel(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	fixed := createFlatImage(6, 4, 80)
	registered := createFlatImage(6, 4, 120)
	overlay, err := Visualize(fixed, registered, nil)
	if err != nil {
		t.Fatalf("Visualize failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "panel.png")
	if err := SavePanel(path, fixed, registered, overlay); err != nil {
		t.Fatalf("SavePanel failed: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Saved file does not exist: %v", err)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		t.Fatalf("Failed to decode panel: %v", err)
	}
	if want := 3*6 + 2*panelGap; img.Bounds().Dx() != want || img.Bounds().Dy() != 4 {
		t.Errorf("Expected %dx4 panel, got %v", want, img.Bounds())
	}

	if _, err := Panel(fixed, createFlatImage(5, 4, 0), overlay); err == nil {
		t.Error("Expected error for mismatched panel inputs")
	}
}
