package registration

import (
	"math"
	"testing"

	"mrichange/internal/models"
	"mrichange/pkg/scanerr"
)

// createBlobImage renders a Gaussian blob centred at (cx, cy) on a 0..255 scale
func createBlobImage(width, height int, cx, cy, sigma float64) *models.Image {
	img := models.NewImage(width, height, 1)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			img.Data[y*width+x] = 255 * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
		}
	}
	return img
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{"rigid": Rigid, "Affine": Affine, "": Rigid}
	for in, want := range cases {
		got, err := ParseKind(in)
		if err != nil {
			t.Errorf("Unexpected error for %q: %v", in, err)
		}
		if got != want {
			t.Errorf("Expected %s for %q, got %s", want, in, got)
		}
	}
	if _, err := ParseKind("bspline"); err == nil {
		t.Error("Expected error for unknown kind")
	}
}

func TestIdentityTransform(t *testing.T) {
	for _, kind := range []Kind{Rigid, Affine} {
		tr := Identity(kind, 11, 7)
		x, y := tr.Map(3, 4)
		if x != 3 || y != 4 {
			t.Errorf("%s identity: expected (3,4), got (%f,%f)", kind, x, y)
		}
		if !tr.IsIdentity(11, 7, 1e-12) {
			t.Errorf("%s identity not reported as identity", kind)
		}
	}
}

func TestRigidRotationAboutCentre(t *testing.T) {
	tr, err := NewTransform(Rigid, []float64{math.Pi / 2, 0, 0}, 5, 5)
	if err != nil {
		t.Fatalf("Failed to build transform: %v", err)
	}
	x, y := tr.Map(6, 5)
	if math.Abs(x-5) > 1e-9 || math.Abs(y-6) > 1e-9 {
		t.Errorf("Expected (5,6), got (%f,%f)", x, y)
	}
	if math.Abs(tr.Rotation()-math.Pi/2) > 1e-12 {
		t.Errorf("Expected rotation pi/2, got %f", tr.Rotation())
	}
}

func TestInverseRoundTrip(t *testing.T) {
	tr, err := NewTransform(Affine, []float64{1.1, 0.05, -0.02, 0.95, 3, -2}, 10, 8)
	if err != nil {
		t.Fatalf("Failed to build transform: %v", err)
	}
	mx, my := tr.Map(4, 9)
	fx, fy, err := tr.ToFixed(mx, my)
	if err != nil {
		t.Fatalf("Failed to invert: %v", err)
	}
	if math.Abs(fx-4) > 1e-9 || math.Abs(fy-9) > 1e-9 {
		t.Errorf("Expected (4,9), got (%f,%f)", fx, fy)
	}

	m := tr.Matrix()
	hx := m.At(0, 0)*4 + m.At(0, 1)*9 + m.At(0, 2)
	hy := m.At(1, 0)*4 + m.At(1, 1)*9 + m.At(1, 2)
	if math.Abs(hx-mx) > 1e-9 || math.Abs(hy-my) > 1e-9 {
		t.Errorf("Matrix disagrees with Map: (%f,%f) vs (%f,%f)", hx, hy, mx, my)
	}
}

func TestSingularTransform(t *testing.T) {
	tr, err := NewTransform(Affine, []float64{0, 0, 0, 0, 1, 1}, 0, 0)
	if err != nil {
		t.Fatalf("Failed to build transform: %v", err)
	}
	if _, err := tr.Inverse(); err == nil {
		t.Error("Expected singular transform to fail inversion")
	}
}

func TestNewTransformRejectsBadParams(t *testing.T) {
	if _, err := NewTransform(Rigid, []float64{0, 0}, 0, 0); err == nil {
		t.Error("Expected error for wrong parameter count")
	}
	if _, err := NewTransform(Rigid, []float64{math.NaN(), 0, 0}, 0, 0); err == nil {
		t.Error("Expected error for NaN parameter")
	}
}

func TestResampleTranslationFillsZero(t *testing.T) {
	src := []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}
	tr, _ := NewTransform(Rigid, []float64{0, 1, 0}, 1, 1)
	out := Resample(src, 3, 3, tr, 3, 3, Linear, 0)
	expected := []float64{
		2, 3, 0,
		5, 6, 0,
		8, 9, 0,
	}
	for i := range expected {
		if out[i] != expected[i] {
			t.Errorf("Expected %f at %d, got %f", expected[i], i, out[i])
		}
	}
}

func TestResampleNearestKeepsLabels(t *testing.T) {
	src := []float64{0, 255, 0, 255}
	tr, _ := NewTransform(Rigid, []float64{0, 0.3, 0.2}, 0.5, 0.5)
	out := Resample(src, 2, 2, tr, 2, 2, NearestNeighbor, 0)
	for i, v := range out {
		if v != 0 && v != 255 {
			t.Errorf("Expected binary value at %d, got %f", i, v)
		}
	}
}

func TestAlignIdentical(t *testing.T) {
	fixed := createBlobImage(64, 64, 30, 34, 8)
	for _, kind := range []Kind{Rigid, Affine} {
		res, err := NewAligner(DefaultParams(), nil).Align(fixed, fixed, kind)
		if err != nil {
			t.Fatalf("%s: alignment failed: %v", kind, err)
		}
		if !res.Transform.IsIdentity(64, 64, 1e-3) {
			t.Errorf("%s: expected identity, got %s", kind, res.Transform)
		}
		if res.Registered.Width != 64 || res.Registered.Height != 64 {
			t.Errorf("%s: expected 64x64, got %dx%d", kind, res.Registered.Width, res.Registered.Height)
		}
		for i, v := range res.Registered.Data {
			if math.Abs(v-fixed.Data[i]) > 1e-3 {
				t.Fatalf("%s: registered differs at %d: %f vs %f", kind, i, v, fixed.Data[i])
			}
		}
	}
}

func TestAlignRecoversTranslation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping optimizer convergence test in short mode")
	}

	fixed := createBlobImage(64, 64, 30, 32, 7)
	moving := createBlobImage(64, 64, 33, 34, 7)

	res, err := NewAligner(DefaultParams(), nil).Align(fixed, moving, Rigid)
	if err != nil {
		t.Fatalf("Alignment failed: %v", err)
	}
	tx, ty := res.Transform.Translation()
	if math.Abs(tx-3) > 0.5 || math.Abs(ty-2) > 0.5 {
		t.Errorf("Expected translation near (3,2), got (%f,%f)", tx, ty)
	}
	if res.Iterations == 0 || res.Iterations > DefaultParams().Iterations {
		t.Errorf("Expected iterations within budget, got %d", res.Iterations)
	}
}

func TestAlignResizesMoving(t *testing.T) {
	fixed := createBlobImage(48, 40, 24, 20, 6)
	sizes := [][2]int{{96, 80}, {30, 25}, {48, 41}}
	for _, s := range sizes {
		moving := createBlobImage(s[0], s[1], float64(s[0])/2, float64(s[1])/2, 6)
		params := DefaultParams()
		params.Iterations = 5
		res, err := NewAligner(params, nil).Align(fixed, moving, Affine)
		if err != nil {
			t.Fatalf("Alignment of %dx%d failed: %v", s[0], s[1], err)
		}
		if res.Registered.Width != 48 || res.Registered.Height != 40 {
			t.Errorf("Expected 48x40 for %dx%d input, got %dx%d",
				s[0], s[1], res.Registered.Width, res.Registered.Height)
		}
	}
}

func TestAlignResizeIgnoresInputScale(t *testing.T) {
	fixed := createBlobImage(32, 32, 16, 16, 5)
	moving := createBlobImage(64, 64, 32, 32, 10)
	unit := moving.Clone()
	for i := range unit.Data {
		unit.Data[i] /= 255
	}

	params := DefaultParams()
	params.Iterations = 1
	a := NewAligner(params, nil)
	res, err := a.Align(fixed, moving, Rigid)
	if err != nil {
		t.Fatalf("Alignment failed: %v", err)
	}
	resUnit, err := a.Align(fixed, unit, Rigid)
	if err != nil {
		t.Fatalf("Alignment failed: %v", err)
	}

	var sum float64
	for i, v := range res.Registered.Data {
		sum += math.Abs(v - resUnit.Registered.Data[i])
	}
	if mean := sum / float64(len(res.Registered.Data)); mean > 0.01 {
		t.Errorf("Expected the same registration for both scales, mean difference %f", mean)
	}
}

func TestAlignFlatImages(t *testing.T) {
	flat := models.NewImage(16, 16, 1)
	for i := range flat.Data {
		flat.Data[i] = 90
	}
	res, err := NewAligner(DefaultParams(), nil).Align(flat, flat, Rigid)
	if err != nil {
		t.Fatalf("Expected flat images to align, got %v", err)
	}
	if res.Stop != StopGradientTolerance {
		t.Errorf("Expected immediate convergence, got %s", res.Stop)
	}
	for _, v := range res.Registered.Data {
		if math.IsNaN(v) {
			t.Fatal("Expected finite registered values")
		}
	}
}

func TestAlignRejectsEmpty(t *testing.T) {
	_, err := NewAligner(DefaultParams(), nil).Align(&models.Image{}, createBlobImage(4, 4, 2, 2, 1), Rigid)
	if !scanerr.Is(err, scanerr.InputShape) {
		t.Errorf("Expected input_shape error, got %v", err)
	}
}

func TestAlignRejectsBadParams(t *testing.T) {
	params := DefaultParams()
	params.RelaxationFactor = 1.5
	img := createBlobImage(8, 8, 4, 4, 2)
	_, err := NewAligner(params, nil).Align(img, img, Rigid)
	if !scanerr.Is(err, scanerr.InvalidArgument) {
		t.Errorf("Expected invalid_argument error, got %v", err)
	}
}

func TestPhysicalShiftScales(t *testing.T) {
	cx, cy := centre(101, 101)
	scales := physicalShiftScales(rigidModel{}, cx, cy, 101, 101, 0.01)
	// Translation moves every corner by exactly delta
	if math.Abs(scales[1]-1) > 1e-9 || math.Abs(scales[2]-1) > 1e-9 {
		t.Errorf("Expected unit translation scales, got %v", scales[1:])
	}
	// Rotation moves the corners by about radius*delta
	radius := math.Hypot(50, 50)
	if math.Abs(math.Sqrt(scales[0])-radius)/radius > 0.01 {
		t.Errorf("Expected rotation scale near %f, got %f", radius*radius, scales[0])
	}
}

func TestGradientOfRamp(t *testing.T) {
	data := []float64{0, 1, 2, 0, 1, 2}
	gx, gy := gradient(data, 3, 2)
	for i, v := range gx {
		if v != 1 {
			t.Errorf("Expected x gradient 1 at %d, got %f", i, v)
		}
	}
	for i, v := range gy {
		if v != 0 {
			t.Errorf("Expected y gradient 0 at %d, got %f", i, v)
		}
	}
}

func TestResultReport(t *testing.T) {
	tr, err := NewTransform(Rigid, []float64{0, 3, -2}, 4.5, 4.5)
	if err != nil {
		t.Fatalf("NewTransform failed: %v", err)
	}
	r := &Result{Transform: tr, Iterations: 7, Metric: 0.25, Stop: StopMinStep}
	rep := r.Report()

	if rep.Type != "rigid" || rep.Iterations != 7 || rep.Stop != StopMinStep {
		t.Errorf("Unexpected report: %+v", rep)
	}
	if rep.Matrix[2] != 3 || rep.Matrix[5] != -2 || rep.Matrix[0] != 1 {
		t.Errorf("Expected pure translation matrix, got %v", rep.Matrix)
	}
	if rep.Centre != [2]float64{4.5, 4.5} {
		t.Errorf("Expected centre (4.5, 4.5), got %v", rep.Centre)
	}
}
