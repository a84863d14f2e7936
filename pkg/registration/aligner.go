// Package registration aligns a moving scan to a fixed scan with a 2-D rigid
// or affine transform. The objective is the mean of squared intensity
// differences over the fixed grid; it is minimized by a regular-step
// gradient descent whose step length is relaxed whenever a candidate step
// fails to improve the metric.
package registration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"mrichange/internal/logger"
	"mrichange/internal/models"
	"mrichange/pkg/imageops"
	"mrichange/pkg/scanerr"
)

// StopCondition records why the optimizer finished.
type StopCondition string

const (
	StopGradientTolerance StopCondition = "gradient_tolerance"
	StopMinStep           StopCondition = "min_step"
	StopMaxIterations     StopCondition = "max_iterations"
)

// Params holds the optimizer settings.
type Params struct {
	// LearningRate is the initial step length, in pixels of grid displacement
	LearningRate float64

	// MinStep terminates the search once the relaxed step drops below it
	MinStep float64

	// Iterations caps the number of gradient evaluations
	Iterations int

	// RelaxationFactor multiplies the step after a rejected candidate
	RelaxationFactor float64

	// GradientTolerance terminates on a vanishing scaled gradient
	GradientTolerance float64

	// ShiftDelta is the perturbation used to derive parameter scales
	ShiftDelta float64
}

// DefaultParams returns the settings the comparison pipeline uses.
func DefaultParams() Params {
	return Params{
		LearningRate:      2.0,
		MinStep:           0.01,
		Iterations:        50,
		RelaxationFactor:  0.5,
		GradientTolerance: 1e-4,
		ShiftDelta:        0.01,
	}
}

// Result is the outcome of one alignment.
type Result struct {
	// Registered is the moving image resampled into the fixed grid, on a 0..255 scale
	Registered *models.Image

	// Transform maps fixed-frame positions into the moving frame
	Transform *Transform

	// Iterations is the number of optimizer iterations performed
	Iterations int

	// Metric is the final mean squared difference of the normalized images
	Metric float64

	// Stop is the reason the optimizer finished
	Stop StopCondition
}

// Aligner estimates transforms. It holds no per-call state and is safe for
// concurrent use.
type Aligner struct {
	params Params
	log    *logger.Logger
}

// NewAligner creates an aligner. A nil logger discards output.
func NewAligner(params Params, log *logger.Logger) *Aligner {
	return &Aligner{params: params, log: log}
}

// Align registers moving onto fixed. Both images are reduced to grayscale,
// moving is scaled to 8-bit levels and resized to fixed's dimensions when
// they differ, and both are normalized to [0,1] before optimization. The
// registered image always has fixed's dimensions.
func (a *Aligner) Align(fixed, moving *models.Image, kind Kind) (*Result, error) {
	if fixed.Empty() {
		return nil, scanerr.Shape("align", "fixed image has unusable dimensions")
	}
	if moving.Empty() {
		return nil, scanerr.Shape("align", "moving image has unusable dimensions")
	}
	if err := a.validate(); err != nil {
		return nil, err
	}

	a.log.Info("Starting %s registration...", kind)

	fixedGray := imageops.Grayscale(fixed)
	movingGray := imageops.Grayscale(moving)
	if !movingGray.SameSize(fixedGray) {
		a.log.Info("Resizing moving image from %dx%d to %dx%d",
			movingGray.Width, movingGray.Height, fixedGray.Width, fixedGray.Height)
		movingGray = imageops.Resize8(imageops.Round8(imageops.Normalize(movingGray, 255)), fixedGray.Width, fixedGray.Height)
	}

	f := imageops.Normalize(fixedGray, 1)
	m := imageops.Normalize(movingGray, 1)

	transform, iterations, metric, stop, err := a.optimize(f, m, kind)
	if err != nil {
		return nil, err
	}

	a.log.Info("Optimizer stop condition: %s", stop)
	a.log.Info("Final metric value: %.6f", metric)
	a.log.Info("Number of iterations: %d", iterations)

	registered := Resample(m.Data, m.Width, m.Height, transform, f.Width, f.Height, Linear, 0)
	floats.Scale(255, registered)

	a.log.Info("Registration completed successfully")

	return &Result{
		Registered: models.NewGray(registered, f.Width, f.Height),
		Transform:  transform,
		Iterations: iterations,
		Metric:     metric,
		Stop:       stop,
	}, nil
}

func (a *Aligner) validate() error {
	p := a.params
	if p.Iterations <= 0 {
		return scanerr.New(scanerr.InvalidArgument, "align", "iterations must be positive, got %d", p.Iterations)
	}
	if p.LearningRate <= 0 || p.MinStep <= 0 || p.ShiftDelta <= 0 {
		return scanerr.New(scanerr.InvalidArgument, "align", "learning rate, minimum step and shift delta must be positive")
	}
	if p.RelaxationFactor <= 0 || p.RelaxationFactor >= 1 {
		return scanerr.New(scanerr.InvalidArgument, "align", "relaxation factor must be in (0,1), got %g", p.RelaxationFactor)
	}
	return nil
}

// objective evaluates the mean squared difference between fixed and the
// transformed moving image, and optionally its gradient.
type objective struct {
	model         model
	fixed, moving []float64
	gradX, gradY  []float64
	width, height int
	cx, cy        float64
	jx, jy        []float64
}

func newObjective(m model, fixed, moving *models.Image) *objective {
	gx, gy := gradient(moving.Data, moving.Width, moving.Height)
	cx, cy := centre(fixed.Width, fixed.Height)
	return &objective{
		model:  m,
		fixed:  fixed.Data,
		moving: moving.Data,
		gradX:  gx,
		gradY:  gy,
		width:  fixed.Width,
		height: fixed.Height,
		cx:     cx,
		cy:     cy,
		jx:     make([]float64, m.numParams()),
		jy:     make([]float64, m.numParams()),
	}
}

// evaluate returns the metric and the number of fixed pixels that mapped
// inside the moving image. grad, when non-nil, receives the gradient.
func (o *objective) evaluate(p []float64, grad []float64) (float64, int) {
	if grad != nil {
		for i := range grad {
			grad[i] = 0
		}
	}

	var sum float64
	var count int
	for y := 0; y < o.height; y++ {
		dy := float64(y) - o.cy
		for x := 0; x < o.width; x++ {
			dx := float64(x) - o.cx
			mx, my := o.model.apply(p, dx, dy)
			mx += o.cx
			my += o.cy
			if !inside(mx, my, o.width, o.height) {
				continue
			}

			r := bilinear(o.moving, o.width, o.height, mx, my) - o.fixed[y*o.width+x]
			sum += r * r
			count++

			if grad == nil {
				continue
			}
			gmx := bilinear(o.gradX, o.width, o.height, mx, my)
			gmy := bilinear(o.gradY, o.width, o.height, mx, my)
			o.model.jacobian(p, dx, dy, o.jx, o.jy)
			for j := range grad {
				grad[j] += 2 * r * (gmx*o.jx[j] + gmy*o.jy[j])
			}
		}
	}

	if count == 0 {
		return math.Inf(1), 0
	}
	if grad != nil {
		floats.Scale(1/float64(count), grad)
	}
	return sum / float64(count), count
}

// optimize runs the regular-step gradient descent from the identity.
func (a *Aligner) optimize(fixed, moving *models.Image, kind Kind) (*Transform, int, float64, StopCondition, error) {
	m := modelFor(kind)
	obj := newObjective(m, fixed, moving)
	n := m.numParams()

	scales := physicalShiftScales(m, obj.cx, obj.cy, fixed.Width, fixed.Height, a.params.ShiftDelta)
	rootScales := make([]float64, n)
	for i, s := range scales {
		rootScales[i] = math.Sqrt(s)
	}

	p := m.identity()
	grad := make([]float64, n)
	scaled := make([]float64, n)
	normalized := make([]float64, n)
	candidate := make([]float64, n)

	value, count := obj.evaluate(p, grad)
	if count == 0 {
		return nil, 0, 0, "", scanerr.Registration("align", "all samples map outside the moving image")
	}

	step := a.params.LearningRate
	stop := StopMaxIterations
	iterations := 0

	for iterations < a.params.Iterations {
		if !finite(value) || !allFinite(grad) {
			return nil, iterations, 0, "", scanerr.Registration("align", "metric became non-finite at iteration %d", iterations)
		}

		// The gradient in pixel-normalized coordinates q = p*sqrt(scale)
		// measures the step length; the descent direction in parameter
		// space is grad/scale.
		floats.DivTo(normalized, grad, rootScales)
		magnitude := floats.Norm(normalized, 2)
		if magnitude < a.params.GradientTolerance {
			stop = StopGradientTolerance
			break
		}
		floats.DivTo(scaled, grad, scales)

		iterations++

		copy(candidate, p)
		floats.AddScaled(candidate, -step/magnitude, scaled)

		candidateValue, _ := obj.evaluate(candidate, nil)
		if candidateValue < value {
			copy(p, candidate)
			value, _ = obj.evaluate(p, grad)
			continue
		}

		step *= a.params.RelaxationFactor
		if step < a.params.MinStep {
			stop = StopMinStep
			break
		}
	}

	if !allFinite(p) {
		return nil, iterations, 0, "", scanerr.Registration("align", "optimizer produced non-finite parameters")
	}

	transform, err := NewTransform(kind, p, obj.cx, obj.cy)
	if err != nil {
		return nil, iterations, 0, "", scanerr.Registration("align", "%v", err)
	}
	return transform, iterations, value, stop, nil
}

// physicalShiftScales derives one scale per parameter from the largest
// corner displacement a small perturbation of that parameter causes, so a
// step of a given length moves the grid by about that many pixels whichever
// parameter it changes.
func physicalShiftScales(m model, cx, cy float64, width, height int, delta float64) []float64 {
	base := m.identity()
	scales := make([]float64, m.numParams())
	for i := range scales {
		perturbed := m.identity()
		perturbed[i] += delta
		shift := maxDisplacement(m, perturbed, base, cx, cy, width, height) / delta
		scales[i] = shift * shift
		if scales[i] < 1e-12 {
			scales[i] = 1
		}
	}
	return scales
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if !finite(v) {
			return false
		}
	}
	return true
}

// String formats the result for logs.
func (r *Result) String() string {
	return fmt.Sprintf("%s after %d iterations (%s), metric %.6f", r.Transform, r.Iterations, r.Stop, r.Metric)
}

// Report is the serializable summary of a Result.
type Report struct {
	Type        string        `json:"type"`
	Parameters  []float64     `json:"parameters"`
	Centre      [2]float64    `json:"centre"`
	Matrix      [6]float64    `json:"matrix"`
	Iterations  int           `json:"iterations"`
	FinalMetric float64       `json:"final_metric"`
	Stop        StopCondition `json:"stop_condition"`
}

// Report summarizes the result. Matrix holds the top two rows of the
// fixed-to-moving homogeneous matrix.
func (r *Result) Report() Report {
	cx, cy := r.Transform.Centre()
	m := r.Transform.Matrix()
	return Report{
		Type:        r.Transform.Kind().String(),
		Parameters:  r.Transform.Params(),
		Centre:      [2]float64{cx, cy},
		Matrix:      [6]float64{m.At(0, 0), m.At(0, 1), m.At(0, 2), m.At(1, 0), m.At(1, 1), m.At(1, 2)},
		Iterations:  r.Iterations,
		FinalMetric: r.Metric,
		Stop:        r.Stop,
	}
}
