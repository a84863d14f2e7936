package registration

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Kind selects the transform family estimated by the aligner.
type Kind int

const (
	// Rigid is rotation about the image centre plus translation
	Rigid Kind = iota

	// Affine adds scale and shear to Rigid
	Affine
)

// String returns the kind name.
func (k Kind) String() string {
	if k == Affine {
		return "affine"
	}
	return "rigid"
}

// ParseKind converts "rigid" or "affine" into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rigid", "":
		return Rigid, nil
	case "affine":
		return Affine, nil
	default:
		return Rigid, fmt.Errorf("unknown registration type %q", s)
	}
}

// model is a parametrized 2-D transform family. Points are expressed
// relative to the transform centre; the two families differ only in their
// parameter vector.
type model interface {
	numParams() int
	identity() []float64
	apply(p []float64, dx, dy float64) (float64, float64)
	jacobian(p []float64, dx, dy float64, jx, jy []float64)
}

func modelFor(kind Kind) model {
	if kind == Affine {
		return affineModel{}
	}
	return rigidModel{}
}

// rigidModel parameters are [angle, tx, ty].
type rigidModel struct{}

func (rigidModel) numParams() int { return 3 }

func (rigidModel) identity() []float64 { return []float64{0, 0, 0} }

func (rigidModel) apply(p []float64, dx, dy float64) (float64, float64) {
	s, c := math.Sincos(p[0])
	return c*dx - s*dy + p[1], s*dx + c*dy + p[2]
}

func (rigidModel) jacobian(p []float64, dx, dy float64, jx, jy []float64) {
	s, c := math.Sincos(p[0])
	jx[0], jy[0] = -s*dx-c*dy, c*dx-s*dy
	jx[1], jy[1] = 1, 0
	jx[2], jy[2] = 0, 1
}

// affineModel parameters are [a00, a01, a10, a11, tx, ty].
type affineModel struct{}

func (affineModel) numParams() int { return 6 }

func (affineModel) identity() []float64 { return []float64{1, 0, 0, 1, 0, 0} }

func (affineModel) apply(p []float64, dx, dy float64) (float64, float64) {
	return p[0]*dx + p[1]*dy + p[4], p[2]*dx + p[3]*dy + p[5]
}

func (affineModel) jacobian(_ []float64, dx, dy float64, jx, jy []float64) {
	jx[0], jx[1], jx[2], jx[3], jx[4], jx[5] = dx, dy, 0, 0, 1, 0
	jy[0], jy[1], jy[2], jy[3], jy[4], jy[5] = 0, 0, dx, dy, 0, 1
}

// Transform is an estimated geometric mapping between a moving image and a
// fixed image. Map sends a fixed-frame pixel position to the moving-frame
// position whose intensity lands there, which is the direction resampling
// needs; ToFixed goes the other way. A Transform is immutable.
type Transform struct {
	kind   Kind
	params []float64
	cx, cy float64
	model  model
}

// NewTransform builds a transform of the given kind from its parameter
// vector and rotation centre.
func NewTransform(kind Kind, params []float64, cx, cy float64) (*Transform, error) {
	m := modelFor(kind)
	if len(params) != m.numParams() {
		return nil, fmt.Errorf("%s transform needs %d parameters, got %d", kind, m.numParams(), len(params))
	}
	for i, v := range params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("parameter %d is not finite", i)
		}
	}
	p := make([]float64, len(params))
	copy(p, params)
	return &Transform{kind: kind, params: p, cx: cx, cy: cy, model: m}, nil
}

// Identity returns the identity transform centred on a width x height grid.
func Identity(kind Kind, width, height int) *Transform {
	m := modelFor(kind)
	cx, cy := centre(width, height)
	return &Transform{kind: kind, params: m.identity(), cx: cx, cy: cy, model: m}
}

func centre(width, height int) (float64, float64) {
	return float64(width-1) / 2, float64(height-1) / 2
}

// Kind returns the transform family.
func (t *Transform) Kind() Kind { return t.kind }

// Params returns a copy of the parameter vector.
func (t *Transform) Params() []float64 {
	p := make([]float64, len(t.params))
	copy(p, t.params)
	return p
}

// Centre returns the rotation centre in pixel coordinates.
func (t *Transform) Centre() (float64, float64) { return t.cx, t.cy }

// Map sends a fixed-frame point to the moving frame.
func (t *Transform) Map(x, y float64) (float64, float64) {
	mx, my := t.model.apply(t.params, x-t.cx, y-t.cy)
	return mx + t.cx, my + t.cy
}

// Matrix returns the 3x3 homogeneous matrix of Map.
func (t *Transform) Matrix() *mat.Dense {
	// Linear part from the images of the unit vectors
	ox, oy := t.model.apply(t.params, 0, 0)
	ax, ay := t.model.apply(t.params, 1, 0)
	bx, by := t.model.apply(t.params, 0, 1)
	a00, a10 := ax-ox, ay-oy
	a01, a11 := bx-ox, by-oy

	// x' = A(x - c) + c + o
	tx := t.cx + ox - (a00*t.cx + a01*t.cy)
	ty := t.cy + oy - (a10*t.cx + a11*t.cy)

	return mat.NewDense(3, 3, []float64{
		a00, a01, tx,
		a10, a11, ty,
		0, 0, 1,
	})
}

// Inverse returns the homogeneous matrix mapping moving-frame points into
// the fixed frame.
func (t *Transform) Inverse() (*mat.Dense, error) {
	var inv mat.Dense
	if err := inv.Inverse(t.Matrix()); err != nil {
		return nil, fmt.Errorf("transform is singular: %w", err)
	}
	return &inv, nil
}

// ToFixed maps a moving-frame point into the fixed frame.
func (t *Transform) ToFixed(x, y float64) (float64, float64, error) {
	inv, err := t.Inverse()
	if err != nil {
		return 0, 0, err
	}
	p := mat.NewVecDense(3, []float64{x, y, 1})
	var out mat.VecDense
	out.MulVec(inv, p)
	return out.AtVec(0), out.AtVec(1), nil
}

// Rotation returns the rotation angle in radians for rigid transforms and
// the angle of the first column for affine ones.
func (t *Transform) Rotation() float64 {
	if t.kind == Rigid {
		return t.params[0]
	}
	return math.Atan2(t.params[2], t.params[0])
}

// Translation returns the translation component about the centre.
func (t *Transform) Translation() (float64, float64) {
	n := len(t.params)
	return t.params[n-2], t.params[n-1]
}

// IsIdentity reports whether every point of a width x height grid moves by
// at most tol pixels.
func (t *Transform) IsIdentity(width, height int, tol float64) bool {
	return maxDisplacement(t.model, t.params, t.model.identity(), t.cx, t.cy, width, height) <= tol
}

// String formats the parameters for logs.
func (t *Transform) String() string {
	parts := make([]string, len(t.params))
	for i, v := range t.params {
		parts[i] = fmt.Sprintf("%.5f", v)
	}
	return fmt.Sprintf("%s[%s]", t.kind, strings.Join(parts, " "))
}

// cornerOffsets lists the grid corners relative to the centre.
func cornerOffsets(cx, cy float64, width, height int) [4][2]float64 {
	w, h := float64(width-1), float64(height-1)
	return [4][2]float64{
		{-cx, -cy},
		{w - cx, -cy},
		{-cx, h - cy},
		{w - cx, h - cy},
	}
}

// maxDisplacement is the largest distance between the images of the grid
// corners under parameter vectors p and q.
func maxDisplacement(m model, p, q []float64, cx, cy float64, width, height int) float64 {
	var best float64
	for _, c := range cornerOffsets(cx, cy, width, height) {
		px, py := m.apply(p, c[0], c[1])
		qx, qy := m.apply(q, c[0], c[1])
		if d := math.Hypot(px-qx, py-qy); d > best {
			best = d
		}
	}
	return best
}
