package geo

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	pmath "github.com/Faultbox/meshtiler/pkg/math"
)

// ErrTooFewPoints is returned when an affine fit has fewer than four correspondences.
var ErrTooFewPoints = errors.New("affine fit needs at least four point pairs")

// Projector maps model coordinates into the target world frame.
type Projector interface {
	ToWorld(local pmath.Vec3) (pmath.Vec3, error)
}

// Transformer is implemented by projectors whose mapping is exactly affine.
type Transformer interface {
	Transform() pmath.Mat4
}

// ENUProjector treats model coordinates as east-north-up meters around an
// anchor, shifted by Offset.
type ENUProjector struct {
	Lon, Lat, Height float64
	Offset           pmath.Vec3
}

// Transform returns the ENU to ECEF matrix including the offset.
func (p ENUProjector) Transform() pmath.Mat4 {
	return TransformWithOffset(p.Lon, p.Lat, p.Height, p.Offset)
}

// ToWorld maps local to ECEF.
func (p ENUProjector) ToWorld(local pmath.Vec3) (pmath.Vec3, error) {
	return p.Transform().TransformVec3(local), nil
}

// FitAffine finds the affine matrix mapping local onto world in the least
// squares sense. The local points must not be coplanar.
func FitAffine(local, world []pmath.Vec3) (pmath.Mat4, error) {
	if len(local) != len(world) {
		return pmath.Mat4{}, fmt.Errorf("affine fit: %d local points, %d world points", len(local), len(world))
	}
	if len(local) < 4 {
		return pmath.Mat4{}, ErrTooFewPoints
	}

	n := len(local)
	a := mat.NewDense(n, 4, nil)
	b := mat.NewDense(n, 3, nil)
	for i := range local {
		a.SetRow(i, []float64{local[i].X, local[i].Y, local[i].Z, 1})
		b.SetRow(i, []float64{world[i].X, world[i].Y, world[i].Z})
	}

	var qr mat.QR
	qr.Factorize(a)
	var x mat.Dense
	if err := qr.SolveTo(&x, false, b); err != nil {
		return pmath.Mat4{}, fmt.Errorf("affine fit: %w", err)
	}

	var m pmath.Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 3; r++ {
			m[c*4+r] = x.At(c, r)
		}
	}
	m[15] = 1
	return m, nil
}

// AnchorTransform fits the transform for a model with the given bounds by
// projecting the corners of the box. Flat axes are widened to one unit so the
// corners span a volume.
func AnchorTransform(bounds pmath.Box3, p Projector) (pmath.Mat4, error) {
	if t, ok := p.(Transformer); ok {
		return t.Transform(), nil
	}

	c := bounds.Center()
	s := bounds.Size()
	widen := func(v float64) float64 {
		if v < 1 {
			return 0.5
		}
		return v / 2
	}
	h := pmath.Vec3{X: widen(s.X), Y: widen(s.Y), Z: widen(s.Z)}
	box := pmath.NewBox3(c.Sub(h), c.Add(h))

	corners := box.Corners()
	local := corners[:]
	world := make([]pmath.Vec3, len(local))
	for i, v := range local {
		w, err := p.ToWorld(v)
		if err != nil {
			return pmath.Mat4{}, fmt.Errorf("projecting corner %d: %w", i, err)
		}
		world[i] = w
	}
	return FitAffine(local, world)
}
